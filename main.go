package main

import (
    "context"
    "log"
    "log/slog"
    "net/http"
    "time"

    "github.com/gorilla/mux"
    "github.com/urfave/negroni"

    "github.com/amsaid/docpilot/chunker"
    "github.com/amsaid/docpilot/config"
    "github.com/amsaid/docpilot/connector_registry"
    "github.com/amsaid/docpilot/db"
    "github.com/amsaid/docpilot/logging"
    "github.com/amsaid/docpilot/orchestrator"
    "github.com/amsaid/docpilot/scheduler"
    "github.com/amsaid/docpilot/server"
    "github.com/amsaid/docpilot/services/connector_service"
    "github.com/amsaid/docpilot/services/embedding_service"
    "github.com/amsaid/docpilot/services/ingest_service"
    "github.com/amsaid/docpilot/services/llm_service"
    "github.com/amsaid/docpilot/services/ocr_service"
    "github.com/amsaid/docpilot/vector_index"
)

func main() {
    cfg := config.Load()

    logger, err := initLogger(cfg.LogDir)
    if err != nil {
        log.Fatalf("Failed to initialize logger: %v", err)
    }

    pool, err := db.Connect()
    if err != nil {
        log.Fatalf("Failed to connect to database: %v", err)
    }
    defer pool.Close()

    if err := db.Migrate(context.Background(), pool, cfg.EmbeddingDimension); err != nil {
        log.Fatalf("Failed to run migrations: %v", err)
    }

    // Retrieval stack.
    embedder := embedding_service.NewOpenAIEmbedder(cfg.EmbeddingAPIURL, cfg.OpenAIAPIKey,
        cfg.EmbeddingModel, cfg.EmbeddingDimension, cfg.EmbeddingBatchSize,
        cfg.EmbedAttempts, cfg.EmbeddingTimeout, logger)
    indexStore := vector_index.NewPostgresStore(pool, cfg.EmbeddingDimension)
    gateway := vector_index.NewGateway(indexStore, embedder, cfg.IndexTimeout, cfg.IndexAttempts, logger)

    // Ingestion stack.
    documentStore := ingest_service.NewPostgresDocumentStore(pool)
    ocr := ocr_service.NewTesseractOCRService(logger)
    ingestor := ingest_service.NewIngestor(ocr, documentStore,
        chunker.New(cfg.ChunkWindow, cfg.ChunkOverlap), embedder, gateway,
        cfg.OCRTimeout, cfg.ExtractionAttempts, cfg.ConfidenceThreshold, logger)

    // Connectors.
    registry := connector_registry.NewConnectorRegistry(
        connector_registry.NewPostgresKeyStore(pool), logger)
    registerConnectors(registry, cfg, documentStore, logger)

    // Agent loop.
    tools, err := llm_service.LoadTools(cfg.ToolSchemaPath)
    if err != nil {
        logger.Warn("Falling back to built-in tool catalog",
            slog.String("path", cfg.ToolSchemaPath),
            slog.String("error", err.Error()))
        tools = llm_service.DefaultTools()
    }
    decision := llm_service.NewDecisionService(newLLMService(cfg, logger), tools, logger)
    sessions := orchestrator.NewSessionStore(cfg.SessionIdleTimeout, logger)
    orch := orchestrator.NewOrchestrator(sessions, decision, gateway, registry,
        cfg.MaxRetrievalHops, cfg.MaxStepsPerTurn, cfg.RetrievalTopK,
        cfg.ConnectorRetries, cfg.ConnectorBackoff, logger)

    // Maintenance loop.
    maint := scheduler.New(sessions, gateway, cfg.MaintenanceInterval, logger)
    go maint.Start()
    defer maint.Stop()

    r := server.SetupRoutes(ingestor, documentStore, gateway, orch, cfg.RetrievalTopK, logger)
    n := setupNegroni(r)

    if cfg.Environment == "production" {
        server.ServeProduction(n, server.Config{
            Domains:      cfg.Domains,
            CertCacheDir: cfg.CertCacheDir,
            HTTPPort:     cfg.HTTPPort,
            HTTPSPort:    cfg.HTTPSPort,
        })
    } else {
        srv := &http.Server{
            Addr:         ":" + cfg.HTTPPort,
            Handler:      n,
            IdleTimeout:  time.Minute,
            ReadTimeout:  30 * time.Second,
            WriteTimeout: 120 * time.Second,
        }
        server.ServeDevelopment(srv)
    }
}

func initLogger(logDir string) (*slog.Logger, error) {
    handler, err := logging.NewDailyFileHandler(logDir, &slog.HandlerOptions{
        Level: slog.LevelInfo,
    })
    if err != nil {
        return nil, err
    }
    return slog.New(handler), nil
}

func newLLMService(cfg config.Config, logger *slog.Logger) llm_service.LLMService {
    switch cfg.LLMProvider {
    case "anthropic":
        return llm_service.NewAnthropicService(cfg.AnthropicAPIKey, cfg.AnthropicModel,
            4096, cfg.LLMTimeout, logger)
    default:
        return llm_service.NewOpenAIService(cfg.OpenAIAPIURL, cfg.OpenAIAPIKey,
            cfg.OpenAIModel, cfg.LLMTimeout, logger)
    }
}

func registerConnectors(registry *connector_registry.ConnectorRegistry, cfg config.Config,
    documentStore ingest_service.DocumentStore, logger *slog.Logger) {

    if cfg.GoogleClientID != "" {
        calendarConn, err := connector_service.NewCalendarConnector(context.Background(),
            connector_service.CalendarCredentials{
                ClientID:     cfg.GoogleClientID,
                ClientSecret: cfg.GoogleClientSecret,
                RefreshToken: cfg.GoogleRefreshToken,
                CalendarID:   cfg.GoogleCalendarID,
            }, logger)
        if err != nil {
            logger.Error("Calendar connector unavailable", slog.String("error", err.Error()))
        } else {
            registry.RegisterConnector(calendarConn)
        }
    }

    if cfg.SlackToken != "" {
        registry.RegisterConnector(connector_service.NewMessagingConnector(
            cfg.SlackToken, cfg.SlackChannel, logger))
    }

    if cfg.SendGridAPIKey != "" {
        registry.RegisterConnector(connector_service.NewEmailConnector(
            connector_service.SendGridCredentials{
                APIKey:    cfg.SendGridAPIKey,
                FromEmail: cfg.EmailFromAddress,
                FromName:  cfg.EmailFromName,
            }, logger))
    }

    if cfg.TwilioAccountSID != "" {
        registry.RegisterConnector(connector_service.NewSMSConnector(
            connector_service.TwilioCredentials{
                AccountSid: cfg.TwilioAccountSID,
                AuthToken:  cfg.TwilioAuthToken,
                FromNumber: cfg.TwilioFromNumber,
            }, logger))
    }

    if cfg.TrelloConsumerKey != "" {
        registry.RegisterConnector(connector_service.NewTaskBoardConnector(
            connector_service.TrelloCredentials{
                APIKey:        cfg.TrelloConsumerKey,
                APISecret:     cfg.TrelloConsumerSecret,
                AccessToken:   cfg.TrelloAccessToken,
                AccessSecret:  cfg.TrelloTokenSecret,
                DefaultListID: cfg.TrelloListID,
            }, logger))
    }

    registry.RegisterConnector(connector_service.NewExportConnector(
        documentStore, cfg.ExportDir, logger))

    logger.Info("Connectors registered",
        slog.Any("connectors", registry.ConnectorNames()))
}

func setupNegroni(r *mux.Router) *negroni.Negroni {
    n := negroni.New()
    n.Use(negroni.NewRecovery())
    n.Use(negroni.NewLogger())
    n.UseHandler(r)
    return n
}
