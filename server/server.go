package server

import (
    "crypto/tls"
    "log"
    "log/slog"
    "net/http"
    "time"

    "github.com/gorilla/mux"
    "github.com/urfave/negroni"
    "golang.org/x/crypto/acme/autocert"

    "github.com/amsaid/docpilot/handlers"
    "github.com/amsaid/docpilot/orchestrator"
    "github.com/amsaid/docpilot/services/ingest_service"
    "github.com/amsaid/docpilot/vector_index"
)

type Config struct {
    Domains      []string
    CertCacheDir string
    HTTPPort     string
    HTTPSPort    string
}

func SetupRoutes(ingestor *ingest_service.Ingestor, store ingest_service.DocumentStore,
    index *vector_index.Gateway, orch *orchestrator.Orchestrator, topK int,
    logger *slog.Logger) *mux.Router {

    r := mux.NewRouter()

    documentHandler := handlers.NewDocumentHandler(ingestor, store, index, topK, logger)
    r.HandleFunc("/documents", documentHandler.Upload).Methods("POST")
    r.HandleFunc("/documents/{id}", documentHandler.Get).Methods("GET")
    r.HandleFunc("/documents/search", documentHandler.Search).Methods("POST")

    sessionHandler := handlers.NewSessionHandler(orch, logger)
    r.HandleFunc("/sessions/{id}/message", sessionHandler.Message).Methods("POST")
    r.HandleFunc("/sessions/{id}", sessionHandler.Get).Methods("GET")
    r.HandleFunc("/sessions/{id}", sessionHandler.Close).Methods("DELETE")

    return r
}

// ServeProduction terminates TLS with autocert and redirects plain HTTP.
func ServeProduction(n *negroni.Negroni, cfg Config) {
    autocertManager := autocert.Manager{
        Prompt:     autocert.AcceptTOS,
        HostPolicy: autocert.HostWhitelist(cfg.Domains...),
        Cache:      autocert.DirCache(cfg.CertCacheDir),
    }

    // Port 80 serves ACME challenges and redirects everything else.
    go func() {
        srv := &http.Server{
            Addr:         ":" + cfg.HTTPPort,
            Handler:      autocertManager.HTTPHandler(nil),
            IdleTimeout:  time.Minute,
            ReadTimeout:  5 * time.Second,
            WriteTimeout: 10 * time.Second,
        }
        log.Fatal(srv.ListenAndServe())
    }()

    tlsConfig := &tls.Config{
        GetCertificate:   autocertManager.GetCertificate,
        CurvePreferences: []tls.CurveID{tls.X25519, tls.CurveP256},
    }

    srv := &http.Server{
        Addr:         ":" + cfg.HTTPSPort,
        Handler:      n,
        TLSConfig:    tlsConfig,
        IdleTimeout:  time.Minute,
        ReadTimeout:  30 * time.Second,
        WriteTimeout: 120 * time.Second,
    }

    log.Fatal(srv.ListenAndServeTLS("", ""))
}

// ServeDevelopment starts the plain HTTP server for local runs.
func ServeDevelopment(s *http.Server) {
    log.Fatal(s.ListenAndServe())
}
