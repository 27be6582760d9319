package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment  string
	HTTPPort     string
	HTTPSPort    string
	Domains      []string
	CertCacheDir string
	LogDir       string
	ExportDir    string

	// LLM decision service
	LLMProvider    string
	OpenAIAPIKey   string
	OpenAIAPIURL   string
	OpenAIModel    string
	AnthropicAPIKey string
	AnthropicModel  string
	LLMTimeout      time.Duration

	// Embedding service
	EmbeddingAPIURL    string
	EmbeddingModel     string
	EmbeddingDimension int
	EmbeddingBatchSize int
	EmbeddingTimeout   time.Duration
	EmbedAttempts      int

	// Ingestion
	OCRTimeout          time.Duration
	ExtractionAttempts  int
	ConfidenceThreshold float64
	ChunkWindow         int
	ChunkOverlap        int

	// Vector index
	IndexTimeout  time.Duration
	IndexAttempts int
	RetrievalTopK int

	// Orchestrator
	MaxRetrievalHops  int
	MaxStepsPerTurn   int
	ConnectorRetries  int
	ConnectorTimeout  time.Duration
	ConnectorBackoff  time.Duration
	ToolSchemaPath    string
	SessionIdleTimeout  time.Duration
	MaintenanceInterval time.Duration

	// Connector credentials
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRefreshToken string
	GoogleCalendarID   string
	SlackToken         string
	SlackChannel       string
	SendGridAPIKey     string
	EmailFromAddress   string
	EmailFromName      string
	TwilioAccountSID   string
	TwilioAuthToken    string
	TwilioFromNumber   string
	TwilioToNumber     string
	TrelloConsumerKey  string
	TrelloConsumerSecret string
	TrelloAccessToken    string
	TrelloTokenSecret    string
	TrelloListID         string
}

var isTest bool

func init() {
	isTest = os.Getenv("GO_ENVIRONMENT") == "test"
	if !isTest {
		err := godotenv.Load()
		if err != nil {
			log.Println("Warning: Error loading .env file:", err)
		}
	}
}

func Load() Config {
	return Config{
		Environment:  getEnv("ENVIRONMENT", "development"),
		HTTPPort:     getEnv("HTTP_PORT", "8087"),
		HTTPSPort:    getEnv("HTTPS_PORT", "443"),
		Domains:      strings.Split(getEnv("DOMAINS", "example.com"), ","),
		CertCacheDir: getEnv("CERT_CACHE_DIR", "/etc/letsencrypt/live/example.com"),
		LogDir:       getEnv("LOG_DIR", "logs"),
		ExportDir:    getEnv("EXPORT_DIR", "exports"),

		LLMProvider:     getEnv("LLM_PROVIDER", "openai"),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIAPIURL:    getEnv("OPENAI_API_URL", "https://api.openai.com/v1/chat/completions"),
		OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  getEnv("ANTHROPIC_MODEL", "claude-3-5-sonnet-20241022"),
		LLMTimeout:      time.Duration(getEnvAsInt("LLM_TIMEOUT_SECONDS", 120)) * time.Second,

		EmbeddingAPIURL:    getEnv("EMBEDDING_API_URL", "https://api.openai.com/v1/embeddings"),
		EmbeddingModel:     getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDimension: getEnvAsInt("EMBEDDING_DIMENSION", 1536),
		EmbeddingBatchSize: getEnvAsInt("EMBEDDING_BATCH_SIZE", 32),
		EmbeddingTimeout:   time.Duration(getEnvAsInt("EMBEDDING_TIMEOUT_SECONDS", 30)) * time.Second,
		EmbedAttempts:      getEnvAsInt("EMBED_ATTEMPTS", 3),

		OCRTimeout:          time.Duration(getEnvAsInt("OCR_TIMEOUT_SECONDS", 60)) * time.Second,
		ExtractionAttempts:  getEnvAsInt("EXTRACTION_ATTEMPTS", 3),
		ConfidenceThreshold: getEnvAsFloat("CONFIDENCE_THRESHOLD", 0.60),
		ChunkWindow:         getEnvAsInt("CHUNK_WINDOW", 800),
		ChunkOverlap:        getEnvAsInt("CHUNK_OVERLAP", 200),

		IndexTimeout:  time.Duration(getEnvAsInt("INDEX_TIMEOUT_SECONDS", 10)) * time.Second,
		IndexAttempts: getEnvAsInt("INDEX_ATTEMPTS", 3),
		RetrievalTopK: getEnvAsInt("RETRIEVAL_TOP_K", 5),

		MaxRetrievalHops:    getEnvAsInt("MAX_RETRIEVAL_HOPS", 4),
		MaxStepsPerTurn:     getEnvAsInt("MAX_STEPS_PER_TURN", 8),
		ConnectorRetries:    getEnvAsInt("CONNECTOR_RETRIES", 2),
		ConnectorTimeout:    time.Duration(getEnvAsInt("CONNECTOR_TIMEOUT_SECONDS", 30)) * time.Second,
		ConnectorBackoff:    time.Duration(getEnvAsInt("CONNECTOR_BACKOFF_MS", 500)) * time.Millisecond,
		ToolSchemaPath:      getEnv("TOOL_SCHEMA_PATH", "tools.yaml"),
		SessionIdleTimeout:  time.Duration(getEnvAsInt("SESSION_IDLE_TIMEOUT_SECONDS", 1800)) * time.Second,
		MaintenanceInterval: time.Duration(getEnvAsInt("MAINTENANCE_INTERVAL_SECONDS", 300)) * time.Second,

		GoogleClientID:       getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:   getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRefreshToken:   getEnv("GOOGLE_REFRESH_TOKEN", ""),
		GoogleCalendarID:     getEnv("GOOGLE_CALENDAR_ID", "primary"),
		SlackToken:           getEnv("SLACK_BOT_TOKEN", ""),
		SlackChannel:         getEnv("SLACK_CHANNEL", ""),
		SendGridAPIKey:       getEnv("SENDGRID_API_KEY", ""),
		EmailFromAddress:     getEnv("EMAIL_FROM_ADDRESS", ""),
		EmailFromName:        getEnv("EMAIL_FROM_NAME", ""),
		TwilioAccountSID:     getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:      getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber:     getEnv("TWILIO_FROM_NUMBER", ""),
		TwilioToNumber:       getEnv("TWILIO_TO_NUMBER", ""),
		TrelloConsumerKey:    getEnv("TRELLO_CONSUMER_KEY", ""),
		TrelloConsumerSecret: getEnv("TRELLO_CONSUMER_SECRET", ""),
		TrelloAccessToken:    getEnv("TRELLO_ACCESS_TOKEN", ""),
		TrelloTokenSecret:    getEnv("TRELLO_TOKEN_SECRET", ""),
		TrelloListID:         getEnv("TRELLO_LIST_ID", ""),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}
