package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port            string
	CORSAllowOrigin []string
	Env             string
	DatabaseURL     string

	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string

	GeminiAPIKeys []string
	GeminiModel   string
	KeyQuota      int
	KeyUsageFile  string

	BatchSize   int
	MaxAttempts int
	BaseDelay   time.Duration

	ListmonkURL      string
	ListmonkUsername string
	ListmonkToken    string
	ListmonkListID   int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")
	keys := splitAndTrim(os.Getenv("GEMINI_API_KEYS"))

	if len(keys) == 0 {
		log.Printf("GEMINI_API_KEYS is empty; generation requests will fail")
	}

	return Config{
		Port:            getEnv("PORT", "8080"),
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		Env:             env,
		DatabaseURL:     dbURL,

		ObjectStoreType: normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:       getEnv("AWS_REGION", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Prefix:        getEnv("S3_PREFIX", ""),

		GeminiAPIKeys: keys,
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		KeyQuota:      getEnvInt("KEY_QUOTA", 1450),
		KeyUsageFile:  getEnv("KEY_USAGE_FILE", "key_usage.json"),

		BatchSize:   getEnvInt("BATCH_SIZE", 5),
		MaxAttempts: getEnvInt("MAX_ATTEMPTS", 3),
		BaseDelay:   getEnvDuration("BASE_DELAY", time.Second),

		ListmonkURL:      strings.TrimRight(getEnv("LISTMONK_URL", ""), "/"),
		ListmonkUsername: getEnv("LISTMONK_USERNAME", ""),
		ListmonkToken:    getEnv("LISTMONK_TOKEN", ""),
		ListmonkListID:   getEnvInt("LISTMONK_LIST_ID", 0),
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("config env %s invalid int: %v", key, err)
		return def
	}
	return val
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("config env %s invalid duration: %v", key, err)
		return def
	}
	return val
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}
