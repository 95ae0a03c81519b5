// Package config loads server configuration from the environment.
package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the server reads from the environment.
type Config struct {
	Port string

	GeminiAPIKey string
	GeminiModel  string

	ActualServerURL string
	ActualPassword  string

	TestDataEnabled bool
	UseMemoryStore  bool

	GoogleCloudProject string
	ReceiptBucket      string

	// Algolia search; search stays off when AppID or APIKey is empty.
	AlgoliaAppID     string
	AlgoliaAPIKey    string
	AlgoliaIndexName string

	// APITokenHash guards mutating endpoints; empty disables auth.
	APITokenHash string

	// MemoryReceiptTTL bounds how long the in-memory store keeps receipts.
	MemoryReceiptTTL time.Duration
}

// Load reads .env (if present) and the environment. Defaults live here,
// not scattered through the code.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[Config] skipping .env: %v", err)
	}

	cfg := &Config{
		Port:               getEnv("PORT", "8111"),
		GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
		GeminiModel:        os.Getenv("GEMINI_MODEL"),
		ActualServerURL:    os.Getenv("ACTUAL_SERVER_URL"),
		ActualPassword:     os.Getenv("ACTUAL_PASSWORD"),
		TestDataEnabled:    os.Getenv("TEST_DATA_ENABLED") == "true",
		UseMemoryStore:     os.Getenv("USE_MEMORY_STORE") == "true" || os.Getenv("ENV") == "local",
		GoogleCloudProject: os.Getenv("GOOGLE_CLOUD_PROJECT"),
		ReceiptBucket:      os.Getenv("RECEIPT_BUCKET"),
		AlgoliaAppID:       os.Getenv("ALGOLIA_APP_ID"),
		AlgoliaAPIKey:      os.Getenv("ALGOLIA_API_KEY"),
		AlgoliaIndexName:   getEnv("ALGOLIA_INDEX_NAME", "receipts"),
		APITokenHash:       os.Getenv("API_TOKEN_HASH"),
		MemoryReceiptTTL:   24 * time.Hour,
	}

	if ttl := os.Getenv("MEMORY_RECEIPT_TTL"); ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			log.Printf("[Config] invalid MEMORY_RECEIPT_TTL %q, keeping %s", ttl, cfg.MemoryReceiptTTL)
		} else {
			cfg.MemoryReceiptTTL = d
		}
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
