package config

import (
	"fmt"
	"os"
)

// Config holds the gateway's configuration, loaded from environment
// variables. Env prefix: IDGATEWAY_.
type Config struct {
	Port int

	AccountServiceAPIKey string
	DownstreamAPIKey     string
	IngressAPIKey        string

	DownstreamWriteURL   string
	ExistenceCheckURL    string

	DataDir  string
	LogLevel string
}

// Load reads configuration from the environment. The account-service key,
// downstream key, ingress key, downstream URL, and existence-check URL
// prefix are required; a missing one is a fatal startup error rather than a
// silent default. The HTTP port is not required: IDGATEWAY_PORT falls back
// to 8080 when unset or unparsable.
func Load() (*Config, error) {
	cfg := &Config{
		Port:     getEnvInt("IDGATEWAY_PORT", 8080),
		DataDir:  getEnv("IDGATEWAY_DATA_DIR", "./data"),
		LogLevel: getEnv("IDGATEWAY_LOG_LEVEL", "info"),
	}

	required := map[string]*string{
		"IDGATEWAY_ACCOUNT_SERVICE_API_KEY": &cfg.AccountServiceAPIKey,
		"IDGATEWAY_DOWNSTREAM_API_KEY":      &cfg.DownstreamAPIKey,
		"IDGATEWAY_INGRESS_API_KEY":         &cfg.IngressAPIKey,
		"IDGATEWAY_DOWNSTREAM_WRITE_URL":    &cfg.DownstreamWriteURL,
		"IDGATEWAY_EXISTENCE_CHECK_URL":     &cfg.ExistenceCheckURL,
	}

	var missing []string
	for key, dest := range required {
		val := os.Getenv(key)
		if val == "" {
			missing = append(missing, key)
			continue
		}
		*dest = val
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("config: missing required environment variables: %v", missing)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return fallback
	}
	return n
}
