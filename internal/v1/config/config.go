package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds validated environment configuration
type Config struct {
	// Required variables
	Port string

	// Optional variables with defaults
	GoEnv           string
	LogLevel        string
	DevelopmentMode bool
	AllowedOrigins  []string

	// Metadata lookup
	OEmbedEndpoint string

	// Room timings
	HeartbeatInterval time.Duration
	HostGracePeriod   time.Duration
	EmptyRoomAge      time.Duration

	// Rate Limits
	RateLimitApi   string
	RateLimitRooms string
	RateLimitWsIp  string

	// Tracing
	TracingEnabled  bool
	TracingEndpoint string
}

// Load reads a .env file if one exists. Missing files are not an error;
// production deployments configure through real environment variables.
func Load() {
	for _, path := range []string{".env", "../.env", "../../.env"} {
		if err := godotenv.Load(path); err == nil {
			slog.Info("Loaded environment file", "path", path)
			return
		}
	}
}

// ValidateEnv validates all required environment variables and returns a Config object
// Returns an error if any required variable is missing or invalid
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errors []string

	// Required: PORT (valid port number)
	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		errors = append(errors, "PORT is required")
	} else {
		port, err := strconv.Atoi(cfg.Port)
		if err != nil || port < 1 || port > 65535 {
			errors = append(errors, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
		}
	}

	// Optional: GO_ENV (defaults to "production")
	cfg.GoEnv = os.Getenv("GO_ENV")
	if cfg.GoEnv == "" {
		cfg.GoEnv = "production"
	}

	// Optional: LOG_LEVEL (defaults to "info")
	cfg.LogLevel = os.Getenv("LOG_LEVEL")
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	cfg.DevelopmentMode = os.Getenv("DEVELOPMENT_MODE") == "true"
	cfg.AllowedOrigins = splitOrigins(getEnvOrDefault("ALLOWED_ORIGINS", "http://localhost:3000"))

	// Optional: OEMBED_ENDPOINT (defaults to the YouTube oEmbed API)
	cfg.OEmbedEndpoint = getEnvOrDefault("OEMBED_ENDPOINT", "https://www.youtube.com/oembed")

	// Room timings
	cfg.HeartbeatInterval = parseDurationEnv("HEARTBEAT_INTERVAL", time.Second, &errors)
	cfg.HostGracePeriod = parseDurationEnv("HOST_GRACE_PERIOD", 60*time.Second, &errors)
	cfg.EmptyRoomAge = parseDurationEnv("EMPTY_ROOM_AGE", 30*time.Second, &errors)

	// Rate Limits (Defaults: M = Minute, H = Hour)
	cfg.RateLimitApi = getEnvOrDefault("RATE_LIMIT_API", "100-M")
	cfg.RateLimitRooms = getEnvOrDefault("RATE_LIMIT_ROOMS", "30-M")
	cfg.RateLimitWsIp = getEnvOrDefault("RATE_LIMIT_WS_IP", "60-M")

	// Tracing
	cfg.TracingEnabled = os.Getenv("TRACING_ENABLED") == "true"
	cfg.TracingEndpoint = getEnvOrDefault("TRACING_ENDPOINT", "localhost:4317")

	// If there are validation errors, return them
	if len(errors) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	// Log validated configuration
	logValidatedConfig(cfg)

	return cfg, nil
}

// splitOrigins parses the comma-separated allow-list, dropping empties.
func splitOrigins(raw string) []string {
	var origins []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// parseDurationEnv reads a duration variable, accumulating an error when the
// value is present but unparseable or non-positive.
func parseDurationEnv(key string, defaultValue time.Duration, errors *[]string) time.Duration {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		*errors = append(*errors, fmt.Sprintf("%s must be a positive duration like '30s' (got '%s')", key, raw))
		return defaultValue
	}
	return d
}

// logValidatedConfig logs the validated configuration
func logValidatedConfig(cfg *Config) {
	slog.Info("✅ Environment configuration validated successfully")
	slog.Info("Configuration",
		"port", cfg.Port,
		"go_env", cfg.GoEnv,
		"log_level", cfg.LogLevel,
		"development_mode", cfg.DevelopmentMode,
		"allowed_origins", strings.Join(cfg.AllowedOrigins, ","),
		"oembed_endpoint", cfg.OEmbedEndpoint,
		"heartbeat_interval", cfg.HeartbeatInterval,
		"host_grace_period", cfg.HostGracePeriod,
		"empty_room_age", cfg.EmptyRoomAge,
		"rate_limit_api", cfg.RateLimitApi,
		"tracing_enabled", cfg.TracingEnabled,
	)
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
