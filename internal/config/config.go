package config

import (
	"io"
	"log"
	"os"
	"strconv"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

// Config holds the runtime configuration of the SolveMate API server.
type Config struct {
	Port    string `yaml:"port"`
	GinMode string `yaml:"gin_mode"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Database
	DatabaseURL       string `yaml:"database_url"`
	DBMaxOpenConns    int    `yaml:"db_max_open_conns"`
	DBMaxIdleConns    int    `yaml:"db_max_idle_conns"`
	DBConnMaxIdleTime int    `yaml:"db_conn_max_idle_time"` // in minutes
	DBConnMaxLifetime int    `yaml:"db_conn_max_lifetime"`  // in minutes

	// Token validation
	ValidatorType     string `yaml:"validator_type"` // "jwk" or "firebase"
	JWTJWKSURL        string `yaml:"jwt_jwks_url"`
	FirebaseProjectID string `yaml:"firebase_project_id"`
	FirebaseCredJSON  string `yaml:"-"`

	// Remote analyzer
	GeminiAPIKey          string `yaml:"-"`
	GeminiModel           string `yaml:"gemini_model"`
	AnalyzeTimeoutSeconds int    `yaml:"analyze_timeout_seconds"`

	// Problem categories offered to the client. Defaults to the built-in set.
	Categories []string `yaml:"categories"`

	// Auth backend (GoTrue-compatible)
	AuthBaseURL    string `yaml:"auth_base_url"`
	AuthAnonKey    string `yaml:"-"`
	AuthServiceKey string `yaml:"-"`

	// Google sign-in
	GoogleClientID     string `yaml:"google_client_id"`
	GoogleClientSecret string `yaml:"-"`
	GoogleRedirectURL  string `yaml:"google_redirect_url"`

	// Analysis sessions
	SessionTTLMinutes    int    `yaml:"session_ttl_minutes"`
	SessionCleanupSpec   string `yaml:"session_cleanup_spec"` // cron spec for reaping idle sessions
	DeviceReplySeconds   int    `yaml:"device_reply_seconds"` // deadline for device channel replies
	MaxSessionsPerUser   int    `yaml:"max_sessions_per_user"`
	VoiceIdleTimeoutSecs int    `yaml:"voice_idle_timeout_seconds"`

	// History writer pool
	HistoryWorkerPoolSize int `yaml:"history_worker_pool_size"`
	HistoryBufferSize     int `yaml:"history_buffer_size"`
	HistoryTimeoutSeconds int `yaml:"history_timeout_seconds"`

	// Server
	ServerShutdownTimeoutSeconds int    `yaml:"server_shutdown_timeout_seconds"`
	CORSAllowedOrigins           string `yaml:"cors_allowed_origins"`
}

// DefaultCategories is the problem category set offered when no config file
// overrides it.
var DefaultCategories = []string{
	"General",
	"Technology & Computers",
	"Home Appliances",
	"Automotive & Mechanic",
	"Plumbing & HVAC",
	"DIY & Construction",
	"Gardening & Plants",
}

// LoadConfig builds the configuration from the environment, loading .env first
// if present. An optional YAML file named by SOLVEMATE_CONFIG_FILE overlays the
// non-secret fields.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Port:    getEnvOrDefault("PORT", "8080"),
		GinMode: getEnvOrDefault("GIN_MODE", "release"),

		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", ""),

		DatabaseURL:       getEnvOrDefault("DATABASE_URL", "postgres://localhost/solvemate?sslmode=disable"),
		DBMaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBConnMaxIdleTime: getEnvAsInt("DB_CONN_MAX_IDLE_TIME", 5),
		DBConnMaxLifetime: getEnvAsInt("DB_CONN_MAX_LIFETIME", 30),

		ValidatorType:     getEnvOrDefault("VALIDATOR_TYPE", "jwk"),
		JWTJWKSURL:        getEnvOrDefault("JWT_JWKS_URL", ""),
		FirebaseProjectID: getEnvOrDefault("FIREBASE_PROJECT_ID", ""),
		FirebaseCredJSON:  getEnvOrDefault("FIREBASE_CRED_JSON", ""),

		GeminiAPIKey:          getEnvOrDefault("GEMINI_API_KEY", ""),
		GeminiModel:           getEnvOrDefault("GEMINI_MODEL", "gemini-2.5-flash"),
		AnalyzeTimeoutSeconds: getEnvAsInt("ANALYZE_TIMEOUT_SECONDS", 60),

		AuthBaseURL:    getEnvOrDefault("AUTH_BASE_URL", ""),
		AuthAnonKey:    getEnvOrDefault("AUTH_ANON_KEY", ""),
		AuthServiceKey: getEnvOrDefault("AUTH_SERVICE_KEY", ""),

		GoogleClientID:     getEnvOrDefault("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnvOrDefault("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnvOrDefault("GOOGLE_REDIRECT_URL", ""),

		SessionTTLMinutes:    getEnvAsInt("SESSION_TTL_MINUTES", 30),
		SessionCleanupSpec:   getEnvOrDefault("SESSION_CLEANUP_SPEC", "@every 10m"),
		DeviceReplySeconds:   getEnvAsInt("DEVICE_REPLY_SECONDS", 15),
		MaxSessionsPerUser:   getEnvAsInt("MAX_SESSIONS_PER_USER", 4),
		VoiceIdleTimeoutSecs: getEnvAsInt("VOICE_IDLE_TIMEOUT_SECONDS", 60),

		HistoryWorkerPoolSize: getEnvAsInt("HISTORY_WORKER_POOL_SIZE", 4),
		HistoryBufferSize:     getEnvAsInt("HISTORY_BUFFER_SIZE", 256),
		HistoryTimeoutSeconds: getEnvAsInt("HISTORY_TIMEOUT_SECONDS", 10),

		ServerShutdownTimeoutSeconds: getEnvAsInt("SERVER_SHUTDOWN_TIMEOUT_SECONDS", 15),
		CORSAllowedOrigins:           getEnvOrDefault("CORS_ALLOWED_ORIGINS", "*"),
	}

	if path := os.Getenv("SOLVEMATE_CONFIG_FILE"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		if err := LoadConfigFile(f, cfg); err != nil {
			return nil, err
		}
	}

	if len(cfg.Categories) == 0 {
		cfg.Categories = DefaultCategories
	}

	return cfg, nil
}

// LoadConfigFile overlays YAML configuration from the reader onto config.
func LoadConfigFile(reader io.Reader, config *Config) error {
	decoder := yaml.NewDecoder(reader)

	if err := decoder.Decode(config); err != nil {
		return err
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		} else {
			log.Printf("Warning: Failed to parse environment variable %s='%s' as int, using default %d: %v", key, value, defaultValue, err)
		}
	}
	return defaultValue
}
