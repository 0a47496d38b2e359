package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/welldanyogia/feedback-forms/internal/logger"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Mail     MailConfig
	Forms    FormsConfig
	Storage  StorageConfig
	Log      logger.Config
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string
	Port           string
	AllowedOrigins []string
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

// JWTConfig holds admin token configuration
type JWTConfig struct {
	AdminSecret string
	TokenExpiry time.Duration
	Issuer      string
}

// MailConfig holds the outgoing SMTP relay settings
type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// Disabled logs messages instead of relaying them
	Disabled bool
}

// FormsConfig holds submission pipeline settings
type FormsConfig struct {
	SiteName       string
	SiteURL        string
	DefaultTo      string
	StillEmailSpam bool
	SpamThreshold  time.Duration
	SweepInterval  time.Duration
	ErasePageSize  int
	FloodLimit     int
	FloodWindow    time.Duration
	BlockedWords   []string
	MaxLinks       int
}

// StorageConfig holds S3-compatible object storage settings for export archives
type StorageConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	Region        string
	UseSSL        bool
	PresignExpiry time.Duration
}

// Enabled reports whether export archiving is configured
func (s StorageConfig) Enabled() bool {
	return s.Bucket != "" && s.AccessKey != ""
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first when present; real environment values win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnv("SERVER_PORT", "8080"),
			AllowedOrigins: getListEnv("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "feedback_forms"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: int32(getIntEnv("DB_MAX_CONNS", 10)),
		},
		JWT: JWTConfig{
			AdminSecret: getEnv("JWT_ADMIN_SECRET", ""),
			TokenExpiry: getDurationEnv("JWT_ADMIN_EXPIRY", 12*time.Hour),
			Issuer:      getEnv("JWT_ISSUER", "feedback-forms"),
		},
		Mail: MailConfig{
			Host:     getEnv("SMTP_HOST", "localhost"),
			Port:     getIntEnv("SMTP_PORT", 25),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "feedback@localhost"),
			Disabled: getBoolEnv("SMTP_DISABLED", false),
		},
		Forms: FormsConfig{
			SiteName:       getEnv("SITE_NAME", "Feedback"),
			SiteURL:        getEnv("SITE_URL", "http://localhost:8080"),
			DefaultTo:      getEnv("FORMS_DEFAULT_TO", "admin@localhost"),
			StillEmailSpam: getBoolEnv("FORMS_STILL_EMAIL_SPAM", false),
			SpamThreshold:  getDurationEnv("FORMS_SPAM_THRESHOLD", 15*24*time.Hour),
			SweepInterval:  getDurationEnv("FORMS_SWEEP_INTERVAL", 24*time.Hour),
			ErasePageSize:  getIntEnv("FORMS_ERASE_PAGE_SIZE", 500),
			FloodLimit:     getIntEnv("FORMS_FLOOD_LIMIT", 5),
			FloodWindow:    getDurationEnv("FORMS_FLOOD_WINDOW", time.Minute),
			BlockedWords:   getListEnv("FORMS_BLOCKED_WORDS", nil),
			MaxLinks:       getIntEnv("FORMS_MAX_LINKS", 3),
		},
		Storage: StorageConfig{
			Endpoint:      getEnv("S3_ENDPOINT", "localhost:9000"),
			AccessKey:     getEnv("S3_ACCESS_KEY", ""),
			SecretKey:     getEnv("S3_SECRET_KEY", ""),
			Bucket:        getEnv("S3_BUCKET", ""),
			Region:        getEnv("S3_REGION", "us-east-1"),
			UseSSL:        getBoolEnv("S3_USE_SSL", false),
			PresignExpiry: getDurationEnv("S3_PRESIGN_EXPIRY", time.Hour),
		},
		Log: logger.Config{
			Level:         getEnv("LOG_LEVEL", "info"),
			Format:        getEnv("LOG_FORMAT", "json"),
			Output:        getEnv("LOG_OUTPUT", "stdout"),
			AddSource:     getBoolEnv("LOG_ADD_SOURCE", false),
			MaskSubmitter: getBoolEnv("LOG_MASK_SUBMITTER", true),
		},
	}
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return "host=" + d.Host +
		" port=" + d.Port +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.DBName +
		" sslmode=" + d.SSLMode
}

// URL returns the connection string in URL form, as golang-migrate expects
func (d *DatabaseConfig) URL() string {
	return "pgx5://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port +
		"/" + d.DBName + "?sslmode=" + d.SSLMode
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getDurationEnv accepts Go duration syntax ("36h") or a bare number of minutes.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
