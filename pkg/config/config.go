package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	CORS        CORSConfig
	Log         LogConfig
	Mail        MailConfig
	Finance     FinanceConfig
	Workflow    WorkflowConfig
	Attachments AttachmentsConfig
	Directory   DirectoryConfig
	MailRetry   MailRetryConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience []string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// MailConfig describes the SMTP relay used for payment notifications.
type MailConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	FromName string
	Timeout  time.Duration
}

// FinanceConfig holds the fixed finance mailbox copied on every payment notice.
type FinanceConfig struct {
	Email string
	Name  string
}

// WorkflowConfig tunes the batch workflow engine.
type WorkflowConfig struct {
	AutoNotify    bool
	EventIDPrefix string
	TemplateFile  string
	Timezone      string
}

// AttachmentsConfig controls payment receipt storage & validation.
type AttachmentsConfig struct {
	StorageDir       string
	SignedURLSecret  string
	SignedURLTTL     time.Duration
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// DirectoryConfig governs coordinator directory caching.
type DirectoryConfig struct {
	CacheTTL time.Duration
}

// MailRetryConfig sizes the background queue re-attempting failed deliveries.
type MailRetryConfig struct {
	Enabled    bool
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:   v.GetString("JWT_SECRET"),
		Issuer:   v.GetString("JWT_ISSUER"),
		Audience: splitAndTrim(v.GetString("JWT_AUDIENCE")),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Mail = MailConfig{
		Host:     v.GetString("MAIL_SMTP_HOST"),
		Port:     v.GetInt("MAIL_SMTP_PORT"),
		User:     v.GetString("MAIL_SMTP_USER"),
		Password: v.GetString("MAIL_SMTP_PASS"),
		From:     v.GetString("MAIL_FROM"),
		FromName: v.GetString("MAIL_FROM_NAME"),
		Timeout:  parseDuration(v.GetString("MAIL_TIMEOUT"), 10*time.Second),
	}

	cfg.Finance = FinanceConfig{
		Email: v.GetString("FINANCE_EMAIL"),
		Name:  v.GetString("FINANCE_NAME"),
	}

	cfg.Workflow = WorkflowConfig{
		AutoNotify:    v.GetBool("WORKFLOW_AUTO_NOTIFY"),
		EventIDPrefix: v.GetString("WORKFLOW_EVENT_ID_PREFIX"),
		TemplateFile:  v.GetString("WORKFLOW_TEMPLATE_FILE"),
		Timezone:      v.GetString("WORKFLOW_TIMEZONE"),
	}

	maxSize := v.GetInt64("ATTACHMENTS_MAX_FILE_SIZE")
	if maxSize <= 0 {
		maxSize = 10 * 1024 * 1024
	}
	cfg.Attachments = AttachmentsConfig{
		StorageDir:       v.GetString("ATTACHMENTS_STORAGE_DIR"),
		SignedURLSecret:  v.GetString("ATTACHMENTS_SIGNED_URL_SECRET"),
		SignedURLTTL:     parseDuration(v.GetString("ATTACHMENTS_SIGNED_URL_TTL"), 30*time.Minute),
		MaxFileSizeBytes: maxSize,
		AllowedMIMEs:     splitAndTrim(v.GetString("ATTACHMENTS_ALLOWED_MIME_TYPES")),
	}

	cfg.Directory = DirectoryConfig{
		CacheTTL: parseDuration(v.GetString("DIRECTORY_CACHE_TTL"), 10*time.Minute),
	}

	cfg.MailRetry = MailRetryConfig{
		Enabled:    v.GetBool("MAIL_RETRY_ENABLED"),
		Workers:    v.GetInt("MAIL_RETRY_WORKERS"),
		MaxRetries: v.GetInt("MAIL_RETRY_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("MAIL_RETRY_DELAY"), 30*time.Second),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "faepa_payments")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("MAIL_SMTP_HOST", "localhost")
	v.SetDefault("MAIL_SMTP_PORT", 1025)
	v.SetDefault("MAIL_SMTP_USER", "")
	v.SetDefault("MAIL_SMTP_PASS", "")
	v.SetDefault("MAIL_FROM", "noreply@faepa.local")
	v.SetDefault("MAIL_FROM_NAME", "FAEPA Pagamentos")
	v.SetDefault("MAIL_TIMEOUT", "10s")

	v.SetDefault("FINANCE_EMAIL", "financeiro@faepa.local")
	v.SetDefault("FINANCE_NAME", "Financeiro FAEPA")

	v.SetDefault("WORKFLOW_AUTO_NOTIFY", true)
	v.SetDefault("WORKFLOW_EVENT_ID_PREFIX", "faepa_pay_")
	v.SetDefault("WORKFLOW_TEMPLATE_FILE", "")
	v.SetDefault("WORKFLOW_TIMEZONE", "America/Sao_Paulo")

	v.SetDefault("ATTACHMENTS_STORAGE_DIR", "./attachments")
	v.SetDefault("ATTACHMENTS_SIGNED_URL_SECRET", "dev_attachments_secret")
	v.SetDefault("ATTACHMENTS_SIGNED_URL_TTL", "30m")
	v.SetDefault("ATTACHMENTS_MAX_FILE_SIZE", 10*1024*1024)
	v.SetDefault("ATTACHMENTS_ALLOWED_MIME_TYPES", "application/pdf,image/png,image/jpeg")

	v.SetDefault("DIRECTORY_CACHE_TTL", "10m")

	v.SetDefault("MAIL_RETRY_ENABLED", true)
	v.SetDefault("MAIL_RETRY_WORKERS", 1)
	v.SetDefault("MAIL_RETRY_MAX_RETRIES", 3)
	v.SetDefault("MAIL_RETRY_DELAY", "30s")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
