package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Admin    AdminConfig
	GigaChat GigaChatConfig
	Razorpay RazorpayConfig
	Minio    MinioConfig
	Agent    AgentConfig
	Upload   UploadConfig
	Logger   LoggerConfig
}

type LoggerConfig struct {
	Level  string
	Format string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	RateLimit    int
	RateWindow   time.Duration
	AllowOrigins string
}

type StoreConfig struct {
	Backend string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

type JWTConfig struct {
	SecretKey  string
	Expiration time.Duration
}

// AdminConfig holds the single operator account of the admin surface.
type AdminConfig struct {
	Username     string
	PasswordHash string
}

type GigaChatConfig struct {
	APIKey             string
	Scope              string
	Model              string
	InsecureSkipVerify bool
}

func (c GigaChatConfig) Enabled() bool {
	return c.APIKey != ""
}

type RazorpayConfig struct {
	KeyID     string
	KeySecret string
	BaseURL   string
}

func (c RazorpayConfig) Enabled() bool {
	return c.KeyID != "" && c.KeySecret != ""
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func (c MinioConfig) Enabled() bool {
	return c.Endpoint != "" && c.AccessKey != "" && c.SecretKey != ""
}

// AgentConfig bounds every call to an external collaborator and sizes the conversation context.
type AgentConfig struct {
	AgentTimeout    time.Duration
	AnalysisTimeout time.Duration
	PaymentTimeout  time.Duration
	PaymentLinkTTL  time.Duration
	SummaryInterval int
	RecentMessages  int
}

type UploadConfig struct {
	Dir     string
	MaxSize int
}

func Load() (*Config, error) {
	// .env is optional; plain environment variables win when it is missing.
	for _, envFile := range []string{".env", "../.env", "../../.env"} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	dbHost := getEnv("DB_HOST", "")
	backend := getEnv("STORE_BACKEND", "")
	if backend == "" {
		backend = StoreMemory
		if dbHost != "" {
			backend = StorePostgres
		}
	}
	if dbHost == "" {
		dbHost = "localhost"
	}

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8000"),
			ReadTimeout:  time.Duration(getInt("SERVER_READ_TIMEOUT", 30)) * time.Second,
			WriteTimeout: time.Duration(getInt("SERVER_WRITE_TIMEOUT", 30)) * time.Second,
			RateLimit:    getInt("RATE_LIMIT", 60),
			RateWindow:   getDuration("RATE_WINDOW", time.Minute),
			AllowOrigins: getEnv("CORS_ALLOW_ORIGINS", "*"),
		},
		Store: StoreConfig{
			Backend: backend,
		},
		Database: DatabaseConfig{
			Host:     dbHost,
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "sales_agent"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: int32(getInt("DB_MAX_CONNS", 0)),
		},
		JWT: JWTConfig{
			SecretKey:  getEnv("JWT_SECRET_KEY", "your-secret-key-change-in-production"),
			Expiration: time.Duration(getInt("JWT_EXPIRATION_HOURS", 24)) * time.Hour,
		},
		Admin: AdminConfig{
			Username:     getEnv("ADMIN_USERNAME", "admin"),
			PasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
		},
		GigaChat: GigaChatConfig{
			APIKey:             getEnv("GIGACHAT_API_KEY", ""),
			Scope:              getEnv("GIGACHAT_SCOPE", "GIGACHAT_API_PERS"),
			Model:              getEnv("GIGACHAT_MODEL", "GigaChat"),
			InsecureSkipVerify: getEnv("GIGACHAT_INSECURE_SKIP_VERIFY", "true") == "true",
		},
		Razorpay: RazorpayConfig{
			KeyID:     getEnv("RAZORPAY_KEY_ID", ""),
			KeySecret: getEnv("RAZORPAY_KEY_SECRET", ""),
			BaseURL:   getEnv("RAZORPAY_BASE_URL", "https://api.razorpay.com/v1"),
		},
		Minio: MinioConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "documents"),
			UseSSL:    getEnv("MINIO_USE_SSL", "false") == "true",
		},
		Agent: AgentConfig{
			AgentTimeout:    getDuration("AGENT_TIMEOUT", 60*time.Second),
			AnalysisTimeout: getDuration("ANALYSIS_TIMEOUT", 60*time.Second),
			PaymentTimeout:  getDuration("PAYMENT_TIMEOUT", 15*time.Second),
			PaymentLinkTTL:  getDuration("PAYMENT_LINK_TTL", 60*time.Minute),
			SummaryInterval: getInt("SUMMARY_INTERVAL", 5),
			RecentMessages:  getInt("RECENT_MESSAGES", 5),
		},
		Upload: UploadConfig{
			Dir:     getEnv("UPLOAD_DIR", "uploads"),
			MaxSize: getInt("UPLOAD_MAX_SIZE_MB", 10) * 1024 * 1024,
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

// getDuration accepts Go duration strings ("90s") or a bare number of seconds.
func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
