package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	defaultHTTPPort        = "8080"
	defaultStorageDriver   = "postgres"
	defaultSQLitePath      = "uberfix.db"
	defaultTemporalAddress = "localhost:7233"
	defaultTemporalNS      = "default"
	defaultTaskQueue       = "stage-notification-task-queue"
	defaultNotifyTimeout   = 10
	defaultNotifyChannel   = "whatsapp"
	defaultNotifyDebounce  = 30
	defaultMinioEndpoint   = "localhost:9000"
	defaultMinioBucket     = "request-attachments"
	defaultRateLimitRPS    = 20
	defaultRateLimitBurst  = 40
)

const (
	SecurityModeDevelopment = "development"
	SecurityModeProduction  = "production"
)

type Config struct {
	HTTPPort      string
	MetricsPort   string
	StorageDriver string
	PostgresDSN   string
	SQLitePath    string

	TemporalAddress   string
	TemporalNamespace string
	TemporalTaskQueue string
	WorkflowIDPrefix  string
	NotifyEnabled     bool

	NotifyGatewayURL   string
	NotifyGatewayToken string
	NotifyTimeoutSec   int
	NotifyChannel      string
	NotifyDebounceSec  int

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	// AttachmentIgnorePrefixes lists bucket key prefixes the event handler
	// does not index, such as exports written by other tools.
	AttachmentIgnorePrefixes []string

	TransitionPolicy string
	LogLevel         string

	SecurityMode       string
	APIToken           string
	RateLimitRPS       float64
	RateLimitBurst     int
	AllowedUploadBytes int64
}

func Load() (Config, error) {
	cfg := Config{
		HTTPPort:      getenv("HTTP_PORT", defaultHTTPPort),
		MetricsPort:   os.Getenv("METRICS_PORT"),
		StorageDriver: strings.ToLower(getenv("STORAGE_DRIVER", defaultStorageDriver)),
		PostgresDSN:   os.Getenv("POSTGRES_DSN"),
		SQLitePath:    getenv("SQLITE_PATH", defaultSQLitePath),

		TemporalAddress:   getenv("TEMPORAL_ADDRESS", defaultTemporalAddress),
		TemporalNamespace: getenv("TEMPORAL_NAMESPACE", defaultTemporalNS),
		TemporalTaskQueue: getenv("TEMPORAL_TASK_QUEUE", defaultTaskQueue),
		WorkflowIDPrefix:  getenv("WORKFLOW_ID_PREFIX", "stage-notify"),
		NotifyEnabled:     getenvBool("NOTIFY_ENABLED", true),

		NotifyGatewayURL:   os.Getenv("NOTIFY_GATEWAY_URL"),
		NotifyGatewayToken: os.Getenv("NOTIFY_GATEWAY_TOKEN"),
		NotifyTimeoutSec:   getenvInt("NOTIFY_TIMEOUT_SEC", defaultNotifyTimeout),
		NotifyChannel:      strings.ToLower(getenv("NOTIFY_CHANNEL", defaultNotifyChannel)),
		NotifyDebounceSec:  getenvInt("NOTIFY_DEBOUNCE_SEC", defaultNotifyDebounce),

		MinioEndpoint:  getenv("MINIO_ENDPOINT", defaultMinioEndpoint),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getenv("MINIO_BUCKET", defaultMinioBucket),
		MinioUseSSL:    getenvBool("MINIO_USE_SSL", false),

		AttachmentIgnorePrefixes: getenvList("ATTACHMENT_IGNORE_PREFIXES"),

		TransitionPolicy: strings.ToLower(getenv("TRANSITION_POLICY", "strict")),
		LogLevel:         getenv("LOG_LEVEL", "info"),

		SecurityMode:       strings.ToLower(getenv("SECURITY_MODE", SecurityModeDevelopment)),
		APIToken:           os.Getenv("API_TOKEN"),
		RateLimitRPS:       getenvFloat("RATE_LIMIT_RPS", defaultRateLimitRPS),
		RateLimitBurst:     getenvInt("RATE_LIMIT_BURST", defaultRateLimitBurst),
		AllowedUploadBytes: int64(getenvInt("MAX_UPLOAD_BYTES", 10*1024*1024)),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// StorageDSN returns the connection string for the selected driver.
func (c Config) StorageDSN() string {
	if c.StorageDriver == "sqlite" {
		return c.SQLitePath
	}
	return c.PostgresDSN
}

func (c Config) validate() error {
	switch c.StorageDriver {
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required")
		}
	default:
		return fmt.Errorf("STORAGE_DRIVER must be postgres or sqlite, got %q", c.StorageDriver)
	}

	switch c.TransitionPolicy {
	case "strict", "permissive":
	default:
		return fmt.Errorf("TRANSITION_POLICY must be strict or permissive, got %q", c.TransitionPolicy)
	}

	switch c.NotifyChannel {
	case "sms", "whatsapp":
	default:
		return fmt.Errorf("NOTIFY_CHANNEL must be sms or whatsapp, got %q", c.NotifyChannel)
	}

	switch c.SecurityMode {
	case SecurityModeDevelopment:
	case SecurityModeProduction:
		if c.APIToken == "" {
			return fmt.Errorf("API_TOKEN is required when SECURITY_MODE=production")
		}
	default:
		return fmt.Errorf("SECURITY_MODE must be development or production, got %q", c.SecurityMode)
	}
	return nil
}

func getenv(key string, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getenvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
