package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates all runtime settings required by the service.
type Config struct {
	AppName     string
	Environment string
	HTTP        HTTPConfig
	Store       StoreConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Notify      NotifyConfig
	Sync        SyncConfig
	ICS         ICSConfig
	Google      GoogleConfig
	Context     ContextConfig
	Logger      LoggerConfig
}

type HTTPConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// StoreConfig selects the document store backend.
type StoreConfig struct {
	// Backend is one of "memory", "bolt" or "redis".
	Backend  string
	BoltPath string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type NotifyConfig struct {
	OutboxPath    string
	SweepInterval time.Duration
	BatchSize     int
	MaxRetry      int
}

type SyncConfig struct {
	WindowSize int
}

type ICSConfig struct {
	FeedURL      string
	CalendarID   string
	SyncInterval time.Duration
}

type GoogleConfig struct {
	CredentialsPath string
	Enabled         bool
}

type ContextConfig struct {
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

type LoggerConfig struct {
	Level    string
	Encoding string
}

// Load reads configuration from environment variables (optionally .env)
// and applies sane defaults so the service can boot in any environment.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		AppName:     getString("APP_NAME", "planhive-sync"),
		Environment: getString("APP_ENV", "development"),
		HTTP: HTTPConfig{
			Host:         getString("SERVER_HOST", "0.0.0.0"),
			Port:         getString("SERVER_PORT", "8080"),
			ReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Store: StoreConfig{
			Backend:  getString("STORE_BACKEND", "bolt"),
			BoltPath: getString("STORE_BOLT_PATH", "./data/documents.db"),
		},
		Redis: RedisConfig{
			URL:      getString("REDIS_URL", "redis://localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret: os.Getenv("JWT_SECRET"),
			Issuer: getString("JWT_ISSUER", "planhive"),
		},
		Notify: NotifyConfig{
			OutboxPath:    getString("OUTBOX_PATH", "./data/outbox.db"),
			SweepInterval: getDuration("NOTIFY_SWEEP_INTERVAL", 30*time.Second),
			BatchSize:     getInt("NOTIFY_BATCH_SIZE", 50),
			MaxRetry:      getInt("NOTIFY_MAX_RETRY", 3),
		},
		Sync: SyncConfig{
			WindowSize: getInt("SYNC_WINDOW_SIZE", 3),
		},
		ICS: ICSConfig{
			FeedURL:      os.Getenv("ICS_FEED_URL"),
			CalendarID:   getString("ICS_CALENDAR_ID", "ical-subscribed"),
			SyncInterval: getDuration("ICS_SYNC_INTERVAL", 30*time.Minute),
		},
		Google: GoogleConfig{
			CredentialsPath: os.Getenv("GOOGLE_CREDENTIALS_PATH"),
			Enabled:         getBool("GOOGLE_SYNC_ENABLED", false),
		},
		Context: ContextConfig{
			RequestTimeout:  getDuration("REQUEST_TIMEOUT_SECONDS", 5*time.Second),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT_SECONDS", 15*time.Second),
		},
		Logger: LoggerConfig{
			Level:    getString("LOG_LEVEL", "info"),
			Encoding: getString("LOG_ENCODING", "json"),
		},
	}

	return cfg, nil
}

// MustLoad panics if configuration cannot be loaded.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func getString(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

// Address returns the HTTP listen address for the fasthttp server.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%s", c.HTTP.Host, c.HTTP.Port)
}
