package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/codecollab/collab-server/internal/storage"
	"github.com/codecollab/collab-server/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Overflow policies for participant send queues.
const (
	OverflowDisconnect = "disconnect"
	OverflowDropOldest = "drop-oldest"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	Keycloak  KeycloakConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Realtime  RealtimeConfig
	Share     ShareConfig
	MinIO     storage.MinIOConfig
	LogLevel  string
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// MongoDBConfig is optional: with an empty URI the service runs on the
// in-memory store.
type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns host:port or "" when Redis is not configured.
func (r RedisConfig) Addr() string {
	if r.Host == "" {
		return ""
	}
	return r.Host + ":" + r.Port
}

type KeycloakConfig struct {
	URL          string
	Realm        string
	ClientID     string
	ClientSecret string
}

type JWTConfig struct {
	Secret             string
	AccessTokenTTL     time.Duration
	AllowInsecureToken bool
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

type RealtimeConfig struct {
	SendQueueSize  int
	OverflowPolicy string
	MaxMessageSize int64
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	RelayEnabled   bool
	RelayPrefix    string
	// EventRPS limits codeChange and chatMessage events per connection; 0 disables.
	EventRPS   float64
	EventBurst int
}

type ShareConfig struct {
	MaxAttempts int
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "5000")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("MONGODB_DATABASE", "collab")
	viper.SetDefault("MONGODB_TIMEOUT", 10)
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("JWT_ACCESS_TOKEN_TTL", 15)
	viper.SetDefault("RATE_LIMIT_ENABLED", false)
	viper.SetDefault("RATE_LIMIT_RPS", 10)
	viper.SetDefault("RATE_LIMIT_BURST", 20)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)
	viper.SetDefault("WS_SEND_QUEUE_SIZE", 256)
	viper.SetDefault("WS_OVERFLOW_POLICY", OverflowDisconnect)
	viper.SetDefault("WS_MAX_MESSAGE_SIZE", 1<<20)
	viper.SetDefault("WS_RELAY_PREFIX", "collab:room:")
	viper.SetDefault("WS_EVENT_RPS", 50)
	viper.SetDefault("WS_EVENT_BURST", 100)
	viper.SetDefault("SHARE_TOKEN_MAX_ATTEMPTS", 5)
	viper.SetDefault("MINIO_BUCKET", "collab-exports")
	viper.SetDefault("MINIO_PRESIGN_TTL", 15)
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("SERVER_READ_TIMEOUT", 30)
	viper.SetDefault("SERVER_WRITE_TIMEOUT", 30)

	pongWait := 60 * time.Second
	cfg := &Config{
		Server: ServerConfig{
			Port:         viper.GetString("SERVER_PORT"),
			Host:         viper.GetString("SERVER_HOST"),
			Environment:  viper.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  time.Duration(viper.GetInt("SERVER_READ_TIMEOUT")) * time.Second,
			WriteTimeout: time.Duration(viper.GetInt("SERVER_WRITE_TIMEOUT")) * time.Second,
		},
		MongoDB: MongoDBConfig{
			URI:      viper.GetString("MONGODB_URI"),
			Database: viper.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(viper.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		Keycloak: KeycloakConfig{
			URL:          viper.GetString("KEYCLOAK_URL"),
			Realm:        viper.GetString("KEYCLOAK_REALM"),
			ClientID:     viper.GetString("KEYCLOAK_CLIENT_ID"),
			ClientSecret: viper.GetString("KEYCLOAK_CLIENT_SECRET"),
		},
		JWT: JWTConfig{
			Secret:             os.Getenv("JWT_SECRET"),
			AccessTokenTTL:     time.Duration(viper.GetInt("JWT_ACCESS_TOKEN_TTL")) * time.Minute,
			AllowInsecureToken: strings.EqualFold(strings.TrimSpace(viper.GetString("ALLOW_INSECURE_TOKEN")), "true"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       viper.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      viper.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         viper.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: viper.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Realtime: RealtimeConfig{
			SendQueueSize:  viper.GetInt("WS_SEND_QUEUE_SIZE"),
			OverflowPolicy: strings.ToLower(viper.GetString("WS_OVERFLOW_POLICY")),
			MaxMessageSize: viper.GetInt64("WS_MAX_MESSAGE_SIZE"),
			WriteWait:      10 * time.Second,
			PongWait:       pongWait,
			PingPeriod:     pongWait * 9 / 10,
			RelayEnabled:   viper.GetBool("WS_RELAY_ENABLED"),
			RelayPrefix:    viper.GetString("WS_RELAY_PREFIX"),
			EventRPS:       viper.GetFloat64("WS_EVENT_RPS"),
			EventBurst:     viper.GetInt("WS_EVENT_BURST"),
		},
		Share: ShareConfig{
			MaxAttempts: viper.GetInt("SHARE_TOKEN_MAX_ATTEMPTS"),
		},
		MinIO: storage.MinIOConfig{
			Endpoint:   viper.GetString("MINIO_ENDPOINT"),
			AccessKey:  viper.GetString("MINIO_ACCESS_KEY"),
			SecretKey:  os.Getenv("MINIO_SECRET_KEY"),
			UseSSL:     viper.GetBool("MINIO_USE_SSL"),
			Bucket:     viper.GetString("MINIO_BUCKET"),
			PresignTTL: time.Duration(viper.GetInt("MINIO_PRESIGN_TTL")) * time.Minute,
		},
		LogLevel: viper.GetString("LOG_LEVEL"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.JWT.Secret == "" && cfg.Keycloak.URL == "" && !cfg.JWT.AllowInsecureToken {
		logger.Warnf("no identity verifier configured: set JWT_SECRET or KEYCLOAK_URL")
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Realtime.OverflowPolicy {
	case OverflowDisconnect, OverflowDropOldest:
	default:
		return fmt.Errorf("invalid WS_OVERFLOW_POLICY %q (want %s or %s)", c.Realtime.OverflowPolicy, OverflowDisconnect, OverflowDropOldest)
	}
	if c.Realtime.SendQueueSize <= 0 {
		return fmt.Errorf("WS_SEND_QUEUE_SIZE must be positive, got %d", c.Realtime.SendQueueSize)
	}
	if c.Share.MaxAttempts <= 0 {
		return fmt.Errorf("SHARE_TOKEN_MAX_ATTEMPTS must be positive, got %d", c.Share.MaxAttempts)
	}
	return nil
}
