package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	WebSocket   WebSocketConfig
	Pairing     PairingConfig
	Redis       RedisConfig
	Couch       CouchConfig
	Weather     WeatherConfig
	RabbitMQ    RabbitMQConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Logging     LoggingConfig
	Maintenance MaintenanceConfig
	Playlist    PlaylistConfig
}

type ServerConfig struct {
	Port      string
	Host      string
	Env       string
	PublicURL string
}

func (s ServerConfig) IsProduction() bool {
	return s.Env == "production"
}

type DatabaseConfig struct {
	Driver   string
	DSN      string
	MaxOpen  int
	MaxIdle  int
	LogLevel string
}

type JWTConfig struct {
	Secret                 string
	OperatorSecret         string
	Expiration             time.Duration
	RefreshTokenExpiration time.Duration
}

type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	MaxMessageSize  int64
	WriteWait       time.Duration
	PongWait        time.Duration
	PingPeriod      time.Duration
	SendBuffer      int
}

type PairingConfig struct {
	CodeTTL         time.Duration
	MagicLinkTTL    time.Duration
	SocketTicketTTL time.Duration
}

type RedisConfig struct {
	URL string
}

type CouchConfig struct {
	URL      string
	Database string
	Watch    bool
}

type WeatherConfig struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

type RabbitMQConfig struct {
	URL   string
	Queue string
}

type RateLimitConfig struct {
	PairRequestsPerMinute int
	Enabled               bool
}

type CORSConfig struct {
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type MaintenanceConfig struct {
	Schedule       string
	TokenRetention time.Duration
}

type PlaylistConfig struct {
	CacheTTL time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("ENV", "development")
	v.SetDefault("PUBLIC_URL", "http://localhost:8080")

	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_DSN", "host=localhost user=signage password=signage dbname=signage port=5432 sslmode=disable TimeZone=UTC")
	v.SetDefault("DB_MAX_OPEN_CONNS", 20)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_LOG_LEVEL", "warn")

	v.SetDefault("JWT_SECRET", "dev-secret-change-in-production")
	v.SetDefault("OPERATOR_JWT_SECRET", "")
	v.SetDefault("JWT_EXPIRATION", "15m")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "2160h")

	v.SetDefault("WS_READ_BUFFER_SIZE", 4096)
	v.SetDefault("WS_WRITE_BUFFER_SIZE", 4096)
	v.SetDefault("WS_MAX_MESSAGE_SIZE", 65536)
	v.SetDefault("WS_WRITE_WAIT", "10s")
	v.SetDefault("WS_PONG_WAIT", "60s")
	v.SetDefault("WS_PING_PERIOD", "54s")
	v.SetDefault("WS_SEND_BUFFER", 256)

	v.SetDefault("PAIRING_CODE_TTL", "10m")
	v.SetDefault("MAGIC_LINK_TTL", "24h")
	v.SetDefault("SOCKET_TICKET_TTL", "30s")

	v.SetDefault("REDIS_URL", "")

	v.SetDefault("COUCHDB_URL", "")
	v.SetDefault("COUCHDB_CATALOG_DB", "catalog")
	v.SetDefault("COUCHDB_WATCH", true)

	v.SetDefault("WEATHER_BASE_URL", "https://api.open-meteo.com")
	v.SetDefault("WEATHER_TIMEOUT", "3s")
	v.SetDefault("WEATHER_CACHE_TTL", "10m")

	v.SetDefault("RABBITMQ_URL", "")
	v.SetDefault("RABBITMQ_QUEUE", "fleet.events")

	v.SetDefault("RATE_LIMIT_PAIR_PER_MINUTE", 10)
	v.SetDefault("RATE_LIMIT_ENABLED", true)

	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS")
	v.SetDefault("CORS_ALLOWED_HEADERS", "Content-Type,Authorization,If-None-Match")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "")

	v.SetDefault("MAINTENANCE_SCHEDULE", "@every 6h")
	v.SetDefault("TOKEN_RETENTION", "720h")

	v.SetDefault("PLAYLIST_CACHE_TTL", "15s")
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Server: ServerConfig{
			Port:      v.GetString("PORT"),
			Host:      v.GetString("HOST"),
			Env:       v.GetString("ENV"),
			PublicURL: strings.TrimRight(v.GetString("PUBLIC_URL"), "/"),
		},
		Database: DatabaseConfig{
			Driver:   v.GetString("DB_DRIVER"),
			DSN:      v.GetString("DB_DSN"),
			MaxOpen:  v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdle:  v.GetInt("DB_MAX_IDLE_CONNS"),
			LogLevel: v.GetString("DB_LOG_LEVEL"),
		},
		JWT: JWTConfig{
			Secret:                 v.GetString("JWT_SECRET"),
			OperatorSecret:         v.GetString("OPERATOR_JWT_SECRET"),
			Expiration:             v.GetDuration("JWT_EXPIRATION"),
			RefreshTokenExpiration: v.GetDuration("REFRESH_TOKEN_EXPIRATION"),
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  v.GetInt("WS_READ_BUFFER_SIZE"),
			WriteBufferSize: v.GetInt("WS_WRITE_BUFFER_SIZE"),
			MaxMessageSize:  v.GetInt64("WS_MAX_MESSAGE_SIZE"),
			WriteWait:       v.GetDuration("WS_WRITE_WAIT"),
			PongWait:        v.GetDuration("WS_PONG_WAIT"),
			PingPeriod:      v.GetDuration("WS_PING_PERIOD"),
			SendBuffer:      v.GetInt("WS_SEND_BUFFER"),
		},
		Pairing: PairingConfig{
			CodeTTL:         v.GetDuration("PAIRING_CODE_TTL"),
			MagicLinkTTL:    v.GetDuration("MAGIC_LINK_TTL"),
			SocketTicketTTL: v.GetDuration("SOCKET_TICKET_TTL"),
		},
		Redis: RedisConfig{
			URL: v.GetString("REDIS_URL"),
		},
		Couch: CouchConfig{
			URL:      v.GetString("COUCHDB_URL"),
			Database: v.GetString("COUCHDB_CATALOG_DB"),
			Watch:    v.GetBool("COUCHDB_WATCH"),
		},
		Weather: WeatherConfig{
			BaseURL:  strings.TrimRight(v.GetString("WEATHER_BASE_URL"), "/"),
			Timeout:  v.GetDuration("WEATHER_TIMEOUT"),
			CacheTTL: v.GetDuration("WEATHER_CACHE_TTL"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:   v.GetString("RABBITMQ_URL"),
			Queue: v.GetString("RABBITMQ_QUEUE"),
		},
		RateLimit: RateLimitConfig{
			PairRequestsPerMinute: v.GetInt("RATE_LIMIT_PAIR_PER_MINUTE"),
			Enabled:               v.GetBool("RATE_LIMIT_ENABLED"),
		},
		CORS: CORSConfig{
			AllowedOrigins: v.GetString("CORS_ALLOWED_ORIGINS"),
			AllowedMethods: v.GetString("CORS_ALLOWED_METHODS"),
			AllowedHeaders: v.GetString("CORS_ALLOWED_HEADERS"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		Maintenance: MaintenanceConfig{
			Schedule:       v.GetString("MAINTENANCE_SCHEDULE"),
			TokenRetention: v.GetDuration("TOKEN_RETENTION"),
		},
		Playlist: PlaylistConfig{
			CacheTTL: v.GetDuration("PLAYLIST_CACHE_TTL"),
		},
	}

	if cfg.JWT.OperatorSecret == "" {
		cfg.JWT.OperatorSecret = cfg.JWT.Secret
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWT.Expiration <= 0 {
		return fmt.Errorf("invalid JWT_EXPIRATION: must be positive")
	}
	if c.JWT.RefreshTokenExpiration <= c.JWT.Expiration {
		return fmt.Errorf("invalid REFRESH_TOKEN_EXPIRATION: must exceed JWT_EXPIRATION")
	}
	if c.WebSocket.PingPeriod >= c.WebSocket.PongWait {
		return fmt.Errorf("invalid WS_PING_PERIOD: must be shorter than WS_PONG_WAIT")
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("invalid DB_DRIVER %q: want postgres or sqlite", c.Database.Driver)
	}
	if c.Server.IsProduction() && c.JWT.Secret == "dev-secret-change-in-production" {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}
	return nil
}
