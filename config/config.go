package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Mongo      MongoConfig      `mapstructure:"mongo"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	WorkerPool WorkerPoolConfig `mapstructure:"worker_pool"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Websocket  WebsocketConfig  `mapstructure:"websocket"`
	Chat       ChatConfig       `mapstructure:"chat"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type PostgresConfig struct {
	Host         string `mapstructure:"host"`
	Port         string `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	DBName       string `mapstructure:"dbname"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         string `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

// MongoConfig is only read when chat.audit_sink is "mongo".
type MongoConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type RateLimitConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	LimitPerMinute int  `mapstructure:"limit_per_minute"`
}

type WorkerPoolConfig struct {
	Size      int `mapstructure:"size"`
	QueueSize int `mapstructure:"queue_size"`
}

type KafkaConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Brokers        []string `mapstructure:"brokers"`
	Topic          string   `mapstructure:"topic"`
	MaxRetries     int      `mapstructure:"max_retries"`
	RetryBackoffMs int      `mapstructure:"retry_backoff_ms"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

type WebsocketConfig struct {
	HeartbeatInterval int `mapstructure:"heartbeat_interval"` // seconds
	ConnectionTimeout int `mapstructure:"connection_timeout"` // seconds
	SendBuffer        int `mapstructure:"send_buffer"`
	MaxMessageBytes   int `mapstructure:"max_message_bytes"`
}

type ChatConfig struct {
	NodeID              int64         `mapstructure:"node_id"`
	EditWindow          time.Duration `mapstructure:"edit_window"`
	PresenceWindow      time.Duration `mapstructure:"presence_window"`
	TypingTTL           time.Duration `mapstructure:"typing_ttl"`
	TypingSweepInterval time.Duration `mapstructure:"typing_sweep_interval"`
	RelayEnabled        bool          `mapstructure:"relay_enabled"`
	RelayChannel        string        `mapstructure:"relay_channel"`
	AuditSink           string        `mapstructure:"audit_sink"` // "db", "mongo" or "none"
	NotificationInbox   int64         `mapstructure:"notification_inbox"`
}

// Default returns a configuration usable for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 9000, Mode: "debug"},
		Postgres: PostgresConfig{
			Host:         "127.0.0.1",
			Port:         "5432",
			User:         "postgres",
			Password:     "postgres",
			DBName:       "chat",
			MaxIdleConns: 10,
			MaxOpenConns: 50,
		},
		Redis: RedisConfig{
			Host:         "127.0.0.1",
			Port:         "6379",
			PoolSize:     20,
			MinIdleConns: 2,
		},
		Mongo: MongoConfig{
			URI:        "mongodb://127.0.0.1:27017",
			Database:   "chat",
			Collection: "audit_logs",
		},
		JWT:        JWTConfig{Secret: "change-me", ExpireHours: 24},
		RateLimit:  RateLimitConfig{Enabled: true, LimitPerMinute: 600},
		WorkerPool: WorkerPoolConfig{Size: 16, QueueSize: 1024},
		Kafka: KafkaConfig{
			Brokers:        []string{"127.0.0.1:9092"},
			Topic:          "chat.analytics",
			MaxRetries:     3,
			RetryBackoffMs: 100,
		},
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		Websocket: WebsocketConfig{
			HeartbeatInterval: 30,
			ConnectionTimeout: 60,
			SendBuffer:        256,
			MaxMessageBytes:   64 << 10,
		},
		Chat: ChatConfig{
			NodeID:              1,
			EditWindow:          24 * time.Hour,
			PresenceWindow:      5 * time.Minute,
			TypingTTL:           10 * time.Second,
			TypingSweepInterval: 30 * time.Second,
			RelayChannel:        "chat:events",
			AuditSink:           "db",
			NotificationInbox:   200,
		},
	}
}

// LoadConfig reads path (TOML) on top of Default. A .env file next to the
// working directory is loaded first when present, and CHAT_* environment
// variables override file values (CHAT_POSTGRES_HOST -> postgres.host).
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix("CHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can see it during Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)

	v.SetDefault("postgres.host", d.Postgres.Host)
	v.SetDefault("postgres.port", d.Postgres.Port)
	v.SetDefault("postgres.user", d.Postgres.User)
	v.SetDefault("postgres.password", d.Postgres.Password)
	v.SetDefault("postgres.dbname", d.Postgres.DBName)
	v.SetDefault("postgres.max_idle_conns", d.Postgres.MaxIdleConns)
	v.SetDefault("postgres.max_open_conns", d.Postgres.MaxOpenConns)

	v.SetDefault("redis.host", d.Redis.Host)
	v.SetDefault("redis.port", d.Redis.Port)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.pool_size", d.Redis.PoolSize)
	v.SetDefault("redis.min_idle_conns", d.Redis.MinIdleConns)

	v.SetDefault("mongo.uri", d.Mongo.URI)
	v.SetDefault("mongo.database", d.Mongo.Database)
	v.SetDefault("mongo.collection", d.Mongo.Collection)

	v.SetDefault("jwt.secret", d.JWT.Secret)
	v.SetDefault("jwt.expire_hours", d.JWT.ExpireHours)

	v.SetDefault("ratelimit.enabled", d.RateLimit.Enabled)
	v.SetDefault("ratelimit.limit_per_minute", d.RateLimit.LimitPerMinute)

	v.SetDefault("worker_pool.size", d.WorkerPool.Size)
	v.SetDefault("worker_pool.queue_size", d.WorkerPool.QueueSize)

	v.SetDefault("kafka.enabled", d.Kafka.Enabled)
	v.SetDefault("kafka.brokers", d.Kafka.Brokers)
	v.SetDefault("kafka.topic", d.Kafka.Topic)
	v.SetDefault("kafka.max_retries", d.Kafka.MaxRetries)
	v.SetDefault("kafka.retry_backoff_ms", d.Kafka.RetryBackoffMs)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)
	v.SetDefault("logging.file_path", d.Logging.FilePath)

	v.SetDefault("websocket.heartbeat_interval", d.Websocket.HeartbeatInterval)
	v.SetDefault("websocket.connection_timeout", d.Websocket.ConnectionTimeout)
	v.SetDefault("websocket.send_buffer", d.Websocket.SendBuffer)
	v.SetDefault("websocket.max_message_bytes", d.Websocket.MaxMessageBytes)

	v.SetDefault("chat.node_id", d.Chat.NodeID)
	v.SetDefault("chat.edit_window", d.Chat.EditWindow)
	v.SetDefault("chat.presence_window", d.Chat.PresenceWindow)
	v.SetDefault("chat.typing_ttl", d.Chat.TypingTTL)
	v.SetDefault("chat.typing_sweep_interval", d.Chat.TypingSweepInterval)
	v.SetDefault("chat.relay_enabled", d.Chat.RelayEnabled)
	v.SetDefault("chat.relay_channel", d.Chat.RelayChannel)
	v.SetDefault("chat.audit_sink", d.Chat.AuditSink)
	v.SetDefault("chat.notification_inbox", d.Chat.NotificationInbox)
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.JWT.Secret == "" {
		return errors.New("jwt secret must not be empty")
	}
	if c.WorkerPool.Size <= 0 {
		return fmt.Errorf("worker pool size must be positive, got %d", c.WorkerPool.Size)
	}
	if c.Chat.EditWindow <= 0 || c.Chat.PresenceWindow <= 0 {
		return errors.New("chat edit_window and presence_window must be positive")
	}
	if c.Chat.TypingTTL <= 0 || c.Chat.TypingSweepInterval <= 0 {
		return errors.New("chat typing_ttl and typing_sweep_interval must be positive")
	}
	switch c.Chat.AuditSink {
	case "db", "mongo", "none":
	default:
		return fmt.Errorf("unknown audit sink %q", c.Chat.AuditSink)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka enabled without brokers")
	}
	return nil
}

// PostgresDSN builds the lib/pq style DSN used by gorm's postgres driver.
func (c *Config) PostgresDSN() string {
	p := c.Postgres
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable", p.Host, p.Port, p.User, p.Password, p.DBName)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}
