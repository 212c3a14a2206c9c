package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "kvstore-collector/internal/shared/errors"

	"github.com/caarlos0/env/v6"
)

// Tracker backends.
const (
	TrackerMemory  = "memory"
	TrackerRedis   = "redis"
	TrackerMongoDB = "mongodb"
	TrackerSQLite  = "sqlite"
)

// Sink backends.
const (
	SinkNone   = "none"
	SinkStdout = "stdout"
	SinkFile   = "file"
	SinkRedis  = "redis"
)

// KVStoreConfig configures the key-value store client.
type KVStoreConfig struct {
	Host  string `env:"KVSTORE_HOST" envDefault:"https://localhost:8089"`
	Owner string `env:"KVSTORE_OWNER" envDefault:"nobody"`
	// App is used by inputs that do not name one.
	App string `env:"KVSTORE_APP" envDefault:"search"`

	// AuthScheme is Splunk (session key), Bearer (static token) or JWT.
	AuthScheme  string        `env:"KVSTORE_AUTH_SCHEME" envDefault:"Splunk"`
	Token       string        `env:"KVSTORE_TOKEN"`
	JWTSecret   string        `env:"KVSTORE_JWT_SECRET"`
	JWTIssuer   string        `env:"KVSTORE_JWT_ISSUER" envDefault:"kvstore-collector"`
	JWTSubject  string        `env:"KVSTORE_JWT_SUBJECT" envDefault:"nobody"`
	JWTAudience string        `env:"KVSTORE_JWT_AUDIENCE"`
	JWTTTL      time.Duration `env:"KVSTORE_JWT_TTL" envDefault:"5m"`

	// InsecureSkipVerify disables certificate validation. It defaults to true
	// because the management port normally serves a self-signed certificate;
	// a warning is logged at startup while it is on.
	InsecureSkipVerify bool `env:"KVSTORE_INSECURE_SKIP_VERIFY" envDefault:"true"`

	ConfigTimeout  time.Duration `env:"KVSTORE_CONFIG_TIMEOUT" envDefault:"30s"`
	DataTimeout    time.Duration `env:"KVSTORE_DATA_TIMEOUT" envDefault:"10s"`
	BulkTimeout    time.Duration `env:"KVSTORE_BULK_TIMEOUT" envDefault:"120s"`
	EnsureAttempts int           `env:"KVSTORE_ENSURE_ATTEMPTS" envDefault:"3"`
}

// TrackerConfig selects where run status snapshots are kept.
type TrackerConfig struct {
	Backend         string `env:"TRACKER_BACKEND" envDefault:"memory"`
	RedisKeyPrefix  string `env:"TRACKER_REDIS_PREFIX" envDefault:"kvcollector:status:"`
	MongoDBURI      string `env:"MONGODB_URI"`
	MongoDatabase   string `env:"MONGODB_DATABASE" envDefault:"kvstore_collector"`
	MongoCollection string `env:"MONGODB_STATUS_COLLECTION" envDefault:"run_status"`
	SQLitePath      string `env:"SQLITE_PATH" envDefault:"kvstore_collector.db"`
}

// RedisConfig configures the shared Redis client.
type RedisConfig struct {
	Addr         string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password     string `env:"REDIS_PASSWORD"`
	Database     int    `env:"REDIS_DB" envDefault:"0"`
	MaxRetries   int    `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	PoolSize     int    `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int    `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	EnableTLS    bool   `env:"REDIS_TLS" envDefault:"false"`
}

// SinkConfig selects where indexed events go.
type SinkConfig struct {
	Backend      string `env:"SINK_BACKEND" envDefault:"none"`
	Path         string `env:"SINK_PATH"`
	StreamPrefix string `env:"SINK_STREAM_PREFIX" envDefault:"kvcollector:events:"`
	StreamMaxLen int64  `env:"SINK_STREAM_MAXLEN" envDefault:"10000"`
}

// LockConfig configures the optional distributed run lock.
type LockConfig struct {
	Enabled bool          `env:"RUN_LOCK_ENABLED" envDefault:"false"`
	TTL     time.Duration `env:"RUN_LOCK_TTL" envDefault:"30m"`
	Prefix  string        `env:"RUN_LOCK_PREFIX" envDefault:"kvcollector:lock:"`
}

// LogConfig configures logging.
type LogConfig struct {
	Backend string `env:"LOG_BACKEND" envDefault:"logrus"`
	Level   string `env:"LOG_LEVEL" envDefault:"info"`
	Format  string `env:"LOG_FORMAT" envDefault:"text"`
}

// ServerConfig configures the status API.
type ServerConfig struct {
	Host string `env:"STATUS_HOST" envDefault:"0.0.0.0"`
	Port string `env:"STATUS_PORT" envDefault:"8080"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// Config holds all configuration for the collector.
type Config struct {
	KVStore KVStoreConfig
	Tracker TrackerConfig
	Redis   RedisConfig
	Sink    SinkConfig
	Lock    LockConfig
	Log     LogConfig
	Server  ServerConfig

	InputsFile string `env:"COLLECTOR_INPUTS_FILE" envDefault:"inputs.yaml"`
	// RowLimit is the report source's row cap; 0 disables the truncation warning.
	RowLimit int `env:"REPORT_ROW_LIMIT" envDefault:"2000"`
}

// LoadConfig loads configuration from environment variables and validates it.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.New("failed to load collector configuration from environment: " + err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig returns the configuration used when no environment is set.
// It panics when a default tag does not parse.
func DefaultConfig() *Config {
	cfg := &Config{}
	if err := env.Parse(cfg, env.Options{Environment: map[string]string{}}); err != nil {
		panic("invalid collector configuration defaults: " + err.Error())
	}
	return cfg
}

// ValidateServe checks that the status server can see snapshots written by
// other processes. The memory tracker only holds the serving process's own.
func (c *Config) ValidateServe() error {
	if c.Tracker.Backend == TrackerMemory {
		return apperrors.NewConfigurationError("serve needs a shared tracker; TRACKER_BACKEND must be redis, mongodb or sqlite")
	}
	return nil
}

// NeedsRedis reports whether any configured component uses Redis.
func (c *Config) NeedsRedis() bool {
	return c.Tracker.Backend == TrackerRedis || c.Sink.Backend == SinkRedis || c.Lock.Enabled
}

// Validate collects every configuration problem into one configuration error.
func (c *Config) Validate() error {
	ve := apperrors.NewValidationErrors()

	if c.KVStore.Host == "" {
		ve.Add("KVSTORE_HOST", "is required", nil)
	} else if !strings.HasPrefix(c.KVStore.Host, "http://") && !strings.HasPrefix(c.KVStore.Host, "https://") {
		ve.Add("KVSTORE_HOST", "must start with http:// or https://", c.KVStore.Host)
	}
	switch strings.ToLower(c.KVStore.AuthScheme) {
	case "splunk", "bearer":
		if c.KVStore.Token == "" {
			ve.Add("KVSTORE_TOKEN", fmt.Sprintf("is required for the %s scheme", c.KVStore.AuthScheme), nil)
		}
	case "jwt":
		if c.KVStore.JWTSecret == "" {
			ve.Add("KVSTORE_JWT_SECRET", "is required for the JWT scheme", nil)
		}
		if c.KVStore.JWTTTL <= 0 {
			ve.Add("KVSTORE_JWT_TTL", "must be positive", c.KVStore.JWTTTL.String())
		}
	default:
		ve.Add("KVSTORE_AUTH_SCHEME", "must be Splunk, Bearer or JWT", c.KVStore.AuthScheme)
	}
	if c.KVStore.EnsureAttempts < 1 {
		ve.Add("KVSTORE_ENSURE_ATTEMPTS", "must be at least 1", c.KVStore.EnsureAttempts)
	}

	switch c.Tracker.Backend {
	case TrackerMemory, TrackerRedis:
	case TrackerMongoDB:
		if c.Tracker.MongoDBURI == "" {
			ve.Add("MONGODB_URI", "is required for the mongodb tracker", nil)
		}
	case TrackerSQLite:
		if c.Tracker.SQLitePath == "" {
			ve.Add("SQLITE_PATH", "is required for the sqlite tracker", nil)
		}
	default:
		ve.Add("TRACKER_BACKEND", "must be memory, redis, mongodb or sqlite", c.Tracker.Backend)
	}

	switch c.Sink.Backend {
	case SinkNone, SinkStdout, SinkRedis:
	case SinkFile:
		if c.Sink.Path == "" {
			ve.Add("SINK_PATH", "is required for the file sink", nil)
		}
	default:
		ve.Add("SINK_BACKEND", "must be none, stdout, file or redis", c.Sink.Backend)
	}

	if c.NeedsRedis() && c.Redis.Addr == "" {
		ve.Add("REDIS_ADDR", "is required when redis is used", nil)
	}
	if c.Lock.Enabled && c.Lock.TTL <= 0 {
		ve.Add("RUN_LOCK_TTL", "must be positive", c.Lock.TTL.String())
	}
	if c.RowLimit < 0 {
		ve.Add("REPORT_ROW_LIMIT", "must not be negative", c.RowLimit)
	}

	if ve.HasErrors() {
		return ve.ToAppError()
	}
	return nil
}
