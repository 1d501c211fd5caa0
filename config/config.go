package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"tally-api"`
	Environment                   string   `env:"ENVIRONMENT" env-default:"local"`
	Port                          int      `env:"PORT" env-default:"3000"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int      `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST,PUT"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`
	ShutdownTimeoutSeconds        int      `env:"SHUTDOWN_TIMEOUT_SECONDS" env-default:"15"`

	// Storage backend, postgres or memory
	StoreDriver string `env:"STORE_DRIVER" env-default:"postgres"`

	// Database host
	DatabaseHost string `env:"DB_HOST" env-default:"localhost"`
	// Database port
	DatabasePort string `env:"DB_PORT" env-default:"5432"`
	// Database user
	DatabaseUserName string `env:"DB_USER_NAME" env-default:""`
	// Database user password
	DatabasePassword string `env:"DB_PASSWORD" env-default:""`
	// Database name
	DatabaseName string `env:"DB_NAME" env-default:"tally"`
	// Database SSL Mode
	DatabaseSSLMode string `env:"DB_SSL_MODE" env-default:"disable"`
	// Max Open Conns
	DatabaseMaxOpenConns int `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	// Migration Folder Path
	DatabaseMigrationFolderPath string `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	// Database Migration Version, 0 migrates to the latest
	DatabaseMigrationVersion uint `env:"DB_MIGRATION_VERSION" env-default:"0"`
	// Database Migration Force
	DatabaseMigrationForce int `env:"DB_MIGRATION_FORCE" env-default:"0"`
	// Run migrations when the server starts
	DatabaseMigrateOnStart bool `env:"DB_MIGRATE_ON_START" env-default:"true"`

	// Reference data file loaded when the server starts, optional
	SeedFile string `env:"SEED_FILE" env-default:""`

	// Auth Enabled - when false, the acting official comes from X-User-ID
	AuthEnabled bool `env:"AUTH_ENABLED" env-default:"false"`
	// Auth Issuer URL
	AuthIssuerURL string `env:"AUTH_ISSUER_URL" env-default:""`
	// Auth Client ID
	AuthClientID string `env:"AUTH_CLIENT_ID" env-default:""`

	// Redis host, empty disables the dashboard cache
	RedisHost string `env:"REDIS_HOST" env-default:""`
	// Redis port
	RedisPort int `env:"REDIS_PORT" env-default:"6379"`
	// Redis password
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	// Redis database number
	RedisDB int `env:"REDIS_DB" env-default:"0"`

	// Kafka brokers (comma-separated), empty disables activity publishing
	KafkaBrokers string `env:"KAFKA_BROKERS" env-default:""`
	// Kafka topic for activity events
	KafkaActivityTopic string `env:"KAFKA_ACTIVITY_TOPIC" env-default:"collation-activity"`
	KafkaBatchSize     int    `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout  int    `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"10"`

	// Tracing exporter: none or otlp. none still assigns trace ids.
	TracingExporter string `env:"TRACING_EXPORTER" env-default:"none"`
	// OTLP collector endpoint
	TracingEndpoint string `env:"TRACING_ENDPOINT" env-default:"localhost:4317"`
	// OTLP protocol: grpc or http
	TracingProtocol string `env:"TRACING_PROTOCOL" env-default:"grpc"`
	TracingInsecure bool   `env:"TRACING_INSECURE" env-default:"true"`

	// Dashboard snapshot lifetime
	DashboardCacheTTLSeconds int `env:"DASHBOARD_CACHE_TTL_SECONDS" env-default:"5"`
	// Activity feed page size when no limit is given
	ActivityFeedDefaultLimit int `env:"ACTIVITY_FEED_DEFAULT_LIMIT" env-default:"50"`
	// Largest activity feed page a client may request
	ActivityFeedMaxLimit int `env:"ACTIVITY_FEED_MAX_LIMIT" env-default:"500"`
}

// Load reads an optional .env file and then the environment
func Load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load env file: %w", err)
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverPostgres, StoreDriverMemory, c.StoreDriver)
	}
	switch c.TracingExporter {
	case "none", "otlp":
	default:
		return fmt.Errorf("TRACING_EXPORTER must be \"none\" or \"otlp\", got %q", c.TracingExporter)
	}
	if c.AuthEnabled && (c.AuthIssuerURL == "" || c.AuthClientID == "") {
		return errors.New("AUTH_ISSUER_URL and AUTH_CLIENT_ID are required when AUTH_ENABLED is true")
	}
	if c.ActivityFeedDefaultLimit <= 0 || c.ActivityFeedMaxLimit < c.ActivityFeedDefaultLimit {
		return errors.New("ACTIVITY_FEED_DEFAULT_LIMIT must be positive and not above ACTIVITY_FEED_MAX_LIMIT")
	}
	return nil
}

// DatabaseURL builds the lib/pq connection string
func (c Config) DatabaseURL() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DatabaseHost, c.DatabasePort, c.DatabaseUserName, c.DatabasePassword, c.DatabaseName, c.DatabaseSSLMode)
}

func (c Config) DashboardCacheTTL() time.Duration {
	return time.Duration(c.DashboardCacheTTLSeconds) * time.Second
}

func (c Config) KafkaBatchTimeoutDuration() time.Duration {
	return time.Duration(c.KafkaBatchTimeout) * time.Millisecond
}
