package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"rainfall-platform/pkg/database"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config is the process-wide configuration shared by the server, the ingester
// CLI and the migrator.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Logging  LoggingConfig
	Ingest   IngestConfig
	Auth     AuthConfig
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Host            string
	Port            int           `validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `validate:"gt=0"`
	WriteTimeout    time.Duration `validate:"gt=0"`
	IdleTimeout     time.Duration `validate:"gt=0"`
	ShutdownTimeout time.Duration `validate:"gt=0"`
}

// DatabaseConfig configures the Postgres connection. URL, when set, takes
// precedence over the discrete host settings.
type DatabaseConfig struct {
	URL             string
	Host            string `validate:"required_without=URL"`
	Port            int    `validate:"required_without=URL,omitempty,min=1,max=65535"`
	User            string `validate:"required_without=URL"`
	Password        string
	Database        string `validate:"required_without=URL"`
	SSLMode         string `validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	SearchPath      string
	MaxOpenConns    int `validate:"min=1"`
	MaxIdleConns    int `validate:"min=0,ltefield=MaxOpenConns"`
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// LoggingConfig configures the structured logger
type LoggingConfig struct {
	Level string `validate:"oneof=debug info warn warning error"`
}

// IngestConfig tunes the upload pipeline
type IngestConfig struct {
	BatchSize      int   `validate:"min=1,max=5000"`
	Workers        int   `validate:"min=1,max=64"`
	MaxUploadBytes int64 `validate:"min=1024"`
	MaxTxAttempts  int   `validate:"min=1,max=10"`
}

// AuthConfig holds the shared bearer token that authenticates uploaders.
// An empty token disables uploads over HTTP.
type AuthConfig struct {
	BearerToken string
}

// LoadConfig reads configuration from the environment, after loading a .env
// file when one is present.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load() // ignore missing file

	var errs []error
	getInt := func(key string, def int) int {
		v, err := envInt(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	getDuration := func(key string, def time.Duration) time.Duration {
		v, err := envDuration(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:            envString("SERVER_HOST", "0.0.0.0"),
			Port:            getInt("SERVER_PORT", 8080),
			ReadTimeout:     getDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:     getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			Host:            envString("DB_HOST", "localhost"),
			Port:            getInt("DB_PORT", 5432),
			User:            envString("DB_USER", "postgres"),
			Password:        os.Getenv("DB_PASSWORD"),
			Database:        envString("DB_NAME", "rainfall"),
			SSLMode:         envString("DB_SSLMODE", "disable"),
			SearchPath:      os.Getenv("DB_SEARCH_PATH"),
			MaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		},
		Logging: LoggingConfig{
			Level: strings.ToLower(envString("LOG_LEVEL", "info")),
		},
		Ingest: IngestConfig{
			BatchSize:      getInt("INGEST_BATCH_SIZE", 500),
			Workers:        getInt("INGEST_WORKERS", 4),
			MaxUploadBytes: int64(getInt("INGEST_MAX_UPLOAD_BYTES", 32<<20)),
			MaxTxAttempts:  getInt("INGEST_MAX_TX_ATTEMPTS", 3),
		},
		Auth: AuthConfig{
			BearerToken: os.Getenv("API_BEARER_TOKEN"),
		},
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return cfg, nil
}

// Validate checks every section's constraints
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: rule '%s' failed (param '%s', got '%v')",
					fe.Namespace(), fe.Tag(), fe.Param(), fe.Value()))
			}
			return fmt.Errorf("invalid configuration:\n • %s", strings.Join(msgs, "\n • "))
		}
		return err
	}
	return nil
}

// ListenAddr returns the host:port string for the HTTP server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// PostgresConfig converts the database section for pkg/database.
func (c *Config) PostgresConfig() *database.Config {
	return &database.Config{
		URL:             c.Database.URL,
		Host:            c.Database.Host,
		Port:            c.Database.Port,
		User:            c.Database.User,
		Password:        c.Database.Password,
		Database:        c.Database.Database,
		SSLMode:         c.Database.SSLMode,
		SearchPath:      c.Database.SearchPath,
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
		ConnMaxIdleTime: c.Database.ConnMaxIdleTime,
	}
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func envInt(key string, def int) (int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return def, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return def, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return v, nil
}

// envDuration accepts Go duration syntax ("30s") or a bare number of seconds.
func envDuration(key string, def time.Duration) (time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return def, nil
	}
	raw = strings.TrimSpace(raw)
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return d, nil
}
