package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	DatabaseURL      string        `envconfig:"DATABASE_URL"`
	StoreDriver      string        `envconfig:"STORE_DRIVER"       default:"postgres"`
	CatalogFile      string        `envconfig:"CATALOG_FILE"`
	HTTPPort         string        `envconfig:"HTTP_PORT"          default:":8082"`
	GrpcPort         string        `envconfig:"GRPC_PORT"          default:":50052"`
	LogLevel         string        `envconfig:"LOG_LEVEL"          default:"info"`
	JWTSecret        string        `envconfig:"JWT_SECRET"         required:"true"`
	DBMaxOpenConns   int           `envconfig:"DB_MAX_OPEN_CONNS"  default:"10"`
	DBConnectTimeout time.Duration `envconfig:"DB_CONNECT_TIMEOUT" default:"5s"`
	ShutdownTimeout  time.Duration `envconfig:"SHUTDOWN_TIMEOUT"   default:"10s"`
	DefaultPageSize  int           `envconfig:"DEFAULT_PAGE_SIZE"  default:"10"`
	MaxPageSize      int           `envconfig:"MAX_PAGE_SIZE"      default:"100"`
}

// LoadConfig reads an optional .env file and then the process environment.
func LoadConfig(logger *logrus.Logger) (*Config, error) {
	err := godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		logger.Warnf("Error loading .env file (but continuing): %v", err)
	} else if err == nil {
		logger.Info("Loaded configuration from .env file")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process configuration from environment variables: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger.Infof("Configuration loaded: Store=%s, HTTP Port=%s, GRPC Port=%s, LogLevel=%s", cfg.StoreDriver, cfg.HTTPPort, cfg.GrpcPort, cfg.LogLevel)
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("configuration error: JWT_SECRET is not set")
	}
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("configuration error: DATABASE_URL is not set")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("configuration error: unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.DefaultPageSize <= 0 || c.MaxPageSize <= 0 {
		return fmt.Errorf("configuration error: page sizes must be positive")
	}
	if c.DefaultPageSize > c.MaxPageSize {
		return fmt.Errorf("configuration error: DEFAULT_PAGE_SIZE %d exceeds MAX_PAGE_SIZE %d", c.DefaultPageSize, c.MaxPageSize)
	}
	return nil
}
