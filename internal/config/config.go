// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/mmynk/blocsheet/internal/models"
)

// Store backends.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
	StoreMemory   = "memory"
)

// Config holds runtime configuration for blocsheet.
type Config struct {
	Store         string `envconfig:"BLOCSHEET_STORE" default:"sqlite"`
	DBPath        string `envconfig:"DB_PATH" default:"./data/blocsheet.db"`
	PGDSN         string `envconfig:"PG_DSN"`
	MongoURI      string `envconfig:"MONGO_URI"`
	MongoDatabase string `envconfig:"MONGO_DATABASE" default:"blocsheet"`

	// StructurePath is a YAML or XLSX file the server captures first sheets from.
	StructurePath string `envconfig:"STRUCTURE_PATH"`

	HTTPAddr        string        `envconfig:"HTTP_ADDR" default:":8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	DefaultPenaltyRate float64 `envconfig:"DEFAULT_PENALTY_RATE" default:"0.02"`
	PaymentOrder       string  `envconfig:"PAYMENT_ORDER" default:"arrears_first"`
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects inconsistent settings.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreSQLite, StoreMemory:
	case StorePostgres:
		if c.PGDSN == "" {
			return fmt.Errorf("config: PG_DSN is required for the postgres store")
		}
	case StoreMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("config: MONGO_URI is required for the mongo store")
		}
	default:
		return fmt.Errorf("config: unknown store %q", c.Store)
	}
	if c.DefaultPenaltyRate < 0 || c.DefaultPenaltyRate > 1 {
		return fmt.Errorf("config: penalty rate %v outside [0, 1]", c.DefaultPenaltyRate)
	}
	switch models.PaymentOrder(c.PaymentOrder) {
	case models.PaymentOrderArrearsFirst, models.PaymentOrderCurrentFirst, models.PaymentOrderProportional:
	default:
		return fmt.Errorf("config: unknown payment order %q", c.PaymentOrder)
	}
	switch strings.ToLower(c.LogFormat) {
	case "pretty", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.LogFormat)
	}
	return nil
}

// Penalty returns the penalty settings new associations start with.
func (c *Config) Penalty() models.PenaltyConfig {
	return models.PenaltyConfig{
		Rate:         c.DefaultPenaltyRate,
		PaymentOrder: models.PaymentOrder(c.PaymentOrder),
	}
}
