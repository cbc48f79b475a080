package db

import (
	"errors"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/doccontrol/internal/config"
	"github.com/hashicorp-forge/doccontrol/pkg/database"
)

// NewDB connects to the configured PostgreSQL database. The schema is
// expected to be migrated already by doccontrol-migrate.
func NewDB(cfg *config.Postgres, log hclog.Logger) (*gorm.DB, error) {
	if cfg == nil {
		return nil, errors.New("postgres configuration is missing")
	}
	return database.Connect(Config(cfg), log)
}

// Config converts the postgres block into a database.Config.
func Config(cfg *config.Postgres) database.Config {
	return database.Config{
		Host:         cfg.Host,
		Port:         cfg.Port,
		User:         cfg.User,
		Password:     cfg.Password,
		DBName:       cfg.DBName,
		SSLMode:      cfg.SSLMode,
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
	}
}
