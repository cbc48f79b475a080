package base

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/doccontrol/internal/config"
	"github.com/hashicorp-forge/doccontrol/internal/db"
	"github.com/hashicorp-forge/doccontrol/internal/server"
)

// DBOpener connects to the database described by cfg.
type DBOpener func(cfg *config.Config, log hclog.Logger) (*gorm.DB, error)

// OpenPostgres is the default DBOpener.
func OpenPostgres(cfg *config.Config, log hclog.Logger) (*gorm.DB, error) {
	return db.NewDB(cfg.Postgres, log)
}

// LoadServer loads the configuration file at path and builds a server over
// its database. Callers must Close the server.
func (c *Command) LoadServer(ctx context.Context, path string) (*server.Server, error) {
	if path == "" {
		return nil, fmt.Errorf("config flag is required")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	if lvl := hclog.LevelFromString(cfg.LogLevel); lvl != hclog.NoLevel {
		c.Log.SetLevel(lvl)
	}

	open := c.OpenDB
	if open == nil {
		open = OpenPostgres
	}
	database, err := open(cfg, c.Log)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	srv, err := server.New(ctx, cfg, database, c.Log)
	if err != nil {
		return nil, fmt.Errorf("error initializing server: %w", err)
	}
	return srv, nil
}
