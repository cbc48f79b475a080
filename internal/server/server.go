package server

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/doccontrol/internal/config"
	"github.com/hashicorp-forge/doccontrol/pkg/archive"
	"github.com/hashicorp-forge/doccontrol/pkg/controlnumber"
	"github.com/hashicorp-forge/doccontrol/pkg/database"
	"github.com/hashicorp-forge/doccontrol/pkg/distribution"
	"github.com/hashicorp-forge/doccontrol/pkg/evidence"
	"github.com/hashicorp-forge/doccontrol/pkg/extraction"
	"github.com/hashicorp-forge/doccontrol/pkg/folder"
	"github.com/hashicorp-forge/doccontrol/pkg/indexer"
	"github.com/hashicorp-forge/doccontrol/pkg/indexer/commands"
	"github.com/hashicorp-forge/doccontrol/pkg/notifications"
	"github.com/hashicorp-forge/doccontrol/pkg/registry"
	"github.com/hashicorp-forge/doccontrol/pkg/review"
	"github.com/hashicorp-forge/doccontrol/pkg/search"
	bleveadapter "github.com/hashicorp-forge/doccontrol/pkg/search/adapters/bleve"
	"github.com/hashicorp-forge/doccontrol/pkg/storage"
	"github.com/hashicorp-forge/doccontrol/pkg/storage/local"
	s3adapter "github.com/hashicorp-forge/doccontrol/pkg/storage/s3"
)

// Server holds the engine components built from one configuration.
type Server struct {
	// Config is the loaded configuration.
	Config *config.Config

	// DB is the relational store shared by every manager.
	DB *gorm.DB

	// Logger is the root logger.
	Logger hclog.Logger

	Registry     *registry.Registry
	Reviews      *review.Scheduler
	Distribution *distribution.Tracker
	Archives     *archive.Manager
	Folders      *folder.Organizer
	Evidence     *evidence.Linker

	// Reindexer is nil when no file storage is configured.
	Reindexer *indexer.Reindexer

	// Storage is the document file backend, if configured.
	Storage storage.FileStorage

	// SearchProvider is the full-text index, if configured.
	SearchProvider search.Provider

	// Notifier delivers notifications; it logs them when no broker is
	// configured.
	Notifier notifications.Notifier

	closers []func() error
}

// New builds a Server over an open database.
func New(ctx context.Context, cfg *config.Config, db *gorm.DB, logger hclog.Logger) (*Server, error) {
	if cfg == nil || db == nil {
		return nil, fmt.Errorf("config and database are required")
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	cfg.SetDefaults()
	s := &Server{Config: cfg, DB: db, Logger: logger}

	if err := s.initNotifier(ctx); err != nil {
		return nil, err
	}
	tables, err := s.evidenceTables(afero.NewOsFs())
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	s.Archives = archive.New(db,
		archive.WithLogger(logger),
		archive.WithRetentionYears(cfg.Archive.RetentionYears),
	)
	s.Registry = registry.New(db,
		registry.WithLogger(logger),
		registry.WithNotifier(s.Notifier),
		registry.WithAllocator(controlnumber.New(
			controlnumber.WithLogger(logger),
			controlnumber.WithSequenceWidth(cfg.ControlNumbers.SequenceWidth),
		)),
		registry.WithArchiveManager(s.Archives),
	)
	s.Reviews = review.New(db, review.WithLogger(logger), review.WithNotifier(s.Notifier))
	s.Distribution = distribution.New(db,
		distribution.WithLogger(logger),
		distribution.WithNotifier(s.Notifier),
		distribution.WithAcknowledgmentDueDays(cfg.Acknowledgment.DueDays),
	)
	s.Folders = folder.New(db, folder.WithLogger(logger))
	s.Evidence = evidence.New(db,
		evidence.WithLogger(logger),
		evidence.WithTables(tables),
		evidence.WithMinConfidence(cfg.Evidence.MinConfidence),
	)

	if err := s.initSearch(); err != nil {
		_ = s.Close()
		return nil, err
	}
	if err := s.initStorage(); err != nil {
		_ = s.Close()
		return nil, err
	}
	if s.Storage != nil {
		if err := s.initReindexer(tables); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *Server) initNotifier(ctx context.Context) error {
	n := s.Config.Notifications
	if n == nil {
		s.Notifier = notifications.NewLogNotifier(s.Logger)
		return nil
	}
	pub, err := notifications.NewPublisher(notifications.PublisherConfig{
		Brokers: n.Brokers,
		Topic:   n.Topic,
	})
	if err != nil {
		return fmt.Errorf("failed to create notification publisher: %w", err)
	}
	if err := pub.EnsureTopic(ctx, 1, 1); err != nil {
		s.Logger.Warn("could not ensure notification topic", "topic", n.Topic, "error", err)
	}
	s.Notifier = notifications.Multi{pub, notifications.NewLogNotifier(s.Logger)}
	s.closers = append(s.closers, func() error {
		pub.Close()
		return nil
	})
	s.Logger.Info("initialized notifications", "brokers", n.Brokers, "topic", n.Topic)
	return nil
}

func (s *Server) evidenceTables(fs afero.Fs) (*evidence.Tables, error) {
	path := s.Config.Evidence.TablesFile
	if path == "" {
		return evidence.DefaultTables(), nil
	}
	t, err := evidence.LoadTablesFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load evidence tables: %w", err)
	}
	s.Logger.Info("loaded evidence tables", "path", path, "elements", len(t.Elements()))
	return t, nil
}

func (s *Server) initSearch() error {
	if s.Config.Search == nil || s.Config.Search.Bleve == nil {
		return nil
	}
	b := s.Config.Search.Bleve
	provider, err := bleveadapter.NewAdapter(&bleveadapter.Config{
		IndexPath: b.IndexPath,
		InMemory:  b.InMemory,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize bleve adapter: %w", err)
	}
	s.SearchProvider = provider
	s.closers = append(s.closers, provider.Close)
	s.Logger.Info("initialized search provider", "provider", provider.Name())
	return nil
}

func (s *Server) initStorage() error {
	st := s.Config.Storage
	if st == nil {
		return nil
	}
	switch {
	case st.Local != nil:
		fs, err := local.NewDir(st.Local.Dir, local.WithLogger(s.Logger))
		if err != nil {
			return fmt.Errorf("failed to initialize local storage: %w", err)
		}
		s.Storage = fs
	case st.S3 != nil:
		a, err := s3adapter.NewAdapter(st.S3, s.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize s3 storage: %w", err)
		}
		s.Storage = a
	}
	if s.Storage != nil {
		s.Logger.Info("initialized file storage", "backend", s.Storage.Name())
	}
	return nil
}

func (s *Server) initReindexer(tables *evidence.Tables) error {
	rc := s.Config.Reindex

	extractors := extraction.Chain{extraction.PlainText{}}
	if rc.Tika != nil {
		timeout, err := time.ParseDuration(rc.Tika.Timeout)
		if err != nil {
			return fmt.Errorf("invalid tika timeout: %w", err)
		}
		extractors = append(extractors, extraction.NewTikaExtractor(extraction.TikaConfig{
			BaseURL:    rc.Tika.URL,
			Timeout:    timeout,
			MaxRetries: uint64(rc.Tika.MaxRetries),
			Logger:     s.Logger,
		}))
	}

	delay, err := rc.DelayDuration()
	if err != nil {
		return fmt.Errorf("invalid reindex delay: %w", err)
	}
	pipeline := commands.NewReindexPipeline(commands.ReindexConfig{
		DB:             s.DB,
		Storage:        s.Storage,
		Extractor:      extractors,
		Search:         s.SearchProvider,
		Tables:         tables,
		MaxFileSize:    rc.MaxFileSize,
		MaxContentSize: rc.MaxContentSize,
		MaxTags:        rc.MaxTags,
		Logger:         s.Logger,
	})
	s.Reindexer, err = indexer.NewReindexer(s.DB, pipeline,
		indexer.WithLogger(s.Logger),
		indexer.WithDelay(delay),
	)
	return err
}

// Close releases the search index and the notification client.
func (s *Server) Close() error {
	if stats, err := database.GetPoolStats(s.DB); err == nil {
		s.Logger.Debug("database pool",
			"open", stats.OpenConnections,
			"in_use", stats.InUse,
			"wait_count", stats.WaitCount,
			"wait_duration", stats.WaitDuration,
		)
	}

	var result error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	s.closers = nil
	return result
}
