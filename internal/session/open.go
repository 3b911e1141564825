package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/sirupsen/logrus"

	"github.com/roach88/docsync/internal/config"
	"github.com/roach88/docsync/internal/idgen"
	"github.com/roach88/docsync/internal/kvstore"
	"github.com/roach88/docsync/internal/mongostore"
	"github.com/roach88/docsync/internal/schema"
	"github.com/roach88/docsync/internal/store"
)

// Open builds a session from configuration: it opens the configured store,
// loads the schema directory and picks the id generator. The session owns
// the store and closes it on Close. Options are applied after the
// configuration, so they win.
func Open(ctx context.Context, cfg config.Config, opts ...Option) (*Session, error) {
	preset := &Session{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(preset)
	}

	sch, err := schema.LoadDir(cfg.Schema.Dir)
	if err != nil {
		return nil, err
	}
	ids, err := idgen.ForFormat(cfg.IDFormat)
	if err != nil {
		return nil, err
	}
	st, err := OpenStore(ctx, cfg, preset.logger)
	if err != nil {
		return nil, err
	}

	all := append([]Option{WithIdentityMap(cfg.IdentityMap), WithIDGenerator(ids)}, opts...)
	s := New(st, sch, all...)
	s.ownsStore = true

	s.logger.Debug("session opened",
		"driver", cfg.Store.Driver, "schema", cfg.Schema.Dir,
		"types", len(sch.Names()), "identity_map", s.registry.Enabled())
	return s, nil
}

// OpenStore opens the backend selected by cfg.Store.Driver.
func OpenStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.DocumentStore, error) {
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		return store.Open(cfg.Store.Path, store.WithLogger(logger))
	case config.DriverBadger:
		return kvstore.Open(kvstore.Config{Path: cfg.Store.Path, Logger: badgerLogger(cfg.Log)})
	case config.DriverMongo:
		return mongostore.Open(ctx, cfg.Store.URI, cfg.Store.Database, logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// badgerLogger mirrors the configured level onto the logrus logger badger
// writes through.
func badgerLogger(lc config.LogConfig) *logrus.Logger {
	l := logrus.New()
	if lc.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	lvl, err := config.ParseLevel(lc.Level)
	if err != nil {
		lvl = slog.LevelWarn
	}
	switch {
	case lvl <= slog.LevelDebug:
		l.SetLevel(logrus.DebugLevel)
	case lvl <= slog.LevelInfo:
		l.SetLevel(logrus.InfoLevel)
	case lvl <= slog.LevelWarn:
		l.SetLevel(logrus.WarnLevel)
	default:
		l.SetLevel(logrus.ErrorLevel)
	}
	return l
}
