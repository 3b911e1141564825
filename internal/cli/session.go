package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/docsync/internal/config"
	"github.com/roach88/docsync/internal/harness"
	"github.com/roach88/docsync/internal/session"
)

// resolveConfig loads --config (or the defaults) and applies the global
// store and session flags on top.
func resolveConfig(opts *RootOptions) (config.Config, error) {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		var err error
		if cfg, err = config.Load(opts.ConfigPath); err != nil {
			return cfg, err
		}
	}

	if opts.DB != "" {
		cfg.Store.Path = opts.DB
	}
	if opts.Driver != "" {
		cfg.Store.Driver = opts.Driver
	}
	if opts.SchemaDir != "" {
		cfg.Schema.Dir = opts.SchemaDir
	}
	if opts.IdentityMap {
		cfg.IdentityMap = true
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// newLogger builds the slog logger commands hand to the session. Logs go
// to w so JSON output on stdout stays clean.
func newLogger(lc config.LogConfig, w io.Writer) *slog.Logger {
	level, err := config.ParseLevel(lc.Level)
	if err != nil {
		level = slog.LevelWarn
	}
	hopts := &slog.HandlerOptions{Level: level}
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

// openSession opens a session from the resolved configuration.
func openSession(ctx context.Context, opts *RootOptions, logOut io.Writer) (*session.Session, error) {
	cfg, err := resolveConfig(opts)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
	}
	s, err := session.Open(ctx, cfg, session.WithLogger(newLogger(cfg.Log, logOut)))
	if err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("open session: %v", err)}
	}
	return s, nil
}

// errorCode maps a session error to a CLI error code.
func errorCode(err error) string {
	if errors.Is(err, session.ErrUnknownType) {
		return ErrCodeBadInput
	}
	switch harness.ErrorKind(err) {
	case "document_not_found", "not_found":
		return ErrCodeDocumentNotFound
	case "index_not_found":
		return ErrCodeIndexNotFound
	case "not_persisted":
		return ErrCodeNotPersisted
	case "invalid_field", "invalid_value", "invalid_path":
		return ErrCodeInvalidField
	default:
		return ErrCodeStore
	}
}
