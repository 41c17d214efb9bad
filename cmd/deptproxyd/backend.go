package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/byytelope/deptproxy/internal/config"
	"github.com/byytelope/deptproxy/internal/store"
	"github.com/byytelope/deptproxy/internal/store/sqlite"
	"github.com/byytelope/deptproxy/internal/store/supabase"
	"github.com/byytelope/deptproxy/internal/telemetry"
)

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

func openBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Backend, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		s, err := sqlite.Open(cfg.SQLitePath, sqlite.Options{
			SessionSecret: []byte(cfg.SessionSecret),
			SessionTTL:    cfg.SessionTTL,
		})
		if err != nil {
			return nil, err
		}
		if cfg.SeedEmail != "" {
			u, created, err := s.EnsureUser(ctx, cfg.SeedEmail, cfg.SeedPassword)
			if err != nil {
				_ = s.Close()
				return nil, fmt.Errorf("seed user: %w", err)
			}
			if created {
				logger.Info("seed user created", "email", u.Email, "id", u.ID)
			}
		}
		return s, nil

	case config.BackendSupabase:
		c, err := supabase.New(cfg.SupabaseURL, cfg.SupabaseAnonKey,
			supabase.WithHTTPClient(&http.Client{Transport: telemetry.Transport(http.DefaultTransport)}),
		)
		if err != nil {
			return nil, err
		}
		if !cfg.StoreConfigured() {
			logger.Warn("SUPABASE_URL or SUPABASE_ANON_KEY not set; store calls will fail")
		}
		return c, nil

	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
