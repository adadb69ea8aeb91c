// Package store implements attendance and device persistence on Postgres
// (pgvector) and SQLite.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"faceattend/internal/attendance"
	"faceattend/internal/auth"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Options select and configure a backend.
type Options struct {
	Driver         string
	URL            string
	MigrateOnStart bool
}

// Backend is everything the services persist.
type Backend interface {
	attendance.Store
	auth.DeviceStore
	Close() error
}

// Open connects to the configured backend and optionally migrates it.
func Open(ctx context.Context, opts Options) (Backend, error) {
	if opts.Driver == "" {
		opts.Driver = DriverPostgres
	}
	if opts.MigrateOnStart {
		if err := RunMigrations(opts.Driver, opts.URL); err != nil {
			return nil, err
		}
		slog.Info("migrations applied", slog.String("driver", opts.Driver))
	}

	switch opts.Driver {
	case DriverPostgres:
		return NewPostgres(ctx, opts.URL)
	case DriverSQLite:
		return NewSQLite(ctx, opts.URL)
	}
	return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
}
