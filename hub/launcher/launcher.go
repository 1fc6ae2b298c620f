// Package launcher starts application backends and records their assigned
// ports in the route table. Applications are resolved through an explicit
// registry of startable units; installed applications that ship an
// executable are resolved to a subprocess backend.
package launcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/appdock/appdock/hub/ports"
	"github.com/appdock/appdock/hub/registry"
	"github.com/appdock/appdock/hub/routes"
	"github.com/appdock/appdock/hub/store"
)

// StartOptions carries the shared resources handed to an application's
// start capability: the port the backend must listen on and the shared
// database. Subprocess backends receive the database path instead of the
// live handle.
type StartOptions struct {
	Port    int
	DB      *sqlx.DB
	DBPath  string
	DataDir string
}

// Startable is the start capability every application unit must expose.
// Start returns once the backend's own listener is ready to accept
// connections; returning nil signals completion. There is no timeout: a
// hung application stalls the entire startup sequence.
type Startable interface {
	Start(ctx context.Context, opts StartOptions) error
}

// Launcher resolves and starts application backends.
type Launcher struct {
	registry  *registry.Registry
	allocator *ports.Allocator
	table     *routes.State
	db        *sqlx.DB
	dbPath    string
	dataDir   string
	logger    *slog.Logger
}

// Config holds the launcher's collaborators.
type Config struct {
	Registry  *registry.Registry
	Allocator *ports.Allocator
	Table     *routes.State
	DB        *sqlx.DB // Shared database handle passed to in-process units
	DBPath    string   // Shared database path passed to subprocess backends
	DataDir   string   // Root of the managed install directory
	Logger    *slog.Logger
}

// New creates a Launcher.
func New(cfg Config) (*Launcher, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Allocator == nil {
		return nil, fmt.Errorf("port allocator is required")
	}
	if cfg.Table == nil {
		return nil, fmt.Errorf("route table is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{
		registry:  cfg.Registry,
		allocator: cfg.Allocator,
		table:     cfg.Table,
		db:        cfg.DB,
		dbPath:    cfg.DBPath,
		dataDir:   cfg.DataDir,
		logger:    logger.With("component", "Launcher"),
	}, nil
}

// StartApplication resolves the application's code unit, allocates its
// port, invokes the start capability and registers the route once the
// backend reports ready. It returns the assigned port.
func (l *Launcher) StartApplication(ctx context.Context, app store.Application) (int, error) {
	unit, err := l.resolve(app)
	if err != nil {
		return 0, err
	}

	startable, ok := unit.(Startable)
	if !ok {
		return 0, &ContractError{Module: app.ModuleName}
	}

	port := l.allocator.Next()
	l.logger.Info("Starting application", "identifier", app.Identifier, "module", app.ModuleName, "port", port)

	opts := StartOptions{
		Port:    port,
		DB:      l.db,
		DBPath:  l.dbPath,
		DataDir: l.dataDir,
	}
	if err := startable.Start(ctx, opts); err != nil {
		return 0, fmt.Errorf("start %s: %w", app.Identifier, err)
	}

	if err := l.table.Assign(app.RouteName(), port); err != nil {
		return 0, err
	}
	l.logger.Info("Application started", "identifier", app.Identifier, "port", port)
	return port, nil
}

// resolve finds the unit implementing the application. Registry entries
// take precedence; otherwise the managed install directory is searched for
// an executable named after the module.
func (l *Launcher) resolve(app store.Application) (any, error) {
	if unit, ok := l.registry.Lookup(app.ModuleName); ok {
		return unit, nil
	}

	if l.dataDir != "" {
		binPath := l.installedBinPath(app)
		if info, err := os.Stat(binPath); err == nil && !info.IsDir() {
			return &ProcessBackend{
				Module:  app.ModuleName,
				BinPath: binPath,
				Logger:  l.logger,
			}, nil
		}
	}

	return nil, &LoadError{Module: app.ModuleName, Err: os.ErrNotExist}
}

// installedBinPath returns the expected executable location for an
// installed application: <dataDir>/apps/<owner>__<repo>/bin/<module>.
func (l *Launcher) installedBinPath(app store.Application) string {
	dirName := strings.ReplaceAll(app.Identifier, "/", "__")
	return filepath.Join(l.dataDir, "apps", dirName, "bin", app.ModuleName)
}
