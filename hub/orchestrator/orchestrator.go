// Package orchestrator sequences hub startup: plugins are applied to the
// shared server, applications are started one at a time, and only then is
// the public listener bound and the WebSocket interceptor attached.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/appdock/appdock/hub/config"
	"github.com/appdock/appdock/hub/dashboard"
	"github.com/appdock/appdock/hub/launcher"
	"github.com/appdock/appdock/hub/plugins"
	"github.com/appdock/appdock/hub/ports"
	"github.com/appdock/appdock/hub/proxy"
	"github.com/appdock/appdock/hub/registry"
	"github.com/appdock/appdock/hub/routes"
	"github.com/appdock/appdock/hub/store"
)

// Phase is the orchestrator's startup state. Transitions are one-way;
// there is no re-entry and no supervised restart.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePluginsApplying
	PhaseAppsStarting
	PhaseListening
	PhaseProxyActive
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhasePluginsApplying:
		return "PluginsApplying"
	case PhaseAppsStarting:
		return "AppsStarting"
	case PhaseListening:
		return "Listening"
	case PhaseProxyActive:
		return "ProxyActive"
	default:
		return "InvalidPhase"
	}
}

// ItemResult records the startup outcome for one plugin or application.
type ItemResult struct {
	Identifier string
	Err        error
}

// Failed reports whether the item failed to start.
func (r ItemResult) Failed() bool { return r.Err != nil }

// StartupReport aggregates per-item startup outcomes. Failures do not
// abort startup; they are recorded here so the caller can inspect which
// applications are missing from the route table.
type StartupReport struct {
	Plugins []ItemResult
	Apps    []ItemResult
}

// FailureCount returns the number of failed items across both lists.
func (r *StartupReport) FailureCount() int {
	count := 0
	for _, item := range r.Plugins {
		if item.Failed() {
			count++
		}
	}
	for _, item := range r.Apps {
		if item.Failed() {
			count++
		}
	}
	return count
}

// Config holds the orchestrator's collaborators.
type Config struct {
	Hub      *config.Config
	Store    *store.Store
	Registry *registry.Registry
	DB       *sqlx.DB // Shared database handle for in-process applications
	DBPath   string   // Shared database path for subprocess backends
	Logger   *slog.Logger

	// ListenAddr overrides the dashboard listen address. Defaults to
	// ":<DashboardPort>". Tests bind to "localhost:0".
	ListenAddr string
}

// Orchestrator runs the single-pass startup sequence and then serves the
// public endpoint until shutdown.
type Orchestrator struct {
	hubCfg     *config.Config
	store      *store.Store
	table      *routes.State
	launcher   *launcher.Launcher
	runner     *plugins.Runner
	dashboard  *dashboard.Server
	dispatcher *proxy.Dispatcher
	listenAddr string
	logger     *slog.Logger

	mu         sync.Mutex
	phase      Phase
	pluginRecs []store.Plugin
	listener   net.Listener
	server     *http.Server
}

// New wires the hub components together. No application is touched until
// Run is called.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Hub == nil {
		return nil, fmt.Errorf("hub configuration is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("config store is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	table := routes.NewState()
	allocator := ports.NewAllocator(cfg.Hub.PortBase)

	appLauncher, err := launcher.New(launcher.Config{
		Registry:  cfg.Registry,
		Allocator: allocator,
		Table:     table,
		DB:        cfg.DB,
		DBPath:    cfg.DBPath,
		DataDir:   cfg.Hub.DataDir,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	dispatcher := proxy.NewDispatcher(table, cfg.Hub.DefaultPort, logger)
	dash := dashboard.NewServer(cfg.Hub, table, logger)
	dash.Mount(dispatcher)

	listenAddr := cfg.ListenAddr
	if listenAddr == "" {
		listenAddr = fmt.Sprintf(":%d", cfg.Hub.DashboardPort)
	}

	o := &Orchestrator{
		hubCfg:     cfg.Hub,
		store:      cfg.Store,
		table:      table,
		launcher:   appLauncher,
		runner:     plugins.NewRunner(cfg.Registry, cfg.Hub.DataDir, logger),
		dashboard:  dash,
		dispatcher: dispatcher,
		listenAddr: listenAddr,
		logger:     logger.With("component", "Orchestrator"),
		phase:      PhaseIdle,
	}
	dash.SetFragments(o.templateFragments)
	return o, nil
}

// Phase returns the current startup phase.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

func (o *Orchestrator) setPhase(p Phase) {
	o.mu.Lock()
	o.phase = p
	o.mu.Unlock()
	o.logger.Info("Startup phase changed", "phase", p.String())
}

// Routes exposes the route table, read-only once startup completes.
func (o *Orchestrator) Routes() *routes.State {
	return o.table
}

// Addr returns the bound public address, or "" before Listening.
func (o *Orchestrator) Addr() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.listener == nil {
		return ""
	}
	return o.listener.Addr().String()
}

// templateFragments feeds plugin status-page contributions to the
// dashboard, in install order.
func (o *Orchestrator) templateFragments() []string {
	o.mu.Lock()
	recs := o.pluginRecs
	o.mu.Unlock()
	return o.runner.TemplateFragments(recs, o.hubCfg)
}

// Run executes the startup pipeline once: apply plugins in install order,
// start applications in install order, bind the public listener, attach
// the WebSocket interceptor, and serve in the background. Failures along
// the way are logged and recorded in the report; only listener binding
// errors abort the run. Run must not be called twice.
func (o *Orchestrator) Run(ctx context.Context) (*StartupReport, error) {
	o.mu.Lock()
	if o.phase != PhaseIdle {
		o.mu.Unlock()
		return nil, fmt.Errorf("startup already ran (phase %s)", o.phase)
	}
	o.mu.Unlock()

	report := &StartupReport{}

	pluginRecs, err := o.store.ListPlugins()
	if err != nil {
		return nil, fmt.Errorf("list plugins: %w", err)
	}
	o.mu.Lock()
	o.pluginRecs = pluginRecs
	o.mu.Unlock()

	o.setPhase(PhasePluginsApplying)
	for _, result := range o.runner.Apply(pluginRecs, o.dashboard.Router(), o.hubCfg, o.table) {
		report.Plugins = append(report.Plugins, ItemResult{Identifier: result.Identifier, Err: result.Err})
	}

	apps, err := o.store.ListApplications()
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}

	o.setPhase(PhaseAppsStarting)
	for _, app := range apps {
		_, err := o.launcher.StartApplication(ctx, app)
		if err != nil {
			o.logger.Error("Application failed to start", "identifier", app.Identifier, "error", err)
		}
		report.Apps = append(report.Apps, ItemResult{Identifier: app.Identifier, Err: err})
	}

	o.table.Freeze()
	o.dashboard.SetApplications(apps)

	listener, err := net.Listen("tcp", o.listenAddr)
	if err != nil {
		return report, fmt.Errorf("bind %s: %w", o.listenAddr, err)
	}
	o.mu.Lock()
	o.listener = listener
	o.mu.Unlock()
	o.setPhase(PhaseListening)

	handler := o.dispatcher.Intercept(o.dashboard.Router())
	o.mu.Lock()
	o.server = &http.Server{Handler: handler}
	o.mu.Unlock()
	o.setPhase(PhaseProxyActive)

	o.logger.Info("Dashboard listening", "addr", listener.Addr().String(), "apps", o.table.Len(), "failures", report.FailureCount())
	go func() {
		if err := o.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			o.logger.Error("Dashboard server stopped unexpectedly", "error", err)
		}
	}()

	return report, nil
}

// Shutdown gracefully stops the public server. Application backends are
// not supervised and keep running until the process exits.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	server := o.server
	o.mu.Unlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}
