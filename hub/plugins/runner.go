package plugins

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"

	"github.com/appdock/appdock/hub/config"
	"github.com/appdock/appdock/hub/launcher"
	"github.com/appdock/appdock/hub/registry"
	"github.com/appdock/appdock/hub/routes"
	"github.com/appdock/appdock/hub/store"
)

// Result records the outcome of applying one plugin.
type Result struct {
	Identifier string
	Err        error
}

// Runner applies installed plugins to the shared server, strictly in
// install order: one plugin completes before the next is invoked, so
// server customization order is deterministic. The cost is that a hanging
// plugin blocks all subsequent ones and the rest of startup.
type Runner struct {
	registry *registry.Registry
	dataDir  string
	logger   *slog.Logger
}

// NewRunner creates a Runner resolving plugins through the given registry,
// falling back to compiled modules under dataDir for installed plugins.
func NewRunner(reg *registry.Registry, dataDir string, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		registry: reg,
		dataDir:  dataDir,
		logger:   logger.With("component", "PluginRunner"),
	}
}

// resolve finds the unit implementing the plugin. Registry entries take
// precedence; otherwise the managed install directory is searched for a
// compiled WebAssembly module.
func (r *Runner) resolve(rec store.Plugin) (any, bool) {
	if unit, ok := r.registry.Lookup(rec.ModuleName); ok {
		return unit, true
	}
	if r.dataDir != "" {
		wasmPath := r.installedWasmPath(rec)
		if info, err := os.Stat(wasmPath); err == nil && !info.IsDir() {
			return NewWasmTemplatePlugin(wasmPath, r.logger), true
		}
	}
	return nil, false
}

// installedWasmPath returns the expected module location for an installed
// plugin: <dataDir>/plugins/<owner>__<repo>/plugin.wasm.
func (r *Runner) installedWasmPath(rec store.Plugin) string {
	dirName := strings.ReplaceAll(rec.Identifier, "/", "__")
	return filepath.Join(r.dataDir, "plugins", dirName, "plugin.wasm")
}

// Apply runs every plugin's server-configuration capability in order. A
// plugin that cannot be resolved, or whose hook fails, is recorded and
// skipped; later plugins still run. Plugins without the capability are
// applied as an immediate success.
func (r *Runner) Apply(recs []store.Plugin, router *mux.Router, cfg *config.Config, table *routes.State) []Result {
	results := make([]Result, 0, len(recs))
	for _, rec := range recs {
		err := r.applyOne(rec, router, cfg, table)
		if err != nil {
			r.logger.Error("Plugin failed to apply", "identifier", rec.Identifier, "error", err)
		} else {
			r.logger.Info("Plugin applied", "identifier", rec.Identifier)
		}
		results = append(results, Result{Identifier: rec.Identifier, Err: err})
	}
	return results
}

func (r *Runner) applyOne(rec store.Plugin, router *mux.Router, cfg *config.Config, table *routes.State) error {
	unit, ok := r.resolve(rec)
	if !ok {
		return &launcher.LoadError{Module: rec.ModuleName}
	}
	configurable, ok := unit.(ServerConfigurable)
	if !ok {
		// Capability is optional; nothing to do for this plugin.
		return nil
	}
	return configurable.ConfigureServer(router, cfg, table)
}

// TemplateFragments collects the status-page fragments from plugins that
// contribute one, in install order. Unresolvable plugins contribute
// nothing.
func (r *Runner) TemplateFragments(recs []store.Plugin, cfg *config.Config) []string {
	fragments := make([]string, 0, len(recs))
	for _, rec := range recs {
		unit, ok := r.resolve(rec)
		if !ok {
			continue
		}
		contributor, ok := unit.(TemplateContributing)
		if !ok {
			continue
		}
		fragments = append(fragments, contributor.Template(cfg))
	}
	return fragments
}
