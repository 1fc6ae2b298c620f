package plugins

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"

	"github.com/appdock/appdock/hub/config"
	"github.com/appdock/appdock/hub/launcher"
	"github.com/appdock/appdock/hub/registry"
	"github.com/appdock/appdock/hub/routes"
	"github.com/appdock/appdock/hub/store"
)

// orderedPlugin records the order in which hooks complete.
type orderedPlugin struct {
	name     string
	sequence *[]string
	err      error
	fragment string
}

func (p *orderedPlugin) ConfigureServer(router *mux.Router, cfg *config.Config, table *routes.State) error {
	*p.sequence = append(*p.sequence, p.name)
	return p.err
}

func (p *orderedPlugin) Template(cfg *config.Config) string {
	return p.fragment
}

// templateOnlyPlugin has no server-configuration capability.
type templateOnlyPlugin struct {
	fragment string
}

func (p *templateOnlyPlugin) Template(cfg *config.Config) string {
	return p.fragment
}

func TestApplyRunsInInstallOrder(t *testing.T) {
	var sequence []string
	reg := registry.New()
	reg.Register("one", &orderedPlugin{name: "one", sequence: &sequence})
	reg.Register("two", &orderedPlugin{name: "two", sequence: &sequence})
	reg.Register("three", &orderedPlugin{name: "three", sequence: &sequence})

	runner := NewRunner(reg, "", nil)
	recs := []store.Plugin{
		{Identifier: "a/one", ModuleName: "one"},
		{Identifier: "b/two", ModuleName: "two"},
		{Identifier: "c/three", ModuleName: "three"},
	}

	results := runner.Apply(recs, mux.NewRouter(), config.Default(), routes.NewState())
	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Err != nil {
			t.Errorf("Plugin %s failed: %v", r.Identifier, r.Err)
		}
	}

	expected := []string{"one", "two", "three"}
	for i := range expected {
		if sequence[i] != expected[i] {
			t.Fatalf("Hooks ran out of order: %v", sequence)
		}
	}
}

func TestApplyFailingPluginDoesNotBlockOthers(t *testing.T) {
	var sequence []string
	reg := registry.New()
	reg.Register("one", &orderedPlugin{name: "one", sequence: &sequence, err: errors.New("boom")})
	reg.Register("two", &orderedPlugin{name: "two", sequence: &sequence})

	runner := NewRunner(reg, "", nil)
	recs := []store.Plugin{
		{Identifier: "a/one", ModuleName: "one"},
		{Identifier: "b/two", ModuleName: "two"},
	}

	results := runner.Apply(recs, mux.NewRouter(), config.Default(), routes.NewState())
	if results[0].Err == nil {
		t.Error("Expected error for failing plugin")
	}
	if results[1].Err != nil {
		t.Errorf("Expected second plugin to succeed, got %v", results[1].Err)
	}
	if len(sequence) != 2 {
		t.Errorf("Expected both hooks to run, got %v", sequence)
	}
}

func TestApplyUnresolvedPluginIsLoadError(t *testing.T) {
	runner := NewRunner(registry.New(), "", nil)
	results := runner.Apply(
		[]store.Plugin{{Identifier: "a/ghost", ModuleName: "ghost"}},
		mux.NewRouter(), config.Default(), routes.NewState())

	var loadErr *launcher.LoadError
	if !errors.As(results[0].Err, &loadErr) {
		t.Fatalf("Expected LoadError, got %v", results[0].Err)
	}
}

func TestApplyPluginWithoutCapabilitySucceeds(t *testing.T) {
	reg := registry.New()
	reg.Register("quiet", &templateOnlyPlugin{fragment: "<p>quiet</p>"})

	runner := NewRunner(reg, "", nil)
	results := runner.Apply(
		[]store.Plugin{{Identifier: "a/quiet", ModuleName: "quiet"}},
		mux.NewRouter(), config.Default(), routes.NewState())

	if results[0].Err != nil {
		t.Errorf("Expected success for capability-less plugin, got %v", results[0].Err)
	}
}

func TestApplyResolvesInstalledWasmPlugin(t *testing.T) {
	dataDir := t.TempDir()
	pluginDir := filepath.Join(dataDir, "plugins", "carol__banner")
	if err := os.MkdirAll(pluginDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(pluginDir, "plugin.wasm"), templateModule, 0644); err != nil {
		t.Fatal(err)
	}

	// Empty registry: the record must resolve from the install directory.
	runner := NewRunner(registry.New(), dataDir, nil)
	recs := []store.Plugin{{Identifier: "carol/banner", ModuleName: "banner"}}

	results := runner.Apply(recs, mux.NewRouter(), config.Default(), routes.NewState())
	if results[0].Err != nil {
		t.Fatalf("Expected installed plugin to apply, got %v", results[0].Err)
	}

	fragments := runner.TemplateFragments(recs, config.Default())
	if len(fragments) != 1 || fragments[0] != "<p>wasm</p>" {
		t.Errorf("Expected wasm fragment from installed plugin, got %v", fragments)
	}
}

func TestTemplateFragmentsInOrder(t *testing.T) {
	var sequence []string
	reg := registry.New()
	reg.Register("one", &orderedPlugin{name: "one", sequence: &sequence, fragment: "<p>one</p>"})
	reg.Register("quiet", &templateOnlyPlugin{fragment: "<p>quiet</p>"})

	runner := NewRunner(reg, "", nil)
	recs := []store.Plugin{
		{Identifier: "a/one", ModuleName: "one"},
		{Identifier: "b/missing", ModuleName: "missing"},
		{Identifier: "c/quiet", ModuleName: "quiet"},
	}

	fragments := runner.TemplateFragments(recs, config.Default())
	if len(fragments) != 2 {
		t.Fatalf("Expected 2 fragments, got %d", len(fragments))
	}
	if fragments[0] != "<p>one</p>" || fragments[1] != "<p>quiet</p>" {
		t.Errorf("Fragments out of order: %v", fragments)
	}
}
