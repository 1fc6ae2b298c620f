package orchestrator

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"path"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"github.com/appdock/appdock/hub/config"
	"github.com/appdock/appdock/hub/launcher"
	"github.com/appdock/appdock/hub/plugins"
	"github.com/appdock/appdock/hub/registry"
	"github.com/appdock/appdock/hub/routes"
	"github.com/appdock/appdock/hub/store"
)

// testApp starts a real loopback HTTP server on the assigned port and
// identifies itself in every response.
type testApp struct {
	name string
}

func (a *testApp) Start(ctx context.Context, opts launcher.StartOptions) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", opts.Port))
	if err != nil {
		return err
	}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "%s:%s", a.name, r.URL.Path)
	})
	go http.Serve(ln, handler)
	return nil
}

// bannerPlugin registers an extra route on the shared server and
// contributes a status-page fragment.
type bannerPlugin struct{}

func (p *bannerPlugin) ConfigureServer(router *mux.Router, cfg *config.Config, table *routes.State) error {
	router.HandleFunc("/banner", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("banner route"))
	})
	return nil
}

func (p *bannerPlugin) Template(cfg *config.Config) string {
	return "<p>banner fragment</p>"
}

var _ plugins.ServerConfigurable = (*bannerPlugin)(nil)
var _ plugins.TemplateContributing = (*bannerPlugin)(nil)

// freePortBase finds a port base unlikely to collide in the test
// environment.
func freePortBase(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatal(err)
	}
	base := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return base
}

func setupStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(path.Join(t.TempDir(), "appdock.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestOrchestrator(t *testing.T, s *store.Store, reg *registry.Registry) *Orchestrator {
	t.Helper()
	hubCfg := config.Default()
	hubCfg.PortBase = freePortBase(t)
	o, err := New(Config{
		Hub:        hubCfg,
		Store:      s,
		Registry:   reg,
		ListenAddr: "localhost:0",
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(func() { o.Shutdown(context.Background()) })
	return o
}

func httpGet(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, string(body)
}

func TestStartupEndToEnd(t *testing.T) {
	s := setupStore(t)
	if err := s.InstallApplication(store.Application{Identifier: "alice/calendar", ModuleName: "calendar", DisplayName: "Calendar"}); err != nil {
		t.Fatal(err)
	}
	if err := s.InstallApplication(store.Application{Identifier: "bob/files", ModuleName: "files", DisplayName: "Files"}); err != nil {
		t.Fatal(err)
	}
	if err := s.AddPlugin(store.Plugin{Identifier: "carol/banner", ModuleName: "banner"}); err != nil {
		t.Fatal(err)
	}

	reg := registry.New()
	reg.Register("calendar", &testApp{name: "calendar"})
	reg.Register("files", &testApp{name: "files"})
	reg.Register("banner", &bannerPlugin{})

	o := newTestOrchestrator(t, s, reg)
	report, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if report.FailureCount() != 0 {
		t.Fatalf("Expected no startup failures, got report %+v", report)
	}
	if o.Phase() != PhaseProxyActive {
		t.Fatalf("Expected phase ProxyActive, got %s", o.Phase())
	}

	// Consecutive port assignment in install order.
	calPort, ok := o.Routes().PortFor("calendar")
	if !ok {
		t.Fatal("Expected route for calendar")
	}
	filesPort, ok := o.Routes().PortFor("files")
	if !ok {
		t.Fatal("Expected route for files")
	}
	if filesPort != calPort+1 {
		t.Errorf("Expected consecutive ports, got calendar=%d files=%d", calPort, filesPort)
	}

	base := "http://" + o.Addr()

	// Proxying rewrites the path for the owning backend.
	status, body := httpGet(t, base+"/apps/files/index.html")
	if status != http.StatusOK || body != "files:/index.html" {
		t.Errorf("Expected files:/index.html with 200, got %d %q", status, body)
	}

	// Unknown application names are a 404.
	status, _ = httpGet(t, base+"/apps/unknown/")
	if status != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown app, got %d", status)
	}

	// Status page lists apps and plugin fragments.
	status, body = httpGet(t, base+"/")
	if status != http.StatusOK {
		t.Fatalf("Expected 200 from status page, got %d", status)
	}
	if !strings.Contains(body, `/apps/calendar/`) {
		t.Errorf("Expected calendar link on status page:\n%s", body)
	}
	if !strings.Contains(body, "<p>banner fragment</p>") {
		t.Errorf("Expected plugin fragment on status page:\n%s", body)
	}

	// The plugin's route registration survived into serving.
	status, body = httpGet(t, base+"/banner")
	if status != http.StatusOK || body != "banner route" {
		t.Errorf("Expected plugin route, got %d %q", status, body)
	}
}

func TestStartupSkipsFailingApplication(t *testing.T) {
	s := setupStore(t)
	if err := s.InstallApplication(store.Application{Identifier: "alice/ghost", ModuleName: "ghost"}); err != nil {
		t.Fatal(err)
	}
	if err := s.InstallApplication(store.Application{Identifier: "bob/files", ModuleName: "files"}); err != nil {
		t.Fatal(err)
	}

	reg := registry.New()
	reg.Register("files", &testApp{name: "files"})

	o := newTestOrchestrator(t, s, reg)
	report, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if len(report.Apps) != 2 {
		t.Fatalf("Expected 2 app results, got %d", len(report.Apps))
	}
	if !report.Apps[0].Failed() {
		t.Error("Expected ghost to fail")
	}
	if report.Apps[1].Failed() {
		t.Errorf("Expected files to start despite earlier failure, got %v", report.Apps[1].Err)
	}

	// The failed application has no route and returns 404.
	base := "http://" + o.Addr()
	status, _ := httpGet(t, base+"/apps/ghost/")
	if status != http.StatusNotFound {
		t.Errorf("Expected 404 for failed app, got %d", status)
	}
	status, body := httpGet(t, base+"/apps/files/data")
	if status != http.StatusOK || body != "files:/data" {
		t.Errorf("Expected files backend to serve, got %d %q", status, body)
	}
}

func TestRunCannotReenter(t *testing.T) {
	s := setupStore(t)
	o := newTestOrchestrator(t, s, registry.New())

	if _, err := o.Run(context.Background()); err != nil {
		t.Fatalf("First Run returned error: %v", err)
	}
	if _, err := o.Run(context.Background()); err == nil {
		t.Fatal("Expected error on second Run")
	}
}
