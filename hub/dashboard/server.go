// Package dashboard owns the shared public server: the status page, the
// mount points for the reverse-proxy dispatcher, and the router plugins
// customize during startup.
package dashboard

import (
	"html/template"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/mux"

	"github.com/appdock/appdock/hub/config"
	"github.com/appdock/appdock/hub/routes"
	"github.com/appdock/appdock/hub/store"
)

var statusTemplate = template.Must(template.New("status").Parse(`<!DOCTYPE html>
<html>
<head><title>appdock</title></head>
<body>
<h1>Installed applications</h1>
<ul>
{{range .Apps}}{{if .Running}}<li><a href="{{.Href}}">{{.Display}}</a></li>
{{else}}<li>{{.Display}} (unavailable)</li>
{{end}}{{end}}</ul>
{{range .Fragments}}{{.}}
{{end}}</body>
</html>
`))

type appLink struct {
	Display string
	Href    string
	Running bool
}

type statusView struct {
	Apps      []appLink
	Fragments []template.HTML
}

// Server is the shared dashboard server. Its router is handed to plugins
// before applications start; the status page reads the application list
// and the route table at render time.
type Server struct {
	router *mux.Router
	cfg    *config.Config
	table  *routes.State
	logger *slog.Logger

	mu        sync.RWMutex
	apps      []store.Application
	fragments func() []string
}

// NewServer creates the dashboard server with the status page registered
// at the root.
func NewServer(cfg *config.Config, table *routes.State, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		router: mux.NewRouter(),
		cfg:    cfg,
		table:  table,
		logger: logger.With("component", "Dashboard"),
	}
	s.router.HandleFunc("/", s.handleStatus).Methods("GET")
	return s
}

// Router exposes the shared router for plugin customization and for the
// orchestrator to serve.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Mount attaches the dispatcher under the application path prefixes.
func (s *Server) Mount(dispatcher http.Handler) {
	s.router.PathPrefix("/apps/").Handler(dispatcher)
	s.router.PathPrefix("/public/").Handler(dispatcher)
}

// SetApplications records the installed applications in config-store
// order. Called once by the orchestrator before the listener binds.
func (s *Server) SetApplications(apps []store.Application) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apps = apps
}

// SetFragments registers the source of plugin status-page contributions.
func (s *Server) SetFragments(fn func() []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fragments = fn
}

// handleStatus renders the status page: one entry per installed
// application in store order, linking only those with a registered route,
// followed by the plugin fragments.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	apps := s.apps
	fragmentsFn := s.fragments
	s.mu.RUnlock()

	view := statusView{}
	for _, app := range apps {
		name := app.RouteName()
		_, running := s.table.PortFor(name)
		display := app.DisplayName
		if display == "" {
			display = name
		}
		view.Apps = append(view.Apps, appLink{
			Display: display,
			Href:    "/apps/" + name + "/",
			Running: running,
		})
	}
	if fragmentsFn != nil {
		for _, fragment := range fragmentsFn() {
			view.Fragments = append(view.Fragments, template.HTML(fragment))
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := statusTemplate.Execute(w, view); err != nil {
		s.logger.Error("Failed to render status page", "error", err)
	}
}
