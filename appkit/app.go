// Package appkit is the harness application backends build on. The hub
// starts a backend with -port and -dbPath flags; appkit parses them, opens
// the shared database and serves the backend's routes on the assigned
// loopback port.
package appkit

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

var (
	ContextApplicationKey = "application"
	ContextDatabaseKey    = "database"
)

// Application holds a backend's runtime state: its version, the port
// assigned by the hub and the shared database handle.
type Application struct {
	version string
	port    int
	db      *sqlx.DB
	mux     *http.ServeMux
}

// NewApplication creates an Application serving on the given port. The
// status endpoint used by the hub is registered automatically.
func NewApplication(version string, port int, db *sqlx.DB) *Application {
	app := &Application{
		version: version,
		port:    port,
		db:      db,
		mux:     http.NewServeMux(),
	}
	app.mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"status":  "ok",
			"version": app.version,
		})
	})
	return app
}

// HandleFunc registers a handler on the backend's mux.
func (app *Application) HandleFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	app.mux.HandleFunc(pattern, handler)
}

// Handle registers a handler on the backend's mux.
func (app *Application) Handle(pattern string, handler http.Handler) {
	app.mux.Handle(pattern, handler)
}

// Handler returns the backend's root handler. Useful for tests.
func (app *Application) Handler() http.Handler {
	return app.mux
}

// DB returns the shared database handle, or nil if none was configured.
func (app *Application) DB() *sqlx.DB {
	return app.db
}

// Port returns the port assigned by the hub.
func (app *Application) Port() int {
	return app.port
}

// Serve binds the backend listener and blocks. The application and
// database are placed in each request's context.
func (app *Application) Serve() error {
	listenAddr := fmt.Sprintf(":%d", app.port)
	contextFn := func(net.Listener) context.Context {
		ctx := context.Background()
		ctx = context.WithValue(ctx, ContextApplicationKey, app)
		ctx = context.WithValue(ctx, ContextDatabaseKey, app.db)
		return ctx
	}
	server := &http.Server{Addr: listenAddr, Handler: app.mux, BaseContext: contextFn}
	return server.ListenAndServe()
}
