// Package proxy forwards public HTTP requests and WebSocket upgrades to
// the backend owning the target application, rewriting paths so backends
// see root-relative URLs.
package proxy

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/appdock/appdock/hub/routes"
)

// Dispatcher routes requests by URL path:
//
//	/apps/<name>/<rest>   -> localhost:<port(name)> with path /<rest>
//	/public/<name>/<rest> -> localhost:<port(name)> with path /public/<rest>
//
// It is stateless apart from its read-only reference to the route table.
// Failures are surfaced per request: unknown application names return 404
// without touching the network, transport failures return 500 with the
// error serialized into the body. There is no retry and no buffering
// beyond what request/response streaming requires.
type Dispatcher struct {
	table       *routes.State
	defaultPort int
	transport   *http.Transport
	logger      *slog.Logger
}

// NewDispatcher creates a Dispatcher. defaultPort receives WebSocket
// upgrades whose path does not name an application; zero disables the
// fallback.
func NewDispatcher(table *routes.State, defaultPort int, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	dialer := net.Dialer{
		Timeout:   600 * time.Second,
		KeepAlive: 600 * time.Second,
	}
	return &Dispatcher{
		table:       table,
		defaultPort: defaultPort,
		transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			Dial:                dialer.Dial,
			TLSHandshakeTimeout: 180 * time.Second,
		},
		logger: logger.With("component", "Dispatcher"),
	}
}

// splitTarget parses a request path into its routing parts. kind is "apps"
// or "public"; rest is the remainder after the application name, without a
// leading slash. Routing uses the first two path segments only, so deep
// paths keep their remainder intact.
func splitTarget(path string) (kind, name, rest string, ok bool) {
	trimmed := strings.TrimPrefix(path, "/")
	parts := strings.SplitN(trimmed, "/", 3)
	if len(parts) < 2 || parts[1] == "" {
		return "", "", "", false
	}
	if parts[0] != "apps" && parts[0] != "public" {
		return "", "", "", false
	}
	if len(parts) == 3 {
		rest = parts[2]
	}
	return parts[0], parts[1], rest, true
}

// backendPath computes the path the backend sees. Private requests are
// rewritten to the root; public ones keep their /public prefix so the
// backend can distinguish its unauthenticated surface.
func backendPath(kind, rest string) string {
	if kind == "public" {
		return "/public/" + rest
	}
	return "/" + rest
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()

	if isWebSocketUpgrade(r) {
		d.tunnel(w, r, traceID)
		return
	}

	kind, name, rest, ok := splitTarget(r.URL.Path)
	if !ok {
		http.Error(w, "Not Found", http.StatusNotFound)
		d.logger.Info("No route found", "trace", traceID, "path", r.URL.Path, "status", 404)
		return
	}

	port, ok := d.table.PortFor(name)
	if !ok {
		http.Error(w, "No backend for application "+name, http.StatusNotFound)
		d.logger.Info("Unknown application", "trace", traceID, "app", name, "path", r.URL.Path, "status", 404)
		return
	}

	targetURL := &url.URL{
		Scheme: "http", // Backends are plain HTTP on loopback
		Host:   "localhost:" + strconv.Itoa(port),
	}
	targetPath := backendPath(kind, rest)

	reverseProxy := httputil.NewSingleHostReverseProxy(targetURL)
	reverseProxy.Transport = d.transport
	originalDirector := reverseProxy.Director
	reverseProxy.Director = func(req *http.Request) {
		originalDirector(req)
		req.URL.Path = targetPath
		req.URL.RawPath = ""
		req.Host = targetURL.Host
		req.Header.Set("X-Trace-ID", traceID)
	}
	reverseProxy.ErrorHandler = func(w http.ResponseWriter, req *http.Request, err error) {
		d.logger.Error("Backend request failed", "trace", traceID, "app", name, "target", targetURL.String(), "error", err)
		body, _ := json.Marshal(map[string]string{"error": err.Error()})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write(body)
	}

	d.logger.Info("Proxying request", "trace", traceID, "path", r.URL.Path, "target", targetURL.String()+targetPath)
	reverseProxy.ServeHTTP(w, r)
}
