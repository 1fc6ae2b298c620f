package proxy

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
)

// isWebSocketUpgrade reports whether the request asks to switch to the
// WebSocket protocol.
func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// Intercept wraps a handler so that WebSocket upgrades on any path are
// tunneled by the dispatcher while plain requests fall through. The
// orchestrator attaches this to the bound listener as its final startup
// step.
func (d *Dispatcher) Intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isWebSocketUpgrade(r) {
			d.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// tunnel forwards a WebSocket upgrade to the owning backend as a raw byte
// tunnel. Upgrades whose path matches an application route follow the same
// rewrite rules as plain requests; anything else goes to the default
// redirect port.
func (d *Dispatcher) tunnel(w http.ResponseWriter, r *http.Request, traceID string) {
	targetPath := r.URL.Path
	port := d.defaultPort

	if kind, name, rest, ok := splitTarget(r.URL.Path); ok {
		appPort, found := d.table.PortFor(name)
		if !found {
			http.Error(w, "No backend for application "+name, http.StatusNotFound)
			d.logger.Info("Unknown application for upgrade", "trace", traceID, "app", name, "status", 404)
			return
		}
		port = appPort
		targetPath = backendPath(kind, rest)
	}

	if port <= 0 {
		http.Error(w, "Not Found", http.StatusNotFound)
		d.logger.Info("No default port for upgrade", "trace", traceID, "path", r.URL.Path, "status", 404)
		return
	}

	targetHost := "localhost:" + strconv.Itoa(port)
	if r.URL.RawQuery != "" {
		targetPath += "?" + r.URL.RawQuery
	}

	targetConn, err := net.Dial("tcp", targetHost)
	if err != nil {
		http.Error(w, "Backend unreachable", http.StatusBadGateway)
		d.logger.Error("Upgrade target unreachable", "trace", traceID, "target", targetHost, "error", err)
		return
	}

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		targetConn.Close()
		http.Error(w, "WebSocket not supported", http.StatusInternalServerError)
		return
	}
	clientConn, clientBuf, err := hijacker.Hijack()
	if err != nil {
		targetConn.Close()
		http.Error(w, "Failed to hijack connection", http.StatusInternalServerError)
		return
	}

	// Replay the upgrade request against the backend with the rewritten
	// path, then splice the two connections together.
	var upgradeReq strings.Builder
	fmt.Fprintf(&upgradeReq, "%s %s HTTP/1.1\r\n", r.Method, targetPath)
	fmt.Fprintf(&upgradeReq, "Host: %s\r\n", targetHost)
	for key, values := range r.Header {
		if key == "Host" {
			continue
		}
		for _, value := range values {
			fmt.Fprintf(&upgradeReq, "%s: %s\r\n", key, value)
		}
	}
	upgradeReq.WriteString("\r\n")

	if _, err := targetConn.Write([]byte(upgradeReq.String())); err != nil {
		clientConn.Close()
		targetConn.Close()
		d.logger.Error("Failed to replay upgrade", "trace", traceID, "target", targetHost, "error", err)
		return
	}

	d.logger.Info("Tunneling WebSocket", "trace", traceID, "path", r.URL.Path, "target", targetHost+targetPath)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		io.Copy(clientConn, targetConn)
		if tc, ok := clientConn.(*net.TCPConn); ok {
			tc.CloseWrite()
		}
	}()
	go func() {
		defer wg.Done()
		if clientBuf.Reader.Buffered() > 0 {
			io.CopyN(targetConn, clientBuf, int64(clientBuf.Reader.Buffered()))
		}
		io.Copy(targetConn, clientConn)
		if tc, ok := targetConn.(*net.TCPConn); ok {
			tc.CloseWrite()
		}
	}()

	wg.Wait()
	clientConn.Close()
	targetConn.Close()
}
