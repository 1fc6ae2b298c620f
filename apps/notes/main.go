// Command notes is a small example backend. The hub launches it with
// -port and -dbPath flags; it serves a note list API and a public page.
package main

import (
	"log"
	"net/http"
	"sync"

	"github.com/appdock/appdock/appkit"
	"github.com/appdock/appdock/appkit/httputils"
)

type note struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

func main() {
	app, err := appkit.Init("0.1.0")
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	var mu sync.Mutex
	notes := []note{
		{ID: 1, Text: "Welcome to notes"},
	}
	nextID := 2

	app.HandleFunc("/api/notes", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch r.Method {
		case http.MethodGet:
			httputils.HandleAPIResponse(w, r, notes, nil, http.StatusOK)
		case http.MethodPost:
			text := r.FormValue("text")
			n := note{ID: nextID, Text: text}
			nextID++
			notes = append(notes, n)
			httputils.HandleAPIResponse(w, r, n, nil, http.StatusOK)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	app.HandleFunc("/public/index.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body><h1>Notes</h1></body></html>"))
	})

	log.Fatal(app.Serve())
}
