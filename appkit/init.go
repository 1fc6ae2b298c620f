package appkit

import (
	"flag"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Init parses the flags the hub passes to every backend and returns a
// ready Application. The database is optional: backends run without one
// if -dbPath is not given.
func Init(version string) (*Application, error) {
	dbPath := flag.String("dbPath", "", "Path to the shared SQLite database file")
	port := flag.Int("port", 8080, "Port assigned by the hub")
	flag.Parse()

	var db *sqlx.DB
	if *dbPath != "" {
		var err error
		db, err = sqlx.Connect("sqlite3", *dbPath)
		if err != nil {
			return nil, fmt.Errorf("connect to database %s: %w", *dbPath, err)
		}
	}

	return NewApplication(version, *port, db), nil
}
