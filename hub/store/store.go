// Package store persists the list of installed applications and plugins.
// The hub core only ever reads these records; the CLI install/uninstall
// verbs are the sole writers.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Application describes an installed application. Identifier follows the
// <owner>/<repo> convention; ModuleName is the loadable code unit.
type Application struct {
	Identifier  string `db:"identifier"`
	ModuleName  string `db:"module_name"`
	DisplayName string `db:"display_name"`
	Version     string `db:"version"`
	Description string `db:"description"`
	Position    int    `db:"position"`
}

// RouteName returns the name the application is addressed by under /apps/
// and /public/: the repository component of the identifier.
func (a Application) RouteName() string {
	if idx := strings.LastIndex(a.Identifier, "/"); idx >= 0 {
		return a.Identifier[idx+1:]
	}
	return a.Identifier
}

// Plugin describes an installed plugin. Plugins customize the shared
// dashboard server instead of running as independent backends.
type Plugin struct {
	Identifier  string `db:"identifier"`
	ModuleName  string `db:"module_name"`
	DisplayName string `db:"display_name"`
	Version     string `db:"version"`
	Description string `db:"description"`
	Position    int    `db:"position"`
}

// RouteName returns the repository component of the plugin identifier.
func (p Plugin) RouteName() string {
	if idx := strings.LastIndex(p.Identifier, "/"); idx >= 0 {
		return p.Identifier[idx+1:]
	}
	return p.Identifier
}

const schema = `
CREATE TABLE IF NOT EXISTS installed_apps_v1 (
	identifier STRING PRIMARY KEY NOT NULL,
	module_name STRING NOT NULL,
	display_name STRING NOT NULL,
	version STRING NOT NULL,
	description STRING NOT NULL,
	position INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS installed_plugins_v1 (
	identifier STRING PRIMARY KEY NOT NULL,
	module_name STRING NOT NULL,
	display_name STRING NOT NULL,
	version STRING NOT NULL,
	description STRING NOT NULL,
	position INTEGER NOT NULL
);
`

// Store wraps the SQLite database holding the installed records.
type Store struct {
	db *sqlx.DB
}

// Open connects to the store database at the given path, creating the
// schema if needed.
func Open(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init store schema: %w", err)
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing database connection, creating the schema if
// needed. Used by tests and by callers that manage the connection
// themselves.
func NewWithDB(db *sqlx.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("init store schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ListApplications returns the installed applications in install order.
func (s *Store) ListApplications() ([]Application, error) {
	var apps []Application
	err := s.db.Select(&apps,
		"SELECT * FROM installed_apps_v1 ORDER BY position ASC")
	return apps, err
}

// GetApplication fetches a single application record, or nil if the
// identifier is not installed.
func (s *Store) GetApplication(identifier string) (*Application, error) {
	var app Application
	err := s.db.Get(&app,
		"SELECT * FROM installed_apps_v1 WHERE identifier = $1", identifier)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &app, nil
}

// InstallApplication records a new application at the end of the install
// order. Installing an already-installed identifier is an error.
func (s *Store) InstallApplication(app Application) error {
	position, err := s.nextPosition("installed_apps_v1")
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO installed_apps_v1 (identifier, module_name, display_name, version, description, position)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		app.Identifier, app.ModuleName, app.DisplayName, app.Version, app.Description, position)
	return err
}

// UninstallApplication removes an application record.
func (s *Store) UninstallApplication(identifier string) error {
	result, err := s.db.Exec(
		"DELETE FROM installed_apps_v1 WHERE identifier = $1", identifier)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("application %q is not installed", identifier)
	}
	return nil
}

// ListPlugins returns the installed plugins in install order.
func (s *Store) ListPlugins() ([]Plugin, error) {
	var plugins []Plugin
	err := s.db.Select(&plugins,
		"SELECT * FROM installed_plugins_v1 ORDER BY position ASC")
	return plugins, err
}

// AddPlugin records a new plugin at the end of the install order.
func (s *Store) AddPlugin(plugin Plugin) error {
	position, err := s.nextPosition("installed_plugins_v1")
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO installed_plugins_v1 (identifier, module_name, display_name, version, description, position)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		plugin.Identifier, plugin.ModuleName, plugin.DisplayName, plugin.Version, plugin.Description, position)
	return err
}

// RemovePlugin removes a plugin record.
func (s *Store) RemovePlugin(identifier string) error {
	result, err := s.db.Exec(
		"DELETE FROM installed_plugins_v1 WHERE identifier = $1", identifier)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("plugin %q is not installed", identifier)
	}
	return nil
}

func (s *Store) nextPosition(table string) (int, error) {
	var position int
	err := s.db.Get(&position,
		"SELECT COALESCE(MAX(position), 0) + 1 FROM "+table)
	return position, err
}
