// Package plugins applies extension units to the shared dashboard server.
// Plugins differ from applications: they customize the hub process itself
// instead of running as independent backends, so they receive the live
// router, the full configuration and the route table.
package plugins

import (
	"github.com/gorilla/mux"

	"github.com/appdock/appdock/hub/config"
	"github.com/appdock/appdock/hub/routes"
)

// ServerConfigurable is the optional capability letting a plugin register
// additional routes or middleware on the shared server. It runs once per
// plugin, before any application is started.
type ServerConfigurable interface {
	ConfigureServer(router *mux.Router, cfg *config.Config, table *routes.State) error
}

// TemplateContributing is the optional capability letting a plugin
// contribute a markup fragment to the status page body.
type TemplateContributing interface {
	Template(cfg *config.Config) string
}
