package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultPortEnv names the environment variable consulted when a
	// WebSocket upgrade does not match an application route.
	DefaultPortEnv = "APPDOCK_DEFAULT_PORT"

	// DataDirEnv overrides the directory holding installed applications
	// and the config store database.
	DataDirEnv = "APPDOCK_DATA_DIR"
)

// Config holds the hub-wide settings. Values come from the optional
// appdock.yml file, with environment variables taking precedence for the
// deployment-specific entries.
type Config struct {
	// DashboardPort is the fixed port the public HTTP listener binds to.
	DashboardPort int `yaml:"dashboard_port"`

	// PortBase is the first port handed to an application backend.
	// Subsequent backends get PortBase+1, PortBase+2, and so on.
	PortBase int `yaml:"port_base"`

	// DataDir holds the install directory tree and the config store.
	DataDir string `yaml:"data_dir"`

	// DefaultPort receives WebSocket upgrades whose path does not name an
	// application. Used for un-namespaced or default-app sockets.
	DefaultPort int `yaml:"default_port"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DashboardPort: 8080,
		PortBase:      18001,
		DataDir:       "/usr/local/etc/appdock",
		DefaultPort:   0,
	}
}

// Load reads a YAML configuration file and applies environment overrides.
// A missing file is not an error; the defaults are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if dir := os.Getenv(DataDirEnv); dir != "" {
		c.DataDir = dir
	}
	if v := os.Getenv(DefaultPortEnv); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.DefaultPort = port
		}
	}
}

// StorePath returns the location of the config store database.
func (c *Config) StorePath() string {
	return filepath.Join(c.DataDir, "appdock.db")
}
