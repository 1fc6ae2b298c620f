// Command appdock runs the hub and manages the set of installed
// applications and plugins.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"gopkg.in/yaml.v3"

	"github.com/appdock/appdock/hub/config"
	"github.com/appdock/appdock/hub/orchestrator"
	"github.com/appdock/appdock/hub/registry"
	"github.com/appdock/appdock/hub/store"
)

const usage = `Usage: appdock <command> [options]

Commands:
  start            Start the hub and all installed applications
  install          Install an application: install [-module name] <owner/repo>
  uninstall        Uninstall an application: uninstall <owner/repo>
  add-plugin       Add a plugin: add-plugin [-module name] <owner/repo>
  remove-plugin    Remove a plugin: remove-plugin <owner/repo>
  display-config   Print the active configuration and installed records

Common options:
  -config <path>   Configuration file (default appdock.yml)
`

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "start":
		err = runStart(os.Args[2:], logger)
	case "install":
		err = runInstall(os.Args[2:])
	case "uninstall":
		err = runUninstall(os.Args[2:])
	case "add-plugin":
		err = runAddPlugin(os.Args[2:])
	case "remove-plugin":
		err = runRemovePlugin(os.Args[2:])
	case "display-config":
		err = runDisplayConfig(os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error("Command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

// loadConfig parses the -config flag plus any command-specific flags and
// loads the hub configuration.
func loadConfig(name string, args []string, register func(*flag.FlagSet)) (*config.Config, []string, error) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", "appdock.yml", "Path to the configuration file")
	if register != nil {
		register(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, fs.Args(), nil
}

func openStore(cfg *config.Config) (*store.Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}
	return store.Open(cfg.StorePath())
}

func runStart(args []string, logger *slog.Logger) error {
	cfg, _, err := loadConfig("start", args, nil)
	if err != nil {
		return err
	}

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	sharedDBPath := filepath.Join(cfg.DataDir, "shared.db")
	sharedDB, err := sqlx.Connect("sqlite3", sharedDBPath)
	if err != nil {
		return fmt.Errorf("open shared database %s: %w", sharedDBPath, err)
	}
	defer sharedDB.Close()

	o, err := orchestrator.New(orchestrator.Config{
		Hub:        cfg,
		Store:      s,
		Registry:   registry.New(),
		DB:         sharedDB,
		DBPath:     sharedDBPath,
		Logger:     logger,
		ListenAddr: fmt.Sprintf(":%d", cfg.DashboardPort),
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	report, err := o.Run(ctx)
	if err != nil {
		return err
	}
	for _, p := range report.Plugins {
		if p.Failed() {
			logger.Error("Plugin failed to apply", "plugin", p.Identifier, "error", p.Err)
		}
	}
	for _, a := range report.Apps {
		if a.Failed() {
			logger.Error("Application failed to start", "application", a.Identifier, "error", a.Err)
		}
	}
	logger.Info("Hub is serving",
		"address", o.Addr(),
		"applications", len(report.Apps),
		"plugins", len(report.Plugins),
		"failures", report.FailureCount())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Received shutdown signal", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := o.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown did not complete cleanly", "error", err)
	}
	logger.Info("Hub stopped")
	return nil
}

func runInstall(args []string) error {
	var module, name, version, description string
	cfg, rest, err := loadConfig("install", args, func(fs *flag.FlagSet) {
		fs.StringVar(&module, "module", "", "Module name (defaults to the repository name)")
		fs.StringVar(&name, "name", "", "Display name")
		fs.StringVar(&version, "version", "", "Version")
		fs.StringVar(&description, "description", "", "Description")
	})
	if err != nil {
		return err
	}
	if len(rest) != 1 {
		return fmt.Errorf("install requires exactly one <owner/repo> identifier")
	}

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	app := store.Application{
		Identifier:  rest[0],
		ModuleName:  module,
		DisplayName: name,
		Version:     version,
		Description: description,
	}
	if app.ModuleName == "" {
		app.ModuleName = app.RouteName()
	}
	if app.DisplayName == "" {
		app.DisplayName = app.RouteName()
	}
	if err := s.InstallApplication(app); err != nil {
		return err
	}
	fmt.Printf("Installed %s\n", app.Identifier)
	return nil
}

func runUninstall(args []string) error {
	cfg, rest, err := loadConfig("uninstall", args, nil)
	if err != nil {
		return err
	}
	if len(rest) != 1 {
		return fmt.Errorf("uninstall requires exactly one <owner/repo> identifier")
	}

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.UninstallApplication(rest[0]); err != nil {
		return err
	}
	fmt.Printf("Uninstalled %s\n", rest[0])
	return nil
}

func runAddPlugin(args []string) error {
	var module string
	cfg, rest, err := loadConfig("add-plugin", args, func(fs *flag.FlagSet) {
		fs.StringVar(&module, "module", "", "Module name (defaults to the repository name)")
	})
	if err != nil {
		return err
	}
	if len(rest) != 1 {
		return fmt.Errorf("add-plugin requires exactly one <owner/repo> identifier")
	}

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	p := store.Plugin{Identifier: rest[0], ModuleName: module}
	if p.ModuleName == "" {
		p.ModuleName = p.RouteName()
	}
	if err := s.AddPlugin(p); err != nil {
		return err
	}
	fmt.Printf("Added plugin %s\n", p.Identifier)
	return nil
}

func runRemovePlugin(args []string) error {
	cfg, rest, err := loadConfig("remove-plugin", args, nil)
	if err != nil {
		return err
	}
	if len(rest) != 1 {
		return fmt.Errorf("remove-plugin requires exactly one <owner/repo> identifier")
	}

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.RemovePlugin(rest[0]); err != nil {
		return err
	}
	fmt.Printf("Removed plugin %s\n", rest[0])
	return nil
}

func runDisplayConfig(args []string) error {
	cfg, _, err := loadConfig("display-config", args, nil)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	fmt.Print(string(out))

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	apps, err := s.ListApplications()
	if err != nil {
		return err
	}
	fmt.Println("applications:")
	for _, app := range apps {
		fmt.Printf("  - %s (module %s)\n", app.Identifier, app.ModuleName)
	}

	plugs, err := s.ListPlugins()
	if err != nil {
		return err
	}
	fmt.Println("plugins:")
	for _, p := range plugs {
		fmt.Printf("  - %s (module %s)\n", p.Identifier, p.ModuleName)
	}
	return nil
}
