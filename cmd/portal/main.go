package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/spf13/pflag"

	"github.com/aussiebroadwan/portal/internal/portal/app"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatalf("portal: %v", err)
	}
}

func run(args []string) error {
	var (
		configPath string
		addr       string
		dbPath     string
		logLevel   string
		version    bool
	)

	flagSet := pflag.NewFlagSet("portal", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to a YAML config file (default: $PORTAL_CONFIG_FILE)")
	flagSet.StringVar(&addr, "addr", "", "listen address, overrides the config")
	flagSet.StringVar(&dbPath, "db-path", "", "SQLite database file, overrides the config")
	flagSet.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	flagSet.BoolVar(&version, "version", false, "print the version and exit")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if version {
		fmt.Println(app.BuildVersion)
		return nil
	}

	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if flagSet.Changed("addr") {
		cfg.Addr = addr
	}
	if flagSet.Changed("db-path") {
		cfg.DatabaseFile = dbPath
	}
	if flagSet.Changed("log-level") {
		cfg.LogLevel = logLevel
	}

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return application.Run()
}
