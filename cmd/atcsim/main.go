// cmd/atcsim/main.go
// Copyright(c) 2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// atcsim runs scenarios of pilots and controllers talking on the radio.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/felix-b/atc/log"
	"github.com/felix-b/atc/refdata"
	"github.com/felix-b/atc/world"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	logLevel    string
	logDir      string
	refdataPath string
)

var rootCmd = &cobra.Command{
	Use:           "atcsim",
	Short:         "Simulate radio traffic between pilots and controllers",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "loglevel", envOr("ATCSIM_LOG_LEVEL", "info"),
		"logging level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logDir, "logdir", os.Getenv("ATCSIM_LOG_DIR"), "log file directory")
	rootCmd.PersistentFlags().StringVar(&refdataPath, "refdata", os.Getenv("ATCSIM_REFDATA"),
		"airport reference data, .yaml or .db; defaults to the scenario's own airports")
}

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func main() {
	// A missing .env is fine; the environment and flags still apply.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "atcsim: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(server bool) *log.Logger {
	return log.New(server, logLevel, logDir)
}

// loadRefdata opens the reference data named by --refdata, or returns nil
// so that the scenario's airports are used. The returned function releases
// the provider.
func loadRefdata(lg *log.Logger) (refdata.Provider, func(), error) {
	switch ext := strings.ToLower(filepath.Ext(refdataPath)); {
	case refdataPath == "":
		return nil, func() {}, nil
	case ext == ".yaml" || ext == ".yml":
		p, err := refdata.LoadYAMLProvider(refdataPath)
		return p, func() {}, err
	case ext == ".db" || ext == ".sqlite":
		p, err := refdata.OpenSQLiteProvider(refdataPath, lg)
		if err != nil {
			return nil, nil, err
		}
		return p, func() { p.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("%s: unknown reference data format", refdataPath)
	}
}

func loadScenario(path string, lg *log.Logger) (*world.Scenario, []*world.World, func(), error) {
	s, err := world.LoadScenarioFile(path)
	if err != nil {
		return nil, nil, nil, err
	}
	p, release, err := loadRefdata(lg)
	if err != nil {
		return nil, nil, nil, err
	}

	worlds, err := s.Instantiate(p, lg)
	if err != nil {
		release()
		return nil, nil, nil, err
	}
	return s, worlds, func() {
		for _, w := range worlds {
			w.Close()
		}
		release()
	}, nil
}
