// cmd/atcsim/check.go
// Copyright(c) 2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/felix-b/atc/refdata"
	"github.com/felix-b/atc/sim"

	"github.com/spf13/cobra"
)

var (
	checkDuration time.Duration
	recordDir     string
)

var replayCheckCmd = &cobra.Command{
	Use:   "replay-check <scenario.yaml>",
	Short: "Run a scenario as fast as possible and check that replaying its history reproduces it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lg := newLogger(false)
		defer lg.CatchAndReportCrash()

		_, worlds, release, err := loadScenario(args[0], lg)
		if err != nil {
			return err
		}
		defer release()

		var errs []error
		for _, w := range worlds {
			d := w.Domain()
			if err := d.RunFor(checkDuration); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", d.Name(), err))
				continue
			}
			if err := d.Verify(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", d.Name(), err))
				continue
			}
			lg.Info("replay verified", slog.String("domain", d.Name()), slog.Uint64("seq", d.Seq()))
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d entries, ok\n", d.Name(), d.Seq())

			if recordDir != "" {
				if err := record(d, recordDir); err != nil {
					errs = append(errs, err)
				}
			}
		}
		return errors.Join(errs...)
	},
}

var compileRefdataCmd = &cobra.Command{
	Use:   "compile-refdata <airports.yaml> <airports.db>",
	Short: "Convert YAML reference data to SQLite",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := refdata.LoadYAMLProvider(args[0])
		if err != nil {
			return err
		}
		if err := refdata.WriteSQLite(context.Background(), args[1], p); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d airports written to %s\n", len(p.Airports()), args[1])
		return nil
	},
}

func init() {
	replayCheckCmd.Flags().DurationVar(&checkDuration, "for", time.Hour, "simulated time to run each domain for")
	replayCheckCmd.Flags().StringVar(&recordDir, "record", "", "directory to write each domain's history to")
	rootCmd.AddCommand(replayCheckCmd)
	rootCmd.AddCommand(compileRefdataCmd)
}

func record(d *sim.Domain, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(dir, d.Name()+".msgpack.zst"))
	if err != nil {
		return err
	}
	if err := sim.NewRecorder(d, sim.WithCompression(true)).Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
