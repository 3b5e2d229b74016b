// cmd/atcsim/run.go
// Copyright(c) 2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/felix-b/atc/sim"
	"github.com/felix-b/atc/world"

	"github.com/spf13/cobra"
)

var (
	runDuration time.Duration
	runServer   bool
)

var runCmd = &cobra.Command{
	Use:   "run <scenario.yaml>",
	Short: "Run a scenario in real time and print what is said",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lg := newLogger(runServer)
		defer lg.CatchAndReportCrash()

		_, worlds, release, err := loadScenario(args[0], lg)
		if err != nil {
			return err
		}
		defer release()

		var domains []*sim.Domain
		var subs []*sim.Subscription[world.Event]
		for _, w := range worlds {
			domains = append(domains, w.Domain())
			subs = append(subs, w.Events().Subscribe())
		}
		h := sim.NewHost(lg, domains...)
		fmt.Fprintf(cmd.OutOrStdout(), "run %s\n", h.RunID)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if runDuration > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, runDuration)
			defer cancel()
		}

		h.Start(ctx)

		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				h.Shutdown(5 * time.Second)
				printEvents(cmd.OutOrStdout(), worlds, subs)
				return h.Err()
			case <-ticker.C:
				printEvents(cmd.OutOrStdout(), worlds, subs)
			}
		}
	},
}

func init() {
	runCmd.Flags().DurationVar(&runDuration, "for", 0, "wall-clock time to run for; zero runs until interrupted")
	runCmd.Flags().BoolVar(&runServer, "server", false, "keep server-sized logs")
	rootCmd.AddCommand(runCmd)
}

func printEvents(w io.Writer, worlds []*world.World, subs []*sim.Subscription[world.Event]) {
	for i, sub := range subs {
		name := worlds[i].Domain().Name()
		for _, e := range sub.Get() {
			switch e.Kind {
			case world.EventTransmission:
				fmt.Fprintf(w, "%s %-10s %s %-16s %s\n", e.Time.Format(time.TimeOnly), name, e.Frequency,
					e.Callsign, e.Text)
			case world.EventMoved:
				fmt.Fprintf(w, "%s %-10s %-7s %-16s %s\n", e.Time.Format(time.TimeOnly), name, "", e.Callsign,
					e.Phase)
			}
		}
	}
}
