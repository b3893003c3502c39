// Command dispatchsim replays a day of taxi trip records over a road
// network and scores a fleet-manager policy.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "dispatchsim",
		Short:         "Discrete-event simulator for a ride-hailing fleet on a real street network",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newServeCmd())

	if err := root.Execute(); err != nil {
		slog.Error("dispatchsim failed", "err", err)
		os.Exit(1)
	}
}

func envString(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
