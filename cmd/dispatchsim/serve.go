package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"dispatchsim/config"
	"dispatchsim/server"
)

func newServeCmd() *cobra.Command {
	var (
		configPath  string
		addr        string
		enableAdmin bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a simulation while streaming progress over HTTP and WebSocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Logging)
			slog.SetDefault(logger)

			sim, err := buildSimulator(cfg, logger)
			if err != nil {
				return err
			}

			srv := server.NewServer(sim).WithLogger(logger)
			if enableAdmin {
				srv = srv.WithAdminEnabled()
			}
			httpServer := &http.Server{Addr: addr, Handler: srv.Routes()}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			go func() {
				logger.Info("starting server", "addr", addr, "admin_enabled", enableAdmin)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server stopped unexpectedly", "err", err)
					cancel()
				}
			}()

			signals := make(chan os.Signal, 1)
			signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				select {
				case <-signals:
					logger.Info("shutting down")
					cancel()
				case <-ctx.Done():
				}
			}()

			runErr := runWithContext(ctx, sim)

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = httpServer.Shutdown(shutdownCtx)

			if runErr != nil && !errors.Is(runErr, context.Canceled) {
				return runErr
			}
			sim.Score().WriteReport(os.Stdout)
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", envString("DISPATCHSIM_CONFIG", "etc/config.properties"), "path to the properties file")
	cmd.Flags().StringVar(&addr, "addr", envString("DISPATCHSIM_ADDR", ":8080"), "HTTP listen address")
	cmd.Flags().BoolVar(&enableAdmin, "enable-admin", false, "enable admin endpoints like pprof")
	return cmd
}
