package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	httpAdapter "github.com/masltov-creations/opencommotion/internal/adapters/http"
	"github.com/masltov-creations/opencommotion/internal/cli"
	"github.com/masltov-creations/opencommotion/internal/config"
	"github.com/masltov-creations/opencommotion/internal/logging"
	"github.com/masltov-creations/opencommotion/internal/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP + websocket server",
	Long:  `Starts the engine in server mode, exposing the turn API over HTTP and realtime events over websockets.`,
	Run: func(cmd *cobra.Command, args []string) {
		configPath, _ := cmd.Flags().GetString("config")
		addr, _ := cmd.Flags().GetString("addr")

		cfg, err := config.Load(configPath)
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
		if cmd.Flags().Changed("addr") {
			cfg.Server.Addr = addr
		}

		logger := logging.NewJSON(logging.ParseLevel(cfg.LogLevel))
		collectors := metrics.New()

		engine, cleanup, err := cli.BuildEngine(cfg, logger, collectors)
		if err != nil {
			fmt.Printf("Error initializing engine: %v\n", err)
			os.Exit(1)
		}
		defer func() {
			if err := cleanup(); err != nil {
				logger.Warn("backend cleanup failed", "err", err)
			}
		}()

		server := httpAdapter.NewServer(engine.Coordinator(), engine.Hub(),
			httpAdapter.WithAuthToken(cfg.Server.AuthToken),
			httpAdapter.WithLogger(logger),
			httpAdapter.WithMetrics(collectors),
		)

		srv := &http.Server{
			Addr:    cfg.Server.Addr,
			Handler: server.Handler(),
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)

		go func() {
			logger.Info("server listening",
				"addr", cfg.Server.Addr,
				"storage", cfg.Storage.Backend,
			)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			fmt.Printf("Server error: %v\n", err)
			os.Exit(1)

		case sig := <-shutdown:
			logger.Info("shutdown started", "signal", sig.String())

			// Give outstanding requests a deadline for completion.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				logger.Warn("graceful shutdown did not complete", "err", err)
				if err := srv.Close(); err != nil {
					logger.Error("server close failed", "err", err)
				}
			}
			logger.Info("server stopped")
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", ":8080", "Address to listen on")
}
