package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openmaw-ai/openmaw/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the OpenMaw daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		log.Info().Msg("🎙️  OpenMaw starting...")

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		srv, err := server.New(ctx)
		if err != nil {
			return fmt.Errorf("initialize server: %w", err)
		}
		srv.Start(ctx)

		httpServer := &http.Server{
			Addr:         fmt.Sprintf(":%d", srv.Port),
			Handler:      srv.Handler,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute,
			IdleTimeout:  120 * time.Second,
		}

		// Graceful shutdown
		go func() {
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			<-sigChan

			log.Info().Msg("🛑 Shutting down gracefully...")
			cancel()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer shutdownCancel()
			httpServer.Shutdown(shutdownCtx)
			srv.ShutdownFunc(shutdownCtx)
		}()

		log.Info().Int("port", srv.Port).Msg("🔥 OpenMaw is listening")

		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	},
}
