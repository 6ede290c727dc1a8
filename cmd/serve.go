package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/radouane/scanner/internal/capture/chromecam"
	"github.com/radouane/scanner/internal/handlers"
	"github.com/radouane/scanner/internal/imageasset"
	"github.com/radouane/scanner/internal/scan"
	"github.com/radouane/scanner/internal/session"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		port       string
		staticDir  string
		fakeCamera bool
		allowURL   bool
		origins    []string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the scanner HTTP API",
		Long: `Starts the scanner API on the specified port.

Clients create a session, select an image (upload, drop or camera capture), then request an
analysis. Session state changes stream over /ws/sessions/{id}.`,
		Example: `  # Start server on default port 8888
  radouane serve

  # Use Chrome's synthetic camera and serve a web client
  radouane serve --fake-camera --static ./web`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if cmd.Flags().Changed("static") {
				cfg.StaticDir = staticDir
			}
			if cmd.Flags().Changed("fake-camera") {
				cfg.FakeCamera = fakeCamera
			}
			if cmd.Flags().Changed("allow-url") {
				cfg.AllowURLUpload = allowURL
			}
			if cmd.Flags().Changed("allowed-origins") {
				cfg.AllowedOrigins = origins
			}

			logger := slog.Default()
			analyzer, err := cfg.Analyzer()
			if err != nil {
				return err
			}
			creds := cfg.Credentials(logger)
			creds.OnRequest(func(provider string) {
				logger.Warn("Credential required", "provider", provider, "env", cfg.CredentialEnv(), "hint", "PUT /api/credential or radouane credential set")
			})

			handler := handlers.New(handlers.Config{
				Factory: &session.Factory{
					Previews: imageasset.NewPreviewStore(),
					MaxBytes: cfg.MaxImageBytes,
					Device: chromecam.New(chromecam.Options{
						ExecPath:   cfg.ChromePath,
						FakeDevice: cfg.FakeCamera,
						Logger:     logger,
					}),
					Analyzer:    analyzer,
					Credentials: creds,
					Options: scan.Options{
						Language: cfg.Language,
						Category: cfg.Category,
						Policy:   cfg.Policy(),
					},
					Logger: logger,
				},
				Credentials:    creds,
				StaticDir:      cfg.StaticDir,
				AllowURLUpload: cfg.AllowURLUpload,
				AllowedOrigins: cfg.AllowedOrigins,
				Logger:         logger,
			})
			defer handler.Close()

			addr := ":" + cfg.Port
			server := &http.Server{
				Addr:              addr,
				Handler:           handler.Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Scanner API available", "addr", addr, "url", "http://localhost"+addr, "provider", cfg.Provider)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "8888", "Port to listen on")
	cmd.Flags().StringVar(&staticDir, "static", "", "Directory of a web client to serve at /")
	cmd.Flags().BoolVar(&fakeCamera, "fake-camera", false, "Use Chrome's synthetic camera instead of real hardware")
	cmd.Flags().BoolVar(&allowURL, "allow-url", false, "Allow selecting images by URL")
	cmd.Flags().StringSliceVar(&origins, "allowed-origins", nil, "Extra origins allowed to open the event socket")

	return cmd
}
