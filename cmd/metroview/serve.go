package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"metroview/internal/geom"
	"metroview/internal/httpapi"
	"metroview/internal/metrics"
	"metroview/internal/routeclient"
	"metroview/internal/scene"
	"metroview/internal/session"
	"metroview/internal/stations"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a viewer session behind the control API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.HTTPAddr = serveAddr
		}

		logger := httpapi.NewLogger(os.Stdout, cfg.LogLevel)
		m := metrics.New()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client, err := routeclient.New(logger, routeclient.Options{
			BaseURL: cfg.RouteServiceURL,
			Timeout: cfg.RequestTimeout,
		}, m)
		if err != nil {
			return fmt.Errorf("route client: %w", err)
		}

		var idx *stations.Index
		if cfg.StationsPath != "" {
			idx, err = stations.Load(cfg.StationsPath)
			if err != nil {
				return err
			}
			logger.Info().Int("stations", idx.Len()).Str("path", cfg.StationsPath).Msg("stations loaded")
		}

		ready := scene.NewReady()
		go func() {
			svg, err := scene.LoadSVG(cfg.DiagramPath)
			ready.Resolve(svg, err)
		}()

		viewer := session.New(logger, client, idx, ready, session.Options{
			DefaultStrategy: cfg.DefaultStrategy,
			Container:       geom.Size{W: cfg.ContainerWidth, H: cfg.ContainerHeight},
			SmoothScroll:    cfg.SmoothScroll,
			FrameInterval:   cfg.FrameInterval,
		}, m)
		go viewer.Run(ctx)

		h := httpapi.NewHandler(logger, viewer, m, httpapi.Options{CORSOrigins: cfg.CORSOrigins})
		srv := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           h.Router(),
			ReadHeaderTimeout: 5 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info().Str("addr", cfg.HTTPAddr).Str("session", viewer.ID()).Msg("metroview listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		select {
		case <-ctx.Done():
		case err := <-errCh:
			return fmt.Errorf("http server: %w", err)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		logger.Info().Msg("shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides http_addr)")
	rootCmd.AddCommand(serveCmd)
}
