// Command webservice serves model building over HTTP.
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

	"github.com/ohowland/mtress/internal/pkg/archive"
	"github.com/ohowland/mtress/internal/pkg/logging"
	"github.com/ohowland/mtress/internal/pkg/observability"
	"github.com/ohowland/mtress/internal/pkg/webservice"
	"github.com/spf13/pflag"
	"golang.org/x/exp/slog"
)

func main() {
	var (
		addr      string
		dataDir   string
		origins   []string
		logLevel  string
		logFormat string
		archives  archive.Paths
	)
	pflag.StringVar(&addr, "addr", ":8080", "listen address")
	pflag.StringVar(&dataDir, "data-dir", ".", "directory FILE: time series are read from")
	pflag.StringSliceVar(&origins, "origin", []string{"*"}, "allowed CORS origin, repeatable")
	pflag.StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	pflag.StringVar(&logFormat, "log-format", "json", "text or json")
	pflag.StringVar(&archives.MongoDB, "mongodb", "", "MongoDB archive config (JSON)")
	pflag.StringVar(&archives.SQL, "sql", "", "SQL archive config (JSON)")
	pflag.StringVar(&archives.NATS, "nats", "", "NATS archive config (JSON)")
	pflag.StringVar(&archives.Web, "webhook", "", "HTTP archive config (JSON)")
	pflag.Parse()

	logger := logging.New(logging.Config{Level: logLevel, Format: logFormat})
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if err := serve(ctx, addr, dataDir, origins, archives, logger); err != nil {
		logger.Error("webservice stopped", slog.Any("error", err))
		cancel()
		os.Exit(1)
	}
}

func serve(ctx context.Context, addr, dataDir string, origins []string, archives archive.Paths, logger *slog.Logger) error {
	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), logger)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	metrics, err := observability.NewBuildCollector(nil)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	s := webservice.New(
		webservice.WithMetrics(metrics),
		webservice.WithDataDir(dataDir),
		webservice.WithOrigins(origins...),
		webservice.WithLogger(logger))

	stopArchives, err := archive.Start(ctx, archives, s.Hub(), logger)
	if err != nil {
		return err
	}
	defer stopArchives()

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("addr", addr))
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("server stopped")
	return nil
}
