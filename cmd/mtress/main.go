// Command mtress builds the optimisation model of a YAML model description
// and writes it in CPLEX LP format.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/ohowland/mtress/internal/pkg/archive"
	"github.com/ohowland/mtress/internal/pkg/config"
	"github.com/ohowland/mtress/internal/pkg/logging"
	"github.com/ohowland/mtress/internal/pkg/metamodel"
	"github.com/ohowland/mtress/internal/pkg/msg"
	"github.com/ohowland/mtress/internal/pkg/observability"
	"github.com/ohowland/mtress/internal/pkg/technology"
	"github.com/spf13/pflag"
	"golang.org/x/exp/slog"
)

type options struct {
	config    string
	lp        string
	logLevel  string
	logFormat string
	archives  archive.Paths
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := pflag.NewFlagSet("mtress", pflag.ContinueOnError)
	fs.StringVarP(&o.config, "config", "c", "", "model description (YAML)")
	fs.StringVarP(&o.lp, "lp", "o", "", "write the LP file here, - for stdout")
	fs.StringVar(&o.logLevel, "log-level", "info", "debug, info, warn or error")
	fs.StringVar(&o.logFormat, "log-format", "text", "text or json")
	fs.StringVar(&o.archives.MongoDB, "mongodb", "", "MongoDB archive config (JSON)")
	fs.StringVar(&o.archives.SQL, "sql", "", "SQL archive config (JSON)")
	fs.StringVar(&o.archives.NATS, "nats", "", "NATS archive config (JSON)")
	fs.StringVar(&o.archives.Web, "webhook", "", "HTTP archive config (JSON)")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if o.config == "" {
		return options{}, fmt.Errorf("--config is required")
	}
	return o, nil
}

func main() {
	o, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := logging.New(logging.Config{Level: o.logLevel, Format: o.logFormat})
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if err := run(ctx, o, os.Stdout, logger); err != nil {
		logger.Error("build failed", slog.Any("error", err))
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, o options, stdout io.Writer, logger *slog.Logger) error {
	shutdown, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), logger)
	if err != nil {
		return err
	}
	defer shutdown(context.Background())

	cfg, err := config.Load(o.config)
	if err != nil {
		return err
	}

	hub := msg.NewPublisher(uuid.New())
	defer hub.Close()
	stopArchives, err := archive.Start(ctx, o.archives, hub, logger)
	if err != nil {
		return err
	}
	defer stopArchives()

	mm, err := cfg.MetaModel(technology.DefaultRegistry(),
		metamodel.WithLogger(logger),
		metamodel.WithHub(hub))
	if err != nil {
		return err
	}
	m, err := mm.Build(ctx)
	if err != nil {
		return err
	}

	switch o.lp {
	case "":
	case "-":
		return m.WriteLP(stdout)
	default:
		f, err := os.Create(o.lp)
		if err != nil {
			return err
		}
		if err := m.WriteLP(f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		logger.Info("lp written", slog.String("path", o.lp))
	}
	return nil
}
