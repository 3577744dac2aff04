package archive

import (
	"context"
	"fmt"

	"github.com/ohowland/mtress/internal/pkg/archive/mongodb"
	"github.com/ohowland/mtress/internal/pkg/archive/natshandler"
	"github.com/ohowland/mtress/internal/pkg/archive/sqldb"
	"github.com/ohowland/mtress/internal/pkg/archive/web"
	"github.com/ohowland/mtress/internal/pkg/msg"
	"golang.org/x/exp/slog"
)

// Paths names the JSON config files of the archives to run. Empty paths
// are skipped.
type Paths struct {
	MongoDB string
	SQL     string
	NATS    string
	Web     string
}

// Start opens every configured archive and runs its handler on system. The
// returned function stops all of them.
func Start(ctx context.Context, paths Paths, system msg.Publisher, logger *slog.Logger) (func(), error) {
	if logger == nil {
		logger = slog.Default()
	}
	var handlers []*Handler
	stop := func() {
		for _, h := range handlers {
			h.Stop()
		}
	}

	openers := []struct {
		name string
		path string
		open func(path string) (Sink, error)
	}{
		{"mongodb", paths.MongoDB, func(path string) (Sink, error) {
			cfg, err := mongodb.LoadConfig(path)
			if err != nil {
				return nil, err
			}
			return mongodb.Dial(ctx, cfg)
		}},
		{"sql", paths.SQL, func(path string) (Sink, error) {
			cfg, err := sqldb.LoadConfig(path)
			if err != nil {
				return nil, err
			}
			return sqldb.Open(ctx, cfg)
		}},
		{"nats", paths.NATS, func(path string) (Sink, error) {
			cfg, err := natshandler.LoadConfig(path)
			if err != nil {
				return nil, err
			}
			return natshandler.Dial(cfg)
		}},
		{"web", paths.Web, func(path string) (Sink, error) {
			cfg, err := web.LoadConfig(path)
			if err != nil {
				return nil, err
			}
			return web.NewSink(cfg)
		}},
	}
	for _, o := range openers {
		if o.path == "" {
			continue
		}
		sink, err := o.open(o.path)
		if err != nil {
			stop()
			return nil, fmt.Errorf("%s archive: %w", o.name, err)
		}
		h, err := New(sink, system, logger.With("archive", o.name))
		if err != nil {
			_ = sink.Close(ctx)
			stop()
			return nil, fmt.Errorf("%s archive: %w", o.name, err)
		}
		go h.Process(ctx)
		handlers = append(handlers, h)
		logger.Info("archive started", slog.String("archive", o.name), slog.String("config", o.path))
	}
	return stop, nil
}
