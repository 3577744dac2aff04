// Package archive copies build events from a msg.Publisher into an
// external store. The store specific parts live in the mongodb, sqldb and
// natshandler subpackages.
package archive

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/ohowland/mtress/internal/pkg/metamodel"
	"github.com/ohowland/mtress/internal/pkg/msg"
	"github.com/ohowland/mtress/internal/pkg/optmodel"
	"golang.org/x/exp/slog"
)

// Sink writes build events to one store.
type Sink interface {
	WritePhase(ctx context.Context, event metamodel.PhaseEvent) error
	WriteSummary(ctx context.Context, summary optmodel.Summary) error
	Close(ctx context.Context) error
}

// Handler drains phase and summary messages into a Sink.
type Handler struct {
	inbox  <-chan msg.Msg
	pid    uuid.UUID
	sink   Sink
	system msg.Publisher
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

// New subscribes a handler for sink to the phase and summary topics of
// system. Process must be called to start archiving.
func New(sink Sink, system msg.Publisher, logger *slog.Logger) (*Handler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pid, err := uuid.NewUUID()
	if err != nil {
		return nil, err
	}
	inbox, err := system.Subscribe(pid, msg.Phase, msg.Summary)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	return &Handler{
		inbox:  inbox,
		pid:    pid,
		sink:   sink,
		system: system,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger,
	}, nil
}

// PID is the subscriber id of the handler.
func (h *Handler) PID() uuid.UUID {
	return h.pid
}

// Process archives messages until Stop is called or ctx is done. Write
// errors are logged and do not end the loop. Messages published before
// Stop are written before Process returns. Process may only run once.
func (h *Handler) Process(ctx context.Context) {
	defer close(h.done)
	h.logger.Debug("archive started", slog.String("pid", h.pid.String()))
	write := func(m msg.Msg) {
		if err := h.Handle(ctx, m); err != nil {
			h.logger.Error("archive write failed",
				slog.String("topic", m.Topic().String()),
				slog.Any("error", err))
		}
	}
loop:
	for {
		select {
		case m, ok := <-h.inbox:
			if !ok {
				break loop
			}
			write(m)
		case <-h.stop:
			break loop
		case <-ctx.Done():
			break loop
		}
	}

	// unsubscribing closes the inbox; buffered messages are still delivered
	h.system.Unsubscribe(h.pid)
	for m := range h.inbox {
		if ctx.Err() == nil {
			write(m)
		}
	}
	if err := h.sink.Close(context.Background()); err != nil {
		h.logger.Warn("archive close failed", slog.Any("error", err))
	}
	h.logger.Debug("archive stopped", slog.String("pid", h.pid.String()))
}

// Handle writes one message. Messages with unknown payloads are skipped.
func (h *Handler) Handle(ctx context.Context, m msg.Msg) error {
	switch payload := m.Payload().(type) {
	case metamodel.PhaseEvent:
		return h.sink.WritePhase(ctx, payload)
	case optmodel.Summary:
		return h.sink.WriteSummary(ctx, payload)
	default:
		h.logger.Debug("archive skipped message",
			slog.String("topic", m.Topic().String()),
			slog.String("payload", fmt.Sprintf("%T", payload)))
		return nil
	}
}

// Stop ends a running Process and waits for it to return. It is safe to
// call more than once.
func (h *Handler) Stop() {
	h.once.Do(func() { close(h.stop) })
	<-h.done
}
