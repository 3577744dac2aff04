package archive

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ohowland/mtress/internal/pkg/metamodel"
	"github.com/ohowland/mtress/internal/pkg/msg"
	"github.com/ohowland/mtress/internal/pkg/optmodel"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

type fakeSink struct {
	mux       sync.Mutex
	phases    []metamodel.PhaseEvent
	summaries []optmodel.Summary
	order     []string
	written   chan struct{}
	fail      error
	closed    bool
}

func newFakeSink() *fakeSink {
	return &fakeSink{written: make(chan struct{}, 10)}
}

func (s *fakeSink) WritePhase(ctx context.Context, e metamodel.PhaseEvent) error {
	s.mux.Lock()
	s.phases = append(s.phases, e)
	s.order = append(s.order, "phase")
	s.mux.Unlock()
	s.written <- struct{}{}
	return s.fail
}

func (s *fakeSink) WriteSummary(ctx context.Context, sum optmodel.Summary) error {
	s.mux.Lock()
	s.summaries = append(s.summaries, sum)
	s.order = append(s.order, "summary")
	s.mux.Unlock()
	s.written <- struct{}{}
	return s.fail
}

func (s *fakeSink) Close(ctx context.Context) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.closed = true
	return nil
}

func waitWritten(t *testing.T, s *fakeSink) {
	t.Helper()
	select {
	case <-s.written:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for archive write")
	}
}

// BEGIN --- Archive Tests

func TestProcess(t *testing.T) {
	hub := msg.NewPublisher(uuid.New())
	sink := newFakeSink()
	h, err := New(sink, hub, nil)
	assert.NilError(t, err)
	go h.Process(context.Background())

	pid := uuid.New()
	assert.Equal(t, hub.Publish(msg.Phase, metamodel.PhaseEvent{Model: "house", PID: pid, Phase: metamodel.PhaseConnect}), 1)
	waitWritten(t, sink)
	assert.Equal(t, hub.Publish(msg.Summary, optmodel.Summary{PID: pid, Name: "house", Steps: 2}), 1)
	waitWritten(t, sink)
	h.Stop()
	h.Stop()

	assert.Assert(t, is.Len(sink.phases, 1))
	assert.Equal(t, sink.phases[0].Phase, metamodel.PhaseConnect)
	assert.Assert(t, is.Len(sink.summaries, 1))
	assert.Equal(t, sink.summaries[0].Steps, 2)
	assert.Assert(t, sink.closed)

	// unsubscribed after stop
	assert.Equal(t, hub.Publish(msg.Summary, optmodel.Summary{}), 0)
}

func TestStopWritesPending(t *testing.T) {
	hub := msg.NewPublisher(uuid.New())
	sink := newFakeSink()
	h, err := New(sink, hub, nil)
	assert.NilError(t, err)
	go h.Process(context.Background())

	for i := 0; i < 5; i++ {
		assert.Equal(t, hub.Publish(msg.Phase, metamodel.PhaseEvent{Phase: metamodel.PhaseBuildCore}), 1)
	}
	hub.Publish(msg.Summary, optmodel.Summary{Name: "house"})
	h.Stop()

	assert.Assert(t, is.Len(sink.phases, 5))
	assert.Assert(t, is.Len(sink.summaries, 1))
	assert.DeepEqual(t, sink.order, []string{"phase", "phase", "phase", "phase", "phase", "summary"})
}

func TestProcessContinuesAfterWriteError(t *testing.T) {
	hub := msg.NewPublisher(uuid.New())
	sink := newFakeSink()
	sink.fail = errors.New("store offline")
	h, err := New(sink, hub, nil)
	assert.NilError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Process(ctx)
		close(done)
	}()

	hub.Publish(msg.Phase, metamodel.PhaseEvent{Phase: metamodel.PhaseModel})
	waitWritten(t, sink)
	hub.Publish(msg.Phase, metamodel.PhaseEvent{Phase: metamodel.PhaseAddConstraints})
	waitWritten(t, sink)
	cancel()
	<-done

	assert.Assert(t, is.Len(sink.phases, 2))
}

func TestHandleSkipsUnknownPayload(t *testing.T) {
	hub := msg.NewPublisher(uuid.New())
	sink := newFakeSink()
	h, err := New(sink, hub, nil)
	assert.NilError(t, err)

	err = h.Handle(context.Background(), msg.New(uuid.New(), msg.Phase, "not an event"))
	assert.NilError(t, err)
	assert.Assert(t, is.Len(sink.phases, 0))
}

func TestNewOnClosedHub(t *testing.T) {
	hub := msg.NewPublisher(uuid.New())
	hub.Close()
	_, err := New(newFakeSink(), hub, nil)
	assert.Assert(t, errors.Is(err, msg.ErrClosed))
}

func TestStartWithoutArchives(t *testing.T) {
	hub := msg.NewPublisher(uuid.New())
	stop, err := Start(context.Background(), Paths{}, hub, nil)
	assert.NilError(t, err)
	stop()
	assert.Equal(t, hub.Publish(msg.Phase, metamodel.PhaseEvent{}), 0)
}

func TestStartBadConfig(t *testing.T) {
	hub := msg.NewPublisher(uuid.New())
	_, err := Start(context.Background(), Paths{SQL: "/nonexistent/db.json"}, hub, nil)
	assert.ErrorContains(t, err, "sql archive")
}
