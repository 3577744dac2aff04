// Package webservice exposes model building over HTTP. Models are posted as
// YAML, built in the request and kept in memory by pid. Build events are
// streamed to websocket clients on /events.
package webservice

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/ohowland/mtress/internal/pkg/config"
	"github.com/ohowland/mtress/internal/pkg/metamodel"
	"github.com/ohowland/mtress/internal/pkg/modelerr"
	"github.com/ohowland/mtress/internal/pkg/msg"
	"github.com/ohowland/mtress/internal/pkg/observability"
	"github.com/ohowland/mtress/internal/pkg/optmodel"
	"github.com/ohowland/mtress/internal/pkg/technology"
	"github.com/rs/cors"
	"golang.org/x/exp/slog"
)

const maxBody = 1 << 20

// Server keeps built models by pid.
type Server struct {
	mux      sync.RWMutex
	models   map[uuid.UUID]*optmodel.Model
	sums     map[uuid.UUID]optmodel.Summary
	registry *metamodel.Registry
	hub      *msg.Hub
	metrics  *observability.BuildCollector
	dataDir  string
	origins  []string
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

type Option func(*Server)

func WithRegistry(r *metamodel.Registry) Option {
	return func(s *Server) { s.registry = r }
}

// WithHub publishes build events of every model on h.
func WithHub(h *msg.Hub) Option {
	return func(s *Server) { s.hub = h }
}

// WithMetrics records builds on c and serves c on /metrics.
func WithMetrics(c *observability.BuildCollector) Option {
	return func(s *Server) { s.metrics = c }
}

// WithDataDir resolves FILE: specifiers of posted models against dir.
func WithDataDir(dir string) Option {
	return func(s *Server) { s.dataDir = dir }
}

// WithOrigins sets the allowed CORS origins. The default allows all.
func WithOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

func New(opts ...Option) *Server {
	s := &Server{
		models:   make(map[uuid.UUID]*optmodel.Model),
		sums:     make(map[uuid.UUID]optmodel.Summary),
		registry: technology.DefaultRegistry(),
		dataDir:  ".",
		origins:  []string{"*"},
		logger:   slog.Default(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hub == nil {
		s.hub = msg.NewPublisher(uuid.New())
	}
	return s
}

// Hub returns the publisher build events are sent on.
func (s *Server) Hub() *msg.Hub {
	return s.hub
}

// Router returns the routes without CORS handling.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.HandleFunc("/models", s.listModels).Methods(http.MethodGet)
	r.HandleFunc("/models", s.createModel).Methods(http.MethodPost)
	r.HandleFunc("/models/{pid}", s.getModel).Methods(http.MethodGet)
	r.HandleFunc("/models/{pid}/lp", s.getLP).Methods(http.MethodGet)
	r.HandleFunc("/events", s.events).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
	return r
}

// Handler returns the router wrapped in CORS handling.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(s.Router())
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorBody{Error: err.Error()})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listModels(w http.ResponseWriter, r *http.Request) {
	s.mux.RLock()
	out := make([]optmodel.Summary, 0, len(s.sums))
	for _, sum := range s.sums {
		out = append(out, sum)
	}
	s.mux.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	writeJSON(w, http.StatusOK, out)
}

// createModel builds a posted YAML model. Malformed documents are a 400,
// models rejected while building a 422.
func (s *Server) createModel(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	cfg, err := config.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if cfg.DataDir == "" {
		cfg.DataDir = s.dataDir
	}
	mm, err := cfg.MetaModel(s.registry,
		metamodel.WithLogger(s.logger),
		metamodel.WithMetrics(s.metrics),
		metamodel.WithHub(s.hub))
	if err != nil {
		s.rejected(w, err)
		return
	}
	m, err := mm.Build(r.Context())
	if err != nil {
		s.rejected(w, err)
		return
	}
	sum, _ := mm.Summary()

	s.mux.Lock()
	s.models[sum.PID] = m
	s.sums[sum.PID] = sum
	s.mux.Unlock()

	s.logger.Info("model created", slog.String("model", sum.Name), slog.String("pid", sum.PID.String()))
	w.Header().Set("Location", "/models/"+sum.PID.String())
	writeJSON(w, http.StatusCreated, sum)
}

func (s *Server) rejected(w http.ResponseWriter, err error) {
	code := http.StatusUnprocessableEntity
	if !modelerr.IsConfiguration(err) {
		code = http.StatusBadRequest
	}
	s.logger.Warn("model rejected", slog.Any("error", err))
	writeError(w, code, err)
}

var errNotFound = errors.New("model not found")

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	pid, err := uuid.Parse(mux.Vars(r)["pid"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return uuid.UUID{}, false
	}
	s.mux.RLock()
	_, ok := s.sums[pid]
	s.mux.RUnlock()
	if !ok {
		writeError(w, http.StatusNotFound, errNotFound)
		return uuid.UUID{}, false
	}
	return pid, true
}

func (s *Server) getModel(w http.ResponseWriter, r *http.Request) {
	pid, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.mux.RLock()
	sum := s.sums[pid]
	s.mux.RUnlock()
	writeJSON(w, http.StatusOK, sum)
}

// getLP writes the program of a model in CPLEX LP format.
func (s *Server) getLP(w http.ResponseWriter, r *http.Request) {
	pid, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.mux.RLock()
	m := s.models[pid]
	s.mux.RUnlock()
	w.Header().Set("Content-Type", "text/plain; charset=UTF-8")
	w.WriteHeader(http.StatusOK)
	if err := m.WriteLP(w); err != nil {
		s.logger.Error("write lp failed", slog.String("pid", pid.String()), slog.Any("error", err))
	}
}

// event is the websocket frame of one hub message.
type event struct {
	Topic   string      `json:"topic"`
	Payload interface{} `json:"payload"`
}

// events streams phase and summary messages to a websocket client until
// the client goes away.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	pid := uuid.New()
	inbox, err := s.hub.Subscribe(pid, msg.Phase, msg.Summary)
	if err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, err.Error()))
		return
	}
	defer s.hub.Unsubscribe(pid)

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case m, ok := <-inbox:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event{Topic: m.Topic().String(), Payload: m.Payload()}); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}
