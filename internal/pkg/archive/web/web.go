// Package web posts build events as JSON to an HTTP endpoint.
package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ohowland/mtress/internal/pkg/metamodel"
	"github.com/ohowland/mtress/internal/pkg/optmodel"
)

type Config struct {
	URL     string `json:"URL"`
	Timeout string `json:"Timeout"`
}

// LoadConfig reads a JSON config file. Timeout is a Go duration and
// defaults to 5s.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{Timeout: "5s"}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, err
	}
	if cfg.URL == "" {
		return Config{}, errors.New("web config needs a URL")
	}
	if _, err := time.ParseDuration(cfg.Timeout); err != nil {
		return Config{}, fmt.Errorf("web config timeout: %w", err)
	}
	return cfg, nil
}

// Sink posts phase events to <URL>/models/<pid>/phases and summaries to
// <URL>/models/<pid>/summary.
type Sink struct {
	url    string
	client *http.Client
}

func NewSink(cfg Config) (*Sink, error) {
	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		return nil, err
	}
	return &Sink{
		url:    strings.TrimRight(cfg.URL, "/"),
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (s *Sink) post(ctx context.Context, pid uuid.UUID, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	target := s.url + "/models/" + pid.String() + "/" + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("post %s: %s", target, resp.Status)
	}
	return nil
}

func (s *Sink) WritePhase(ctx context.Context, e metamodel.PhaseEvent) error {
	return s.post(ctx, e.PID, "phases", e)
}

func (s *Sink) WriteSummary(ctx context.Context, sum optmodel.Summary) error {
	return s.post(ctx, sum.PID, "summary", sum)
}

func (s *Sink) Close(context.Context) error {
	s.client.CloseIdleConnections()
	return nil
}
