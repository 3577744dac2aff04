// Package natshandler publishes build events as JSON on NATS subjects of
// the form <prefix>.<model>.<topic>.
package natshandler

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	nats "github.com/nats-io/nats.go"
	"github.com/ohowland/mtress/internal/pkg/metamodel"
	"github.com/ohowland/mtress/internal/pkg/msg"
	"github.com/ohowland/mtress/internal/pkg/optmodel"
)

type Config struct {
	Server string `json:"Server"`
	Prefix string `json:"Prefix"`
}

// LoadConfig reads a JSON config file. Server defaults to nats.DefaultURL.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{Server: nats.DefaultURL, Prefix: "mtress"}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Conn is the part of *nats.Conn the sink publishes through.
type Conn interface {
	Publish(subj string, data []byte) error
	Flush() error
	Close()
}

type Sink struct {
	nc     Conn
	prefix string
}

func NewSink(nc Conn, prefix string) *Sink {
	return &Sink{nc: nc, prefix: prefix}
}

// Dial connects to cfg.Server.
func Dial(cfg Config) (*Sink, error) {
	nc, err := nats.Connect(cfg.Server, nats.Name("mtress archive"))
	if err != nil {
		return nil, err
	}
	return NewSink(nc, cfg.Prefix), nil
}

var tokenReplacer = strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")

// Subject returns the subject events of model are published on.
func (s *Sink) Subject(model string, topic msg.Topic) string {
	if model == "" {
		model = "_"
	}
	return s.prefix + "." + tokenReplacer.Replace(model) + "." + topic.String()
}

func (s *Sink) publish(subj string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.nc.Publish(subj, data)
}

func (s *Sink) WritePhase(_ context.Context, e metamodel.PhaseEvent) error {
	return s.publish(s.Subject(e.Model, msg.Phase), e)
}

func (s *Sink) WriteSummary(_ context.Context, sum optmodel.Summary) error {
	return s.publish(s.Subject(sum.Name, msg.Summary), sum)
}

// Close flushes pending messages and closes the connection.
func (s *Sink) Close(context.Context) error {
	err := s.nc.Flush()
	s.nc.Close()
	return err
}
