// Package mongodb archives build events in a MongoDB collection with one
// document per model.
package mongodb

import (
	"context"
	"encoding/json"
	"errors"
	"os"

	"github.com/google/uuid"
	"github.com/ohowland/mtress/internal/pkg/metamodel"
	"github.com/ohowland/mtress/internal/pkg/optmodel"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const DefaultCollection = "models"

type Config struct {
	URI        string `json:"URI"`
	Database   string `json:"Database"`
	Collection string `json:"Collection"`
}

// LoadConfig reads a JSON config file.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{Collection: DefaultCollection}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, err
	}
	if cfg.URI == "" || cfg.Database == "" {
		return Config{}, errors.New("mongodb config needs URI and Database")
	}
	return cfg, nil
}

// Collection is the part of *mongo.Collection the sink writes through.
type Collection interface {
	UpdateOne(ctx context.Context, filter interface{}, update interface{},
		opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

// Sink upserts one document per model pid. Phase events are pushed onto
// its phases array and the summary is set on completion.
type Sink struct {
	models Collection
	client *mongo.Client
}

func NewSink(models Collection) *Sink {
	return &Sink{models: models}
}

// Dial connects to the server named by cfg.
func Dial(ctx context.Context, cfg Config) (*Sink, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}
	coll := cfg.Collection
	if coll == "" {
		coll = DefaultCollection
	}
	return &Sink{
		models: client.Database(cfg.Database).Collection(coll),
		client: client,
	}, nil
}

func filter(pid uuid.UUID) bson.M {
	//TODO: store the pid as a binary of subtype 0x04 instead of a string.
	return bson.M{"pid": pid.String()}
}

func phaseToBSON(e metamodel.PhaseEvent) bson.D {
	entry := bson.M{
		"phase":       string(e.Phase),
		"duration_ms": float64(e.Duration.Microseconds()) / 1000,
	}
	if e.Err != "" {
		entry["error"] = e.Err
	}
	return bson.D{
		{Key: "$setOnInsert", Value: bson.M{"name": e.Model}},
		{Key: "$push", Value: bson.M{"phases": entry}},
	}
}

func summaryToBSON(s optmodel.Summary) bson.D {
	return bson.D{
		{Key: "$set", Value: bson.M{
			"name":        s.Name,
			"created":     s.Created,
			"steps":       s.Steps,
			"nodes":       s.Nodes,
			"flows":       s.Flows,
			"variables":   s.Variables,
			"binaries":    s.Binaries,
			"constraints": s.Constraints,
			"sos2":        s.SOS2,
			"components":  s.Components,
		}},
	}
}

func (s *Sink) WritePhase(ctx context.Context, e metamodel.PhaseEvent) error {
	_, err := s.models.UpdateOne(ctx, filter(e.PID), phaseToBSON(e), options.Update().SetUpsert(true))
	return err
}

func (s *Sink) WriteSummary(ctx context.Context, sum optmodel.Summary) error {
	_, err := s.models.UpdateOne(ctx, filter(sum.PID), summaryToBSON(sum), options.Update().SetUpsert(true))
	return err
}

// Close disconnects a dialed client.
func (s *Sink) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}
