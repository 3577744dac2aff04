package mongodb

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ohowland/mtress/internal/pkg/metamodel"
	"github.com/ohowland/mtress/internal/pkg/optmodel"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

type update struct {
	filter interface{}
	doc    interface{}
	upsert bool
}

type fakeCollection struct {
	updates []update
}

func (c *fakeCollection) UpdateOne(ctx context.Context, filter interface{}, doc interface{},
	opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	u := update{filter: filter, doc: doc}
	for _, o := range opts {
		if o.Upsert != nil {
			u.upsert = *o.Upsert
		}
	}
	c.updates = append(c.updates, u)
	return &mongo.UpdateResult{}, nil
}

// BEGIN --- MongoDB Tests

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mongo.json")
	assert.NilError(t, os.WriteFile(path, []byte(`{"URI": "mongodb://localhost:27017", "Database": "mtress"}`), 0o644))

	cfg, err := LoadConfig(path)
	assert.NilError(t, err)
	assert.Equal(t, cfg.URI, "mongodb://localhost:27017")
	assert.Equal(t, cfg.Collection, DefaultCollection)

	assert.NilError(t, os.WriteFile(path, []byte(`{"URI": "mongodb://localhost:27017"}`), 0o644))
	_, err = LoadConfig(path)
	assert.ErrorContains(t, err, "needs URI and Database")
}

func TestWritePhase(t *testing.T) {
	coll := &fakeCollection{}
	sink := NewSink(coll)
	pid := uuid.New()

	err := sink.WritePhase(context.Background(), metamodel.PhaseEvent{
		Model:    "house",
		PID:      pid,
		Phase:    metamodel.PhaseConnect,
		Duration: 1500 * time.Microsecond,
		Err:      "boom",
	})
	assert.NilError(t, err)
	assert.Assert(t, is.Len(coll.updates, 1))

	u := coll.updates[0]
	assert.Assert(t, u.upsert)
	assert.DeepEqual(t, u.filter, bson.M{"pid": pid.String()})
	doc := u.doc.(bson.D)
	assert.Equal(t, doc[0].Key, "$setOnInsert")
	assert.Equal(t, doc[1].Key, "$push")
	entry := doc[1].Value.(bson.M)["phases"].(bson.M)
	assert.Equal(t, entry["phase"], "connect")
	assert.Equal(t, entry["duration_ms"], 1.5)
	assert.Equal(t, entry["error"], "boom")
}

func TestWriteSummary(t *testing.T) {
	coll := &fakeCollection{}
	sink := NewSink(coll)
	pid := uuid.New()

	err := sink.WriteSummary(context.Background(), optmodel.Summary{
		PID:        pid,
		Name:       "house",
		Steps:      24,
		SOS2:       24,
		Components: []string{"house:tank"},
	})
	assert.NilError(t, err)
	assert.Assert(t, is.Len(coll.updates, 1))

	doc := coll.updates[0].doc.(bson.D)
	assert.Equal(t, doc[0].Key, "$set")
	set := doc[0].Value.(bson.M)
	assert.Equal(t, set["steps"], 24)
	assert.Equal(t, set["sos2"], 24)
	assert.DeepEqual(t, set["components"], []string{"house:tank"})
	assert.NilError(t, sink.Close(context.Background()))
}
