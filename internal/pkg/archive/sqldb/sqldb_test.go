package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ohowland/mtress/internal/pkg/metamodel"
	"github.com/ohowland/mtress/internal/pkg/optmodel"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

type exec struct {
	query string
	args  []interface{}
}

type fakeDB struct {
	execs []exec
	fail  error
}

func (db *fakeDB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	db.execs = append(db.execs, exec{query, args})
	return nil, db.fail
}

// BEGIN --- SQL Archive Tests

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	assert.NilError(t, os.WriteFile(path, []byte(`{"Server": "localhost", "Port": 3306, "Username": "u", "Password": "p", "Database": "d"}`), 0o644))

	cfg, err := LoadConfig(path)
	assert.NilError(t, err)
	assert.Equal(t, cfg.Driver, MySQL)
	assert.Equal(t, cfg.Port, 3306)
	assert.Equal(t, cfg.Prefix, "mtress")

	assert.NilError(t, os.WriteFile(path, []byte(`{"Driver": "oracle"}`), 0o644))
	_, err = LoadConfig(path)
	assert.ErrorContains(t, err, `unknown sql driver "oracle"`)
}

func TestDSN(t *testing.T) {
	cfg := Config{Driver: MySQL, Server: "localhost", Port: 3306, Username: "u", Password: "p", Database: "d"}
	assert.Equal(t, cfg.DSN(), "u:p@tcp(localhost:3306)/d?parseTime=true")

	cfg.Driver = Postgres
	cfg.Port = 5432
	assert.Equal(t, cfg.DSN(), "host=localhost port=5432 user=u password=p dbname=d sslmode=disable")
}

func TestNewSinkCreatesTables(t *testing.T) {
	tests := []struct {
		driver string
		table  string
	}{
		{MySQL, "`mtress_phases`"},
		{Postgres, `"mtress_phases"`},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			db := &fakeDB{}
			_, err := NewSink(context.Background(), db, tt.driver, "mtress")
			assert.NilError(t, err)
			assert.Assert(t, is.Len(db.execs, 2))
			assert.Assert(t, is.Contains(db.execs[0].query, "CREATE TABLE IF NOT EXISTS "+tt.table))
		})
	}

	_, err := NewSink(context.Background(), &fakeDB{fail: errors.New("denied")}, MySQL, "mtress")
	assert.ErrorContains(t, err, "init tables: denied")
}

func TestWritePhase(t *testing.T) {
	db := &fakeDB{}
	sink, err := NewSink(context.Background(), db, Postgres, "mtress")
	assert.NilError(t, err)
	pid := uuid.New()

	err = sink.WritePhase(context.Background(), metamodel.PhaseEvent{
		Model: "house", PID: pid, Phase: metamodel.PhaseModel, Duration: 2 * time.Millisecond,
	})
	assert.NilError(t, err)

	last := db.execs[len(db.execs)-1]
	assert.Assert(t, strings.HasPrefix(last.query, `INSERT INTO "mtress_phases"`))
	assert.DeepEqual(t, last.args, []interface{}{pid.String(), "house", "model", 2.0, nil})
}

func TestWriteSummary(t *testing.T) {
	db := &fakeDB{}
	sink, err := NewSink(context.Background(), db, MySQL, "mtress")
	assert.NilError(t, err)
	sum := optmodel.Summary{PID: uuid.New(), Name: "house", Steps: 2, SOS2: 2}

	assert.NilError(t, sink.WriteSummary(context.Background(), sum))
	last := db.execs[len(db.execs)-1]
	assert.Assert(t, is.Contains(last.query, "ON DUPLICATE KEY UPDATE"))
	assert.Equal(t, last.args[0], sum.PID.String())

	var decoded optmodel.Summary
	assert.NilError(t, json.Unmarshal([]byte(last.args[3].(string)), &decoded))
	assert.Equal(t, decoded.SOS2, 2)
	assert.NilError(t, sink.Close(context.Background()))
}
