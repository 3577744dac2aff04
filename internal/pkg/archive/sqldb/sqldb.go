// Package sqldb archives build events in MySQL or PostgreSQL.
package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/ohowland/mtress/internal/pkg/metamodel"
	"github.com/ohowland/mtress/internal/pkg/optmodel"
)

const (
	MySQL    = "mysql"
	Postgres = "postgres"
)

type Config struct {
	Driver   string `json:"Driver"`
	Server   string `json:"Server"`
	Port     int    `json:"Port"`
	Username string `json:"Username"`
	Password string `json:"Password"`
	Database string `json:"Database"`
	Prefix   string `json:"Prefix"`
}

// LoadConfig reads a JSON config file. The driver defaults to mysql and
// the table prefix to "mtress".
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{Driver: MySQL, Prefix: "mtress"}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, err
	}
	if _, err := newDialect(cfg.Driver, cfg.Prefix); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DSN formats the data source name for cfg.Driver.
func (c Config) DSN() string {
	switch c.Driver {
	case Postgres:
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			c.Server, c.Port, c.Username, c.Password, c.Database)
	default:
		mc := mysql.NewConfig()
		mc.User = c.Username
		mc.Passwd = c.Password
		mc.Net = "tcp"
		mc.Addr = fmt.Sprintf("%s:%d", c.Server, c.Port)
		mc.DBName = c.Database
		mc.ParseTime = true
		return mc.FormatDSN()
	}
}

// dialect holds the statements of one driver.
type dialect struct {
	createPhases    string
	createSummaries string
	insertPhase     string
	upsertSummary   string
}

func newDialect(driver, prefix string) (dialect, error) {
	phases, summaries := prefix+"_phases", prefix+"_summaries"
	switch driver {
	case MySQL:
		q := func(id string) string { return "`" + strings.ReplaceAll(id, "`", "``") + "`" }
		return dialect{
			createPhases: `CREATE TABLE IF NOT EXISTS ` + q(phases) +
				` (pid CHAR(36), model VARCHAR(255), phase VARCHAR(32), duration_ms DOUBLE, error TEXT)`,
			createSummaries: `CREATE TABLE IF NOT EXISTS ` + q(summaries) +
				` (pid CHAR(36) PRIMARY KEY, name VARCHAR(255), created DATETIME, summary TEXT)`,
			insertPhase: `INSERT INTO ` + q(phases) + ` VALUES (?, ?, ?, ?, ?)`,
			upsertSummary: `INSERT INTO ` + q(summaries) + ` VALUES (?, ?, ?, ?)` +
				` ON DUPLICATE KEY UPDATE created = VALUES(created), summary = VALUES(summary)`,
		}, nil
	case Postgres:
		return dialect{
			createPhases: `CREATE TABLE IF NOT EXISTS ` + pq.QuoteIdentifier(phases) +
				` (pid UUID, model TEXT, phase TEXT, duration_ms DOUBLE PRECISION, error TEXT)`,
			createSummaries: `CREATE TABLE IF NOT EXISTS ` + pq.QuoteIdentifier(summaries) +
				` (pid UUID PRIMARY KEY, name TEXT, created TIMESTAMPTZ, summary JSONB)`,
			insertPhase: `INSERT INTO ` + pq.QuoteIdentifier(phases) + ` VALUES ($1, $2, $3, $4, $5)`,
			upsertSummary: `INSERT INTO ` + pq.QuoteIdentifier(summaries) + ` VALUES ($1, $2, $3, $4)` +
				` ON CONFLICT (pid) DO UPDATE SET created = EXCLUDED.created, summary = EXCLUDED.summary`,
		}, nil
	}
	return dialect{}, fmt.Errorf("unknown sql driver %q", driver)
}

// Execer is the part of *sql.DB the sink writes through.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type Sink struct {
	db      Execer
	dialect dialect
	conn    *sql.DB
}

// NewSink creates the archive tables through db.
func NewSink(ctx context.Context, db Execer, driver, prefix string) (*Sink, error) {
	d, err := newDialect(driver, prefix)
	if err != nil {
		return nil, err
	}
	for _, stmt := range []string{d.createPhases, d.createSummaries} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("init tables: %w", err)
		}
	}
	return &Sink{db: db, dialect: d}, nil
}

// Open connects to the database named by cfg and initialises its tables.
func Open(ctx context.Context, cfg Config) (*Sink, error) {
	db, err := sql.Open(cfg.Driver, cfg.DSN())
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	s, err := NewSink(ctx, db, cfg.Driver, cfg.Prefix)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.conn = db
	return s, nil
}

func (s *Sink) WritePhase(ctx context.Context, e metamodel.PhaseEvent) error {
	var errText interface{}
	if e.Err != "" {
		errText = e.Err
	}
	_, err := s.db.ExecContext(ctx, s.dialect.insertPhase,
		e.PID.String(), e.Model, string(e.Phase), float64(e.Duration.Microseconds())/1000, errText)
	return err
}

func (s *Sink) WriteSummary(ctx context.Context, sum optmodel.Summary) error {
	body, err := json.Marshal(sum)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.dialect.upsertSummary,
		sum.PID.String(), sum.Name, sum.Created, string(body))
	return err
}

// Close closes a connection made by Open.
func (s *Sink) Close(context.Context) error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
