// Package sqlite persists feature messages to a SQLite table.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hupe1980/agentgraph/pipeline"
)

// DefaultTable is the table used when Options.Table is empty.
const DefaultTable = "feature_messages"

// Options configures the SQLite processor.
type Options struct {
	// Path is the database file; ":memory:" keeps everything in memory.
	Path  string
	Table string
}

// Processor implements pipeline.MessageProcessor with one row per message.
type Processor struct {
	db    *sql.DB
	owned bool
	table string
}

var _ pipeline.MessageProcessor = (*Processor)(nil)

// New opens the database at opts.Path.
func New(opts Options) (*Processor, error) {
	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	p := NewWithDB(db, opts.Table)
	p.owned = true
	return p, nil
}

// NewWithDB uses an existing handle. Close leaves it open.
func NewWithDB(db *sql.DB, table string) *Processor {
	if table == "" {
		table = DefaultTable
	}
	return &Processor{db: db, table: table}
}

// Initialize creates the table if it does not exist.
func (p *Processor) Initialize(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			run_id TEXT,
			timestamp DATETIME NOT NULL,
			payload TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_%s_run_id ON %s (run_id);
	`, p.table, p.table, p.table)

	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Process inserts msg.
func (p *Processor) Process(ctx context.Context, msg pipeline.FeatureMessage) error {
	payload, err := json.Marshal(msg.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, type, run_id, timestamp, payload) VALUES (?, ?, ?, ?, ?)`, p.table)
	if _, err := p.db.ExecContext(ctx, query, msg.ID, msg.Type, msg.RunID, msg.Timestamp, string(payload)); err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// Messages returns the messages of one run in insertion order.
func (p *Processor) Messages(ctx context.Context, runID string) ([]pipeline.FeatureMessage, error) {
	query := fmt.Sprintf(`SELECT id, type, run_id, timestamp, payload FROM %s WHERE run_id = ? ORDER BY rowid`, p.table)
	rows, err := p.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []pipeline.FeatureMessage
	for rows.Next() {
		var (
			msg     pipeline.FeatureMessage
			ts      time.Time
			payload sql.NullString
		)
		if err := rows.Scan(&msg.ID, &msg.Type, &msg.RunID, &ts, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Timestamp = ts
		if payload.Valid && payload.String != "" {
			if err := json.Unmarshal([]byte(payload.String), &msg.Payload); err != nil {
				return nil, fmt.Errorf("unmarshal payload: %w", err)
			}
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// Close closes the database when the processor opened it.
func (p *Processor) Close(context.Context) error {
	if !p.owned {
		return nil
	}
	return p.db.Close()
}
