// Package postgres persists feature messages to a PostgreSQL table.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hupe1980/agentgraph/pipeline"
)

// DefaultTable is the table used when Options.Table is empty.
const DefaultTable = "feature_messages"

// DBPool is the subset of *pgxpool.Pool the processor needs.
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// Options configures the PostgreSQL processor.
type Options struct {
	ConnString string
	Table      string
}

// Processor implements pipeline.MessageProcessor with one row per message.
type Processor struct {
	pool  DBPool
	owned bool
	table string
}

var _ pipeline.MessageProcessor = (*Processor)(nil)

// New creates a connection pool for opts.ConnString.
func New(ctx context.Context, opts Options) (*Processor, error) {
	pool, err := pgxpool.New(ctx, opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	p := NewWithPool(pool, opts.Table)
	p.owned = true
	return p, nil
}

// NewWithPool uses an existing pool. Close leaves it open.
func NewWithPool(pool DBPool, table string) *Processor {
	if table == "" {
		table = DefaultTable
	}
	return &Processor{pool: pool, table: table}
}

// Initialize creates the table if it does not exist.
func (p *Processor) Initialize(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			run_id TEXT,
			timestamp TIMESTAMPTZ NOT NULL,
			payload JSONB
		);
		CREATE INDEX IF NOT EXISTS idx_%s_run_id ON %s (run_id);
	`, p.table, p.table, p.table)

	if _, err := p.pool.Exec(ctx, query); err != nil {
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

	query := fmt.Sprintf(`
		INSERT INTO %s (id, type, run_id, timestamp, payload)
		VALUES ($1, $2, $3, $4, $5)
	`, p.table)
	if _, err := p.pool.Exec(ctx, query, msg.ID, msg.Type, msg.RunID, msg.Timestamp, payload); err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// Messages returns the messages of one run ordered by timestamp.
func (p *Processor) Messages(ctx context.Context, runID string) ([]pipeline.FeatureMessage, error) {
	query := fmt.Sprintf(`
		SELECT id, type, run_id, timestamp, payload
		FROM %s
		WHERE run_id = $1
		ORDER BY timestamp ASC
	`, p.table)

	rows, err := p.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []pipeline.FeatureMessage
	for rows.Next() {
		var (
			msg     pipeline.FeatureMessage
			payload []byte
		)
		if err := rows.Scan(&msg.ID, &msg.Type, &msg.RunID, &msg.Timestamp, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &msg.Payload); err != nil {
				return nil, fmt.Errorf("unmarshal payload: %w", err)
			}
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// Close closes the pool when the processor created it.
func (p *Processor) Close(context.Context) error {
	if p.owned {
		p.pool.Close()
	}
	return nil
}
