// Package auditpg mirrors pool invocation records into PostgreSQL. It
// implements mcppool.Sink so attaching durable audit storage is a single
// option on the manager.
package auditpg

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcpdemo/mcp-console/pkg/mcppool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS tool_calls (
	call_id     TEXT PRIMARY KEY,
	server_id   TEXT NOT NULL,
	server_name TEXT NOT NULL,
	tool        TEXT NOT NULL,
	arguments   JSONB,
	status      TEXT NOT NULL,
	result      TEXT,
	error       TEXT,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	duration_ms BIGINT
)`

// Store is a PostgreSQL-backed audit sink.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to the database and verifies reachability with a short ping.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() { s.pool.Close() }

// EnsureSchema creates the audit table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaSQL)
	return err
}

// CallStarted inserts the executing record.
func (s *Store) CallStarted(ctx context.Context, rec mcppool.CallRecord) error {
	args, err := json.Marshal(rec.Arguments)
	if err != nil {
		return fmt.Errorf("encode arguments: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO tool_calls (call_id, server_id, server_name, tool, arguments, status, started_at)
		VALUES ($1,$2,$3,$4,$5::jsonb,$6,$7)
	`, rec.ID, rec.ServerID, rec.ServerName, rec.Tool, args, string(rec.Status), rec.StartedAt)
	return err
}

// CallFinished records the terminal outcome for a previously started call.
func (s *Store) CallFinished(ctx context.Context, rec mcppool.CallRecord) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE tool_calls
		SET status=$2, result=$3, error=$4, finished_at=now(), duration_ms=$5
		WHERE call_id=$1
	`, rec.ID, string(rec.Status), nullIfEmpty(rec.Result), nullIfEmpty(rec.Error), rec.Duration.Milliseconds())
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
