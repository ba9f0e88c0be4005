// Package pg implementa el backend PostgreSQL del audit trail.
// Usa pgxpool directamente; el esquema se crea al conectar si no existe.
package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/lextrail/internal/audit"
	"github.com/dropDatabas3/lextrail/internal/store/core"
)

// Config configura la conexión.
type Config struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// Storage es el backend PostgreSQL.
type Storage struct {
	pool *pgxpool.Pool
}

// Open crea el pool, verifica la conexión y asegura el esquema.
func Open(ctx context.Context, cfg Config) (*Storage, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pg: parse DSN: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	} else {
		poolCfg.MaxConns = 10
	}
	if cfg.MaxIdleConns > 0 {
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
	} else {
		poolCfg.MinConns = 2
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("pg: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping failed: %w", err)
	}

	s := &Storage{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Storage) ensureSchema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS audit_record (
			id               TEXT PRIMARY KEY,
			ts               TIMESTAMPTZ NOT NULL,
			event_type       TEXT NOT NULL,
			actor            TEXT NOT NULL DEFAULT '',
			statute_id       TEXT NOT NULL DEFAULT '',
			subject_id       TEXT NOT NULL DEFAULT '',
			decision_context JSONB NOT NULL DEFAULT '{}'::jsonb,
			decision_result  TEXT NOT NULL DEFAULT '',
			previous_hash    TEXT,
			record_hash      TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS audit_record_ts_idx      ON audit_record (ts);
		CREATE INDEX IF NOT EXISTS audit_record_statute_idx ON audit_record (statute_id);
		CREATE INDEX IF NOT EXISTS audit_record_subject_idx ON audit_record (subject_id);

		CREATE TABLE IF NOT EXISTS audit_chain_state (
			id        BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (id),
			last_hash TEXT
		);
	`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("pg: ensure schema: %w", err)
	}
	return nil
}

func (s *Storage) Store(ctx context.Context, rec *audit.Record) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("pg: %w: record with id is required", core.ErrInvalid)
	}

	dctx, err := json.Marshal(contextOrEmpty(rec.DecisionContext))
	if err != nil {
		return fmt.Errorf("pg: marshal decision context: %w", err)
	}

	const query = `
		INSERT INTO audit_record
			(id, ts, event_type, actor, statute_id, subject_id, decision_context, decision_result, previous_hash, record_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			ts = EXCLUDED.ts,
			event_type = EXCLUDED.event_type,
			actor = EXCLUDED.actor,
			statute_id = EXCLUDED.statute_id,
			subject_id = EXCLUDED.subject_id,
			decision_context = EXCLUDED.decision_context,
			decision_result = EXCLUDED.decision_result,
			previous_hash = EXCLUDED.previous_hash,
			record_hash = EXCLUDED.record_hash
	`
	_, err = s.pool.Exec(ctx, query,
		rec.ID, rec.Timestamp, rec.EventType, rec.Actor,
		rec.StatuteID, rec.SubjectID, dctx, rec.DecisionResult,
		rec.PreviousHash, rec.RecordHash,
	)
	if err != nil {
		return fmt.Errorf("pg: store record %s: %w", rec.ID, err)
	}
	return nil
}

func (s *Storage) Get(ctx context.Context, id string) (*audit.Record, error) {
	const query = selectColumns + ` WHERE id = $1`
	rec, err := scanRecord(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("pg: get %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("pg: get %s: %w", id, err)
	}
	return rec, nil
}

func (s *Storage) GetAll(ctx context.Context) ([]*audit.Record, error) {
	return s.query(ctx, selectColumns+` ORDER BY ts ASC, id ASC`)
}

func (s *Storage) GetByStatute(ctx context.Context, statuteID string) ([]*audit.Record, error) {
	return s.query(ctx, selectColumns+` WHERE statute_id = $1 ORDER BY ts ASC, id ASC`, statuteID)
}

func (s *Storage) GetBySubject(ctx context.Context, subjectID string) ([]*audit.Record, error) {
	return s.query(ctx, selectColumns+` WHERE subject_id = $1 ORDER BY ts ASC, id ASC`, subjectID)
}

func (s *Storage) GetByTimeRange(ctx context.Context, start, end time.Time) ([]*audit.Record, error) {
	// Bordes inclusivos
	return s.query(ctx, selectColumns+` WHERE ts >= $1 AND ts <= $2 ORDER BY ts ASC, id ASC`, start, end)
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_record`).Scan(&n); err != nil {
		return 0, fmt.Errorf("pg: count: %w", err)
	}
	return n, nil
}

func (s *Storage) LastHash(ctx context.Context) (*string, error) {
	var hash *string
	err := s.pool.QueryRow(ctx, `SELECT last_hash FROM audit_chain_state WHERE id`).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pg: get last hash: %w", err)
	}
	return hash, nil
}

func (s *Storage) SetLastHash(ctx context.Context, hash *string) error {
	const query = `
		INSERT INTO audit_chain_state (id, last_hash) VALUES (TRUE, $1)
		ON CONFLICT (id) DO UPDATE SET last_hash = EXCLUDED.last_hash
	`
	if _, err := s.pool.Exec(ctx, query, hash); err != nil {
		return fmt.Errorf("pg: set last hash: %w", err)
	}
	return nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Storage) Close() error {
	s.pool.Close()
	return nil
}

// ─── Helpers ───

const selectColumns = `
	SELECT id, ts, event_type, actor, statute_id, subject_id, decision_context, decision_result, previous_hash, record_hash
	FROM audit_record`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*audit.Record, error) {
	var rec audit.Record
	var dctx []byte
	err := row.Scan(
		&rec.ID, &rec.Timestamp, &rec.EventType, &rec.Actor,
		&rec.StatuteID, &rec.SubjectID, &dctx, &rec.DecisionResult,
		&rec.PreviousHash, &rec.RecordHash,
	)
	if err != nil {
		return nil, err
	}
	if len(dctx) > 0 {
		if err := json.Unmarshal(dctx, &rec.DecisionContext); err != nil {
			return nil, fmt.Errorf("unmarshal decision context: %w", err)
		}
	}
	return &rec, nil
}

func (s *Storage) query(ctx context.Context, sql string, args ...any) ([]*audit.Record, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("pg: query records: %w", err)
	}
	defer rows.Close()

	var out []*audit.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("pg: scan record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func contextOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
