// Package memory implementa el backend in-memory del audit trail.
// Pensado para tests y single-node sin durabilidad; no trackea causalidad
// (para eso está el backend partition).
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dropDatabas3/lextrail/internal/audit"
	"github.com/dropDatabas3/lextrail/internal/store/core"
)

// Storage es un mapa protegido por RWMutex. Último write gana.
type Storage struct {
	mu       sync.RWMutex
	records  map[string]*audit.Record
	lastHash *string
}

// New crea un backend vacío.
func New() *Storage {
	return &Storage{records: make(map[string]*audit.Record)}
}

func (s *Storage) Store(ctx context.Context, rec *audit.Record) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("memory: %w: record with id is required", core.ErrInvalid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec.Clone()
	return nil
}

func (s *Storage) Get(ctx context.Context, id string) (*audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("memory: get %s: %w", id, core.ErrNotFound)
	}
	return rec.Clone(), nil
}

func (s *Storage) GetAll(ctx context.Context) ([]*audit.Record, error) {
	return s.collect(func(r *audit.Record) bool { return true }), nil
}

func (s *Storage) GetByStatute(ctx context.Context, statuteID string) ([]*audit.Record, error) {
	return s.collect(func(r *audit.Record) bool { return r.StatuteID == statuteID }), nil
}

func (s *Storage) GetBySubject(ctx context.Context, subjectID string) ([]*audit.Record, error) {
	return s.collect(func(r *audit.Record) bool { return r.SubjectID == subjectID }), nil
}

func (s *Storage) GetByTimeRange(ctx context.Context, start, end time.Time) ([]*audit.Record, error) {
	return s.collect(func(r *audit.Record) bool {
		return !r.Timestamp.Before(start) && !r.Timestamp.After(end)
	}), nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *Storage) LastHash(ctx context.Context) (*string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastHash == nil {
		return nil, nil
	}
	h := *s.lastHash
	return &h, nil
}

func (s *Storage) SetLastHash(ctx context.Context, hash *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if hash == nil {
		s.lastHash = nil
		return nil
	}
	h := *hash
	s.lastHash = &h
	return nil
}

func (s *Storage) Ping(ctx context.Context) error { return nil }

func (s *Storage) Close() error { return nil }

func (s *Storage) collect(match func(*audit.Record) bool) []*audit.Record {
	s.mu.RLock()
	out := make([]*audit.Record, 0, len(s.records))
	for _, rec := range s.records {
		if match(rec) {
			out = append(out, rec.Clone())
		}
	}
	s.mu.RUnlock()

	audit.SortByTimestamp(out)
	return out
}
