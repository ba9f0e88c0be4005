// Package badger implementa el backend embebido del audit trail sobre
// BadgerDB. Pensado para nodos single-binary sin PostgreSQL: latencia
// local baja y durabilidad con SyncWrites.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/dropDatabas3/lextrail/internal/audit"
	"github.com/dropDatabas3/lextrail/internal/observability/logger"
	"github.com/dropDatabas3/lextrail/internal/store/core"
)

const (
	recPrefix   = "rec:"
	lastHashKey = "chain:last_hash"
)

// Config configura la instancia BadgerDB.
type Config struct {
	// Path es el directorio de datos. Ignorado si InMemory.
	Path string
	// InMemory desactiva la persistencia (tests).
	InMemory bool
	// SyncWrites fuerza fsync por write. Default true en disco.
	SyncWrites bool
}

// Storage es el backend BadgerDB.
type Storage struct {
	db  *badger.DB
	log *zap.Logger
}

// Open abre (o crea) la base.
func Open(cfg Config) (*Storage, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, fmt.Errorf("badger: %w: data path is required", core.ErrInvalid)
	}

	opts := badger.DefaultOptions(cfg.Path).
		WithInMemory(cfg.InMemory).
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open: %w", err)
	}
	return &Storage{db: db, log: logger.Named("badger")}, nil
}

func recKey(id string) []byte { return []byte(recPrefix + id) }

func (s *Storage) Store(ctx context.Context, rec *audit.Record) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("badger: %w: record with id is required", core.ErrInvalid)
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("badger: marshal record %s: %w", rec.ID, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recKey(rec.ID), raw)
	})
	if err != nil {
		return fmt.Errorf("badger: store record %s: %w", rec.ID, err)
	}
	return nil
}

func (s *Storage) Get(ctx context.Context, id string) (*audit.Record, error) {
	var rec audit.Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("badger: get %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("badger: get %s: %w", id, err)
	}
	return &rec, nil
}

func (s *Storage) GetAll(ctx context.Context) ([]*audit.Record, error) {
	return s.scan(func(r *audit.Record) bool { return true })
}

func (s *Storage) GetByStatute(ctx context.Context, statuteID string) ([]*audit.Record, error) {
	return s.scan(func(r *audit.Record) bool { return r.StatuteID == statuteID })
}

func (s *Storage) GetBySubject(ctx context.Context, subjectID string) ([]*audit.Record, error) {
	return s.scan(func(r *audit.Record) bool { return r.SubjectID == subjectID })
}

func (s *Storage) GetByTimeRange(ctx context.Context, start, end time.Time) ([]*audit.Record, error) {
	return s.scan(func(r *audit.Record) bool {
		return !r.Timestamp.Before(start) && !r.Timestamp.After(end)
	})
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(recPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("badger: count: %w", err)
	}
	return n, nil
}

func (s *Storage) LastHash(ctx context.Context) (*string, error) {
	var hash *string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(lastHashKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			h := string(val)
			hash = &h
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("badger: get last hash: %w", err)
	}
	return hash, nil
}

func (s *Storage) SetLastHash(ctx context.Context, hash *string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if hash == nil {
			return txn.Delete([]byte(lastHashKey))
		}
		return txn.Set([]byte(lastHashKey), []byte(*hash))
	})
	if err != nil {
		return fmt.Errorf("badger: set last hash: %w", err)
	}
	return nil
}

func (s *Storage) Ping(ctx context.Context) error {
	if s.db.IsClosed() {
		return fmt.Errorf("badger: %w: database closed", core.ErrStorage)
	}
	return nil
}

func (s *Storage) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("badger: close: %w", err)
	}
	return nil
}

func (s *Storage) scan(match func(*audit.Record) bool) ([]*audit.Record, error) {
	var out []*audit.Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var rec audit.Record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			if match(&rec) {
				out = append(out, &rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger: scan records: %w", err)
	}

	audit.SortByTimestamp(out)
	return out, nil
}
