package store

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/lextrail/internal/audit"
	"github.com/dropDatabas3/lextrail/internal/cache"
	"github.com/dropDatabas3/lextrail/internal/observability/logger"
	"github.com/dropDatabas3/lextrail/internal/store/core"
)

const cacheKeyPrefix = "audit:rec:"

// cachedStorage decora un backend con un cache read-through sobre Get.
// Los registros son inmutables una vez escritos, así que una entrada solo
// queda stale si el mismo id se re-escribe (merge de conflictos); Store
// invalida la key para cubrir ese caso. Las list queries no se cachean.
type cachedStorage struct {
	inner core.AuditStorage
	cache cache.Client
	ttl   time.Duration
	log   *zap.Logger
}

// NewCached envuelve inner con el cache dado.
func NewCached(inner core.AuditStorage, c cache.Client, ttl time.Duration) core.AuditStorage {
	return &cachedStorage{
		inner: inner,
		cache: c,
		ttl:   ttl,
		log:   logger.Named("store.cache"),
	}
}

func (s *cachedStorage) Store(ctx context.Context, rec *audit.Record) error {
	if err := s.inner.Store(ctx, rec); err != nil {
		return err
	}
	// Invalidar por si ya había una versión cacheada del mismo id
	if err := s.cache.Delete(ctx, cacheKeyPrefix+rec.ID); err != nil {
		s.log.Debug("cache invalidation failed", logger.RecordID(rec.ID), logger.Err(err))
	}
	return nil
}

func (s *cachedStorage) Get(ctx context.Context, id string) (*audit.Record, error) {
	key := cacheKeyPrefix + id
	if raw, err := s.cache.Get(ctx, key); err == nil {
		var rec audit.Record
		if err := json.Unmarshal([]byte(raw), &rec); err == nil {
			return &rec, nil
		}
		// Entrada corrupta: descartar y seguir al backend
		_ = s.cache.Delete(ctx, key)
	}

	rec, err := s.inner.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(rec); err == nil {
		if err := s.cache.Set(ctx, key, string(raw), s.ttl); err != nil {
			s.log.Debug("cache set failed", logger.RecordID(id), logger.Err(err))
		}
	}
	return rec, nil
}

func (s *cachedStorage) GetAll(ctx context.Context) ([]*audit.Record, error) {
	return s.inner.GetAll(ctx)
}

func (s *cachedStorage) GetByStatute(ctx context.Context, statuteID string) ([]*audit.Record, error) {
	return s.inner.GetByStatute(ctx, statuteID)
}

func (s *cachedStorage) GetBySubject(ctx context.Context, subjectID string) ([]*audit.Record, error) {
	return s.inner.GetBySubject(ctx, subjectID)
}

func (s *cachedStorage) GetByTimeRange(ctx context.Context, start, end time.Time) ([]*audit.Record, error) {
	return s.inner.GetByTimeRange(ctx, start, end)
}

func (s *cachedStorage) Count(ctx context.Context) (int, error) {
	return s.inner.Count(ctx)
}

func (s *cachedStorage) LastHash(ctx context.Context) (*string, error) {
	return s.inner.LastHash(ctx)
}

func (s *cachedStorage) SetLastHash(ctx context.Context, hash *string) error {
	return s.inner.SetLastHash(ctx, hash)
}

func (s *cachedStorage) Ping(ctx context.Context) error {
	return s.inner.Ping(ctx)
}

func (s *cachedStorage) Close() error {
	if err := s.cache.Close(); err != nil {
		s.log.Debug("cache close failed", logger.Err(err))
	}
	return s.inner.Close()
}
