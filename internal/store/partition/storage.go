// Package partition implementa el backend partition-tolerant del audit
// trail: un mapa de VersionedRecords con detección de conflictos por
// vector clock, una cola FIFO de pending writes para operar bajo
// partición, y replay al sanar.
//
// El engine es una estructura pasiva: no tiene goroutines propias y se
// coordina por mutual exclusion. Cada estructura guardada (mapa de
// registros, cola, clock local, last hash, flag de partición) tiene su
// propio lock con semántica reader/writer. El transporte de red y la
// señal de partición viven afuera (ver internal/cluster).
package partition

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/lextrail/internal/audit"
	"github.com/dropDatabas3/lextrail/internal/metrics"
	"github.com/dropDatabas3/lextrail/internal/observability/logger"
	"github.com/dropDatabas3/lextrail/internal/store/core"
	"github.com/dropDatabas3/lextrail/internal/vclock"
)

// Config configura el engine.
type Config struct {
	// NodeID identifica esta réplica en los vector clocks (requerido).
	NodeID string

	// Strategy es la política de merge para writes concurrentes.
	// Default: LastWriteWins.
	Strategy Strategy

	// MaxPendingWrites acota la cola de writes bajo partición.
	// Default: 1000. 0 = ilimitada.
	MaxPendingWrites int

	// Flags de policy para el deployment multi-nodo. El engine no los
	// aplica; se exponen vía Status para la capa de coordinación.
	EnableReadRepair bool
	QuorumReads      bool
	QuorumWrites     bool

	// OnConflict se invoca (fuera de los locks) cuando un write concurrente
	// queda en conflicto sin resolución automática. Opcional.
	OnConflict func(v *VersionedRecord)
}

const defaultMaxPendingWrites = 1000

// Storage es el backend partition-tolerant. Implementa core.AuditStorage
// más la superficie de control de partición.
type Storage struct {
	cfg Config
	log *zap.Logger

	mu      sync.RWMutex // protege records
	records map[string]*VersionedRecord

	clockMu sync.Mutex // protege clock
	clock   vclock.Clock

	queue *pendingQueue

	hashMu   sync.RWMutex // protege lastHash
	lastHash *string

	partMu      sync.RWMutex // protege partitioned
	partitioned bool
}

// New crea un engine Connected con el mapa vacío.
func New(cfg Config) (*Storage, error) {
	if cfg.NodeID == "" {
		return nil, fmt.Errorf("partition: %w: node id is required", core.ErrInvalid)
	}
	if cfg.Strategy == "" {
		cfg.Strategy = LastWriteWins
	}
	if cfg.MaxPendingWrites == 0 {
		cfg.MaxPendingWrites = defaultMaxPendingWrites
	}
	return &Storage{
		cfg:     cfg,
		log:     logger.Named("partition"),
		records: make(map[string]*VersionedRecord),
		clock:   vclock.New(),
		queue:   newPendingQueue(cfg.MaxPendingWrites),
	}, nil
}

// NodeID retorna el id de esta réplica.
func (s *Storage) NodeID() string { return s.cfg.NodeID }

// Strategy retorna la estrategia configurada.
func (s *Storage) Strategy() Strategy { return s.cfg.Strategy }

// ─── Write path ───

// Store incrementa el clock local, estampa el write y lo mergea (o lo
// encola si el nodo está particionado). Writes bajo partición retornan
// éxito inmediato: disponibilidad sobre notificación.
func (s *Storage) Store(ctx context.Context, rec *audit.Record) error {
	_, err := s.StoreWithClock(ctx, rec)
	return err
}

// StoreWithClock es Store pero retorna el snapshot del vector clock con
// el que se estampó el write. La capa de replicación lo necesita para
// propagar el write con su clock original.
func (s *Storage) StoreWithClock(ctx context.Context, rec *audit.Record) (vclock.Clock, error) {
	if rec == nil || rec.ID == "" {
		return nil, fmt.Errorf("partition: %w: record with id is required", core.ErrInvalid)
	}

	s.clockMu.Lock()
	s.clock.Increment(s.cfg.NodeID)
	snapshot := s.clock.Clone()
	s.clockMu.Unlock()

	// El RLock sobre partMu se sostiene durante el enqueue para que
	// MarkHealed (que toma el lock exclusivo) no pueda dejar un write
	// varado entre la lectura del flag y el enqueue.
	s.partMu.RLock()
	if s.partitioned {
		err := s.queue.enqueue(pendingWrite{
			Record:     rec.Clone(),
			Clock:      snapshot,
			EnqueuedAt: time.Now(),
		})
		s.partMu.RUnlock()
		if err != nil {
			metrics.AuditStoresTotal.WithLabelValues("queue_full").Inc()
			return nil, fmt.Errorf("partition: buffer write %s: %w", rec.ID, err)
		}
		metrics.AuditStoresTotal.WithLabelValues("buffered").Inc()
		metrics.PendingWrites.Set(float64(s.queue.len()))
		return snapshot, nil
	}
	s.partMu.RUnlock()

	s.storeVersioned(rec.Clone(), snapshot)
	metrics.AuditStoresTotal.WithLabelValues("ok").Inc()
	return snapshot, nil
}

// ApplyRemote mergea un write replicado desde otro nodo con su clock
// original y avanza el clock local con Merge. Lo usa el FSM del cluster.
func (s *Storage) ApplyRemote(rec *audit.Record, clk vclock.Clock) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("partition: %w: record with id is required", core.ErrInvalid)
	}
	s.clockMu.Lock()
	s.clock.Merge(clk)
	s.clockMu.Unlock()

	s.storeVersioned(rec.Clone(), clk.Clone())
	return nil
}

// storeVersioned es el único camino de merge al mapa de registros:
// writes directos, replay de heal y writes replicados pasan por acá.
func (s *Storage) storeVersioned(rec *audit.Record, clk vclock.Clock) {
	var unresolved *VersionedRecord

	s.mu.Lock()
	existing, ok := s.records[rec.ID]
	switch {
	case !ok:
		s.records[rec.ID] = &VersionedRecord{
			Record:     rec,
			Clock:      clk,
			OriginNode: s.cfg.NodeID,
		}

	case clk.Concurrent(existing.Clock):
		// Conflicto real: se registra como dato, nunca como error.
		existing.Versions = append(existing.Versions, rec)
		existing.Conflicted = true
		// El clock del estado sobreviviente domina ambas ramas.
		existing.Clock.Merge(clk)
		metrics.ConflictsDetected.Inc()
		existing.resolve(s.cfg.Strategy)
		if existing.Conflicted {
			unresolved = existing.clone()
		}

	case clk.HappensBefore(existing.Clock):
		// Write stale: descarte silencioso, sin error.
		metrics.StaleWritesDropped.Inc()
		s.log.Debug("dropping stale write",
			logger.RecordID(rec.ID), logger.Node(s.cfg.NodeID))

	default:
		// Update causal (existing happens-before incoming, o iguales):
		// reemplaza record y clock, no toca versions/conflicted.
		existing.Record = rec
		existing.Clock = clk
	}
	s.mu.Unlock()

	if unresolved != nil && s.cfg.OnConflict != nil {
		s.cfg.OnConflict(unresolved)
	}
}

// ─── Partition state machine ───

// MarkPartitioned pasa el nodo a Partitioned. Idempotente.
func (s *Storage) MarkPartitioned() {
	s.partMu.Lock()
	already := s.partitioned
	s.partitioned = true
	s.partMu.Unlock()

	metrics.PartitionState.Set(1)
	if !already {
		s.log.Warn("node partitioned, buffering writes", logger.Node(s.cfg.NodeID))
	}
}

// MarkHealed drena la cola de pending writes (FIFO) reproduciéndolos por
// el merge path y vuelve a Connected. El drain se hace bajo el lock de la
// cola hacia un snapshot local; el replay corre fuera del lock para no
// sostenerlo durante merges potencialmente lentos.
func (s *Storage) MarkHealed() {
	start := time.Now()
	replayed := 0

	for {
		batch := s.queue.drain()
		for _, w := range batch {
			s.storeVersioned(w.Record, w.Clock)
			replayed++
		}

		// Solo salir de Partitioned con la cola vacía: un write que haya
		// entrado durante el replay se drena en la próxima vuelta.
		s.partMu.Lock()
		if s.queue.len() == 0 {
			s.partitioned = false
			s.partMu.Unlock()
			break
		}
		s.partMu.Unlock()
	}

	metrics.PartitionState.Set(0)
	metrics.PendingWrites.Set(0)
	metrics.HealReplaySeconds.Observe(time.Since(start).Seconds())
	if replayed > 0 {
		s.log.Info("partition healed, pending writes replayed",
			logger.Node(s.cfg.NodeID), logger.Count(replayed))
	}
}

// IsPartitioned retorna el estado actual del flag de partición.
func (s *Storage) IsPartitioned() bool {
	s.partMu.RLock()
	defer s.partMu.RUnlock()
	return s.partitioned
}

// PendingWriteCount retorna cuántos writes esperan replay.
func (s *Storage) PendingWriteCount() int {
	return s.queue.len()
}

// ─── Conflict surface ───

// ConflictedRecords retorna copias de los registros con conflicto pendiente.
func (s *Storage) ConflictedRecords() []*VersionedRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*VersionedRecord
	for _, v := range s.records {
		if v.Conflicted {
			out = append(out, v.clone())
		}
	}
	return out
}

// ResolveConflict fija chosen como registro vigente para id y limpia el
// conflicto, incondicionalmente. Retorna ErrNotFound si id no existe.
func (s *Storage) ResolveConflict(id string, chosen *audit.Record) error {
	if chosen == nil {
		return fmt.Errorf("partition: %w: chosen record is required", core.ErrInvalid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.records[id]
	if !ok {
		return fmt.Errorf("partition: resolve %s: %w", id, core.ErrNotFound)
	}
	v.Record = chosen.Clone()
	v.Versions = nil
	v.Conflicted = false
	metrics.ConflictsResolved.WithLabelValues("manual").Inc()
	return nil
}

// ─── Read path ───
// Las lecturas ven solo el record vigente de cada entrada, nunca versions.

func (s *Storage) Get(ctx context.Context, id string) (*audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("partition: get %s: %w", id, core.ErrNotFound)
	}
	return v.Record.Clone(), nil
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

func (s *Storage) collect(match func(*audit.Record) bool) []*audit.Record {
	s.mu.RLock()
	out := make([]*audit.Record, 0, len(s.records))
	for _, v := range s.records {
		if match(v.Record) {
			out = append(out, v.Record.Clone())
		}
	}
	s.mu.RUnlock()

	audit.SortByTimestamp(out)
	return out
}

// ─── Chain state ───

func (s *Storage) LastHash(ctx context.Context) (*string, error) {
	s.hashMu.RLock()
	defer s.hashMu.RUnlock()
	if s.lastHash == nil {
		return nil, nil
	}
	h := *s.lastHash
	return &h, nil
}

func (s *Storage) SetLastHash(ctx context.Context, hash *string) error {
	s.hashMu.Lock()
	defer s.hashMu.Unlock()
	if hash == nil {
		s.lastHash = nil
		return nil
	}
	h := *hash
	s.lastHash = &h
	return nil
}

// ─── Lifecycle ───

func (s *Storage) Ping(ctx context.Context) error { return nil }

func (s *Storage) Close() error { return nil }

// Status resume el estado del engine para la capa de coordinación.
type Status struct {
	NodeID           string   `json:"node_id"`
	Partitioned      bool     `json:"partitioned"`
	PendingWrites    int      `json:"pending_writes"`
	ConflictedCount  int      `json:"conflicted_count"`
	Strategy         Strategy `json:"strategy"`
	EnableReadRepair bool     `json:"enable_read_repair"`
	QuorumReads      bool     `json:"quorum_reads"`
	QuorumWrites     bool     `json:"quorum_writes"`
}

// StatusSnapshot arma un Status consistente a grandes rasgos (cada campo
// se lee bajo su propio lock).
func (s *Storage) StatusSnapshot() Status {
	s.mu.RLock()
	conflicted := 0
	for _, v := range s.records {
		if v.Conflicted {
			conflicted++
		}
	}
	s.mu.RUnlock()

	return Status{
		NodeID:           s.cfg.NodeID,
		Partitioned:      s.IsPartitioned(),
		PendingWrites:    s.PendingWriteCount(),
		ConflictedCount:  conflicted,
		Strategy:         s.cfg.Strategy,
		EnableReadRepair: s.cfg.EnableReadRepair,
		QuorumReads:      s.cfg.QuorumReads,
		QuorumWrites:     s.cfg.QuorumWrites,
	}
}
