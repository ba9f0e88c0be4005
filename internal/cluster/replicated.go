package cluster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/lextrail/internal/audit"
	"github.com/dropDatabas3/lextrail/internal/observability/logger"
	"github.com/dropDatabas3/lextrail/internal/store/core"
	"github.com/dropDatabas3/lextrail/internal/store/partition"
)

// ErrNotLeader indica que un write conectado llegó a un follower.
// Los clientes deben reintentar contra el leader (LeaderID lo identifica).
var ErrNotLeader = errors.New("cluster: node is not the leader")

// Replicated decora el engine con replicación Raft. Los writes se
// aplican primero al engine local (que asigna el vector clock) y después
// se propagan por el log Raft; el FSM de cada follower los mergea con
// ApplyRemote. Bajo partición el engine bufferea y no se replica nada.
//
// Las lecturas son siempre locales: el engine responde con su estado
// actual aunque esté particionado (disponibilidad sobre consistencia).
type Replicated struct {
	engine *partition.Storage
	node   *Node
	log    *zap.Logger
}

// NewReplicated arma la capa de replicación sobre engine y node.
func NewReplicated(engine *partition.Storage, node *Node) *Replicated {
	return &Replicated{
		engine: engine,
		node:   node,
		log:    logger.Named("cluster.storage"),
	}
}

// Store aplica el write localmente y lo replica si el nodo es leader.
// Bajo partición el write queda buffereado localmente y retorna éxito.
// Writes conectados en un follower fallan con ErrNotLeader.
func (r *Replicated) Store(ctx context.Context, rec *audit.Record) error {
	if r.engine.IsPartitioned() {
		return r.engine.Store(ctx, rec)
	}
	if !r.node.IsLeader() {
		return fmt.Errorf("store record %s: %w", rec.ID, ErrNotLeader)
	}

	clk, err := r.engine.StoreWithClock(ctx, rec)
	if err != nil {
		return err
	}

	m := Mutation{
		Type:    MutationStoreRecord,
		NodeID:  r.engine.NodeID(),
		TsUnix:  time.Now().Unix(),
		Payload: marshalPayload(StoreRecordDTO{Record: rec, Clock: clk}),
	}
	if _, err := r.node.Apply(ctx, m); err != nil {
		// El write local ya está aplicado; la réplica se recupera por el
		// log raft cuando el quorum vuelva.
		r.log.Warn("replicate store failed", logger.RecordID(rec.ID), logger.Err(err))
	}
	return nil
}

// SetLastHash replica el head de la cadena además de fijarlo localmente.
func (r *Replicated) SetLastHash(ctx context.Context, hash *string) error {
	if err := r.engine.SetLastHash(ctx, hash); err != nil {
		return err
	}
	if r.engine.IsPartitioned() || !r.node.IsLeader() {
		return nil
	}
	m := Mutation{
		Type:    MutationSetLastHash,
		NodeID:  r.engine.NodeID(),
		TsUnix:  time.Now().Unix(),
		Payload: marshalPayload(SetLastHashDTO{LastHash: hash}),
	}
	if _, err := r.node.Apply(ctx, m); err != nil {
		r.log.Warn("replicate last hash failed", logger.Err(err))
	}
	return nil
}

// ResolveConflict replica la resolución manual a los followers.
func (r *Replicated) ResolveConflict(id string, chosen *audit.Record) error {
	if err := r.engine.ResolveConflict(id, chosen); err != nil {
		return err
	}
	if r.engine.IsPartitioned() || !r.node.IsLeader() {
		return nil
	}
	m := Mutation{
		Type:    MutationResolveConflict,
		NodeID:  r.engine.NodeID(),
		TsUnix:  time.Now().Unix(),
		Payload: marshalPayload(ResolveConflictDTO{RecordID: id, Chosen: chosen}),
	}
	if _, err := r.node.Apply(context.Background(), m); err != nil {
		r.log.Warn("replicate conflict resolution failed", logger.RecordID(id), logger.Err(err))
	}
	return nil
}

// ─── Delegación de lecturas y lifecycle al engine local ───

func (r *Replicated) Get(ctx context.Context, id string) (*audit.Record, error) {
	return r.engine.Get(ctx, id)
}

func (r *Replicated) GetAll(ctx context.Context) ([]*audit.Record, error) {
	return r.engine.GetAll(ctx)
}

func (r *Replicated) GetByStatute(ctx context.Context, statuteID string) ([]*audit.Record, error) {
	return r.engine.GetByStatute(ctx, statuteID)
}

func (r *Replicated) GetBySubject(ctx context.Context, subjectID string) ([]*audit.Record, error) {
	return r.engine.GetBySubject(ctx, subjectID)
}

func (r *Replicated) GetByTimeRange(ctx context.Context, start, end time.Time) ([]*audit.Record, error) {
	return r.engine.GetByTimeRange(ctx, start, end)
}

func (r *Replicated) Count(ctx context.Context) (int, error) {
	return r.engine.Count(ctx)
}

func (r *Replicated) LastHash(ctx context.Context) (*string, error) {
	return r.engine.LastHash(ctx)
}

func (r *Replicated) Ping(ctx context.Context) error {
	return r.engine.Ping(ctx)
}

func (r *Replicated) Close() error {
	if err := r.node.Close(); err != nil {
		return err
	}
	return r.engine.Close()
}

// interfaz completa
var _ core.AuditStorage = (*Replicated)(nil)
