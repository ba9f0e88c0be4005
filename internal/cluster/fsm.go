package cluster

import (
	"context"
	"encoding/json"
	"io"

	"github.com/hashicorp/raft"
	"go.uber.org/zap"

	"github.com/dropDatabas3/lextrail/internal/observability/logger"
	"github.com/dropDatabas3/lextrail/internal/store/partition"
)

// FSM aplica las mutaciones replicadas sobre el engine partition-tolerant.
// Los writes replicados entran por ApplyRemote, que mergea con el vector
// clock original del nodo emisor en lugar de incrementar el local.
type FSM struct {
	engine *partition.Storage
	log    *zap.Logger
}

func NewFSM(engine *partition.Storage) *FSM {
	return &FSM{engine: engine, log: logger.Named("cluster.fsm")}
}

// Apply decodifica la mutación y la ejecuta sobre el engine.
func (f *FSM) Apply(l *raft.Log) interface{} {
	if l == nil || len(l.Data) == 0 {
		return nil
	}
	var m Mutation
	if err := json.Unmarshal(l.Data, &m); err != nil {
		return err
	}

	switch m.Type {
	case MutationStoreRecord:
		var dto StoreRecordDTO
		if err := json.Unmarshal(m.Payload, &dto); err != nil {
			return err
		}
		// El write local ya fue aplicado por el nodo emisor: no re-aplicar.
		if m.NodeID == f.engine.NodeID() {
			return nil
		}
		return f.engine.ApplyRemote(dto.Record, dto.Clock)

	case MutationSetLastHash:
		var dto SetLastHashDTO
		if err := json.Unmarshal(m.Payload, &dto); err != nil {
			return err
		}
		return f.engine.SetLastHash(context.Background(), dto.LastHash)

	case MutationResolveConflict:
		var dto ResolveConflictDTO
		if err := json.Unmarshal(m.Payload, &dto); err != nil {
			return err
		}
		if m.NodeID == f.engine.NodeID() {
			return nil
		}
		return f.engine.ResolveConflict(dto.RecordID, dto.Chosen)

	default:
		// Tipo desconocido (nodo viejo frente a log nuevo): ignorar
		f.log.Warn("unknown mutation type", logger.String("type", string(m.Type)))
		return nil
	}
}

// Snapshot serializa el estado replicable del engine.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	return &engineSnap{engine: f.engine}, nil
}

// Restore reemplaza el estado del engine con un snapshot previo.
func (f *FSM) Restore(rc io.ReadCloser) error {
	if rc == nil {
		return nil
	}
	defer rc.Close()
	return f.engine.ReadSnapshot(rc)
}

type engineSnap struct {
	engine *partition.Storage
}

func (s *engineSnap) Persist(sink raft.SnapshotSink) error {
	if err := s.engine.WriteSnapshot(sink); err != nil {
		_ = sink.Cancel()
		return err
	}
	return sink.Close()
}

func (s *engineSnap) Release() {}
