// Package cluster provee la infraestructura Raft del audit trail:
// replicación de writes entre nodos, snapshots del engine y un watcher
// que traduce pérdida de contacto con el leader a estado de partición.
package cluster

import (
	"encoding/json"

	"github.com/dropDatabas3/lextrail/internal/audit"
	"github.com/dropDatabas3/lextrail/internal/vclock"
)

// MutationType define el catálogo de operaciones replicadas.
type MutationType string

const (
	// MutationStoreRecord replica un audit record con su vector clock.
	MutationStoreRecord MutationType = "store_record"
	// MutationSetLastHash replica el head de la cadena de hashes.
	MutationSetLastHash MutationType = "set_last_hash"
	// MutationResolveConflict replica una resolución manual de conflicto.
	MutationResolveConflict MutationType = "resolve_conflict"
)

// Mutation representa una operación a replicar por Raft.
// El payload es JSON crudo pre-serializado del DTO correspondiente.
type Mutation struct {
	Type    MutationType `json:"type"`
	NodeID  string       `json:"nodeId"`
	TsUnix  int64        `json:"tsUnix"`
	Payload []byte       `json:"payload"`
}

// StoreRecordDTO es el payload de MutationStoreRecord.
type StoreRecordDTO struct {
	Record *audit.Record `json:"record"`
	Clock  vclock.Clock  `json:"clock"`
}

// SetLastHashDTO es el payload de MutationSetLastHash.
type SetLastHashDTO struct {
	LastHash *string `json:"last_hash"`
}

// ResolveConflictDTO es el payload de MutationResolveConflict.
type ResolveConflictDTO struct {
	RecordID string        `json:"record_id"`
	Chosen   *audit.Record `json:"chosen"`
}

func marshalPayload(v any) []byte {
	raw, _ := json.Marshal(v)
	return raw
}
