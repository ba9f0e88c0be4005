package partition

import (
	"github.com/dropDatabas3/lextrail/internal/audit"
	"github.com/dropDatabas3/lextrail/internal/metrics"
	"github.com/dropDatabas3/lextrail/internal/vclock"
)

// VersionedRecord envuelve el registro vigente para un id junto con su
// vector clock, el nodo de origen y las versiones en conflicto sin resolver.
type VersionedRecord struct {
	Record     *audit.Record
	Clock      vclock.Clock
	OriginNode string
	Versions   []*audit.Record
	Conflicted bool
}

// resolve aplica la estrategia sobre un registro en conflicto.
// No-op si no hay conflicto o no quedaron versiones.
func (v *VersionedRecord) resolve(s Strategy) {
	if !v.Conflicted || len(v.Versions) == 0 {
		return
	}

	switch s {
	case LastWriteWins:
		winner := v.Record
		for _, cand := range v.Versions {
			if laterThan(cand, winner) {
				winner = cand
			}
		}
		v.Record = winner
		v.Versions = nil
		v.Conflicted = false
		metrics.ConflictsResolved.WithLabelValues(string(s)).Inc()

	case FirstWriteWins:
		v.Versions = nil
		v.Conflicted = false
		metrics.ConflictsResolved.WithLabelValues(string(s)).Inc()

	case KeepAll, Custom:
		// Retención deliberada: un operador resuelve vía ResolveConflict.
	}
}

// laterThan decide si a gana sobre b bajo LastWriteWins.
// Timestamp mayor gana; en empate gana el ID lexicográficamente mayor.
func laterThan(a, b *audit.Record) bool {
	if a.Timestamp.After(b.Timestamp) {
		return true
	}
	if a.Timestamp.Equal(b.Timestamp) {
		return a.ID > b.ID
	}
	return false
}

// clone retorna una copia profunda para exponer fuera del lock del engine.
func (v *VersionedRecord) clone() *VersionedRecord {
	out := &VersionedRecord{
		Record:     v.Record.Clone(),
		Clock:      v.Clock.Clone(),
		OriginNode: v.OriginNode,
		Conflicted: v.Conflicted,
	}
	if len(v.Versions) > 0 {
		out.Versions = make([]*audit.Record, len(v.Versions))
		for i, r := range v.Versions {
			out.Versions[i] = r.Clone()
		}
	}
	return out
}
