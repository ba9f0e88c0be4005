package partition

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dropDatabas3/lextrail/internal/audit"
	"github.com/dropDatabas3/lextrail/internal/vclock"
)

// engineState es la forma serializable del engine para snapshots raft.
// La cola de pending writes no se serializa: es estado local de la
// partición en curso, no estado replicado.
type engineState struct {
	Records  map[string]*versionedState `json:"records"`
	Clock    vclock.Clock               `json:"clock"`
	LastHash *string                    `json:"last_hash,omitempty"`
}

type versionedState struct {
	Record     *audit.Record   `json:"record"`
	Clock      vclock.Clock    `json:"clock"`
	OriginNode string          `json:"origin_node"`
	Versions   []*audit.Record `json:"versions,omitempty"`
	Conflicted bool            `json:"conflicted,omitempty"`
}

// WriteSnapshot serializa el estado replicable del engine como JSON.
func (s *Storage) WriteSnapshot(w io.Writer) error {
	state := engineState{Records: make(map[string]*versionedState)}

	s.mu.RLock()
	for id, v := range s.records {
		c := v.clone()
		state.Records[id] = &versionedState{
			Record:     c.Record,
			Clock:      c.Clock,
			OriginNode: c.OriginNode,
			Versions:   c.Versions,
			Conflicted: c.Conflicted,
		}
	}
	s.mu.RUnlock()

	s.clockMu.Lock()
	state.Clock = s.clock.Clone()
	s.clockMu.Unlock()

	s.hashMu.RLock()
	if s.lastHash != nil {
		h := *s.lastHash
		state.LastHash = &h
	}
	s.hashMu.RUnlock()

	if err := json.NewEncoder(w).Encode(&state); err != nil {
		return fmt.Errorf("partition: encode snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot reemplaza el estado del engine con un snapshot previo.
func (s *Storage) ReadSnapshot(r io.Reader) error {
	var state engineState
	if err := json.NewDecoder(r).Decode(&state); err != nil {
		return fmt.Errorf("partition: decode snapshot: %w", err)
	}

	records := make(map[string]*VersionedRecord, len(state.Records))
	for id, v := range state.Records {
		records[id] = &VersionedRecord{
			Record:     v.Record,
			Clock:      v.Clock,
			OriginNode: v.OriginNode,
			Versions:   v.Versions,
			Conflicted: v.Conflicted,
		}
	}

	s.mu.Lock()
	s.records = records
	s.mu.Unlock()

	s.clockMu.Lock()
	if state.Clock == nil {
		state.Clock = vclock.New()
	}
	s.clock = state.Clock
	s.clockMu.Unlock()

	s.hashMu.Lock()
	s.lastHash = state.LastHash
	s.hashMu.Unlock()

	return nil
}
