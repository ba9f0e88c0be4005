// Package audit define el registro inmutable de decisiones legales y su
// encadenamiento por hash.
//
// Cada registro fija su record_hash en el momento de creación sobre una
// serialización canónica de todos sus campos más el hash del predecesor.
// Alterar cualquier registro rompe la verificación de los posteriores.
package audit

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Record es un registro de decisión inmutable.
// RecordHash se calcula una única vez en New y nunca se recalcula.
type Record struct {
	ID              string            `json:"id"`
	Timestamp       time.Time         `json:"timestamp"`
	EventType       string            `json:"event_type"`
	Actor           string            `json:"actor"`
	StatuteID       string            `json:"statute_id"`
	SubjectID       string            `json:"subject_id"`
	DecisionContext map[string]string `json:"decision_context,omitempty"`
	DecisionResult  string            `json:"decision_result"`
	PreviousHash    *string           `json:"previous_hash,omitempty"`
	RecordHash      string            `json:"record_hash"`
}

// Input agrupa los campos para crear un Record.
// Timestamp vacío se reemplaza por time.Now().UTC().
type Input struct {
	EventType       string
	Actor           string
	StatuteID       string
	SubjectID       string
	DecisionContext map[string]string
	DecisionResult  string
	Timestamp       time.Time
	// PreviousHash debe ser el último hash reportado por el backend
	// (LastHash); nil para el primer registro de la cadena.
	PreviousHash *string
}

// New crea un registro con un UUID nuevo y su hash de contenido fijado.
func New(in Input, h Hasher) (*Record, error) {
	if h == nil {
		h = SHA256()
	}
	if in.EventType == "" {
		return nil, fmt.Errorf("audit: event type is required")
	}
	ts := in.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	r := &Record{
		ID:              uuid.NewString(),
		Timestamp:       ts,
		EventType:       in.EventType,
		Actor:           in.Actor,
		StatuteID:       in.StatuteID,
		SubjectID:       in.SubjectID,
		DecisionContext: cloneContext(in.DecisionContext),
		DecisionResult:  in.DecisionResult,
		PreviousHash:    cloneHash(in.PreviousHash),
	}

	hash, err := ComputeHash(r, h)
	if err != nil {
		return nil, err
	}
	r.RecordHash = hash
	return r, nil
}

// ComputeHash calcula el hash canónico de un registro (sin RecordHash).
// json.Marshal ordena las keys de los maps, así que la serialización
// es determinística.
func ComputeHash(r *Record, h Hasher) (string, error) {
	payload := struct {
		ID              string            `json:"id"`
		Timestamp       time.Time         `json:"timestamp"`
		EventType       string            `json:"event_type"`
		Actor           string            `json:"actor"`
		StatuteID       string            `json:"statute_id"`
		SubjectID       string            `json:"subject_id"`
		DecisionContext map[string]string `json:"decision_context,omitempty"`
		DecisionResult  string            `json:"decision_result"`
		PreviousHash    *string           `json:"previous_hash,omitempty"`
	}{
		ID:              r.ID,
		Timestamp:       r.Timestamp,
		EventType:       r.EventType,
		Actor:           r.Actor,
		StatuteID:       r.StatuteID,
		SubjectID:       r.SubjectID,
		DecisionContext: r.DecisionContext,
		DecisionResult:  r.DecisionResult,
		PreviousHash:    r.PreviousHash,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("audit: marshal record for hashing: %w", err)
	}
	return h.Sum(data), nil
}

// Clone retorna una copia profunda del registro.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.DecisionContext = cloneContext(r.DecisionContext)
	out.PreviousHash = cloneHash(r.PreviousHash)
	return &out
}

// SortByTimestamp ordena registros ascendente por timestamp, desempatando
// por ID para que el orden sea estable.
func SortByTimestamp(records []*Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].ID < records[j].ID
		}
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
}

func cloneContext(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneHash(h *string) *string {
	if h == nil {
		return nil
	}
	v := *h
	return &v
}
