package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/lextrail/internal/audit"
	"github.com/dropDatabas3/lextrail/internal/observability/logger"
	"github.com/dropDatabas3/lextrail/internal/store/core"
	"github.com/dropDatabas3/lextrail/internal/store/partition"
)

// Resolver resuelve conflictos manualmente. En deployments con cluster lo
// implementa cluster.Replicated (resuelve local y replica); en single-node
// lo implementa el engine directamente.
type Resolver interface {
	ResolveConflict(id string, chosen *audit.Record) error
}

// Handlers agrupa las dependencias de la API.
type Handlers struct {
	Storage core.AuditStorage
	// Engine expone la superficie de control de partición. nil cuando el
	// backend configurado no es partition-tolerant; en ese caso los
	// endpoints /v1/partition/* y /v1/conflicts responden unsupported.
	Engine   *partition.Storage
	Hasher   audit.Hasher
	Resolver Resolver
}

var errUnsupported = &HTTPError{
	Code:    "unsupported",
	Message: "Operation not supported by the configured storage driver",
	Status:  http.StatusNotImplemented,
}

func (h *Handlers) resolver() Resolver {
	if h.Resolver != nil {
		return h.Resolver
	}
	return h.Engine
}

// ─── Records ───

type createRecordRequest struct {
	EventType       string            `json:"event_type"`
	Actor           string            `json:"actor"`
	StatuteID       string            `json:"statute_id"`
	SubjectID       string            `json:"subject_id"`
	DecisionContext map[string]string `json:"decision_context"`
	DecisionResult  string            `json:"decision_result"`
	Timestamp       *time.Time        `json:"timestamp,omitempty"`
}

// CreateRecord encadena un registro nuevo al final de la cadena local:
// lee el last hash, crea el registro con ese previous_hash y avanza el
// puntero de cadena al hash recién fijado.
func (h *Handlers) CreateRecord(w http.ResponseWriter, r *http.Request) {
	var req createRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, ErrInvalidJSON.WithDetail(err.Error()))
		return
	}
	if req.EventType == "" {
		WriteError(w, ErrBadRequest.WithDetail("event_type is required"))
		return
	}

	ctx := r.Context()
	last, err := h.Storage.LastHash(ctx)
	if err != nil {
		WriteError(w, err)
		return
	}

	in := audit.Input{
		EventType:       req.EventType,
		Actor:           req.Actor,
		StatuteID:       req.StatuteID,
		SubjectID:       req.SubjectID,
		DecisionContext: req.DecisionContext,
		DecisionResult:  req.DecisionResult,
		PreviousHash:    last,
	}
	if req.Timestamp != nil {
		in.Timestamp = req.Timestamp.UTC()
	}

	rec, err := audit.New(in, h.Hasher)
	if err != nil {
		WriteError(w, ErrBadRequest.WithDetail(err.Error()))
		return
	}

	if err := h.Storage.Store(ctx, rec); err != nil {
		WriteError(w, err)
		return
	}
	if err := h.Storage.SetLastHash(ctx, &rec.RecordHash); err != nil {
		// El registro ya está persistido; el chain head quedará atrás hasta
		// el próximo write exitoso.
		logger.From(ctx).Warn("advance chain head failed",
			logger.RecordID(rec.ID), logger.Err(err))
	}

	WriteJSON(w, http.StatusCreated, rec)
}

// ListRecords filtra por statute_id, subject_id o rango temporal
// (from/to en RFC 3339, ambos extremos inclusive).
func (h *Handlers) ListRecords(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	var (
		records []*audit.Record
		err     error
	)
	switch {
	case q.Get("statute_id") != "":
		records, err = h.Storage.GetByStatute(ctx, q.Get("statute_id"))
	case q.Get("subject_id") != "":
		records, err = h.Storage.GetBySubject(ctx, q.Get("subject_id"))
	case q.Get("from") != "" || q.Get("to") != "":
		var from, to time.Time
		if from, to, err = parseTimeRange(q.Get("from"), q.Get("to")); err != nil {
			WriteError(w, ErrBadRequest.WithDetail(err.Error()))
			return
		}
		records, err = h.Storage.GetByTimeRange(ctx, from, to)
	default:
		records, err = h.Storage.GetAll(ctx)
	}
	if err != nil {
		WriteError(w, err)
		return
	}
	if records == nil {
		records = []*audit.Record{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
}

func (h *Handlers) GetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Storage.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, rec)
}

func (h *Handlers) CountRecords(w http.ResponseWriter, r *http.Request) {
	n, err := h.Storage.Count(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int{"count": n})
}

// ─── Chain ───

// VerifyChain recalcula el hash de todos los registros. Un mismatch
// responde 200 con valid=false y el detalle del primer registro roto;
// la verificación en sí no falló.
func (h *Handlers) VerifyChain(w http.ResponseWriter, r *http.Request) {
	records, err := h.Storage.GetAll(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}

	resp := map[string]any{"valid": true, "records": len(records)}
	if err := audit.VerifyChain(records, h.Hasher); err != nil {
		resp["valid"] = false
		var chainErr *audit.ChainError
		if errors.As(err, &chainErr) {
			resp["broken_at"] = map[string]any{
				"index":     chainErr.Index,
				"record_id": chainErr.RecordID,
				"expected":  chainErr.Expected,
				"actual":    chainErr.Actual,
			}
		} else {
			resp["error"] = err.Error()
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}

// ─── Partition control ───

func (h *Handlers) PartitionStatus(w http.ResponseWriter, r *http.Request) {
	if h.Engine == nil {
		WriteError(w, errUnsupported)
		return
	}
	WriteJSON(w, http.StatusOK, h.Engine.StatusSnapshot())
}

// MarkPartitioned fuerza el estado Partitioned. Pensado para drills y
// para deployments sin cluster donde la señal de partición es externa.
func (h *Handlers) MarkPartitioned(w http.ResponseWriter, r *http.Request) {
	if h.Engine == nil {
		WriteError(w, errUnsupported)
		return
	}
	h.Engine.MarkPartitioned()
	WriteJSON(w, http.StatusOK, h.Engine.StatusSnapshot())
}

// MarkHealed fuerza el replay de la cola pendiente y vuelve a Connected.
func (h *Handlers) MarkHealed(w http.ResponseWriter, r *http.Request) {
	if h.Engine == nil {
		WriteError(w, errUnsupported)
		return
	}
	h.Engine.MarkHealed()
	WriteJSON(w, http.StatusOK, h.Engine.StatusSnapshot())
}

// ─── Conflicts ───

type conflictView struct {
	Record     *audit.Record   `json:"record"`
	OriginNode string          `json:"origin_node"`
	Versions   []*audit.Record `json:"versions"`
}

func (h *Handlers) ListConflicts(w http.ResponseWriter, r *http.Request) {
	if h.Engine == nil {
		WriteError(w, errUnsupported)
		return
	}
	conflicted := h.Engine.ConflictedRecords()
	views := make([]conflictView, 0, len(conflicted))
	for _, v := range conflicted {
		views = append(views, conflictView{
			Record:     v.Record,
			OriginNode: v.OriginNode,
			Versions:   v.Versions,
		})
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"conflicts": views,
		"count":     len(views),
	})
}

type resolveConflictRequest struct {
	Chosen *audit.Record `json:"chosen"`
}

// ResolveConflict fija la versión ganadora elegida por un operador.
func (h *Handlers) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	if h.Engine == nil {
		WriteError(w, errUnsupported)
		return
	}

	id := chi.URLParam(r, "id")
	var req resolveConflictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, ErrInvalidJSON.WithDetail(err.Error()))
		return
	}
	if req.Chosen == nil {
		WriteError(w, ErrBadRequest.WithDetail("chosen record is required"))
		return
	}
	if req.Chosen.ID != id {
		WriteError(w, ErrBadRequest.WithDetail("chosen record id does not match path id"))
		return
	}

	if err := h.resolver().ResolveConflict(id, req.Chosen); err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "resolved", "record_id": id})
}

// ─── Health ───

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.Storage.Ping(r.Context()); err != nil {
		WriteError(w, ErrServiceUnavailable.WithDetail(err.Error()))
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz reporta ready aun bajo partición: el nodo sigue aceptando
// writes (encolados), así que no hay que sacarlo del balanceador.
func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if err := h.Storage.Ping(r.Context()); err != nil {
		WriteError(w, ErrServiceUnavailable.WithDetail(err.Error()))
		return
	}
	resp := map[string]any{"status": "ready"}
	if h.Engine != nil {
		resp["partitioned"] = h.Engine.IsPartitioned()
		resp["pending_writes"] = h.Engine.PendingWriteCount()
	}
	WriteJSON(w, http.StatusOK, resp)
}

// ─── helpers ───

func parseTimeRange(fromStr, toStr string) (time.Time, time.Time, error) {
	from := time.Time{}
	to := time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)

	var err error
	if fromStr != "" {
		if from, err = time.Parse(time.RFC3339, fromStr); err != nil {
			return from, to, err
		}
	}
	if toStr != "" {
		if to, err = time.Parse(time.RFC3339, toStr); err != nil {
			return from, to, err
		}
	}
	return from, to, nil
}
