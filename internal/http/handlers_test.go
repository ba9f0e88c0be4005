package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/lextrail/internal/audit"
	"github.com/dropDatabas3/lextrail/internal/store/memory"
	"github.com/dropDatabas3/lextrail/internal/store/partition"
	"github.com/dropDatabas3/lextrail/internal/vclock"
)

func newAPI(t *testing.T, cfg partition.Config) (*partition.Storage, http.Handler) {
	t.Helper()
	if cfg.NodeID == "" {
		cfg.NodeID = "node-1"
	}
	engine, err := partition.New(cfg)
	require.NoError(t, err)
	h := &Handlers{Storage: engine, Engine: engine, Hasher: audit.SHA256()}
	return engine, NewRouter(h)
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v))
}

func TestCreateRecordChainsHashes(t *testing.T) {
	_, api := newAPI(t, partition.Config{})

	rr := doJSON(t, api, http.MethodPost, "/v1/records", map[string]any{
		"event_type":      "decision_recorded",
		"actor":           "judge-garcia",
		"statute_id":      "statute-77",
		"subject_id":      "case-123",
		"decision_result": "granted",
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	var first audit.Record
	decode(t, rr, &first)
	assert.NotEmpty(t, first.ID)
	assert.NotEmpty(t, first.RecordHash)
	assert.Nil(t, first.PreviousHash)

	rr = doJSON(t, api, http.MethodPost, "/v1/records", map[string]any{
		"event_type":      "decision_amended",
		"statute_id":      "statute-77",
		"subject_id":      "case-123",
		"decision_result": "denied",
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	var second audit.Record
	decode(t, rr, &second)
	require.NotNil(t, second.PreviousHash)
	assert.Equal(t, first.RecordHash, *second.PreviousHash)
}

func TestCreateRecordRequiresEventType(t *testing.T) {
	_, api := newAPI(t, partition.Config{})
	rr := doJSON(t, api, http.MethodPost, "/v1/records", map[string]any{"actor": "x"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreateRecordRejectsInvalidJSON(t *testing.T) {
	_, api := newAPI(t, partition.Config{})
	req := httptest.NewRequest(http.MethodPost, "/v1/records", bytes.NewBufferString("{nope"))
	rr := httptest.NewRecorder()
	api.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	var httpErr HTTPError
	decode(t, rr, &httpErr)
	assert.Equal(t, "invalid_json", httpErr.Code)
}

func TestGetRecordNotFound(t *testing.T) {
	_, api := newAPI(t, partition.Config{})
	rr := doJSON(t, api, http.MethodGet, "/v1/records/nope", nil)

	require.Equal(t, http.StatusNotFound, rr.Code)
	var httpErr HTTPError
	decode(t, rr, &httpErr)
	assert.Equal(t, "not_found", httpErr.Code)
}

func TestListRecordsByStatute(t *testing.T) {
	engine, api := newAPI(t, partition.Config{})
	ctx := context.Background()

	for _, statute := range []string{"statute-1", "statute-1", "statute-2"} {
		rec, err := audit.New(audit.Input{EventType: "decision_recorded", StatuteID: statute}, nil)
		require.NoError(t, err)
		require.NoError(t, engine.Store(ctx, rec))
	}

	rr := doJSON(t, api, http.MethodGet, "/v1/records?statute_id=statute-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Count int `json:"count"`
	}
	decode(t, rr, &resp)
	assert.Equal(t, 2, resp.Count)
}

func TestListRecordsByTimeRange(t *testing.T) {
	engine, api := newAPI(t, partition.Config{})
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		rec, err := audit.New(audit.Input{
			EventType: "decision_recorded",
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		}, nil)
		require.NoError(t, err)
		require.NoError(t, engine.Store(ctx, rec))
	}

	rr := doJSON(t, api, http.MethodGet,
		"/v1/records?from=2026-05-01T10:00:00Z&to=2026-05-01T11:00:00Z", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Count int `json:"count"`
	}
	decode(t, rr, &resp)
	assert.Equal(t, 2, resp.Count)
}

func TestListRecordsRejectsBadTimestamp(t *testing.T) {
	_, api := newAPI(t, partition.Config{})
	rr := doJSON(t, api, http.MethodGet, "/v1/records?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCountRecords(t *testing.T) {
	engine, api := newAPI(t, partition.Config{})
	rec, err := audit.New(audit.Input{EventType: "decision_recorded"}, nil)
	require.NoError(t, err)
	require.NoError(t, engine.Store(context.Background(), rec))

	rr := doJSON(t, api, http.MethodGet, "/v1/records/count", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Count int `json:"count"`
	}
	decode(t, rr, &resp)
	assert.Equal(t, 1, resp.Count)
}

func TestVerifyChainValid(t *testing.T) {
	engine, api := newAPI(t, partition.Config{})
	rec, err := audit.New(audit.Input{EventType: "decision_recorded"}, nil)
	require.NoError(t, err)
	require.NoError(t, engine.Store(context.Background(), rec))

	rr := doJSON(t, api, http.MethodGet, "/v1/chain/verify", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Valid   bool `json:"valid"`
		Records int  `json:"records"`
	}
	decode(t, rr, &resp)
	assert.True(t, resp.Valid)
	assert.Equal(t, 1, resp.Records)
}

func TestVerifyChainDetectsTampering(t *testing.T) {
	engine, api := newAPI(t, partition.Config{})
	ctx := context.Background()

	rec, err := audit.New(audit.Input{
		EventType:      "decision_recorded",
		DecisionResult: "granted",
	}, nil)
	require.NoError(t, err)
	require.NoError(t, engine.Store(ctx, rec))

	// Mismo ID con el resultado alterado pero el hash original: el update
	// causal reemplaza el registro y la cadena queda rota.
	tampered := rec.Clone()
	tampered.DecisionResult = "denied"
	require.NoError(t, engine.Store(ctx, tampered))

	rr := doJSON(t, api, http.MethodGet, "/v1/chain/verify", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Valid    bool `json:"valid"`
		BrokenAt struct {
			RecordID string `json:"record_id"`
		} `json:"broken_at"`
	}
	decode(t, rr, &resp)
	assert.False(t, resp.Valid)
	assert.Equal(t, rec.ID, resp.BrokenAt.RecordID)
}

func TestPartitionMarkBufferHeal(t *testing.T) {
	engine, api := newAPI(t, partition.Config{})

	rr := doJSON(t, api, http.MethodPost, "/v1/partition/mark", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var status partition.Status
	decode(t, rr, &status)
	assert.True(t, status.Partitioned)

	// Write bajo partición: acepta y encola
	rr = doJSON(t, api, http.MethodPost, "/v1/records", map[string]any{
		"event_type": "decision_recorded",
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, 1, engine.PendingWriteCount())

	rr = doJSON(t, api, http.MethodPost, "/v1/partition/heal", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	decode(t, rr, &status)
	assert.False(t, status.Partitioned)
	assert.Equal(t, 0, status.PendingWrites)

	n, err := engine.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPartitionStatus(t *testing.T) {
	_, api := newAPI(t, partition.Config{NodeID: "node-7", Strategy: partition.KeepAll})
	rr := doJSON(t, api, http.MethodGet, "/v1/partition/status", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var status partition.Status
	decode(t, rr, &status)
	assert.Equal(t, "node-7", status.NodeID)
	assert.Equal(t, partition.KeepAll, status.Strategy)
	assert.False(t, status.Partitioned)
}

func TestPartitionEndpointsUnsupportedDriver(t *testing.T) {
	h := &Handlers{Storage: memory.New(), Hasher: audit.SHA256()}
	api := NewRouter(h)

	for _, path := range []string{"/v1/partition/status", "/v1/conflicts"} {
		rr := doJSON(t, api, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotImplemented, rr.Code, path)
	}
}

func seedConflict(t *testing.T, engine *partition.Storage) *audit.Record {
	t.Helper()
	ctx := context.Background()

	rec, err := audit.New(audit.Input{EventType: "decision_recorded", DecisionResult: "granted"}, nil)
	require.NoError(t, err)
	require.NoError(t, engine.Store(ctx, rec))

	remote := rec.Clone()
	remote.DecisionResult = "denied"
	clk := vclock.New()
	clk.Increment("node-2")
	require.NoError(t, engine.ApplyRemote(remote, clk))
	return rec
}

func TestListConflicts(t *testing.T) {
	engine, api := newAPI(t, partition.Config{Strategy: partition.KeepAll})
	rec := seedConflict(t, engine)

	rr := doJSON(t, api, http.MethodGet, "/v1/conflicts", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Count     int `json:"count"`
		Conflicts []struct {
			Record   *audit.Record   `json:"record"`
			Versions []*audit.Record `json:"versions"`
		} `json:"conflicts"`
	}
	decode(t, rr, &resp)
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, rec.ID, resp.Conflicts[0].Record.ID)
	assert.Len(t, resp.Conflicts[0].Versions, 1)
}

func TestResolveConflict(t *testing.T) {
	engine, api := newAPI(t, partition.Config{Strategy: partition.KeepAll})
	rec := seedConflict(t, engine)

	chosen := rec.Clone()
	chosen.DecisionResult = "denied"
	rr := doJSON(t, api, http.MethodPost, "/v1/conflicts/"+rec.ID+"/resolve",
		map[string]any{"chosen": chosen})
	require.Equal(t, http.StatusOK, rr.Code)

	got, err := engine.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "denied", got.DecisionResult)
	assert.Empty(t, engine.ConflictedRecords())
}

func TestResolveConflictIDMismatch(t *testing.T) {
	engine, api := newAPI(t, partition.Config{Strategy: partition.KeepAll})
	rec := seedConflict(t, engine)

	other := rec.Clone()
	other.ID = "someone-else"
	rr := doJSON(t, api, http.MethodPost, "/v1/conflicts/"+rec.ID+"/resolve",
		map[string]any{"chosen": other})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHealthz(t *testing.T) {
	_, api := newAPI(t, partition.Config{})
	rr := doJSON(t, api, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestReadyzReportsPartitionState(t *testing.T) {
	engine, api := newAPI(t, partition.Config{})
	engine.MarkPartitioned()

	rr := doJSON(t, api, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Status      string `json:"status"`
		Partitioned bool   `json:"partitioned"`
	}
	decode(t, rr, &resp)
	assert.Equal(t, "ready", resp.Status)
	assert.True(t, resp.Partitioned)
}

func TestRequestIDPropagated(t *testing.T) {
	_, api := newAPI(t, partition.Config{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rr := httptest.NewRecorder()
	api.ServeHTTP(rr, req)

	assert.Equal(t, "req-42", rr.Header().Get("X-Request-ID"))

	rr = doJSON(t, api, http.MethodGet, "/healthz", nil)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}
