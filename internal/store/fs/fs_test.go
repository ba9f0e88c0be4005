package fs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/lextrail/internal/audit"
	"github.com/dropDatabas3/lextrail/internal/store/core"
)

func rec(id string, ts time.Time) *audit.Record {
	return &audit.Record{
		ID:         id,
		Timestamp:  ts,
		EventType:  "decision_recorded",
		StatuteID:  "st-1",
		SubjectID:  "alice",
		RecordHash: "hash-" + id,
	}
}

func TestOpenRequiresDir(t *testing.T) {
	_, err := Open("")
	assert.ErrorIs(t, err, core.ErrInvalid)
}

func TestStoreGetRoundTrip(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	r := rec("rec-1", time.Now().UTC().Truncate(time.Millisecond))
	require.NoError(t, s.Store(ctx, r))

	got, err := s.Get(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, r.RecordHash, got.RecordHash)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestReopenRecoversState(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Store(ctx, rec("rec-1", base)))
	require.NoError(t, s.Store(ctx, rec("rec-2", base.Add(time.Minute))))
	hash := "chain-head"
	require.NoError(t, s.SetLastHash(ctx, &hash))
	require.NoError(t, s.Close())

	// Reabrir y verificar que log y estado sobreviven
	s2, err := Open(dir)
	require.NoError(t, err)
	defer s2.Close()

	n, err := s2.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	h, err := s2.LastHash(ctx)
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, "chain-head", *h)
}

func TestRewriteSameIDLastEntryWins(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	s, err := Open(dir)
	require.NoError(t, err)
	first := rec("rec-1", base)
	first.DecisionResult = "granted"
	require.NoError(t, s.Store(ctx, first))
	second := rec("rec-1", base.Add(time.Minute))
	second.DecisionResult = "denied"
	require.NoError(t, s.Store(ctx, second))
	require.NoError(t, s.Close())

	s2, err := Open(dir)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.Get(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, "denied", got.DecisionResult)

	n, err := s2.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGetAllSorted(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Store(ctx, rec("rec-2", base.Add(time.Minute))))
	require.NoError(t, s.Store(ctx, rec("rec-1", base)))

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "rec-1", all[0].ID)
}

func TestSetLastHashNilClears(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	hash := "abc"
	require.NoError(t, s.SetLastHash(ctx, &hash))
	require.NoError(t, s.SetLastHash(ctx, nil))

	h, err := s.LastHash(ctx)
	require.NoError(t, err)
	assert.Nil(t, h)
}
