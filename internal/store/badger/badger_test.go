package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/lextrail/internal/audit"
	"github.com/dropDatabas3/lextrail/internal/store/core"
)

func openTest(t *testing.T) *Storage {
	t.Helper()
	s, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

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

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.ErrorIs(t, err, core.ErrInvalid)
}

func TestStoreGetRoundTrip(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	r := rec("rec-1", time.Now().UTC().Truncate(time.Millisecond))
	require.NoError(t, s.Store(ctx, r))

	got, err := s.Get(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, r.RecordHash, got.RecordHash)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestScanFiltersAndSorts(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	a := rec("rec-a", base.Add(time.Minute))
	b := rec("rec-b", base)
	b.SubjectID = "bob"
	c := rec("rec-c", base.Add(2*time.Minute))
	c.StatuteID = "st-2"
	for _, r := range []*audit.Record{a, b, c} {
		require.NoError(t, s.Store(ctx, r))
	}

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "rec-b", all[0].ID)

	byStatute, err := s.GetByStatute(ctx, "st-1")
	require.NoError(t, err)
	assert.Len(t, byStatute, 2)

	bySubject, err := s.GetBySubject(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, bySubject, 2)

	inRange, err := s.GetByTimeRange(ctx, base, base.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, inRange, 2)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestLastHashRoundTrip(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	h, err := s.LastHash(ctx)
	require.NoError(t, err)
	assert.Nil(t, h)

	want := "deadbeef"
	require.NoError(t, s.SetLastHash(ctx, &want))
	h, err = s.LastHash(ctx)
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, want, *h)

	require.NoError(t, s.SetLastHash(ctx, nil))
	h, err = s.LastHash(ctx)
	require.NoError(t, err)
	assert.Nil(t, h)
}
