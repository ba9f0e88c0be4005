package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/lextrail/internal/audit"
	"github.com/dropDatabas3/lextrail/internal/store/core"
)

func rec(id, statute, subject string, ts time.Time) *audit.Record {
	return &audit.Record{
		ID:         id,
		Timestamp:  ts,
		EventType:  "decision_recorded",
		StatuteID:  statute,
		SubjectID:  subject,
		RecordHash: "hash-" + id,
	}
}

func TestStoreAndGet(t *testing.T) {
	s := New()
	ctx := context.Background()
	r := rec("rec-1", "st-1", "alice", time.Now().UTC())

	require.NoError(t, s.Store(ctx, r))
	got, err := s.Get(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, r.RecordHash, got.RecordHash)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestStoreRejectsEmptyID(t *testing.T) {
	s := New()
	err := s.Store(context.Background(), &audit.Record{})
	assert.ErrorIs(t, err, core.ErrInvalid)
}

func TestQueriesSortedAndFiltered(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Store(ctx, rec("rec-b", "st-1", "alice", base.Add(time.Minute))))
	require.NoError(t, s.Store(ctx, rec("rec-a", "st-1", "bob", base)))
	require.NoError(t, s.Store(ctx, rec("rec-c", "st-2", "alice", base.Add(2*time.Minute))))

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "rec-a", all[0].ID)
	assert.Equal(t, "rec-c", all[2].ID)

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
	s := New()
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
}
