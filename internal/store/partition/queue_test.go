package partition

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/lextrail/internal/store/core"
	"github.com/dropDatabas3/lextrail/internal/vclock"
)

func TestQueueFIFOOrder(t *testing.T) {
	q := newPendingQueue(0)
	for i := 0; i < 10; i++ {
		err := q.enqueue(pendingWrite{
			Record:     testRecord(fmt.Sprintf("rec-%d", i), time.Now().UTC()),
			Clock:      vclock.New(),
			EnqueuedAt: time.Now(),
		})
		require.NoError(t, err)
	}

	batch := q.drain()
	require.Len(t, batch, 10)
	for i, w := range batch {
		assert.Equal(t, fmt.Sprintf("rec-%d", i), w.Record.ID)
	}
	assert.Equal(t, 0, q.len())
}

func TestQueueBounded(t *testing.T) {
	q := newPendingQueue(3)
	for i := 0; i < 3; i++ {
		require.NoError(t, q.enqueue(pendingWrite{}))
	}
	err := q.enqueue(pendingWrite{})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrQueueFull)
	assert.Equal(t, 3, q.len())
}

func TestQueueDrainEmpty(t *testing.T) {
	q := newPendingQueue(5)
	assert.Empty(t, q.drain())
}
