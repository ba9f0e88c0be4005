package partition

import (
	"sync"
	"time"

	"github.com/dropDatabas3/lextrail/internal/audit"
	"github.com/dropDatabas3/lextrail/internal/store/core"
	"github.com/dropDatabas3/lextrail/internal/vclock"
)

// pendingWrite es un write aceptado durante una partición, a la espera
// de replay en MarkHealed.
type pendingWrite struct {
	Record     *audit.Record
	Clock      vclock.Clock
	EnqueuedAt time.Time
}

// pendingQueue es una cola FIFO acotada por max_pending_writes.
type pendingQueue struct {
	mu    sync.Mutex
	max   int
	items []pendingWrite
}

func newPendingQueue(max int) *pendingQueue {
	return &pendingQueue{max: max}
}

// enqueue agrega al final. Retorna ErrQueueFull si la cola está llena.
func (q *pendingQueue) enqueue(w pendingWrite) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.max > 0 && len(q.items) >= q.max {
		return core.ErrQueueFull
	}
	q.items = append(q.items, w)
	return nil
}

// drain vacía la cola y retorna los items en orden de llegada.
// El caller hace el replay fuera del lock.
func (q *pendingQueue) drain() []pendingWrite {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

func (q *pendingQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
