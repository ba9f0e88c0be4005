package cluster

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/lextrail/internal/observability/logger"
	"github.com/dropDatabas3/lextrail/internal/store/partition"
)

// Watcher traduce el estado de membership a estado de partición del
// engine: sin contacto con un leader durante N chequeos seguidos el nodo
// se marca Partitioned; al recuperar leader se dispara MarkHealed, que
// reproduce la cola de pending writes.
type Watcher struct {
	node     *Node
	engine   *partition.Storage
	interval time.Duration
	// misses consecutivos antes de declarar partición
	threshold int
	log       *zap.Logger
}

// WatcherOptions configura el watcher.
type WatcherOptions struct {
	// Interval entre chequeos. Default: 2s.
	Interval time.Duration
	// Threshold de chequeos fallidos consecutivos. Default: 3.
	Threshold int
}

func NewWatcher(node *Node, engine *partition.Storage, opts WatcherOptions) *Watcher {
	if opts.Interval <= 0 {
		opts.Interval = 2 * time.Second
	}
	if opts.Threshold <= 0 {
		opts.Threshold = 3
	}
	return &Watcher{
		node:      node,
		engine:    engine,
		interval:  opts.Interval,
		threshold: opts.Threshold,
		log:       logger.Named("cluster.watcher"),
	}
}

// Run bloquea hasta que ctx se cancele.
func (w *Watcher) Run(ctx context.Context) error {
	t := time.NewTicker(w.interval)
	defer t.Stop()

	misses := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if w.node.LeaderID() == "" {
				misses++
				if misses >= w.threshold && !w.engine.IsPartitioned() {
					w.log.Warn("lost contact with leader, entering partitioned mode",
						logger.Int("misses", misses))
					w.engine.MarkPartitioned()
				}
				continue
			}

			misses = 0
			if w.engine.IsPartitioned() {
				w.log.Info("leader contact restored, healing partition",
					logger.String("leader", w.node.LeaderID()))
				w.engine.MarkHealed()
			}
		}
	}
}
