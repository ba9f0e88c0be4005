package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Métricas del storage engine. Viven en un paquete standalone para evitar
// ciclos de import entre store/partition, cluster y HTTP.

var (
	AuditStoresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_stores_total",
		Help: "Writes aceptados por el engine, por resultado",
	}, []string{"result"})

	StaleWritesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_stale_writes_dropped_total",
		Help: "Writes descartados por ser causalmente anteriores al estado actual",
	})

	ConflictsDetected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_conflicts_detected_total",
		Help: "Writes concurrentes detectados sobre un mismo record id",
	})

	ConflictsResolved = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_conflicts_resolved_total",
		Help: "Conflictos resueltos, por estrategia",
	}, []string{"strategy"})

	PendingWrites = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "audit_pending_writes",
		Help: "Writes buffereados durante la partición actual",
	})

	PartitionState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "audit_partition_state",
		Help: "Estado de partición del nodo (0=connected, 1=partitioned)",
	})

	HealReplaySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "audit_heal_replay_seconds",
		Help:    "Duración del replay de la cola al sanar una partición",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	RaftApplyLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "raft_apply_latency_ms",
		Help:    "Latencia de raft.Apply en milisegundos",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	RaftLeadershipChanges = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "raft_leadership_changes_total",
		Help: "Cambios de rol a leader",
	})

	RaftLogSizeBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "raft_log_size_bytes",
		Help: "Tamaño en disco del log raft (bolt)",
	})
)

// Register registra todas las métricas en el registry dado (default si nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	collectors := []prometheus.Collector{
		AuditStoresTotal,
		StaleWritesDropped,
		ConflictsDetected,
		ConflictsResolved,
		PendingWrites,
		PartitionState,
		HealReplaySeconds,
		RaftApplyLatency,
		RaftLeadershipChanges,
		RaftLogSizeBytes,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
