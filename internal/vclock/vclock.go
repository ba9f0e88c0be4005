// Package vclock implementa vector clocks para tracking de causalidad
// entre réplicas del audit trail.
//
// Cada nodo mantiene un contador lógico por réplica; comparando dos clocks
// se decide si un write precede causalmente a otro o si son concurrentes.
package vclock

// Ordering is the result of comparing two clocks.
type Ordering int

const (
	// Concurrent: neither clock happens before the other (includes equal).
	Concurrent Ordering = 0
	// Before: the receiver happens before the other clock.
	Before Ordering = -1
	// After: the other clock happens before the receiver.
	After Ordering = 1
)

// Clock mapea nodeID -> contador lógico. Entradas ausentes valen 0.
// Invariante: los contadores nunca decrecen.
type Clock map[string]uint64

// New crea un clock vacío.
func New() Clock {
	return make(Clock)
}

// Increment avanza el contador del nodo dado.
func (c Clock) Increment(nodeID string) {
	c[nodeID]++
}

// Get retorna el contador de un nodo (0 si no existe).
func (c Clock) Get(nodeID string) uint64 {
	return c[nodeID]
}

// Clone retorna una copia independiente del clock.
func (c Clock) Clone() Clock {
	out := make(Clock, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Merge incorpora other tomando el máximo por entrada.
// Se usa al aplicar writes replicados desde otros nodos.
func (c Clock) Merge(other Clock) {
	for k, v := range other {
		if v > c[k] {
			c[k] = v
		}
	}
}

// Compare compara dos clocks sobre la unión de sus entradas.
func (c Clock) Compare(other Clock) Ordering {
	var less, greater bool

	seen := make(map[string]struct{}, len(c)+len(other))
	for k := range c {
		seen[k] = struct{}{}
	}
	for k := range other {
		seen[k] = struct{}{}
	}

	for k := range seen {
		a, b := c[k], other[k]
		switch {
		case a < b:
			less = true
		case a > b:
			greater = true
		}
	}

	switch {
	case less && !greater:
		return Before
	case greater && !less:
		return After
	default:
		return Concurrent
	}
}

// HappensBefore es true sii toda entrada de c es <= la de other
// y al menos una es estrictamente menor.
func (c Clock) HappensBefore(other Clock) bool {
	return c.Compare(other) == Before
}

// Concurrent es true sii ninguno precede al otro y los clocks no son iguales.
func (c Clock) Concurrent(other Clock) bool {
	return c.Compare(other) == Concurrent && !c.Equal(other)
}

// Equal es true si todas las entradas coinciden (ausente = 0).
func (c Clock) Equal(other Clock) bool {
	for k, v := range c {
		if other[k] != v {
			return false
		}
	}
	for k, v := range other {
		if c[k] != v {
			return false
		}
	}
	return true
}
