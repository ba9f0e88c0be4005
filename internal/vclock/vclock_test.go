package vclock

import "testing"

func TestIncrementAndGet(t *testing.T) {
	c := New()
	if got := c.Get("node-1"); got != 0 {
		t.Fatalf("expected 0 for missing entry, got %d", got)
	}
	c.Increment("node-1")
	c.Increment("node-1")
	c.Increment("node-2")
	if got := c.Get("node-1"); got != 2 {
		t.Fatalf("node-1 = %d, want 2", got)
	}
	if got := c.Get("node-2"); got != 1 {
		t.Fatalf("node-2 = %d, want 1", got)
	}
}

func TestHappensBefore(t *testing.T) {
	a := Clock{"n1": 1}
	b := Clock{"n1": 2}
	if !a.HappensBefore(b) {
		t.Fatal("a should happen before b")
	}
	if b.HappensBefore(a) {
		t.Fatal("b should not happen before a")
	}

	// Igualdad no es happens-before.
	if a.HappensBefore(a.Clone()) {
		t.Fatal("equal clocks must not be ordered")
	}

	// Dominancia sobre múltiples entradas.
	c := Clock{"n1": 1, "n2": 3}
	d := Clock{"n1": 2, "n2": 3}
	if !c.HappensBefore(d) {
		t.Fatal("c should happen before d")
	}
}

func TestConcurrent(t *testing.T) {
	a := Clock{"n1": 2, "n2": 0}
	b := Clock{"n1": 1, "n2": 1}
	if !a.Concurrent(b) || !b.Concurrent(a) {
		t.Fatal("a and b should be concurrent")
	}

	// Clocks iguales no son concurrentes.
	if a.Concurrent(a.Clone()) {
		t.Fatal("equal clocks are not concurrent")
	}

	// Ordenados no son concurrentes.
	c := Clock{"n1": 1}
	d := Clock{"n1": 2}
	if c.Concurrent(d) {
		t.Fatal("ordered clocks are not concurrent")
	}
}

func TestEqualTreatsMissingAsZero(t *testing.T) {
	a := Clock{"n1": 1, "n2": 0}
	b := Clock{"n1": 1}
	if !a.Equal(b) {
		t.Fatal("missing entries should compare as zero")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	a := Clock{"n1": 1}
	b := a.Clone()
	b.Increment("n1")
	if a.Get("n1") != 1 {
		t.Fatal("clone mutated the original")
	}
}

func TestMerge(t *testing.T) {
	a := Clock{"n1": 3, "n2": 1}
	b := Clock{"n1": 2, "n2": 5, "n3": 1}
	a.Merge(b)
	want := Clock{"n1": 3, "n2": 5, "n3": 1}
	if !a.Equal(want) {
		t.Fatalf("merge result %v, want %v", a, want)
	}
}
