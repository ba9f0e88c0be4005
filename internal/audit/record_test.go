package audit

import (
	"errors"
	"testing"
	"time"
)

func mustRecord(t *testing.T, in Input, h Hasher) *Record {
	t.Helper()
	r, err := New(in, h)
	if err != nil {
		t.Fatalf("new record: %v", err)
	}
	return r
}

func TestNewFixesHashAtCreation(t *testing.T) {
	r := mustRecord(t, Input{
		EventType:      "decision",
		Actor:          "judge-7",
		StatuteID:      "statute-42",
		SubjectID:      "subject-1",
		DecisionResult: "granted",
	}, SHA256())

	if r.RecordHash == "" {
		t.Fatal("record hash must be set at creation")
	}
	recomputed, err := ComputeHash(r, SHA256())
	if err != nil {
		t.Fatal(err)
	}
	if recomputed != r.RecordHash {
		t.Fatalf("hash mismatch: %s vs %s", recomputed, r.RecordHash)
	}
}

func TestHashIsDeterministic(t *testing.T) {
	r := mustRecord(t, Input{
		EventType:       "decision",
		DecisionContext: map[string]string{"b": "2", "a": "1", "c": "3"},
		Timestamp:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}, SHA256())

	for i := 0; i < 5; i++ {
		h, err := ComputeHash(r, SHA256())
		if err != nil {
			t.Fatal(err)
		}
		if h != r.RecordHash {
			t.Fatalf("iteration %d: hash changed: %s vs %s", i, h, r.RecordHash)
		}
	}
}

func TestHashIncludesPreviousHash(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	first := mustRecord(t, Input{EventType: "decision", Timestamp: ts}, SHA256())

	prev := first.RecordHash
	chained := mustRecord(t, Input{EventType: "decision", Timestamp: ts, PreviousHash: &prev}, SHA256())

	// Mismo contenido, distinto previous_hash => distinto record_hash.
	detached := chained.Clone()
	detached.PreviousHash = nil
	h1, _ := ComputeHash(chained, SHA256())
	h2, _ := ComputeHash(detached, SHA256())
	if h1 == h2 {
		t.Fatal("previous hash must participate in the record hash")
	}
}

func TestHasherSelection(t *testing.T) {
	for _, tc := range []struct {
		name string
		want string
	}{
		{"", "sha256"},
		{"sha256", "sha256"},
		{"blake2b", "blake2b"},
		{"BLAKE2B", "blake2b"},
	} {
		h, err := NewHasher(tc.name)
		if err != nil {
			t.Fatalf("NewHasher(%q): %v", tc.name, err)
		}
		if h.Name() != tc.want {
			t.Fatalf("NewHasher(%q) = %s, want %s", tc.name, h.Name(), tc.want)
		}
	}
	if _, err := NewHasher("md5"); err == nil {
		t.Fatal("expected error for unsupported hasher")
	}
}

func TestSha256AndBlake2bDiffer(t *testing.T) {
	data := []byte("lextrail")
	if SHA256().Sum(data) == BLAKE2b().Sum(data) {
		t.Fatal("hashers should produce different digests")
	}
}

func TestCloneIsDeep(t *testing.T) {
	r := mustRecord(t, Input{
		EventType:       "decision",
		DecisionContext: map[string]string{"k": "v"},
	}, SHA256())
	c := r.Clone()
	c.DecisionContext["k"] = "mutated"
	if r.DecisionContext["k"] != "v" {
		t.Fatal("clone shares decision context with original")
	}
}

func TestVerifyChainDetectsTampering(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var records []*Record
	var prev *string
	for i := 0; i < 5; i++ {
		r := mustRecord(t, Input{
			EventType:      "decision",
			DecisionResult: "granted",
			Timestamp:      base.Add(time.Duration(i) * time.Minute),
			PreviousHash:   prev,
		}, SHA256())
		records = append(records, r)
		prev = &r.RecordHash
	}

	if err := VerifyChain(records, SHA256()); err != nil {
		t.Fatalf("untampered chain should verify: %v", err)
	}

	// Alterar un registro intermedio rompe la verificación.
	records[2].DecisionResult = "denied"
	err := VerifyChain(records, SHA256())
	if err == nil {
		t.Fatal("tampered chain must fail verification")
	}
	var ce *ChainError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *ChainError, got %T", err)
	}
	if ce.RecordID != records[2].ID {
		t.Fatalf("chain error points at %s, want %s", ce.RecordID, records[2].ID)
	}
}

func TestVerifyChainSortsByTimestamp(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	a := mustRecord(t, Input{EventType: "decision", Timestamp: base.Add(time.Hour)}, SHA256())
	b := mustRecord(t, Input{EventType: "decision", Timestamp: base}, SHA256())

	// Entregar fuera de orden no debe afectar el resultado.
	if err := VerifyChain([]*Record{a, b}, SHA256()); err != nil {
		t.Fatalf("chain should verify regardless of input order: %v", err)
	}
}
