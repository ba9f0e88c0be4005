package audit

import "fmt"

// ChainError reporta el primer registro cuyo hash recalculado no coincide
// con el almacenado.
type ChainError struct {
	Index    int
	RecordID string
	Expected string
	Actual   string
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("audit: chain broken at record %d (%s): expected hash %s, got %s",
		e.Index, e.RecordID, e.Expected, e.Actual)
}

// VerifyChain recalcula el hash de cada registro (ordenados por timestamp)
// y falla en el primer mismatch. No exige contigüidad de previous_hash:
// cada sesión de escritura trackea su propio last hash, así que la cadena
// puede tener múltiples ramas válidas.
func VerifyChain(records []*Record, h Hasher) error {
	if h == nil {
		h = SHA256()
	}

	sorted := make([]*Record, len(records))
	copy(sorted, records)
	SortByTimestamp(sorted)

	for i, r := range sorted {
		expected, err := ComputeHash(r, h)
		if err != nil {
			return err
		}
		if expected != r.RecordHash {
			return &ChainError{Index: i, RecordID: r.ID, Expected: expected, Actual: r.RecordHash}
		}
	}
	return nil
}
