package partition

import (
	"fmt"
	"strings"
)

// Strategy define la política de merge para writes concurrentes sobre un
// mismo record id.
type Strategy string

const (
	// LastWriteWins: gana el registro con mayor timestamp. Empates se
	// desempatan por record ID lexicográficamente mayor, para que la
	// resolución sea determinística entre nodos.
	LastWriteWins Strategy = "last_write_wins"
	// FirstWriteWins: se conserva el registro original y se descarta el nuevo.
	FirstWriteWins Strategy = "first_write_wins"
	// KeepAll: se retienen todas las versiones para revisión manual.
	KeepAll Strategy = "keep_all"
	// Custom: sin resolución automática; un operador decide vía ResolveConflict.
	Custom Strategy = "custom"
)

// ParseStrategy resuelve una estrategia desde config ("" = last_write_wins).
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", LastWriteWins:
		return LastWriteWins, nil
	case FirstWriteWins:
		return FirstWriteWins, nil
	case KeepAll:
		return KeepAll, nil
	case Custom:
		return Custom, nil
	default:
		return "", fmt.Errorf("partition: unknown conflict strategy %q", s)
	}
}

func (s Strategy) String() string { return string(s) }
