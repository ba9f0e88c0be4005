// Package core define la interfaz AuditStorage y sus errores.
//
// Todos los consumidores (retention, joins, diffing, export) dependen solo
// de esta interfaz; los backends viven en paquetes hermanos.
package core

import (
	"context"
	"time"

	"github.com/dropDatabas3/lextrail/internal/audit"
)

// AuditStorage es la superficie de lectura/escritura del audit trail.
//
// Las queries de lista retornan registros ordenados ascendente por
// timestamp. Get retorna ErrNotFound (wrapped) si el id no existe.
// GetByTimeRange incluye ambos extremos.
type AuditStorage interface {
	Store(ctx context.Context, rec *audit.Record) error
	Get(ctx context.Context, id string) (*audit.Record, error)
	GetAll(ctx context.Context) ([]*audit.Record, error)
	GetByStatute(ctx context.Context, statuteID string) ([]*audit.Record, error)
	GetBySubject(ctx context.Context, subjectID string) ([]*audit.Record, error)
	GetByTimeRange(ctx context.Context, start, end time.Time) ([]*audit.Record, error)
	Count(ctx context.Context) (int, error)

	// LastHash / SetLastHash trackean el último record_hash de la cadena.
	// nil significa cadena vacía. El engine no valida contigüidad en cada
	// write; la verificación es batch vía audit.VerifyChain.
	LastHash(ctx context.Context) (*string, error)
	SetLastHash(ctx context.Context, hash *string) error

	Ping(ctx context.Context) error
	Close() error
}
