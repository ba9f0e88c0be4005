package core

import "errors"

var (
	// ErrNotFound: el registro pedido no existe.
	ErrNotFound = errors.New("audit record not found")
	// ErrQueueFull: la cola de pending writes alcanzó max_pending_writes.
	ErrQueueFull = errors.New("pending write queue full")
	// ErrStorage: falla genérica del backend.
	ErrStorage = errors.New("storage failure")
	// ErrInvalid: input inválido.
	ErrInvalid = errors.New("invalid input")
)
