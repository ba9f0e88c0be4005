// Package store arma el backend de audit trail según configuración:
// selección de driver, engine partition-tolerant y capa de cache.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/dropDatabas3/lextrail/internal/cache"
	"github.com/dropDatabas3/lextrail/internal/observability/logger"
	"github.com/dropDatabas3/lextrail/internal/store/badger"
	"github.com/dropDatabas3/lextrail/internal/store/core"
	"github.com/dropDatabas3/lextrail/internal/store/fs"
	"github.com/dropDatabas3/lextrail/internal/store/memory"
	"github.com/dropDatabas3/lextrail/internal/store/partition"
	"github.com/dropDatabas3/lextrail/internal/store/pg"
)

// Options configura el backend a abrir.
type Options struct {
	// Driver: "memory" | "fs" | "badger" | "postgres" | "partition".
	Driver string

	// DataDir para los drivers fs y badger.
	DataDir string

	// DSN y límites de pool para postgres.
	DSN          string
	MaxOpenConns int
	MaxIdleConns int

	// Partition configura el engine partition-tolerant.
	Partition partition.Config

	// Cache habilita la capa read-through. Nil = sin cache.
	Cache    *cache.Config
	CacheTTL time.Duration
}

// Backend es el resultado de Open.
type Backend struct {
	// Storage es la superficie que consumen HTTP y callers externos
	// (puede estar decorada con cache).
	Storage core.AuditStorage

	// Engine es el engine partition-tolerant, no-nil solo con el driver
	// "partition". La capa de cluster lo usa directo, sin cache.
	Engine *partition.Storage
}

// Open crea el backend según el driver configurado.
func Open(ctx context.Context, opts Options) (*Backend, error) {
	log := logger.Named("store")

	var (
		inner  core.AuditStorage
		engine *partition.Storage
		err    error
	)

	switch opts.Driver {
	case "memory", "":
		inner = memory.New()
	case "fs":
		inner, err = fs.Open(opts.DataDir)
	case "badger":
		inner, err = badger.Open(badger.Config{Path: opts.DataDir, SyncWrites: true})
	case "postgres", "pg":
		inner, err = pg.Open(ctx, pg.Config{
			DSN:          opts.DSN,
			MaxOpenConns: opts.MaxOpenConns,
			MaxIdleConns: opts.MaxIdleConns,
		})
	case "partition":
		engine, err = partition.New(opts.Partition)
		inner = engine
	default:
		return nil, fmt.Errorf("store: %w: unknown driver %q", core.ErrInvalid, opts.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("store: open driver %q: %w", opts.Driver, err)
	}

	storage := inner
	if opts.Cache != nil {
		c, err := cache.New(*opts.Cache)
		if err != nil {
			// El cache es una optimización: degradar a sin-cache, no fallar
			log.Warn("cache unavailable, continuing without it", logger.Err(err))
		} else {
			storage = NewCached(inner, c, opts.CacheTTL)
		}
	}

	log.Info("storage backend ready", logger.Driver(driverName(opts.Driver)))
	return &Backend{Storage: storage, Engine: engine}, nil
}

func driverName(d string) string {
	if d == "" {
		return "memory"
	}
	return d
}
