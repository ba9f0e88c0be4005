package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/dropDatabas3/lextrail/internal/observability/logger"
)

// ServerConfig configura el http.Server.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server envuelve http.Server con arranque y shutdown con logging.
type Server struct {
	srv *http.Server
}

func NewServer(cfg ServerConfig, handler http.Handler) *Server {
	return &Server{
		srv: &http.Server{
			Addr:         cfg.Addr,
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}
}

// Start bloquea hasta que el listener cierre. http.ErrServerClosed se
// reporta como nil: es el resultado de un shutdown ordenado.
func (s *Server) Start() error {
	logger.Named("http").Info("server listening", logger.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drena conexiones en curso hasta que el contexto expire.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Named("http").Info("server shutting down")
	return s.srv.Shutdown(ctx)
}
