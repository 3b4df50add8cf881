package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Aptos-Scan/aptos-indexer/internal/api/handler"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// Server serves the admin API of one processor.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	ready      chan net.Addr
}

// NewServer builds a Server for h listening on addr.
func NewServer(h *handler.Handler, addr string) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           h.NewRouter(),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: h.Logger.With(zap.String("processor", h.ProcessorName)),
		ready:  make(chan net.Addr, 1),
	}
}

// Run binds the listener and serves until ctx is done, then drains open
// requests for up to shutdownTimeout. A bind failure is returned immediately.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	s.logger.Info("admin API listening", zap.Stringer("addr", ln.Addr()))
	s.ready <- ln.Addr()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("admin API shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("admin API: %w", err)
	}
}

// Ready yields the bound address once Run is serving.
func (s *Server) Ready() <-chan net.Addr {
	return s.ready
}
