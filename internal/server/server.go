package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"timebased_cover/internal/logger"
)

const (
	maxHeaderBytes    = 1 << 20 // 1 MB
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 60 * time.Second

	// DefaultDrainTimeout bounds how long Run waits for in-flight requests
	// once its context is canceled.
	DefaultDrainTimeout = 10 * time.Second
)

// Server serves the REST API and the WebSocket feed until its context ends.
// There is no global write timeout: the socket handler sets per-frame write
// deadlines and long-lived WebSocket connections would otherwise be cut.
type Server struct {
	httpServer *http.Server
	log        *logger.Logger
	drain      time.Duration
	ln         net.Listener
}

// New prepares a server on port, which may be "8080", ":8080" or "host:port".
func New(port string, handler http.Handler, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              normalizeAddr(port),
			Handler:           handler,
			MaxHeaderBytes:    maxHeaderBytes,
			ReadHeaderTimeout: readHeaderTimeout,
			IdleTimeout:       idleTimeout,
		},
		log:   log,
		drain: DefaultDrainTimeout,
	}
}

// SetDrainTimeout overrides DefaultDrainTimeout. Non-positive values are ignored.
func (s *Server) SetDrainTimeout(d time.Duration) {
	if d > 0 {
		s.drain = d
	}
}

func normalizeAddr(port string) string {
	if port == "" || strings.Contains(port, ":") {
		return port
	}
	return ":" + port
}

// Listen binds the address. Run calls it when the caller has not.
func (s *Server) Listen() error {
	if s.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	s.ln = ln
	return nil
}

// Addr is the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Run serves until ctx is canceled, then drains in-flight requests. A clean
// drain returns nil.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.log.Infow("http_listen", "addr", s.ln.Addr().String())

	serveErr := make(chan error, 1)
	go func() { serveErr <- s.httpServer.Serve(s.ln) }()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	s.log.Infow("http_drain", "timeout", s.drain)
	drainCtx, cancel := context.WithTimeout(context.Background(), s.drain)
	defer cancel()
	if err := s.httpServer.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}
