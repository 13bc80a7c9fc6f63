package webhook

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/netbox2st2/internal/logging"
)

const (
	DefaultAddress = "0.0.0.0"
	DefaultPort    = 6000

	shutdownTimeout = 5 * time.Second
)

// Config is the sensor part of the pack configuration.
type Config struct {
	Address string
	Port    int
	Secret  string
}

// Addr returns host:port with defaults applied.
func (c Config) Addr() string {
	host := strings.TrimSpace(c.Address)
	if host == "" {
		host = DefaultAddress
	}
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Server serves Handler on Path. Other routes return 404 and other methods 405.
type Server struct {
	addr string
	srv  *http.Server
	log  logging.Logger
}

// NewServer mounts h under Path.
func NewServer(cfg Config, h http.Handler, log logging.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("POST "+Path+"{$}", h)
	return &Server{
		addr: cfg.Addr(),
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: logging.OrNop(log),
	}
}

// ListenAndServe listens on the configured address until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("webhook: listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully. It returns nil after a clean shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info("listening for payload", "url", "http://"+ln.Addr().String()+Path)
	errc := make(chan error, 1)
	go func() { errc <- s.srv.Serve(ln) }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("webhook: shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info("sensor stopped")
	return nil
}
