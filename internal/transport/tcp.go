package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
)

// TCPServer accepts connections and serves them one at a time. Each
// connection is an independent session with its own session id.
type TCPServer struct {
	ln      net.Listener
	handler Handler
	logger  *slog.Logger
	hooks   SessionHooks
}

// ListenTCP binds addr.
func ListenTCP(addr string, h Handler, logger *slog.Logger) (*TCPServer, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	return &TCPServer{ln: ln, handler: h, logger: logger}, nil
}

// SetHooks installs session lifetime hooks. Call before Serve.
func (s *TCPServer) SetHooks(hooks SessionHooks) {
	s.hooks = hooks
}

// Addr returns the bound address.
func (s *TCPServer) Addr() net.Addr {
	return s.ln.Addr()
}

// Serve accepts until ctx is cancelled. A write failure ends only the
// affected connection; the listener keeps accepting.
func (s *TCPServer) Serve(ctx context.Context) error {
	s.logger.Info("listening", "addr", s.ln.Addr().String())

	stop := context.AfterFunc(ctx, func() { _ = s.ln.Close() })
	defer stop()
	defer s.ln.Close()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return fmt.Errorf("transport: accept: %w", err)
		}
		s.serveConn(ctx, conn)
	}
}

func (s *TCPServer) serveConn(ctx context.Context, conn net.Conn) {
	logger := s.logger.With("remote", conn.RemoteAddr().String())

	// Closing the connection unblocks the reader when ctx ends.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	if err := ServeStreamWithHooks(ctx, conn, conn, s.handler, logger, s.hooks); err != nil {
		logger.Warn("connection ended with error", "error", err)
	}
}

// Close stops the listener.
func (s *TCPServer) Close() error {
	return s.ln.Close()
}
