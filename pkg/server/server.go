package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/raventid/zaichik/pkg/log"
	"github.com/raventid/zaichik/pkg/metrics"
	"github.com/raventid/zaichik/pkg/protocol"
	"github.com/raventid/zaichik/pkg/registry"
	"github.com/raventid/zaichik/pkg/subscription"
)

// commandBuffer bounds how many decoded commands may sit between the reader
// and the subscription manager.
const commandBuffer = 64

// Server accepts TCP connections and runs one subscription manager per
// connection. Topic state lives in the registry and outlives connections.
type Server struct {
	registry *registry.Registry

	mu       sync.Mutex
	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	logger zerolog.Logger
}

// NewServer creates a server over the given topic registry.
func NewServer(reg *registry.Registry) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		registry: reg,
		ctx:      ctx,
		cancel:   cancel,
		logger:   log.WithComponent("server"),
	}
}

// Listen binds the TCP listener on addr and marks the broker ready.
func (s *Server) Listen(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.mu.Lock()
	s.listener = lis
	s.mu.Unlock()

	metrics.RegisterComponent("listener", true, "accepting connections")
	s.logger.Info().Str("addr", lis.Addr().String()).Msg("Broker listening")
	return nil
}

// Addr returns the bound listener address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve runs the accept loop until Stop is called. It returns nil on a
// clean shutdown.
func (s *Server) Serve() error {
	s.mu.Lock()
	lis := s.listener
	s.mu.Unlock()
	if lis == nil {
		return errors.New("server: Serve called before Listen")
	}

	for {
		conn, err := lis.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return nil
			default:
			}
			s.logger.Error().Err(err).Msg("Accept failed")
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// Start binds addr and serves until Stop. Equivalent to Listen then Serve.
func (s *Server) Start(addr string) error {
	if err := s.Listen(addr); err != nil {
		return err
	}
	return s.Serve()
}

// Stop gracefully stops the server: the listener closes, every connection's
// manager is cancelled, and Stop returns once all connection goroutines
// have finished.
func (s *Server) Stop() {
	s.cancel()
	s.mu.Lock()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	metrics.UpdateComponent("listener", false, "stopped")
}

// handleConn splits one connection into a decoding reader and a subscription
// manager that owns the write side, and tears both down when either ends.
func (s *Server) handleConn(conn net.Conn) {
	connID := uuid.New().String()
	connLog := log.WithConnID(connID)
	connLog.Debug().Str("remote", conn.RemoteAddr().String()).Msg("Connection accepted")

	metrics.ConnectionsTotal.Inc()
	metrics.ConnectionsActive.Inc()
	defer metrics.ConnectionsActive.Dec()

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	commands := make(chan protocol.Command, commandBuffer)
	mgr := subscription.New(connID, conn, commands, s.registry)

	go s.readLoop(ctx, conn, commands, mgr, connLog)

	mgr.Run(ctx)
	_ = conn.Close()
	connLog.Debug().Msg("Connection closed")
}

// readLoop decodes command frames into the manager's inbox. On clean EOF it
// closes the inbox; on a protocol error it hands the manager the error to
// frame back before the connection dies.
func (s *Server) readLoop(ctx context.Context, conn net.Conn, commands chan<- protocol.Command, mgr *subscription.Manager, connLog zerolog.Logger) {
	br := bufio.NewReader(conn)
	for {
		cmd, err := protocol.ReadCommand(br)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				connLog.Debug().Msg("Read side ended")
				close(commands)
				return
			}
			if errors.Is(err, protocol.ErrMalformedFrame) ||
				errors.Is(err, protocol.ErrUnknownTag) ||
				errors.Is(err, protocol.ErrFrameTooLarge) {
				metrics.FramesRejected.Inc()
				connLog.Warn().Err(err).Msg("Protocol error")
				mgr.Fail(protocol.ProtocolError{
					Code: protocol.ErrorCode(err),
					Text: err.Error(),
				})
				return
			}
			// Transport error mid-frame.
			connLog.Debug().Err(err).Msg("Read failed")
			close(commands)
			return
		}
		select {
		case commands <- cmd:
		case <-ctx.Done():
			return
		}
	}
}
