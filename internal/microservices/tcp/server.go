package tcp

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// ServerOptions holds the timing knobs of the relay
type ServerOptions struct {
	AcceptInterval time.Duration // how long one accept poll waits before re-checking shutdown
	PollInterval   time.Duration
	SendTimeout    time.Duration
	IdleTimeout    time.Duration
}

func DefaultServerOptions() ServerOptions {
	return ServerOptions{
		AcceptInterval: 100 * time.Millisecond,
		PollInterval:   100 * time.Millisecond,
		SendTimeout:    250 * time.Millisecond,
	}
}

// TCPServer owns all shared relay state: the registry, the shutdown flag and
// the goroutines it spawned
type TCPServer struct {
	Addr string
	// server address
	Manager *ConnectionManager
	// shared across every session goroutine
	opts   ServerOptions
	logger *slog.Logger

	listener *net.TCPListener
	quitChan chan struct{}
	// closed on shutdown; checked by the accept loop and every session each poll
	acceptWG  sync.WaitGroup
	sessionWG sync.WaitGroup
	stopOnce  sync.Once
}

// constructor for Server
func NewServer(addr string, opts ServerOptions, logger *slog.Logger) *TCPServer {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultServerOptions()
	if opts.AcceptInterval <= 0 {
		opts.AcceptInterval = defaults.AcceptInterval
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaults.PollInterval
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaults.SendTimeout
	}
	return &TCPServer{
		Addr:     addr,
		Manager:  NewConnectionManager(logger, opts.SendTimeout),
		opts:     opts,
		logger:   logger,
		quitChan: make(chan struct{}),
	}
}

// Start binds the listener and launches the accept loop. A bind failure is
// returned before any goroutine is started.
func (s *TCPServer) Start() error {
	listener, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("failed to start TCP server, error: %w", err)
	}
	tcpListener, ok := listener.(*net.TCPListener)
	if !ok {
		listener.Close()
		return fmt.Errorf("failed to start TCP server, unexpected listener %T", listener)
	}
	s.listener = tcpListener
	s.logger.Info("tcp_server_started", "addr", tcpListener.Addr().String())

	s.acceptWG.Add(1)
	go func() {
		defer s.acceptWG.Done()
		s.acceptLoop()
	}()
	return nil
}

// ListenAddr reports the bound address, useful when Addr asked for port 0
func (s *TCPServer) ListenAddr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Done is closed once shutdown has begun
func (s *TCPServer) Done() <-chan struct{} {
	return s.quitChan
}

func (s *TCPServer) acceptLoop() {
	for {
		select {
		case <-s.quitChan:
			return
		default:
		}

		s.listener.SetDeadline(time.Now().Add(s.opts.AcceptInterval))
		conn, err := s.listener.AcceptTCP()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue // nothing pending
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("failed_to_accept_connection", "error", err.Error())
			time.Sleep(s.opts.AcceptInterval)
			continue
		}

		client := NewClientConnection(conn, s.Manager)
		s.Manager.AddConnection(client)

		s.sessionWG.Add(1)
		go func(client *ClientConnection) {
			defer s.sessionWG.Done()
			client.Listen(s.quitChan, SessionOptions{
				PollInterval: s.opts.PollInterval,
				IdleTimeout:  s.opts.IdleTimeout,
				SendTimeout:  s.opts.SendTimeout,
			})
		}(client)
	}
}

// Stop shuts down in order: flag, listener, accept loop, sessions.
// Each session notices the flag within one poll interval.
func (s *TCPServer) Stop() {
	s.stopOnce.Do(func() {
		close(s.quitChan)
		if s.listener != nil {
			s.listener.Close()
		}
		s.acceptWG.Wait()
		s.sessionWG.Wait()
		s.Manager.CloseAllConnections()
		s.logger.Info("tcp_server_stopped")
	})
}
