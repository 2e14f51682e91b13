package socks5

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orvantis/socks5d/internal/logging"
)

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host and Port to listen on.
	Host string
	Port int

	// Backlog is the pending-connection queue depth passed to
	// listen(2). Zero means "use the platform default."
	Backlog int

	// BufferSize sizes both the per-direction relay buffer and the
	// scratch buffer used while reading the handshake and request.
	BufferSize int

	// MaxConnections limits concurrent sessions (0 = unlimited).
	MaxConnections int

	// ConnectTimeout bounds dialing the requested destination.
	ConnectTimeout time.Duration

	// IdleTimeout, if set, is applied as a read/write deadline on the
	// client connection before the handshake begins, and cleared once
	// the request has been read.
	IdleTimeout time.Duration

	// KeepAliveIdle enables TCP keepalive with this idle time on the
	// client connection when it is accepted and on the upstream
	// connection once it is dialed.
	KeepAliveIdle time.Duration

	// RateLimitBytesPerSec caps relay throughput per direction per
	// session when positive; 0 disables limiting.
	RateLimitBytesPerSec int64

	// Dialer makes outbound connections for CONNECT requests.
	Dialer Dialer

	// Resolver resolves DOMAIN requests; defaults to net.DefaultResolver.
	Resolver *net.Resolver

	Logger *slog.Logger
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:           "127.0.0.1",
		Port:           8789,
		Backlog:        256,
		BufferSize:     2048,
		MaxConnections: 1000,
		ConnectTimeout: 10 * time.Second,
		KeepAliveIdle:  60 * time.Second,
		Dialer:         &DirectDialer{},
		Resolver:       net.DefaultResolver,
		Logger:         slog.Default(),
	}
}

// Server is a SOCKS5 proxy server: one listener, one sessionTracker,
// and a goroutine per accepted connection. There is no shared mutable
// session state beyond the tracker — the same "only the listener
// handle and read-only startup context are process-global" property
// spec's shared-resource policy requires.
type Server struct {
	cfg      ServerConfig
	listener net.Listener
	resolver *net.Resolver
	logger   *slog.Logger

	tracker *sessionTracker

	running  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewServer creates a new SOCKS5 server. It does not bind the
// listener; call Start for that.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Dialer == nil {
		cfg.Dialer = &DirectDialer{}
	}
	if cfg.Resolver == nil {
		cfg.Resolver = net.DefaultResolver
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 2048
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Server{
		cfg:      cfg,
		resolver: cfg.Resolver,
		logger:   cfg.Logger,
		tracker:  newSessionTracker(),
		stopCh:   make(chan struct{}),
	}
}

// Start binds the listener and begins accepting connections.
func (s *Server) Start() error {
	if s.running.Load() {
		return fmt.Errorf("server already running")
	}

	addrs := []*net.TCPAddr{{IP: net.ParseIP(s.cfg.Host), Port: s.cfg.Port}}
	if addrs[0].IP == nil {
		resolved, err := net.DefaultResolver.LookupIPAddr(context.Background(), s.cfg.Host)
		if err != nil {
			return fmt.Errorf("resolve listen address: %w", err)
		}
		addrs = addrs[:0]
		for _, ip := range resolved {
			addrs = append(addrs, &net.TCPAddr{IP: ip.IP, Zone: ip.Zone, Port: s.cfg.Port})
		}
	}

	// Try each resolved address in order; the first that binds wins.
	var listener net.Listener
	err := fmt.Errorf("no address to listen on for %q", s.cfg.Host)
	for _, addr := range addrs {
		if listener, err = listenBacklog(addr, s.cfg.Backlog); err == nil {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.listener = listener
	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Stop closes the listener, closes every live session, and waits for
// the accept loop and every session goroutine to exit.
func (s *Server) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		s.running.Store(false)
		close(s.stopCh)

		if s.listener != nil {
			err = s.listener.Close()
		}

		s.tracker.closeAll()
	})

	s.wg.Wait()
	return err
}

// StopWithContext stops the server, returning ctx.Err() if it takes
// longer than the context allows. The shutdown itself still
// completes in the background even on timeout.
func (s *Server) StopWithContext(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		done <- s.Stop()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Address returns the listening address, or nil if the server has
// not started.
func (s *Server) Address() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ConnectionCount returns the number of live sessions.
func (s *Server) ConnectionCount() int64 {
	return s.tracker.Count()
}

// IsRunning reports whether the server is currently accepting connections.
func (s *Server) IsRunning() bool {
	return s.running.Load()
}

// acceptLoop accepts connections until the listener is closed.
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
				s.logger.Warn("accept failed", logging.KeyError, err)
				continue
			}
		}

		if s.cfg.MaxConnections > 0 && s.tracker.Count() >= int64(s.cfg.MaxConnections) {
			conn.Close()
			continue
		}

		enableKeepAlive(conn, s.cfg.KeepAliveIdle)
		if s.cfg.IdleTimeout > 0 {
			conn.SetDeadline(time.Now().Add(s.cfg.IdleTimeout))
		}

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// handleConn runs one session to completion, keeping the tracker
// current for the server's lifetime and for Stop's closeAll pass.
func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()

	sess := newSession(s, conn)
	s.tracker.add(sess)
	defer s.tracker.remove(sess)

	sess.run()
}

// WithDialer returns a copy of cfg using the given dialer, for tests
// that need to substitute an in-process upstream.
func (cfg ServerConfig) WithDialer(dialer Dialer) ServerConfig {
	cfg.Dialer = dialer
	return cfg
}

// WithMaxConnections returns a copy of cfg with MaxConnections set.
func (cfg ServerConfig) WithMaxConnections(max int) ServerConfig {
	cfg.MaxConnections = max
	return cfg
}
