package socks5

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/orvantis/socks5d/internal/logging"
)

// sessionState mirrors spec's Session.state: METHOD_ID, REQUEST,
// STREAMING, STREAMING_END. In the blocking-I/O model a single
// goroutine walks METHOD_ID -> REQUEST -> STREAMING in a straight
// line, and STREAMING_END is sticky exactly as spec requires — once
// set, nothing but Close follows.
type sessionState int

const (
	stateMethodID sessionState = iota
	stateRequest
	stateStreaming
	stateStreamingEnd
)

func (s sessionState) String() string {
	switch s {
	case stateMethodID:
		return "METHOD_ID"
	case stateRequest:
		return "REQUEST"
	case stateStreaming:
		return "STREAMING"
	case stateStreamingEnd:
		return "STREAMING_END"
	default:
		return "UNKNOWN"
	}
}

// halfCloser is implemented by connections that support a TCP
// half-close, letting one direction signal "done writing" while the
// other direction keeps flowing.
type halfCloser interface {
	CloseWrite() error
}

// Session owns one accepted client connection end to end: handshake,
// request, upstream connect (with resolver fallback), and the
// streaming relay. It is created per accepted connection and is
// never referenced by any other session — the only state a Session
// shares with the rest of the server is its entry in the server's
// sessionTracker.
type Session struct {
	server *Server
	client net.Conn

	state    sessionState
	upstream net.Conn
	parser   Ctx

	clientBuf   []byte
	upstreamBuf []byte

	bytesUp   atomic.Int64
	bytesDown atomic.Int64

	closeOnce sync.Once
	relayWG   sync.WaitGroup
}

func newSession(server *Server, client net.Conn) *Session {
	return &Session{
		server:      server,
		client:      client,
		state:       stateMethodID,
		clientBuf:   make([]byte, server.cfg.BufferSize),
		upstreamBuf: make([]byte, server.cfg.BufferSize),
	}
}

// run drives the session through every phase and always closes it
// before returning. This is the single entry point the acceptor's
// per-connection goroutine calls.
func (s *Session) run() {
	defer s.Close()

	if err := s.handshake(); err != nil {
		s.logf(slog.LevelDebug, "handshake failed", err)
		return
	}
	if s.state == stateStreamingEnd {
		return // no acceptable auth method; FF reply already sent
	}

	req, err := s.readRequest()
	if err != nil {
		s.failRequest(err)
		return
	}
	if s.server.cfg.IdleTimeout > 0 {
		s.client.SetDeadline(time.Time{})
	}

	if err := s.connectAndReply(req); err != nil {
		s.logf(slog.LevelInfo, "connect failed", err)
		return
	}

	s.stream()
	s.logClose()
}

// handshake reads and parses the greeting, feeding arbitrarily sized
// reads to the incremental parser until it reports FINISH — the
// blocking-I/O form of "if parser returns OK but not FINISH, arm
// another client read."
func (s *Session) handshake() error {
	buf := make([]byte, len(s.clientBuf))
	for !s.parser.Done() {
		n, err := s.client.Read(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			continue // spurious wakeup; read stays armed
		}
		if _, err := s.parser.ParseMethodIdentification(buf[:n]); err != nil {
			return err
		}
	}

	if !s.parser.HasNoAuth() {
		s.client.Write([]byte{Version, AuthNoAcceptable})
		s.state = stateStreamingEnd
		return nil
	}

	if _, err := s.client.Write([]byte{Version, AuthNone}); err != nil {
		return err
	}

	s.parser.Reset()
	s.state = stateRequest
	return nil
}

// readRequest reads and parses the CONNECT request the same way
// handshake reads the greeting.
func (s *Session) readRequest() (*Ctx, error) {
	buf := make([]byte, len(s.clientBuf))
	for !s.parser.Done() {
		n, err := s.client.Read(buf)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			continue
		}
		if _, err := s.parser.ParseRequest(buf[:n]); err != nil {
			return nil, err
		}
	}
	return &s.parser, nil
}

// failRequest sends the mapped error reply for a parser failure and
// marks the session for close, per spec section 4.4.
func (s *Session) failRequest(err error) {
	s.sendReply(replyForError(err), nil, 0)
	s.state = stateStreamingEnd
}

// connectAndReply resolves and connects to the requested destination
// (trying every resolved address in order for DOMAIN requests, per
// spec's resolved open question in section 9), then sends the
// CONNECT success or failure reply.
func (s *Session) connectAndReply(req *Ctx) error {
	host := requestHost(req)
	if req.Atyp == AddrDomain {
		host = normalizeHostname(host)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.server.cfg.ConnectTimeout)
	defer cancel()

	upstream, err := dialResolved(ctx, s.server.cfg.Dialer, s.server.resolver, host, req.DstPort)
	if err != nil {
		s.sendReply(replyForError(err), nil, 0)
		s.state = stateStreamingEnd
		return err
	}
	s.upstream = upstream
	enableKeepAlive(upstream, s.server.cfg.KeepAliveIdle)

	// BND.ADDR/BND.PORT echo the proxy's own listen address.
	var bindIP net.IP
	var bindPort uint16
	if local, ok := s.server.Address().(*net.TCPAddr); ok {
		bindIP = local.IP
		bindPort = uint16(local.Port)
	}

	if err := s.sendReply(ReplySucceeded, bindIP, bindPort); err != nil {
		s.state = stateStreamingEnd
		return err
	}

	s.state = stateStreaming
	return nil
}

// requestHost renders the parsed destination address as a string
// suitable for dialing or resolving.
func requestHost(req *Ctx) string {
	if req.Atyp == AddrDomain {
		return string(req.DstAddr[:len(req.DstAddr)-1]) // trim NUL
	}
	return net.IP(req.DstAddr).String()
}

// sendReply writes the SOCKS5 reply frame
// VER | REP | RSV | ATYP | BND.ADDR | BND.PORT. BND.PORT is always
// written in network byte order — the byte-order bug spec section 9
// flags as an open question in the source is not reproduced here.
func (s *Session) sendReply(rep byte, bindIP net.IP, bindPort uint16) error {
	var atyp byte
	var addr []byte

	switch {
	case bindIP == nil:
		atyp, addr = AddrIPv4, make([]byte, 4)
	default:
		if v4 := bindIP.To4(); v4 != nil {
			atyp, addr = AddrIPv4, v4
		} else {
			atyp, addr = AddrIPv6, bindIP.To16()
		}
	}

	buf := make([]byte, 4+len(addr)+2)
	buf[0] = Version
	buf[1] = rep
	buf[2] = 0x00
	buf[3] = atyp
	copy(buf[4:], addr)
	binary.BigEndian.PutUint16(buf[4+len(addr):], bindPort)

	_, err := s.client.Write(buf)
	return err
}

// stream runs the full-duplex relay: one goroutine per direction,
// each exclusively owning its direction's fixed buffer. io.CopyBuffer
// reads into that buffer and writes the exact bytes read before
// reading again — the half-duplex interlock spec section 4.6
// requires — and treats a zero-length, no-error Read as a no-op
// rather than a reason to stop, resolving spec section 9's nread==0
// open question the same way.
func (s *Session) stream() {
	s.relayWG.Add(2)
	go s.copyDirection(s.upstream, s.client, s.clientBuf, &s.bytesUp)
	go s.copyDirection(s.client, s.upstream, s.upstreamBuf, &s.bytesDown)
	s.relayWG.Wait()
}

func (s *Session) copyDirection(dst, src net.Conn, buf []byte, counter *atomic.Int64) {
	defer s.relayWG.Done()

	var reader io.Reader = src
	if limit := s.server.cfg.RateLimitBytesPerSec; limit > 0 {
		reader = maybeRateLimit(context.Background(), reader, limit, len(buf))
	}

	// The plain io.Writer/io.Reader wrappers hide ReaderFrom/WriterTo,
	// which would otherwise make io.CopyBuffer bypass buf.
	n, _ := io.CopyBuffer(struct{ io.Writer }{dst}, struct{ io.Reader }{reader}, buf)
	counter.Add(n)

	if hc, ok := dst.(halfCloser); ok {
		hc.CloseWrite()
	}

	// Either side ending its copy loop (remote EOF or a read/write
	// error) ends the whole session; Close is idempotent so both
	// directions racing here is safe.
	s.Close()
}

// Close tears down both endpoints exactly once. Closing a net.Conn a
// second time is harmless, but the sync.Once still matters: it is
// what makes every call site in spec section 4.7's list (accept
// failure, parser error, remote EOF, connect failure, rejected
// greeting) safe to route through the same Close without
// coordinating who "owns" the shutdown. The two relay goroutines are
// joined (via relayWG, awaited by stream) before run returns and the
// server removes the session from its tracker — this join is the
// blocking-I/O trampoline that replaces spec's deferred,
// timer-based destruction: by the time the session is dropped, every
// goroutine that could still touch its buffers has exited.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.client.Close()
		if s.upstream != nil {
			s.upstream.Close()
		}
	})
	return nil
}

func (s *Session) logf(level slog.Level, msg string, err error) {
	s.server.logger.Log(context.Background(), level, msg,
		logging.KeyRemoteAddr, s.client.RemoteAddr().String(),
		logging.KeyError, err,
	)
}

func (s *Session) logClose() {
	s.server.logger.Debug("session closed",
		logging.KeyRemoteAddr, s.client.RemoteAddr().String(),
		"sent", humanize.Bytes(uint64(s.bytesDown.Load())),
		"received", humanize.Bytes(uint64(s.bytesUp.Load())),
	)
}
