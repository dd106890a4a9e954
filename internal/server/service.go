package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/kettle/internal/config"
	"github.com/danmuck/kettle/internal/kettle"
	"github.com/danmuck/kettle/internal/observability"
	"github.com/danmuck/kettle/internal/protocol/frame"
	"github.com/rs/zerolog"
	"github.com/xtaci/kcp-go/v5"
)

var ErrSessionLimit = errors.New("server: session limit reached")

type session struct {
	info    SessionInfo
	adapter *kettle.Adapter
	packets atomic.Uint64
	errors  atomic.Uint64
}

func (s *session) snapshot() SessionInfo {
	info := s.info
	info.Packets = s.packets.Load()
	info.Errors = s.errors.Load()
	return info
}

// Service accepts client connections and runs one adapter per connection.
type Service struct {
	cfg     config.Config
	factory EngineFactory
	limits  frame.Limits
	log     zerolog.Logger

	startedAt time.Time
	ready     atomic.Bool
	nextID    atomic.Uint64

	mu       sync.Mutex
	sessions map[uint64]*session
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
}

// NewService builds a service over cfg. A nil factory falls back to LogEngine.
func NewService(cfg config.Config, factory EngineFactory) *Service {
	if factory == nil {
		factory = LogEngine
	}
	observability.RegisterMetrics()
	return &Service{
		cfg:       cfg,
		factory:   factory,
		limits:    frame.Limits{MaxPayloadBytes: cfg.MaxFrameBytes},
		log:       observability.ComponentLogger("server"),
		startedAt: time.Now(),
		sessions:  make(map[uint64]*session),
		conns:     make(map[net.Conn]struct{}),
	}
}

// Listen opens the configured client listener.
func (s *Service) Listen() (net.Listener, error) {
	switch s.cfg.Transport {
	case config.TransportKCP:
		ln, err := kcp.ListenWithOptions(s.cfg.ListenAddr, nil, 0, 0)
		if err != nil {
			return nil, fmt.Errorf("listen kcp %s: %w", s.cfg.ListenAddr, err)
		}
		return ln, nil
	case config.TransportTCP, "":
		ln, err := net.Listen("tcp", s.cfg.ListenAddr)
		if err != nil {
			return nil, fmt.Errorf("listen tcp %s: %w", s.cfg.ListenAddr, err)
		}
		return ln, nil
	default:
		return nil, fmt.Errorf("%w: unknown transport %q", config.ErrInvalidConfig, s.cfg.Transport)
	}
}

// Run listens, serves the admin API when configured, and blocks until ctx is
// done or a listener fails.
func (s *Service) Run(ctx context.Context) error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	s.log.Info().
		Str("transport", s.cfg.Transport).
		Str("addr", ln.Addr().String()).
		Msg("server.Service.Run listening")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	adminErr := make(chan error, 1)
	if addr := strings.TrimSpace(s.cfg.AdminAddr); addr != "" {
		go func() {
			adminErr <- s.ServeAdmin(ctx, addr)
		}()
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.Serve(ctx, ln)
	}()

	select {
	case err := <-serveErr:
		return err
	case err := <-adminErr:
		if err != nil {
			cancel()
			<-serveErr
			return err
		}
		return <-serveErr
	}
}

// Serve accepts connections on ln until ctx is done. It closes every session
// and waits for their loops before returning.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	go func() {
		<-ctx.Done()
		s.ready.Store(false)
		s.closeAllConns()
		_ = ln.Close()
	}()

	s.ready.Store(true)
	defer s.wg.Wait()
	for {
		conn, err := ln.Accept()
		if err != nil {
			s.ready.Store(false)
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.closeAllConns()
			return err
		}
		if !s.trackConn(conn) {
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// Ready reports whether the accept loop is running.
func (s *Service) Ready() bool {
	return s.ready.Load()
}

func (s *Service) Uptime() time.Duration {
	return time.Since(s.startedAt)
}

// SnapshotSessions returns the live sessions ordered by id.
func (s *Service) SnapshotSessions() []SessionInfo {
	s.mu.Lock()
	out := make([]SessionInfo, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.snapshot())
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// trackConn registers conn, or closes it when the session limit is reached.
func (s *Service) trackConn(conn net.Conn) bool {
	s.mu.Lock()
	if s.cfg.MaxSessions > 0 && len(s.conns) >= s.cfg.MaxSessions {
		active := len(s.conns)
		s.mu.Unlock()
		observability.SessionRejected()
		s.log.Warn().
			Str("remote", conn.RemoteAddr().String()).
			Int("active_sessions", active).
			Err(ErrSessionLimit).
			Msg("server.Service.Serve rejected connection")
		_ = conn.Close()
		return false
	}
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
	return true
}

func (s *Service) untrackConn(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Service) closeAllConns() {
	s.mu.Lock()
	conns := make([]net.Conn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()
	for _, conn := range conns {
		_ = conn.Close()
	}
}

func (s *Service) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	defer s.untrackConn(conn)

	info := SessionInfo{
		ID:          s.nextID.Add(1),
		Transport:   s.cfg.Transport,
		RemoteAddr:  conn.RemoteAddr().String(),
		ConnectedAt: time.Now(),
	}
	logger := observability.SessionLogger(info.ID, info.Transport, info.RemoteAddr)

	var stream net.Conn = conn
	if s.cfg.ReadTimeout > 0 {
		stream = &deadlineConn{Conn: conn, timeout: s.cfg.ReadTimeout}
	}
	out := kettle.NewSender(stream, s.limits)
	handlers, err := s.factory(info, out, logger)
	if err != nil {
		logger.Error().Err(err).Msg("server.Service.handleConn engine setup failed")
		return
	}
	adapter, err := kettle.NewAdapter(stream, handlers, kettle.AdapterOptions{
		Limits: s.limits,
		Sender: out,
		Logger: &logger,
	})
	if err != nil {
		logger.Error().Err(err).Msg("server.Service.handleConn adapter setup failed")
		return
	}

	sess := &session{info: info, adapter: adapter}
	s.mu.Lock()
	s.sessions[info.ID] = sess
	active := len(s.sessions)
	s.mu.Unlock()
	observability.SessionOpened()
	logger.Info().
		Int("active_sessions", active).
		Strs("handled", adapter.Tags()).
		Msg("server.Service.handleConn client connected")

	defer func() {
		s.mu.Lock()
		delete(s.sessions, info.ID)
		remaining := len(s.sessions)
		s.mu.Unlock()
		observability.SessionClosed()
		event := logger.Info()
		if cause := adapter.Err(); cause != nil {
			event = logger.Warn().Err(cause)
		}
		event.
			Uint64("packets", sess.packets.Load()).
			Uint64("errors", sess.errors.Load()).
			Int("active_sessions", remaining).
			Msg("server.Service.handleConn client disconnected")
	}()

	stop := context.AfterFunc(ctx, func() {
		_ = adapter.Close()
	})
	defer stop()

	for {
		ok, err := adapter.HandleNextPacket()
		if err != nil {
			// A bad envelope, a schema mismatch or a failed handler leaves the
			// frame partly applied; the session is not trusted past it.
			sess.errors.Add(1)
			logger.Warn().Err(err).Bool("open", ok).Msg("server.Service.handleConn closing session")
			_ = adapter.Close()
			return
		}
		if !ok {
			return
		}
		sess.packets.Add(1)
	}
}

// deadlineConn refreshes the read deadline before every read so an idle peer
// is dropped after timeout.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *deadlineConn) Read(p []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(p)
}
