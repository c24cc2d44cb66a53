package console

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/rconbridge/internal/observability"
)

var (
	ErrConnection = errors.New("console: connection failed")
	ErrTimeout    = errors.New("console: reply timeout")
	ErrClosed     = errors.New("console: session closed")

	// Scripts rejected before anything reaches the wire. The connection
	// stays up.
	ErrScriptTooLong = errors.New("console: script too long")
	ErrScriptEmpty   = errors.New("console: empty script")
)

// Status is a point-in-time view of the session for the admin surface.
type Status struct {
	Connected  bool      `json:"connected"`
	Dials      uint64    `json:"dials"`
	Reconnects uint64    `json:"reconnects"`
	Sends      uint64    `json:"sends"`
	Failures   uint64    `json:"failures"`
	LastError  string    `json:"last_error,omitempty"`
	LastSendAt time.Time `json:"last_send_at,omitempty"`
}

// Session serializes scripts over one backend connection.
type Session struct {
	dialer Dialer
	cfg    Config
	rng    *rand.Rand

	mu     sync.Mutex
	conn   Transport
	closed bool

	statusMu sync.Mutex
	status   Status
}

// New dials the backend and sends the diagnostic probe. Any failure is
// returned and no session is created.
func New(ctx context.Context, dialer Dialer, cfg Config) (*Session, error) {
	if dialer == nil {
		return nil, fmt.Errorf("%w: dialer required", ErrConnection)
	}
	s := &Session{
		dialer: dialer,
		cfg:    cfg.WithDefaults(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	reply, err := s.Send(ctx, s.cfg.Probe)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	log.Info().Str("component", "console").Str("probe_reply", reply).Msg("console session ready")
	return s, nil
}

// Send runs one script and returns the raw reply. Only one script is in
// flight at a time; callers queue on the session lock.
func (s *Session) Send(ctx context.Context, script string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}

	start := time.Now()
	conn, err := s.acquire(ctx)
	if err != nil {
		s.recordSend(err)
		observability.RecordConsoleSend("unreachable", time.Since(start))
		return "", err
	}
	reply, err := s.execute(conn, script)
	s.release(conn, err)
	s.recordSend(err)

	outcome := "ok"
	switch {
	case rejected(err):
		outcome = "rejected"
	case errors.Is(err, ErrTimeout):
		outcome = "timeout"
	case err != nil:
		outcome = "error"
	}
	observability.RecordConsoleSend(outcome, time.Since(start))
	return reply, err
}

// Status returns counters without waiting on an in-flight send.
func (s *Session) Status() Status {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.status
}

// Close drops the connection and rejects further sends.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.setConnected(false)
	return err
}

// acquire returns the live transport, dialing when there is none. Caller
// holds s.mu.
func (s *Session) acquire(ctx context.Context) (Transport, error) {
	if s.conn != nil {
		return s.conn, nil
	}
	var attempt int
	for {
		attempt++
		conn, err := s.dialer.Dial(ctx)
		observability.RecordConsoleDial(err == nil)
		if err == nil {
			s.conn = conn
			s.markDialed()
			return conn, nil
		}
		log.Warn().
			Str("component", "console").
			Int("attempt", attempt).
			Int("max_attempts", s.cfg.MaxAttempts).
			Err(err).
			Msg("console dial failed")
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrConnection, ctx.Err())
		}
		if !s.shouldRetry(attempt) {
			return nil, fmt.Errorf("%w after %d attempts: %v", ErrConnection, attempt, err)
		}
		if err := s.pause(ctx, attempt); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConnection, err)
		}
	}
}

// release discards the transport when the exchange failed. Caller holds s.mu.
func (s *Session) release(conn Transport, err error) {
	if err == nil || rejected(err) {
		return
	}
	_ = conn.Close()
	if s.conn == conn {
		s.conn = nil
	}
	s.setConnected(false)
	log.Warn().Str("component", "console").Err(err).Msg("console connection dropped")
}

type execResult struct {
	reply string
	err   error
}

func (s *Session) execute(conn Transport, script string) (string, error) {
	done := make(chan execResult, 1)
	go func() {
		reply, err := conn.Execute(script)
		done <- execResult{reply: reply, err: err}
	}()

	timer := time.NewTimer(s.cfg.ReplyTimeout)
	defer timer.Stop()
	select {
	case r := <-done:
		if rejected(r.err) {
			return "", r.err
		}
		if r.err != nil {
			return "", fmt.Errorf("%w: %v", ErrConnection, r.err)
		}
		return r.reply, nil
	case <-timer.C:
		return "", fmt.Errorf("%w after %s", ErrTimeout, s.cfg.ReplyTimeout)
	}
}

// rejected reports a local refusal that never touched the connection.
func rejected(err error) bool {
	return errors.Is(err, ErrScriptTooLong) || errors.Is(err, ErrScriptEmpty)
}

func (s *Session) shouldRetry(attempt int) bool {
	return attempt < s.cfg.MaxAttempts
}

func (s *Session) pause(ctx context.Context, attempt int) error {
	timer := time.NewTimer(s.cfg.Retry.Wait(attempt, s.rng))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Session) markDialed() {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if s.status.Dials > 0 {
		s.status.Reconnects++
	}
	s.status.Dials++
	s.status.Connected = true
}

func (s *Session) setConnected(v bool) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status.Connected = v
}

func (s *Session) recordSend(err error) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status.Sends++
	s.status.LastSendAt = time.Now()
	if err != nil {
		s.status.Failures++
		s.status.LastError = err.Error()
	}
}
