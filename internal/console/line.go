package console

import (
	"bufio"
	"context"
	"net"
	"time"

	"github.com/danmuck/rconbridge/internal/protocol/frame"
)

// LineDialer dials a plain TCP console that takes one script per line and
// answers with one line.
type LineDialer struct {
	Address     string
	DialTimeout time.Duration
	Deadline    time.Duration
	Limits      frame.Limits
}

func (d LineDialer) Dial(ctx context.Context) (Transport, error) {
	dialer := net.Dialer{Timeout: d.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", d.Address)
	if err != nil {
		return nil, err
	}
	return NewLineTransport(conn, d.Deadline, d.Limits), nil
}

// NewLineTransport wraps an established connection.
func NewLineTransport(conn net.Conn, deadline time.Duration, limits frame.Limits) Transport {
	if limits.MaxLineBytes <= 0 {
		limits = frame.DefaultLimits()
	}
	return &lineTransport{
		conn:     conn,
		reader:   bufio.NewReader(conn),
		deadline: deadline,
		limits:   limits,
	}
}

type lineTransport struct {
	conn     net.Conn
	reader   *bufio.Reader
	deadline time.Duration
	limits   frame.Limits
}

func (t *lineTransport) Execute(script string) (string, error) {
	line := frame.Flatten(script)
	if err := checkScript(line, t.limits.MaxLineBytes); err != nil {
		return "", err
	}
	if t.deadline > 0 {
		_ = t.conn.SetDeadline(time.Now().Add(t.deadline))
		defer func() { _ = t.conn.SetDeadline(time.Time{}) }()
	}
	if err := frame.WriteFrame(t.conn, line, t.limits); err != nil {
		return "", err
	}
	return frame.ReadFrame(t.reader, t.limits)
}

func (t *lineTransport) Close() error {
	return t.conn.Close()
}
