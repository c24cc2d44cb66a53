package console

import (
	"context"
	"time"

	"github.com/gorcon/rcon"
)

// RCONDialer dials a Source RCON console with password authentication.
type RCONDialer struct {
	Address     string
	Password    string
	DialTimeout time.Duration
	// Deadline bounds each Execute read/write on the wire.
	Deadline time.Duration
}

func (d RCONDialer) Dial(ctx context.Context) (Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts := []rcon.Option{}
	if d.DialTimeout > 0 {
		opts = append(opts, rcon.SetDialTimeout(d.DialTimeout))
	}
	if d.Deadline > 0 {
		opts = append(opts, rcon.SetDeadline(d.Deadline))
	}
	conn, err := rcon.Dial(d.Address, d.Password, opts...)
	if err != nil {
		return nil, err
	}
	return &rconTransport{conn: conn}, nil
}

type rconTransport struct {
	conn *rcon.Conn
}

func (t *rconTransport) Execute(script string) (string, error) {
	if err := checkScript(script, rcon.MaxCommandLen); err != nil {
		return "", err
	}
	return t.conn.Execute(script)
}

func (t *rconTransport) Close() error {
	return t.conn.Close()
}
