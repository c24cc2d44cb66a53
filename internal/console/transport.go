package console

import (
	"context"
	"fmt"
	"strings"
)

// Transport is one live connection to a backend console. Execute sends one
// script and returns the reply text, which may be empty.
type Transport interface {
	Execute(script string) (string, error)
	Close() error
}

// Dialer opens new transports for a Session.
type Dialer interface {
	Dial(ctx context.Context) (Transport, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context) (Transport, error)

func (f DialerFunc) Dial(ctx context.Context) (Transport, error) {
	return f(ctx)
}

// checkScript rejects a script the transport would refuse before writing
// anything. limit <= 0 means no length limit.
func checkScript(script string, limit int) error {
	if strings.TrimSpace(script) == "" {
		return ErrScriptEmpty
	}
	if limit > 0 && len(script) > limit {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrScriptTooLong, len(script), limit)
	}
	return nil
}
