package console

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorcon/rcon"
	"github.com/gorcon/rcon/rcontest"

	"github.com/danmuck/rconbridge/internal/command"
	"github.com/danmuck/rconbridge/internal/protocol/frame"
	"github.com/danmuck/rconbridge/internal/testutil/testlog"
)

// longSearchScript encodes a search_entities command whose name filter
// pushes it past the RCON command limit.
func longSearchScript(t *testing.T) string {
	t.Helper()
	names := make([]any, 0, 40)
	for i := 0; i < 40; i++ {
		names = append(names, fmt.Sprintf("assembling-machine-%02d", i))
	}
	script, err := command.NewEncoder(nil, command.Policy{}).Encode(command.Command{
		Verb: command.VerbSearchEntities,
		Params: command.Params{
			"name":       names,
			"type":       "assembling-machine",
			"limit":      json.Number("25"),
			"position_x": json.Number("0"),
			"position_y": json.Number("0"),
			"radius":     json.Number("10"),
		},
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(script) <= rcon.MaxCommandLen {
		t.Fatalf("script is only %d bytes", len(script))
	}
	return script
}

func TestCheckScript(t *testing.T) {
	testlog.Start(t)
	if err := checkScript(" \n ", 10); !errors.Is(err, ErrScriptEmpty) {
		t.Fatalf("expected ErrScriptEmpty, got %v", err)
	}
	if err := checkScript("/c rcon.print(1)", 10); !errors.Is(err, ErrScriptTooLong) {
		t.Fatalf("expected ErrScriptTooLong, got %v", err)
	}
	if err := checkScript("/c rcon.print(1)", 0); err != nil {
		t.Fatalf("no limit: %v", err)
	}
}

func TestOversizedScriptKeepsRCONConnection(t *testing.T) {
	testlog.Start(t)
	server := rcontest.NewUnstartedServer()
	server.Settings.Password = "secret"
	var mu sync.Mutex
	var seen []string
	server.SetCommandHandler(func(c *rcontest.Context) {
		mu.Lock()
		seen = append(seen, c.Request().Body())
		mu.Unlock()
		_, _ = rcon.NewPacket(rcon.SERVERDATA_RESPONSE_VALUE, c.Request().ID, "ok").WriteTo(c.Conn())
	})
	server.Start()
	defer server.Close()

	dialer := RCONDialer{Address: server.Addr(), Password: "secret", DialTimeout: time.Second, Deadline: time.Second}
	s, err := New(context.Background(), dialer, fastConfig())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer s.Close()

	_, err = s.Send(context.Background(), longSearchScript(t))
	if !errors.Is(err, ErrScriptTooLong) {
		t.Fatalf("expected ErrScriptTooLong, got %v", err)
	}
	if errors.Is(err, ErrConnection) {
		t.Fatalf("oversized script reported as a connection failure: %v", err)
	}
	if st := s.Status(); !st.Connected || st.Dials != 1 {
		t.Fatalf("connection must survive a local rejection: %+v", st)
	}

	reply, err := s.Send(context.Background(), "/c rcon.print(1)")
	if err != nil || reply != "ok" {
		t.Fatalf("follow-up send: %q, %v", reply, err)
	}
	st := s.Status()
	if st.Dials != 1 || st.Reconnects != 0 || st.Failures != 1 {
		t.Fatalf("unexpected status after follow-up: %+v", st)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[1] != "/c rcon.print(1)" {
		t.Fatalf("server should only see the startup script and the follow-up: %q", seen)
	}
}

func TestRejectedScriptDoesNotDropTransport(t *testing.T) {
	testlog.Start(t)
	d := &fakeDialer{}
	s, err := New(context.Background(), d, fastConfig())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer s.Close()

	first := d.transports[0]
	first.mu.Lock()
	first.fail = fmt.Errorf("%w: 2000 bytes, limit 1000", ErrScriptTooLong)
	first.mu.Unlock()
	if _, err := s.Send(context.Background(), "/c big"); !errors.Is(err, ErrScriptTooLong) {
		t.Fatalf("expected ErrScriptTooLong, got %v", err)
	}
	if first.isClosed() {
		t.Fatalf("transport closed after a local rejection")
	}

	first.mu.Lock()
	first.fail = nil
	first.mu.Unlock()
	if _, err := s.Send(context.Background(), "/c small"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if d.calls != 1 {
		t.Fatalf("expected no redial, got %d dials", d.calls)
	}
}

func TestLineTransportRejectsBeforeWriting(t *testing.T) {
	testlog.Start(t)
	client, server := net.Pipe()
	defer server.Close()

	tr := NewLineTransport(client, time.Second, frame.Limits{MaxLineBytes: 16})
	defer tr.Close()

	// net.Pipe is unbuffered: any write would block without a reader.
	if _, err := tr.Execute(strings.Repeat("x", 17)); !errors.Is(err, ErrScriptTooLong) {
		t.Fatalf("expected ErrScriptTooLong, got %v", err)
	}
	if _, err := tr.Execute("\n  \n"); !errors.Is(err, ErrScriptEmpty) {
		t.Fatalf("expected ErrScriptEmpty, got %v", err)
	}
}
