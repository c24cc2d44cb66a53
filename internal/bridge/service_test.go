package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danmuck/rconbridge/internal/catalog"
	"github.com/danmuck/rconbridge/internal/config"
	"github.com/danmuck/rconbridge/internal/console"
	"github.com/danmuck/rconbridge/internal/dispatch"
	"github.com/danmuck/rconbridge/internal/mqtt"
	"github.com/danmuck/rconbridge/internal/snapshot"
	"github.com/danmuck/rconbridge/internal/testutil/testlog"
)

type published struct {
	topic   string
	payload string
}

type fakeBus struct {
	mu        sync.Mutex
	handlers  map[string]mqtt.Handler
	published []published
	closed    bool
}

func newFakeBus() *fakeBus {
	return &fakeBus{handlers: map[string]mqtt.Handler{}}
}

func (b *fakeBus) Publish(topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, published{topic: topic, payload: string(payload)})
	return nil
}

func (b *fakeBus) Subscribe(topic string, _ byte, h mqtt.Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = h
	return nil
}

func (b *fakeBus) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.closed
}

func (b *fakeBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

func (b *fakeBus) deliver(t *testing.T, topic, payload string) {
	t.Helper()
	b.mu.Lock()
	h, ok := b.handlers[topic]
	b.mu.Unlock()
	require.True(t, ok, "no subscription for %s", topic)
	require.NoError(t, h(topic, []byte(payload)))
}

func (b *fakeBus) find(topic string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range b.published {
		if p.topic == topic {
			return p.payload, true
		}
	}
	return "", false
}

type scriptedTransport struct {
	mu      sync.Mutex
	scripts []string
}

func (s *scriptedTransport) Execute(script string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts = append(s.scripts, script)
	if strings.Contains(script, "rcon.print(game.get_player(1).position)") {
		return "{x = 4, y = 5}", nil
	}
	return "", nil
}

func (s *scriptedTransport) Close() error { return nil }

type onceReader struct {
	mu   sync.Mutex
	sent bool
}

func (r *onceReader) Read(context.Context) (snapshot.Export, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sent {
		return snapshot.Export{}, false, nil
	}
	r.sent = true
	exp, err := snapshot.ParseExport([]byte(`{"tick": 1, "assets": [{"unit_number": 1, "type": "furnace", "last_status": 1}]}`))
	return exp, true, err
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Admin.Enabled = false
	cfg.RCON.RetryDelay = time.Millisecond
	cfg.Snapshot.Interval = 5 * time.Millisecond
	return cfg
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestServiceRoundTrip(t *testing.T) {
	testlog.Start(t)
	transport := &scriptedTransport{}
	bus := newFakeBus()
	svc := NewService(testConfig(),
		WithDialer(console.DialerFunc(func(context.Context) (console.Transport, error) { return transport, nil })),
		WithBus(bus),
		WithStateReader(&onceReader{}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, svc.Bootstrap(ctx))
	assert.Equal(t, Ready, svc.Readiness())

	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	bus.deliver(t, "Factorio/Commands", `{"command":"get_player_position"}`)
	bus.deliver(t, "Factorio/Plans", "build a smelter column")

	eventually(t, func() bool {
		_, ok := bus.find("Factorio/Responses")
		return ok
	})
	resp, _ := bus.find("Factorio/Responses")
	var got dispatch.Response
	require.NoError(t, json.Unmarshal([]byte(resp), &got))
	assert.Equal(t, "get_player_position", got.Command)
	assert.Equal(t, map[string]any{"x": 4.0, "y": 5.0}, got.Result)

	eventually(t, func() bool {
		_, ok := bus.find("factorio/machines/furnace/1/status")
		return ok
	})
	status, _ := bus.find("factorio/machines/furnace/1/status")
	assert.Equal(t, `"Working"`, status)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not stop")
	}
	assert.False(t, bus.IsConnected(), "bus closed on shutdown")
}

func TestBootstrapFailsWhenConsoleUnreachable(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig()
	cfg.RCON.MaxAttempts = 2
	bus := newFakeBus()
	svc := NewService(cfg,
		WithDialer(console.DialerFunc(func(context.Context) (console.Transport, error) {
			return nil, errors.New("connection refused")
		})),
		WithBus(bus),
	)
	err := svc.Bootstrap(context.Background())
	assert.ErrorIs(t, err, console.ErrConnection)
	assert.Empty(t, bus.handlers, "nothing subscribes before the console is up")
}

func TestServeRequiresBootstrap(t *testing.T) {
	testlog.Start(t)
	err := NewService(testConfig()).Serve(context.Background())
	assert.ErrorIs(t, err, ErrNotBootstrapped)
}

type stubSource struct {
	ready    Readiness
	snapshot bool
	catalog  *catalog.Catalog
}

func (s stubSource) Readiness() Readiness {
	if s.ready == "" {
		return NotReady
	}
	return s.ready
}
func (s stubSource) Catalog() *catalog.Catalog { return s.catalog }
func (s stubSource) SessionStatus() console.Status {
	return console.Status{Connected: s.ready == Ready, Sends: 3}
}
func (s stubSource) DispatchStats() dispatch.Stats {
	return dispatch.Stats{Handled: 2, ByPhase: map[dispatch.Phase]uint64{dispatch.PhasePublished: 2}}
}
func (s stubSource) SnapshotStats() (snapshot.Stats, bool) {
	return snapshot.Stats{Polls: 4, CachedTopics: 9}, s.snapshot
}
func (s stubSource) RenderConfig() ([]byte, error) {
	cfg := config.Default()
	cfg.RCON.Password = "hunter2"
	return config.Render(cfg, true)
}

func get(t *testing.T, r http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestAdminRoutes(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	r := newAdminRouter(stubSource{ready: Ready, snapshot: true}, config.AdminConfig{})

	assert.Equal(t, http.StatusOK, get(t, r, "/health").Code)
	assert.Equal(t, http.StatusOK, get(t, r, "/ready").Code)

	w := get(t, r, "/session")
	require.Equal(t, http.StatusOK, w.Code)
	var st console.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, uint64(3), st.Sends)

	w = get(t, r, "/snapshot")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cached_topics":9`)

	w = get(t, r, "/dispatch")
	assert.Contains(t, w.Body.String(), `"published":2`)

	w = get(t, r, "/config")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "hunter2")
	assert.Contains(t, w.Body.String(), "command_topic")

	w = get(t, r, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "rconbridge_http_requests_total")
}

func TestAdminNotReady(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	r := newAdminRouter(stubSource{}, config.AdminConfig{CorsOrigins: []string{" http://dash.local "}})
	assert.Equal(t, http.StatusServiceUnavailable, get(t, r, "/ready").Code)
	assert.Equal(t, http.StatusNotFound, get(t, r, "/snapshot").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, r, "/catalog/recipes").Code)
}

func TestAdminDegradedStillServes(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	r := newAdminRouter(stubSource{ready: Degraded}, config.AdminConfig{})

	w := get(t, r, "/ready")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"degraded"`)
	assert.Contains(t, w.Body.String(), `"connected":false`)
}

func TestAdminCatalogRoutes(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	cat, err := catalog.Default()
	require.NoError(t, err)
	r := newAdminRouter(stubSource{ready: Ready, catalog: cat}, config.AdminConfig{})

	w := get(t, r, "/catalog/recipes")
	require.Equal(t, http.StatusOK, w.Code)
	var names []string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &names))
	assert.Contains(t, names, "copper-cable")

	w = get(t, r, "/catalog/recipes/copper-cable")
	require.Equal(t, http.StatusOK, w.Code)
	var recipe catalog.Recipe
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &recipe))
	assert.Equal(t, 2, recipe.ResultCount)
	assert.Equal(t, http.StatusNotFound, get(t, r, "/catalog/recipes/rocket").Code)

	w = get(t, r, "/catalog/groups/production")
	require.Equal(t, http.StatusOK, w.Code)
	var group struct {
		Types    []string            `json:"types"`
		Entities map[string][]string `json:"entities"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &group))
	assert.Contains(t, group.Types, "furnace")
	assert.Contains(t, group.Entities["furnace"], "stone-furnace")
	assert.Equal(t, http.StatusNotFound, get(t, r, "/catalog/groups/spaceships").Code)
}

// flakyTransport answers the startup script then fails every exchange.
type flakyTransport struct {
	mu    sync.Mutex
	calls int
}

func (f *flakyTransport) Execute(string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls > 1 {
		return "", errors.New("connection reset by peer")
	}
	return "", nil
}

func (f *flakyTransport) Close() error { return nil }

func TestReadinessDegradesWhenConsoleDrops(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig()
	cfg.RCON.MaxAttempts = 1
	transport := &flakyTransport{}
	bus := newFakeBus()
	svc := NewService(cfg,
		WithDialer(console.DialerFunc(func(context.Context) (console.Transport, error) { return transport, nil })),
		WithBus(bus),
	)
	require.NoError(t, svc.Bootstrap(context.Background()))
	defer svc.shutdown()
	assert.Equal(t, Ready, svc.Readiness())

	_, err := svc.session.Send(context.Background(), "/c rcon.print(1)")
	require.Error(t, err)
	assert.Equal(t, Degraded, svc.Readiness(), "bus is up so commands still get error replies")

	bus.Close()
	assert.Equal(t, NotReady, svc.Readiness())
}

func TestAdminTokenRequired(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	r := newAdminRouter(stubSource{ready: Ready}, config.AdminConfig{Token: "s3cret"})

	assert.Equal(t, http.StatusOK, get(t, r, "/health").Code)
	assert.Equal(t, http.StatusUnauthorized, get(t, r, "/config").Code)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/session", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestFullQueueBlocksUntilShutdown(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig()
	cfg.MQTT.QueueSize = 1
	bus := newFakeBus()
	svc := NewService(cfg,
		WithDialer(console.DialerFunc(func(context.Context) (console.Transport, error) { return &scriptedTransport{}, nil })),
		WithBus(bus),
	)
	require.NoError(t, svc.Bootstrap(context.Background()))

	require.NoError(t, svc.enqueueCommand("Factorio/Commands", []byte(`{"command":"get_player_position"}`)))
	assert.Equal(t, uint64(0), svc.queueStalls.Load())

	blocked := make(chan error, 1)
	go func() {
		blocked <- svc.enqueueCommand("Factorio/Commands", []byte(`{"command":"get_player_position"}`))
	}()
	eventually(t, func() bool { return svc.queueStalls.Load() == 1 })
	select {
	case err := <-blocked:
		t.Fatalf("enqueue returned early: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	svc.shutdown()
	select {
	case err := <-blocked:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("enqueue still blocked after shutdown")
	}
}

func TestSessionConfigCarriesRetryPolicy(t *testing.T) {
	testlog.Start(t)
	rc := config.Default().RCON
	rc.RetryDelay = 2 * time.Second
	rc.RetryMultiplier = 2
	rc.RetryMaxDelay = 30 * time.Second
	rc.RetryJitter = 0.1

	got := sessionConfig(rc).Retry
	assert.Equal(t, console.RetryPolicy{Delay: 2 * time.Second, Multiplier: 2, MaxDelay: 30 * time.Second, Jitter: 0.1}, got)
	assert.Equal(t, 16*time.Second, console.RetryPolicy{Delay: 2 * time.Second, Multiplier: 2, MaxDelay: 30 * time.Second}.Wait(4, nil))
}
