package bridge

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/rconbridge/internal/catalog"
	"github.com/danmuck/rconbridge/internal/command"
	"github.com/danmuck/rconbridge/internal/config"
	"github.com/danmuck/rconbridge/internal/console"
	"github.com/danmuck/rconbridge/internal/dispatch"
	"github.com/danmuck/rconbridge/internal/mqtt"
	"github.com/danmuck/rconbridge/internal/observability"
	"github.com/danmuck/rconbridge/internal/protocol/frame"
	"github.com/danmuck/rconbridge/internal/snapshot"
)

const heartbeatInterval = 30 * time.Second

var ErrNotBootstrapped = errors.New("bridge: service not bootstrapped")

// Bus is the message bus as the bridge uses it.
type Bus interface {
	Publish(topic string, payload []byte) error
	Subscribe(topic string, qos byte, h mqtt.Handler) error
	IsConnected() bool
	Close()
}

// Option overrides a collaborator, mainly for tests.
type Option func(*Service)

func WithDialer(d console.Dialer) Option {
	return func(s *Service) { s.dialer = d }
}

func WithBus(b Bus) Option {
	return func(s *Service) { s.bus = b }
}

func WithStateReader(r snapshot.StateReader) Option {
	return func(s *Service) { s.reader = r }
}

// Service runs one bridge instance.
type Service struct {
	cfg config.Config

	dialer console.Dialer
	bus    Bus
	reader snapshot.StateReader

	catalog    *catalog.Catalog
	session    *console.Session
	dispatcher *dispatch.Dispatcher
	publisher  *snapshot.Publisher
	commands   chan []byte
	done       chan struct{}
	closeOnce  sync.Once

	queueStalls atomic.Uint64
}

func NewService(cfg config.Config, opts ...Option) *Service {
	s := &Service{
		cfg:  cfg,
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run blocks until SIGINT/SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := s.Bootstrap(ctx); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Bootstrap loads the catalog, opens the console session and connects the
// bus. A console that cannot be reached here is fatal.
func (s *Service) Bootstrap(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	cat, err := loadCatalog(s.cfg.Catalog)
	if err != nil {
		return err
	}
	s.catalog = cat
	log.Info().
		Str("component", "bridge").
		Int("entities", len(cat.EntityNames())).
		Int("items", len(cat.ItemNames())).
		Msg("catalog loaded")

	if s.dialer == nil {
		s.dialer = dialerFor(s.cfg.RCON)
	}
	session, err := console.New(ctx, s.dialer, sessionConfig(s.cfg.RCON))
	if err != nil {
		return fmt.Errorf("bridge: console %s: %w", s.cfg.RCON.Addr(), err)
	}
	s.session = session

	if s.bus == nil {
		bus, err := mqtt.Connect(busConfig(s.cfg.MQTT))
		if err != nil {
			_ = s.session.Close()
			return err
		}
		s.bus = bus
	}

	policy := command.DefaultPolicy().Merge(s.cfg.Catalog.Policy)
	d, err := dispatch.New(
		dispatch.Config{ResponseTopic: s.cfg.MQTT.ResponseTopic},
		command.NewEncoder(cat, policy),
		s.session,
		cat,
		s.bus,
	)
	if err != nil {
		s.shutdown()
		return err
	}
	s.dispatcher = d

	if s.cfg.Snapshot.Enabled {
		if s.reader == nil {
			s.reader = snapshot.NewFileReader(s.cfg.Snapshot.StateFile)
		}
		s.publisher = snapshot.NewPublisher(snapshot.Config{
			Prefix:     s.cfg.Snapshot.Prefix,
			Interval:   s.cfg.Snapshot.Interval,
			Categories: s.cfg.Snapshot.Categories,
		}, s.reader, s.bus)
	}

	s.commands = make(chan []byte, s.cfg.MQTT.QueueSize)
	qos := byte(s.cfg.MQTT.QoS)
	if err := s.bus.Subscribe(s.cfg.MQTT.CommandTopic, qos, s.enqueueCommand); err != nil {
		s.shutdown()
		return err
	}
	if s.cfg.MQTT.PlanTopic != "" {
		if err := s.bus.Subscribe(s.cfg.MQTT.PlanTopic, qos, logPlan); err != nil {
			s.shutdown()
			return err
		}
	}
	return nil
}

// Serve runs the command loop, snapshot loop and admin server until ctx is
// done or one of them fails.
func (s *Service) Serve(ctx context.Context) error {
	if s.dispatcher == nil {
		return ErrNotBootstrapped
	}
	defer s.shutdown()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, 3)
	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errs <- fmt.Errorf("bridge: %s: %w", name, err)
			}
		}()
	}

	run("dispatch", func(ctx context.Context) error { return s.dispatcher.Run(ctx, s.commands) })
	if s.publisher != nil {
		run("snapshot", s.publisher.Run)
	}
	if s.cfg.Admin.Enabled {
		run("admin", func(ctx context.Context) error { return serveAdmin(ctx, s.cfg.Admin, s) })
	}
	log.Info().
		Str("component", "bridge").
		Str("command_topic", s.cfg.MQTT.CommandTopic).
		Str("response_topic", s.cfg.MQTT.ResponseTopic).
		Bool("snapshot", s.publisher != nil).
		Bool("admin", s.cfg.Admin.Enabled).
		Msg("bridge running")

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	var err error
loop:
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("component", "bridge").Msg("bridge shutdown")
			break loop
		case err = <-errs:
			break loop
		case <-ticker.C:
			st := s.session.Status()
			ds := s.dispatcher.Stats()
			log.Info().
				Str("component", "bridge").
				Bool("console_connected", st.Connected).
				Uint64("console_sends", st.Sends).
				Uint64("console_reconnects", st.Reconnects).
				Bool("bus_connected", s.bus.IsConnected()).
				Uint64("commands", ds.Handled).
				Int("queued", len(s.commands)).
				Msg("heartbeat")
		}
	}
	cancel()
	wg.Wait()
	return err
}

// enqueueCommand hands a bus message to the dispatch loop. It blocks while
// the queue is full so messages are not dropped. The bus delivers in order,
// so a stall here holds back every later message on the connection.
func (s *Service) enqueueCommand(topic string, payload []byte) error {
	msg := append([]byte(nil), payload...)
	select {
	case s.commands <- msg:
		return nil
	default:
	}

	stalls := s.queueStalls.Add(1)
	observability.RecordQueueStall()
	log.Warn().
		Str("component", "bridge").
		Str("topic", topic).
		Int("queue_size", cap(s.commands)).
		Uint64("stalls", stalls).
		Msg("command queue full, bus handler blocked")

	select {
	case s.commands <- msg:
		return nil
	case <-s.done:
		return errors.New("bridge: shutting down")
	}
}

func logPlan(topic string, payload []byte) error {
	plan := string(payload)
	if !utf8.Valid(payload) {
		plan = strconv.Quote(plan)
	}
	log.Info().Str("component", "bridge").Str("topic", topic).Str("plan", plan).Msg("agent plan")
	return nil
}

func (s *Service) shutdown() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.bus != nil {
			s.bus.Close()
		}
		if s.session != nil {
			_ = s.session.Close()
		}
	})
}

func loadCatalog(cfg config.CatalogConfig) (*catalog.Catalog, error) {
	if cfg.Path == "" {
		return catalog.Default()
	}
	return catalog.LoadFile(cfg.Path)
}

func dialerFor(c config.RCONConfig) console.Dialer {
	if c.Transport == config.TransportLine {
		return console.LineDialer{
			Address:     c.Addr(),
			DialTimeout: c.DialTimeout,
			Deadline:    c.ReplyTimeout,
			Limits:      frame.Limits{MaxLineBytes: c.MaxLineBytes},
		}
	}
	return console.RCONDialer{
		Address:     c.Addr(),
		Password:    c.Password,
		DialTimeout: c.DialTimeout,
		Deadline:    c.ReplyTimeout,
	}
}

func sessionConfig(c config.RCONConfig) console.Config {
	return console.Config{
		MaxAttempts:  c.MaxAttempts,
		ReplyTimeout: c.ReplyTimeout,
		Retry: console.RetryPolicy{
			Delay:      c.RetryDelay,
			Multiplier: c.RetryMultiplier,
			MaxDelay:   c.RetryMaxDelay,
			Jitter:     c.RetryJitter,
		},
		Probe: c.Probe,
	}
}

func busConfig(c config.MQTTConfig) mqtt.Config {
	return mqtt.Config{
		Broker:         c.Broker,
		Port:           c.Port,
		ClientID:       c.ClientID,
		Username:       c.Username,
		Password:       c.Password,
		QoS:            byte(c.QoS),
		KeepAlive:      c.KeepAlive,
		ConnectTimeout: c.ConnectTimeout,
		PublishTimeout: c.PublishTimeout,
	}
}
