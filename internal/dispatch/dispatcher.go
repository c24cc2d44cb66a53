package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/danmuck/rconbridge/internal/catalog"
	"github.com/danmuck/rconbridge/internal/command"
	"github.com/danmuck/rconbridge/internal/observability"
	"github.com/danmuck/rconbridge/internal/reply"
)

var (
	ErrMalformedEnvelope = errors.New("dispatch: malformed command envelope")
	ErrInvalidSearch     = errors.New("dispatch: invalid search parameters")
	ErrHandlerPanic      = errors.New("dispatch: handler panic")
)

// ErrorCommand is the response command used when the envelope itself could
// not be read.
const ErrorCommand = "error"

// Phase is one step of a command's lifecycle.
type Phase string

const (
	PhaseReceived  Phase = "received"
	PhaseResolved  Phase = "resolved"
	PhaseExecuted  Phase = "executed"
	PhasePublished Phase = "published"
	PhaseRejected  Phase = "rejected"
	PhaseFailed    Phase = "failed"
)

// Publisher is the outbound bus sink.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Executor runs one script on the backend console.
type Executor interface {
	Send(ctx context.Context, script string) (string, error)
}

// Encoder renders script verbs.
type Encoder interface {
	Encode(cmd command.Command) (string, error)
	Verbs() []command.Verb
}

// Catalog answers the catalog-only verbs.
type Catalog interface {
	EntityNames() []string
	ItemNames() []string
	EntitiesOfType(t string) []string
	EntityInfo(name string) (catalog.Info, bool)
	Search(keyword string) []catalog.Match
}

// Response is the outbound message for every handled command.
type Response struct {
	Command string `json:"command"`
	Result  any    `json:"result"`
}

// Report summarizes how one message was handled.
type Report struct {
	RequestID string        `json:"request_id"`
	Verb      string        `json:"verb"`
	Phase     Phase         `json:"phase"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Stats counts terminal phases since start.
type Stats struct {
	Handled uint64           `json:"handled"`
	ByPhase map[Phase]uint64 `json:"by_phase"`
	Last    *Report          `json:"last,omitempty"`
}

type Config struct {
	ResponseTopic string
}

type handler func(ctx context.Context, params command.Params) (any, error)

// Dispatcher resolves bus commands to handlers and publishes one response
// per message.
type Dispatcher struct {
	cfg      Config
	encoder  Encoder
	exec     Executor
	catalog  Catalog
	pub      Publisher
	schema   *jsonschema.Schema
	handlers map[command.Verb]handler

	mu    sync.Mutex
	stats Stats
}

func New(cfg Config, enc Encoder, exec Executor, cat Catalog, pub Publisher) (*Dispatcher, error) {
	if cfg.ResponseTopic == "" {
		return nil, errors.New("dispatch: response topic required")
	}
	if enc == nil || exec == nil || cat == nil || pub == nil {
		return nil, errors.New("dispatch: encoder, executor, catalog and publisher are required")
	}
	schema, err := compileEnvelopeSchema()
	if err != nil {
		return nil, fmt.Errorf("dispatch: compile envelope schema: %w", err)
	}
	d := &Dispatcher{
		cfg:     cfg,
		encoder: enc,
		exec:    exec,
		catalog: cat,
		pub:     pub,
		schema:  schema,
		stats:   Stats{ByPhase: make(map[Phase]uint64)},
	}
	d.handlers = d.buildHandlers()
	return d, nil
}

func (d *Dispatcher) buildHandlers() map[command.Verb]handler {
	out := make(map[command.Verb]handler)
	for _, v := range d.encoder.Verbs() {
		out[v] = d.scriptHandler(v)
	}
	out[command.VerbGetPlayerPosition] = d.positionHandler
	out[command.VerbListSupportedEntities] = d.listEntities
	out[command.VerbListSupportedItems] = d.listItems
	return out
}

// Run handles messages one at a time until ctx is done or msgs closes.
func (d *Dispatcher) Run(ctx context.Context, msgs <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-msgs:
			if !ok {
				return nil
			}
			d.Handle(ctx, payload)
		}
	}
}

// Handle processes one inbound message through to its published response.
func (d *Dispatcher) Handle(ctx context.Context, payload []byte) Report {
	start := time.Now()
	rep := Report{RequestID: uuid.NewString(), Phase: PhaseReceived}
	logger := log.With().Str("component", "dispatch").Str("request_id", rep.RequestID).Logger()

	cmd, err := decodeEnvelope(d.schema, payload)
	if err != nil {
		logger.Warn().Err(err).Bytes("payload", payload).Msg("command rejected")
		rep.Verb = ErrorCommand
		return d.finish(rep, start, PhaseRejected, err, ErrorCommand, errorResult(err.Error()))
	}
	rep.Verb = string(cmd.Verb)
	logger = logger.With().Str("verb", rep.Verb).Logger()
	logger.Info().Interface("params", cmd.Params).Msg("command received")

	h, ok := d.handlers[cmd.Verb]
	if !ok {
		msg := "Unknown command: " + string(cmd.Verb)
		logger.Warn().Msg("unknown command")
		return d.finish(rep, start, PhaseRejected, errors.New(msg), rep.Verb, errorResult(msg))
	}
	rep.Phase = PhaseResolved

	result, err := d.invoke(ctx, h, cmd.Params)
	if err != nil {
		logger.Warn().Err(err).Msg("command failed")
		return d.finish(rep, start, PhaseFailed, err, rep.Verb, errorResult(err.Error()))
	}
	rep.Phase = PhaseExecuted
	return d.finish(rep, start, PhasePublished, nil, rep.Verb, result)
}

// invoke runs h and turns a panic into an error so the loop keeps going.
func (d *Dispatcher) invoke(ctx context.Context, h handler, params command.Params) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("component", "dispatch").Interface("panic", r).Msg("handler panic recovered")
			result, err = nil, fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return h(ctx, params)
}

// finish publishes the response and records the terminal phase. A publish
// failure turns any phase into failed.
func (d *Dispatcher) finish(rep Report, start time.Time, phase Phase, cause error, verb string, result any) Report {
	rep.Phase = phase
	if cause != nil {
		rep.Error = cause.Error()
	}
	if err := d.publish(verb, result); err != nil {
		log.Error().
			Str("component", "dispatch").
			Str("request_id", rep.RequestID).
			Str("verb", verb).
			Err(err).
			Msg("response publish failed")
		rep.Phase = PhaseFailed
		rep.Error = err.Error()
	}
	rep.Duration = time.Since(start)
	observability.RecordCommand(rep.Verb, string(rep.Phase), rep.Duration)

	d.mu.Lock()
	d.stats.Handled++
	d.stats.ByPhase[rep.Phase]++
	last := rep
	d.stats.Last = &last
	d.mu.Unlock()

	log.Info().
		Str("component", "dispatch").
		Str("request_id", rep.RequestID).
		Str("verb", rep.Verb).
		Str("phase", string(rep.Phase)).
		Dur("duration", rep.Duration).
		Msg("command finished")
	return rep
}

func (d *Dispatcher) publish(verb string, result any) error {
	payload, err := json.Marshal(Response{Command: verb, Result: result})
	if err != nil {
		return fmt.Errorf("dispatch: encode response: %w", err)
	}
	return d.pub.Publish(d.cfg.ResponseTopic, payload)
}

// Stats returns a copy of the phase counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := Stats{Handled: d.stats.Handled, ByPhase: make(map[Phase]uint64, len(d.stats.ByPhase))}
	for k, v := range d.stats.ByPhase {
		out.ByPhase[k] = v
	}
	if d.stats.Last != nil {
		last := *d.stats.Last
		out.Last = &last
	}
	return out
}

func errorResult(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// resultValue maps a decoded reply to the response result field.
func resultValue(r reply.Result) any {
	switch r.Kind {
	case reply.KindSuccess:
		return r.Value
	case reply.KindFailure:
		return errorResult(r.Message)
	default:
		return r.Raw
	}
}
