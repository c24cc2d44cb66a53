package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/rconbridge/internal/observability"
	"github.com/danmuck/rconbridge/internal/status"
)

const (
	DefaultPrefix   = "factorio"
	DefaultInterval = 2 * time.Second
	OtherCategory   = "other"
)

// DefaultCategories maps prototype types to topic categories.
func DefaultCategories() map[string]string {
	return map[string]string{
		"assembling-machine": "machines",
		"furnace":            "machines",
		"mining-drill":       "machines",
		"boiler":             "machines",
		"pump":               "machines",
		"generator":          "machines",

		"container":          "storage",
		"logistic-container": "storage",
		"car":                "storage",
		"cargo-wagon":        "storage",
		"fluid-wagon":        "storage",
		"locomotive":         "storage",
		"spider-vehicle":     "storage",
		"roboport":           "storage",
	}
}

type Config struct {
	Prefix   string
	Interval time.Duration
	// Categories overrides or extends DefaultCategories.
	Categories map[string]string
}

func (c Config) withDefaults() Config {
	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}
	c.Prefix = strings.TrimSuffix(c.Prefix, "/")
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	merged := DefaultCategories()
	for k, v := range c.Categories {
		merged[k] = v
	}
	c.Categories = merged
	return c
}

// PollStats counts the outcome of one poll.
type PollStats struct {
	Assets     int `json:"assets"`
	Sent       int `json:"sent"`
	Suppressed int `json:"suppressed"`
	Failed     int `json:"failed"`
}

// Stats is the publisher's running state for the admin surface.
type Stats struct {
	Polls        uint64    `json:"polls"`
	Published    uint64    `json:"published"`
	LastPollAt   time.Time `json:"last_poll_at,omitempty"`
	LastTick     string    `json:"last_tick,omitempty"`
	LastRevision time.Time `json:"last_revision,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
	Last         PollStats `json:"last"`
	CachedTopics int       `json:"cached_topics"`
}

// Publisher turns state exports into per-field bus messages, publishing only
// what changed since the previous export.
type Publisher struct {
	cfg    Config
	reader StateReader
	sink   Sink
	cache  *Cache

	mu    sync.Mutex
	stats Stats
}

func NewPublisher(cfg Config, reader StateReader, sink Sink) *Publisher {
	return &Publisher{
		cfg:    cfg.withDefaults(),
		reader: reader,
		sink:   sink,
		cache:  NewCache(),
	}
}

// Run polls on the configured interval until ctx is done.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	log.Info().
		Str("component", "snapshot").
		Str("prefix", p.cfg.Prefix).
		Dur("interval", p.cfg.Interval).
		Msg("snapshot publisher started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := p.PollOnce(ctx); err != nil && ctx.Err() == nil {
				log.Warn().Str("component", "snapshot").Err(err).Msg("snapshot poll failed")
			}
		}
	}
}

// PollOnce reads the export and publishes it when its revision advanced.
func (p *Publisher) PollOnce(ctx context.Context) (PollStats, error) {
	exp, changed, err := p.reader.Read(ctx)
	if err != nil {
		observability.RecordSnapshotPoll("error")
		p.recordPoll(nil, PollStats{}, err)
		return PollStats{}, err
	}
	if !changed {
		observability.RecordSnapshotPoll("unchanged")
		return PollStats{}, nil
	}
	ps, err := p.PublishExport(exp)
	outcome := "published"
	if err != nil {
		outcome = "error"
	}
	observability.RecordSnapshotPoll(outcome)
	p.recordPoll(&exp, ps, err)
	return ps, err
}

// PublishExport publishes one export through the cache. Failed publishes
// are counted and joined into the returned error; the rest still go out.
func (p *Publisher) PublishExport(exp Export) (PollStats, error) {
	ps := PollStats{Assets: len(exp.Assets)}
	var errs []error
	emit := func(topic string, v any) {
		payload, err := marshal(v)
		if err != nil {
			ps.Failed++
			errs = append(errs, fmt.Errorf("snapshot: encode %s: %w", topic, err))
			return
		}
		sent, err := p.cache.PublishIfChanged(p.sink, topic, payload)
		switch {
		case err != nil:
			ps.Failed++
			observability.RecordSnapshotPublish("failed")
			errs = append(errs, fmt.Errorf("snapshot: publish %s: %w", topic, err))
		case sent:
			ps.Sent++
			observability.RecordSnapshotPublish("sent")
		default:
			ps.Suppressed++
			observability.RecordSnapshotPublish("suppressed")
		}
	}

	for _, g := range p.group(exp.Assets) {
		emit(p.cfg.Prefix+"/"+g.category+"/"+g.typeSlug, g.ids)
	}
	for _, a := range exp.Assets {
		p.publishAsset(a, emit)
	}
	return ps, errors.Join(errs...)
}

type idRef struct {
	ID any `json:"id"`
}

type assetGroup struct {
	category string
	typeSlug string
	ids      []idRef
}

// group collects asset ids per (category, type) in first-seen order.
func (p *Publisher) group(assets []Asset) []*assetGroup {
	var order []*assetGroup
	index := make(map[string]*assetGroup)
	for _, a := range assets {
		category, slug := p.classify(a)
		key := category + "/" + slug
		g, ok := index[key]
		if !ok {
			g = &assetGroup{category: category, typeSlug: slug}
			index[key] = g
			order = append(order, g)
		}
		g.ids = append(g.ids, idRef{ID: assetID(a)})
	}
	return order
}

func (p *Publisher) classify(a Asset) (category, typeSlug string) {
	t := assetType(a)
	category, ok := p.cfg.Categories[t]
	if !ok {
		category = OtherCategory
	}
	return category, strings.ReplaceAll(t, "-", "_")
}

func (p *Publisher) publishAsset(a Asset, emit func(topic string, v any)) {
	category, slug := p.classify(a)
	id := assetID(a)
	base := fmt.Sprintf("%s/%s/%s/%s", p.cfg.Prefix, category, slug, idString(id))

	emit(base+"/id", idString(id))
	emit(base+"/name", field(a, "name", "unknown_name"))
	emit(base+"/model", field(a, "model", "unknown_model"))
	emit(base+"/type", assetType(a))
	emit(base+"/position", field(a, "position", map[string]any{}))

	rawStatus := field(a, "last_status", json.Number("0"))
	mask := bitmask(rawStatus)
	emit(base+"/status", status.DecodeDominant(mask))
	emit(base+"/status_bitmask", rawStatus)
	emit(base+"/status_flags", status.DecodeAll(mask))
	emit(base+"/state_changed_tick", field(a, "state_changed_tick", json.Number("0")))

	emit(base+"/production/count", field(a, "production_count", json.Number("0")))
	emit(base+"/production/last_updated", field(a, "production_last_updated", json.Number("0")))
	emit(base+"/pollution", field(a, "pollution", json.Number("0.0")))

	if inv, ok := a["inventory"]; ok {
		switch v := inv.(type) {
		case map[string]any:
			labels := make([]string, 0, len(v))
			for label := range v {
				labels = append(labels, label)
			}
			sort.Strings(labels)
			for _, label := range labels {
				emit(base+"/inventory/"+label, v[label])
			}
		case []any:
			emit(base+"/inventory", v)
		default:
			emit(base+"/inventory", scalarText(v))
		}
	}

	if fluids, ok := a["fluids"].([]any); ok {
		for i, box := range fluids {
			topic := base + "/fluids/box_" + strconv.Itoa(i)
			if emptyBox(box) {
				emit(topic, "empty")
				continue
			}
			emit(topic, box)
		}
	}
}

// Stats returns the running counters.
func (p *Publisher) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.stats
	out.CachedTopics = p.cache.Len()
	return out
}

// Cache exposes the publish cache for inspection.
func (p *Publisher) Cache() *Cache {
	return p.cache
}

func (p *Publisher) recordPoll(exp *Export, ps PollStats, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.Polls++
	p.stats.LastPollAt = time.Now()
	p.stats.LastError = ""
	if err != nil {
		p.stats.LastError = err.Error()
	}
	if exp == nil {
		return
	}
	p.stats.Published += uint64(ps.Sent)
	p.stats.LastTick = exp.Tick.String()
	p.stats.LastRevision = exp.Revision
	p.stats.Last = ps
	log.Debug().
		Str("component", "snapshot").
		Str("tick", exp.Tick.String()).
		Int("assets", ps.Assets).
		Int("sent", ps.Sent).
		Int("suppressed", ps.Suppressed).
		Int("failed", ps.Failed).
		Msg("snapshot published")
}

func field(a Asset, key string, def any) any {
	if v, ok := a[key]; ok {
		return v
	}
	return def
}

func assetType(a Asset) string {
	if t, ok := a["type"].(string); ok {
		return t
	}
	return "unknown"
}

func assetID(a Asset) any {
	if id, ok := a["id"]; ok {
		return id
	}
	if id, ok := a["unit_number"]; ok {
		return id
	}
	return "unknown_id"
}

func idString(id any) string {
	switch v := id.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case nil:
		return "null"
	default:
		return fmt.Sprint(v)
	}
}

// bitmask reads a status value as an integer. Non-numeric values read as 0.
func bitmask(v any) int64 {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return int64(f)
		}
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	}
	return 0
}

// scalarText renders an unexpected inventory shape as text.
func scalarText(v any) string {
	switch s := v.(type) {
	case nil:
		return "null"
	case string:
		return s
	case json.Number:
		return s.String()
	default:
		return fmt.Sprint(s)
	}
}

func emptyBox(v any) bool {
	switch b := v.(type) {
	case nil:
		return true
	case map[string]any:
		return len(b) == 0
	case []any:
		return len(b) == 0
	case string:
		return b == ""
	case bool:
		return !b
	case json.Number:
		f, err := b.Float64()
		return err == nil && f == 0
	}
	return false
}

func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
