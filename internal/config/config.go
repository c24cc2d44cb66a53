package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/danmuck/rconbridge/internal/command"
)

var ErrInvalidConfig = errors.New("config: invalid")

const (
	TransportRCON = "rcon"
	TransportLine = "line"
)

// Config is the complete bridge configuration.
type Config struct {
	RCON     RCONConfig
	MQTT     MQTTConfig
	Snapshot SnapshotConfig
	Catalog  CatalogConfig
	Admin    AdminConfig
	Log      LogConfig
}

// RCONConfig describes the game console. Failed dials are retried after
// RetryDelay, grown by RetryMultiplier per attempt up to RetryMaxDelay (zero
// leaves it uncapped) and spread by up to RetryJitter as a fraction.
type RCONConfig struct {
	Transport       string
	Host            string
	Port            int
	Password        string
	DialTimeout     time.Duration
	ReplyTimeout    time.Duration
	MaxAttempts     int
	RetryDelay      time.Duration
	RetryMultiplier float64
	RetryMaxDelay   time.Duration
	RetryJitter     float64
	Probe           string
	MaxLineBytes    int
}

type MQTTConfig struct {
	Broker         string
	Port           int
	ClientID       string
	Username       string
	Password       string
	QoS            int
	CommandTopic   string
	ResponseTopic  string
	PlanTopic      string
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
	QueueSize      int
}

type SnapshotConfig struct {
	Enabled    bool
	StateFile  string
	Prefix     string
	Interval   time.Duration
	Categories map[string]string
}

type CatalogConfig struct {
	// Path is an optional YAML catalog replacing the built-in one.
	Path   string
	Policy map[string]bool
}

type AdminConfig struct {
	Enabled     bool
	Listen      string
	CorsOrigins []string
	// Token, when set, is required as a bearer token on every route but
	// /health.
	Token string
}

type LogConfig struct {
	Level string
	File  string
}

func Default() Config {
	return Config{
		RCON: RCONConfig{
			Transport:       TransportRCON,
			Host:            "localhost",
			Port:            27015,
			DialTimeout:     5 * time.Second,
			ReplyTimeout:    10 * time.Second,
			MaxAttempts:     3,
			RetryDelay:      5 * time.Second,
			RetryMultiplier: 1,
			RetryMaxDelay:   time.Minute,
			Probe:           "/c game.print('rconbridge connected')",
			MaxLineBytes:    1024 * 1024,
		},
		MQTT: MQTTConfig{
			Broker:         "localhost",
			Port:           1883,
			ClientID:       "rconbridge",
			CommandTopic:   "Factorio/Commands",
			ResponseTopic:  "Factorio/Responses",
			PlanTopic:      "Factorio/Plans",
			KeepAlive:      60 * time.Second,
			ConnectTimeout: 10 * time.Second,
			PublishTimeout: 5 * time.Second,
			QueueSize:      64,
		},
		Snapshot: SnapshotConfig{
			Enabled:    true,
			StateFile:  "script-output/factory_state.json",
			Prefix:     "factorio",
			Interval:   2 * time.Second,
			Categories: map[string]string{},
		},
		Catalog: CatalogConfig{
			Policy: map[string]bool{},
		},
		Admin: AdminConfig{
			Enabled: true,
			Listen:  "127.0.0.1:7070",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Addr returns host:port of the game console.
func (c RCONConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ApplyEnv lets secrets come from the environment instead of the file.
func (c *Config) ApplyEnv() {
	if v, ok := os.LookupEnv("RCONBRIDGE_RCON_PASSWORD"); ok {
		c.RCON.Password = v
	}
	if v, ok := os.LookupEnv("RCONBRIDGE_MQTT_PASSWORD"); ok {
		c.MQTT.Password = v
	}
	if v, ok := os.LookupEnv("RCONBRIDGE_ADMIN_TOKEN"); ok {
		c.Admin.Token = v
	}
}

func (c Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch c.RCON.Transport {
	case TransportRCON, TransportLine:
	default:
		add("rcon.transport must be %q or %q, got %q", TransportRCON, TransportLine, c.RCON.Transport)
	}
	if strings.TrimSpace(c.RCON.Host) == "" {
		add("rcon.host is required")
	}
	if !validPort(c.RCON.Port) {
		add("rcon.port %d out of range", c.RCON.Port)
	}
	if c.RCON.MaxAttempts < 1 {
		add("rcon.max_attempts must be at least 1")
	}
	if c.RCON.ReplyTimeout <= 0 {
		add("rcon.reply_timeout must be positive")
	}
	if c.RCON.RetryDelay < 0 {
		add("rcon.retry_delay must not be negative")
	}
	if c.RCON.RetryMultiplier < 1 {
		add("rcon.retry_multiplier must be at least 1")
	}
	if c.RCON.RetryMaxDelay < 0 {
		add("rcon.retry_max_delay must not be negative")
	} else if c.RCON.RetryMaxDelay > 0 && c.RCON.RetryMaxDelay < c.RCON.RetryDelay {
		add("rcon.retry_max_delay %s is below rcon.retry_delay %s", c.RCON.RetryMaxDelay, c.RCON.RetryDelay)
	}
	if c.RCON.RetryJitter < 0 || c.RCON.RetryJitter > 1 {
		add("rcon.retry_jitter must be between 0 and 1")
	}

	if strings.TrimSpace(c.MQTT.Broker) == "" {
		add("mqtt.broker is required")
	}
	if !validPort(c.MQTT.Port) {
		add("mqtt.port %d out of range", c.MQTT.Port)
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		add("mqtt.qos must be 0, 1 or 2")
	}
	if strings.TrimSpace(c.MQTT.CommandTopic) == "" {
		add("mqtt.command_topic is required")
	}
	if strings.TrimSpace(c.MQTT.ResponseTopic) == "" {
		add("mqtt.response_topic is required")
	}
	if c.MQTT.QueueSize < 1 {
		add("mqtt.queue_size must be at least 1")
	}

	if c.Snapshot.Enabled {
		if strings.TrimSpace(c.Snapshot.StateFile) == "" {
			add("snapshot.state_file is required when snapshot is enabled")
		}
		if c.Snapshot.Interval <= 0 {
			add("snapshot.interval must be positive")
		}
	}

	enc := command.NewEncoder(nil, nil)
	for _, verb := range sortedPolicyKeys(c.Catalog.Policy) {
		if !enc.Supports(command.Verb(verb)) {
			add("catalog.policy names unknown verb %q", verb)
		}
	}

	if c.Admin.Enabled && strings.TrimSpace(c.Admin.Listen) == "" {
		add("admin.listen is required when admin is enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}

func sortedPolicyKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
