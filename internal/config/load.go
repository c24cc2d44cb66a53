package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// fileConfig is the on-disk TOML shape. Durations are strings ("5s").
type fileConfig struct {
	RCON struct {
		Transport       string  `toml:"transport"`
		Host            string  `toml:"host"`
		Port            int     `toml:"port"`
		Password        string  `toml:"password"`
		DialTimeout     string  `toml:"dial_timeout"`
		ReplyTimeout    string  `toml:"reply_timeout"`
		MaxAttempts     int     `toml:"max_attempts"`
		RetryDelay      string  `toml:"retry_delay"`
		RetryMultiplier float64 `toml:"retry_multiplier"`
		RetryMaxDelay   string  `toml:"retry_max_delay"`
		RetryJitter     float64 `toml:"retry_jitter"`
		Probe           string  `toml:"probe"`
		MaxLineBytes    int     `toml:"max_line_bytes"`
	} `toml:"rcon"`
	MQTT struct {
		Broker         string `toml:"broker"`
		Port           int    `toml:"port"`
		ClientID       string `toml:"client_id"`
		Username       string `toml:"username"`
		Password       string `toml:"password"`
		QoS            int    `toml:"qos"`
		CommandTopic   string `toml:"command_topic"`
		ResponseTopic  string `toml:"response_topic"`
		PlanTopic      string `toml:"plan_topic"`
		KeepAlive      string `toml:"keep_alive"`
		ConnectTimeout string `toml:"connect_timeout"`
		PublishTimeout string `toml:"publish_timeout"`
		QueueSize      int    `toml:"queue_size"`
	} `toml:"mqtt"`
	Snapshot struct {
		Enabled    bool              `toml:"enabled"`
		StateFile  string            `toml:"state_file"`
		Prefix     string            `toml:"prefix"`
		Interval   string            `toml:"interval"`
		Categories map[string]string `toml:"categories"`
	} `toml:"snapshot"`
	Catalog struct {
		Path   string          `toml:"path"`
		Policy map[string]bool `toml:"policy"`
	} `toml:"catalog"`
	Admin struct {
		Enabled     bool     `toml:"enabled"`
		Listen      string   `toml:"listen"`
		CorsOrigins []string `toml:"cors_origins"`
		Token       string   `toml:"token"`
	} `toml:"admin"`
	Log struct {
		Level string `toml:"level"`
		File  string `toml:"file"`
	} `toml:"log"`
}

// Load reads path over Default. Keys absent from the file keep their
// defaults. The result is validated.
func Load(path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown key %q in %s", ErrInvalidConfig, undecoded[0].String(), path)
	}

	cfg := Default()
	o := overlay{meta: meta}

	o.str(&cfg.RCON.Transport, raw.RCON.Transport, "rcon", "transport")
	o.str(&cfg.RCON.Host, raw.RCON.Host, "rcon", "host")
	o.integer(&cfg.RCON.Port, raw.RCON.Port, "rcon", "port")
	o.secret(&cfg.RCON.Password, raw.RCON.Password, "rcon", "password")
	o.duration(&cfg.RCON.DialTimeout, raw.RCON.DialTimeout, "rcon", "dial_timeout")
	o.duration(&cfg.RCON.ReplyTimeout, raw.RCON.ReplyTimeout, "rcon", "reply_timeout")
	o.integer(&cfg.RCON.MaxAttempts, raw.RCON.MaxAttempts, "rcon", "max_attempts")
	o.duration(&cfg.RCON.RetryDelay, raw.RCON.RetryDelay, "rcon", "retry_delay")
	o.float(&cfg.RCON.RetryMultiplier, raw.RCON.RetryMultiplier, "rcon", "retry_multiplier")
	o.duration(&cfg.RCON.RetryMaxDelay, raw.RCON.RetryMaxDelay, "rcon", "retry_max_delay")
	o.float(&cfg.RCON.RetryJitter, raw.RCON.RetryJitter, "rcon", "retry_jitter")
	o.str(&cfg.RCON.Probe, raw.RCON.Probe, "rcon", "probe")
	o.integer(&cfg.RCON.MaxLineBytes, raw.RCON.MaxLineBytes, "rcon", "max_line_bytes")

	o.str(&cfg.MQTT.Broker, raw.MQTT.Broker, "mqtt", "broker")
	o.integer(&cfg.MQTT.Port, raw.MQTT.Port, "mqtt", "port")
	o.str(&cfg.MQTT.ClientID, raw.MQTT.ClientID, "mqtt", "client_id")
	o.str(&cfg.MQTT.Username, raw.MQTT.Username, "mqtt", "username")
	o.secret(&cfg.MQTT.Password, raw.MQTT.Password, "mqtt", "password")
	o.integer(&cfg.MQTT.QoS, raw.MQTT.QoS, "mqtt", "qos")
	o.str(&cfg.MQTT.CommandTopic, raw.MQTT.CommandTopic, "mqtt", "command_topic")
	o.str(&cfg.MQTT.ResponseTopic, raw.MQTT.ResponseTopic, "mqtt", "response_topic")
	o.str(&cfg.MQTT.PlanTopic, raw.MQTT.PlanTopic, "mqtt", "plan_topic")
	o.duration(&cfg.MQTT.KeepAlive, raw.MQTT.KeepAlive, "mqtt", "keep_alive")
	o.duration(&cfg.MQTT.ConnectTimeout, raw.MQTT.ConnectTimeout, "mqtt", "connect_timeout")
	o.duration(&cfg.MQTT.PublishTimeout, raw.MQTT.PublishTimeout, "mqtt", "publish_timeout")
	o.integer(&cfg.MQTT.QueueSize, raw.MQTT.QueueSize, "mqtt", "queue_size")

	o.flag(&cfg.Snapshot.Enabled, raw.Snapshot.Enabled, "snapshot", "enabled")
	o.str(&cfg.Snapshot.StateFile, raw.Snapshot.StateFile, "snapshot", "state_file")
	o.str(&cfg.Snapshot.Prefix, raw.Snapshot.Prefix, "snapshot", "prefix")
	o.duration(&cfg.Snapshot.Interval, raw.Snapshot.Interval, "snapshot", "interval")
	for k, v := range raw.Snapshot.Categories {
		cfg.Snapshot.Categories[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}

	o.str(&cfg.Catalog.Path, raw.Catalog.Path, "catalog", "path")
	for k, v := range raw.Catalog.Policy {
		cfg.Catalog.Policy[strings.TrimSpace(k)] = v
	}

	o.flag(&cfg.Admin.Enabled, raw.Admin.Enabled, "admin", "enabled")
	o.str(&cfg.Admin.Listen, raw.Admin.Listen, "admin", "listen")
	o.secret(&cfg.Admin.Token, raw.Admin.Token, "admin", "token")
	if meta.IsDefined("admin", "cors_origins") {
		cfg.Admin.CorsOrigins = normalizeList(raw.Admin.CorsOrigins)
	}

	o.str(&cfg.Log.Level, raw.Log.Level, "log", "level")
	o.str(&cfg.Log.File, raw.Log.File, "log", "file")

	if o.err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, o.err)
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// overlay copies defined file keys onto defaults and keeps the first
// parse error.
type overlay struct {
	meta toml.MetaData
	err  error
}

func (o *overlay) str(dst *string, src string, keys ...string) {
	if o.meta.IsDefined(keys...) {
		*dst = strings.TrimSpace(src)
	}
}

// secret copies without trimming, for secrets.
func (o *overlay) secret(dst *string, src string, keys ...string) {
	if o.meta.IsDefined(keys...) {
		*dst = src
	}
}

func (o *overlay) integer(dst *int, src int, keys ...string) {
	if o.meta.IsDefined(keys...) {
		*dst = src
	}
}

func (o *overlay) float(dst *float64, src float64, keys ...string) {
	if o.meta.IsDefined(keys...) {
		*dst = src
	}
}

func (o *overlay) flag(dst *bool, src bool, keys ...string) {
	if o.meta.IsDefined(keys...) {
		*dst = src
	}
}

func (o *overlay) duration(dst *time.Duration, src string, keys ...string) {
	if o.err != nil || !o.meta.IsDefined(keys...) {
		return
	}
	d, err := time.ParseDuration(strings.TrimSpace(src))
	if err != nil {
		o.err = fmt.Errorf("parse %s: %w", strings.Join(keys, "."), err)
		return
	}
	*dst = d
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
