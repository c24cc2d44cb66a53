package config

import (
	"fmt"
	"os"

	gotoml "github.com/pelletier/go-toml/v2"
)

const redacted = "********"

// Template returns a commented starter configuration.
func Template() string {
	return exampleTemplate
}

// WriteTemplate writes Template to path, refusing to replace an existing
// file unless overwrite is set.
func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(exampleTemplate), 0o600)
}

// Render encodes cfg in the file format. Secrets are masked when redact
// is set.
func Render(cfg Config, redact bool) ([]byte, error) {
	f := toFile(cfg)
	if redact {
		if f.RCON.Password != "" {
			f.RCON.Password = redacted
		}
		if f.MQTT.Password != "" {
			f.MQTT.Password = redacted
		}
		if f.Admin.Token != "" {
			f.Admin.Token = redacted
		}
	}
	out, err := gotoml.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("config render failed: %w", err)
	}
	return out, nil
}

func toFile(cfg Config) fileConfig {
	var f fileConfig
	f.RCON.Transport = cfg.RCON.Transport
	f.RCON.Host = cfg.RCON.Host
	f.RCON.Port = cfg.RCON.Port
	f.RCON.Password = cfg.RCON.Password
	f.RCON.DialTimeout = cfg.RCON.DialTimeout.String()
	f.RCON.ReplyTimeout = cfg.RCON.ReplyTimeout.String()
	f.RCON.MaxAttempts = cfg.RCON.MaxAttempts
	f.RCON.RetryDelay = cfg.RCON.RetryDelay.String()
	f.RCON.RetryMultiplier = cfg.RCON.RetryMultiplier
	f.RCON.RetryMaxDelay = cfg.RCON.RetryMaxDelay.String()
	f.RCON.RetryJitter = cfg.RCON.RetryJitter
	f.RCON.Probe = cfg.RCON.Probe
	f.RCON.MaxLineBytes = cfg.RCON.MaxLineBytes

	f.MQTT.Broker = cfg.MQTT.Broker
	f.MQTT.Port = cfg.MQTT.Port
	f.MQTT.ClientID = cfg.MQTT.ClientID
	f.MQTT.Username = cfg.MQTT.Username
	f.MQTT.Password = cfg.MQTT.Password
	f.MQTT.QoS = cfg.MQTT.QoS
	f.MQTT.CommandTopic = cfg.MQTT.CommandTopic
	f.MQTT.ResponseTopic = cfg.MQTT.ResponseTopic
	f.MQTT.PlanTopic = cfg.MQTT.PlanTopic
	f.MQTT.KeepAlive = cfg.MQTT.KeepAlive.String()
	f.MQTT.ConnectTimeout = cfg.MQTT.ConnectTimeout.String()
	f.MQTT.PublishTimeout = cfg.MQTT.PublishTimeout.String()
	f.MQTT.QueueSize = cfg.MQTT.QueueSize

	f.Snapshot.Enabled = cfg.Snapshot.Enabled
	f.Snapshot.StateFile = cfg.Snapshot.StateFile
	f.Snapshot.Prefix = cfg.Snapshot.Prefix
	f.Snapshot.Interval = cfg.Snapshot.Interval.String()
	f.Snapshot.Categories = cfg.Snapshot.Categories

	f.Catalog.Path = cfg.Catalog.Path
	f.Catalog.Policy = cfg.Catalog.Policy

	f.Admin.Enabled = cfg.Admin.Enabled
	f.Admin.Listen = cfg.Admin.Listen
	f.Admin.CorsOrigins = cfg.Admin.CorsOrigins
	f.Admin.Token = cfg.Admin.Token

	f.Log.Level = cfg.Log.Level
	f.Log.File = cfg.Log.File
	return f
}

const exampleTemplate = `# rconbridge configuration. Every key is optional; omitted keys keep
# their defaults.

[rcon]
transport = "rcon"          # rcon | line
host = "localhost"
port = 27015
password = ""               # or RCONBRIDGE_RCON_PASSWORD
dial_timeout = "5s"
reply_timeout = "10s"
max_attempts = 3
retry_delay = "5s"
retry_multiplier = 1.0      # > 1 grows the delay after each failed dial
retry_max_delay = "1m"
retry_jitter = 0.0          # spread each delay by up to this fraction

[mqtt]
broker = "localhost"
port = 1883
client_id = "rconbridge"
qos = 0
command_topic = "Factorio/Commands"
response_topic = "Factorio/Responses"
plan_topic = "Factorio/Plans"

[snapshot]
enabled = true
state_file = "script-output/factory_state.json"
prefix = "factorio"
interval = "2s"

[snapshot.categories]
inserter = "logistics"

[catalog.policy]
place_entity = true
search_entities = true
remove_item = true

[admin]
enabled = true
listen = "127.0.0.1:7070"
cors_origins = ["http://localhost:3000"]
token = ""                  # or RCONBRIDGE_ADMIN_TOKEN; empty leaves the admin routes open

[log]
level = "info"
file = ""
`
