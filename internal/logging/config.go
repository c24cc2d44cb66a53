package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	EnvLogLevel     = "RCONBRIDGE_LOG_LEVEL"
	EnvLogTimestamp = "RCONBRIDGE_LOG_TIMESTAMP"
	EnvLogNoColor   = "RCONBRIDGE_LOG_NOCOLOR"
	EnvLogFile      = "RCONBRIDGE_LOG_FILE"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

// Config controls the process-wide zerolog logger.
type Config struct {
	Level     zerolog.Level
	Timestamp bool
	NoColor   bool
	// File, when set, receives a JSON copy of every log line.
	File string
}

var configureOnce sync.Once

func ConfigureRuntime(file string) {
	Configure(ProfileRuntime, file)
}

func ConfigureTests() {
	Configure(ProfileTest, "")
}

func Configure(profile Profile, file string) {
	configureOnce.Do(func() {
		cfg := defaultConfig(profile)
		if strings.TrimSpace(file) != "" {
			cfg.File = file
		}
		applyEnvOverrides(&cfg)
		apply(cfg)
	})
}

func defaultConfig(profile Profile) Config {
	switch profile {
	case ProfileTest:
		return Config{Level: zerolog.DebugLevel, Timestamp: false}
	default:
		return Config{Level: zerolog.InfoLevel, Timestamp: true}
	}
}

func apply(cfg Config) {
	zerolog.SetGlobalLevel(cfg.Level)
	console := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		NoColor:    cfg.NoColor,
		TimeFormat: time.RFC3339,
	}
	if !cfg.Timestamp {
		console.PartsExclude = []string{zerolog.TimestampFieldName}
	}

	var out io.Writer = console
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Logger = zerolog.New(console).With().Timestamp().Logger()
			log.Warn().Err(err).Str("file", cfg.File).Msg("log file unavailable, console only")
			return
		}
		out = zerolog.MultiLevelWriter(console, f)
	}
	log.Logger = zerolog.New(out).With().Timestamp().Str("app", "rconbridge").Logger()
}

func applyEnvOverrides(cfg *Config) {
	if lvl, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		cfg.Timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.File = v
	}
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

// ApplyLevel sets the global level from a config value. The environment
// level, when set, still wins.
func ApplyLevel(raw string) bool {
	if _, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
		return false
	}
	lvl, ok := parseLevel(raw)
	if !ok {
		return false
	}
	zerolog.SetGlobalLevel(lvl)
	return true
}
