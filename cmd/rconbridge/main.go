package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/danmuck/rconbridge/internal/bridge"
	"github.com/danmuck/rconbridge/internal/config"
	"github.com/danmuck/rconbridge/internal/logging"
)

const envConfigPath = "RCONBRIDGE_CONFIG"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "rconbridge: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath  string
	writeConfig string
	force       bool
	validate    bool
	printConfig bool
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("rconbridge", pflag.ContinueOnError)
	fs.StringVarP(&opts.configPath, "config", "c", "", "path to config.toml (default $"+envConfigPath+", else built-in defaults)")
	fs.StringVar(&opts.writeConfig, "write-config", "", "write a starter config to this path and exit")
	fs.BoolVar(&opts.force, "force", false, "overwrite an existing file with --write-config")
	fs.BoolVar(&opts.validate, "validate", false, "load and validate the config, then exit")
	fs.BoolVar(&opts.printConfig, "print-config", false, "print the effective config with secrets redacted, then exit")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	if opts.configPath == "" {
		opts.configPath = strings.TrimSpace(os.Getenv(envConfigPath))
	}
	return opts, nil
}

func loadConfig(path string) (config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	cfg := config.Default()
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func run(args []string, stdout io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if opts.writeConfig != "" {
		if err := config.WriteTemplate(opts.writeConfig, opts.force); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "wrote config template to %s\n", opts.writeConfig)
		return nil
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.validate {
		fmt.Fprintf(stdout, "config ok (%s)\n", describePath(opts.configPath))
		return nil
	}
	if opts.printConfig {
		out, err := config.Render(cfg, true)
		if err != nil {
			return err
		}
		_, err = stdout.Write(out)
		return err
	}

	logging.ConfigureRuntime(cfg.Log.File)
	logging.ApplyLevel(cfg.Log.Level)
	log.Info().
		Str("config", describePath(opts.configPath)).
		Str("rcon", cfg.RCON.Addr()).
		Str("broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker, cfg.MQTT.Port)).
		Msg("starting rconbridge")
	return bridge.NewService(cfg).Run()
}

func describePath(path string) string {
	if path == "" {
		return "defaults"
	}
	return path
}
