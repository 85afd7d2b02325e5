package main

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/warthog618/config"
	"github.com/warthog618/config/blob"
	"github.com/warthog618/config/blob/decoder/json"
	"github.com/warthog618/config/dict"
	"github.com/warthog618/config/env"
)

// settings is the resolved configuration for one run.
type settings struct {
	Device   string
	Baud     int
	Timeout  time.Duration
	Channels string
	Count    int
	Verbose  bool
	Simulate bool
}

const defaultConfigFile = "scanadc.json"

// loadConfig layers SCANADC_ environment variables and the config file over
// the defaults. The file is named by config.file (SCANADC_CONFIG_FILE).
func loadConfig(configFile string) *config.Config {
	if configFile == "" {
		configFile = defaultConfigFile
	}
	defaultConfig := map[string]interface{}{
		"device":   "/dev/ttyACM0",
		"baud":     250000,
		"timeout":  "100ms",
		"channels": "0",
		"count":    0,
		"verbose":  false,
		"simulate": false,
	}
	def := dict.New(dict.WithMap(defaultConfig))
	cfg := config.New(
		env.New(env.WithEnvPrefix("SCANADC_")),
		config.WithDefault(def))
	cfg.Append(
		blob.NewConfigFile(cfg, "config.file", configFile, json.NewDecoder()))
	cfg = cfg.GetConfig("", config.WithMust)
	return cfg
}

// loadSettings resolves settings; flags set on the command line win.
func loadSettings(flags *pflag.FlagSet) (s settings, err error) {
	defer func() {
		// MustGet panics on values that fail to convert.
		if r := recover(); r != nil {
			err = errors.Errorf("config: %v", r)
		}
	}()

	configFile, _ := flags.GetString("config-file")
	cfg := loadConfig(configFile)
	s = settings{
		Device:   cfg.MustGet("device").String(),
		Baud:     cfg.MustGet("baud").Int(),
		Timeout:  cfg.MustGet("timeout").Duration(),
		Channels: cfg.MustGet("channels").String(),
		Count:    cfg.MustGet("count").Int(),
		Verbose:  cfg.MustGet("verbose").Bool(),
		Simulate: cfg.MustGet("simulate").Bool(),
	}

	flags.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "device":
			s.Device = f.Value.String()
		case "baud":
			s.Baud, _ = flags.GetInt(f.Name)
		case "timeout":
			s.Timeout, _ = flags.GetDuration(f.Name)
		case "channels":
			s.Channels = f.Value.String()
		case "num-reports":
			s.Count, _ = flags.GetInt(f.Name)
		case "verbose":
			s.Verbose, _ = flags.GetBool(f.Name)
		case "simulate":
			s.Simulate, _ = flags.GetBool(f.Name)
		}
	})
	if s.Baud <= 0 {
		return s, errors.Errorf("config: invalid baud %d", s.Baud)
	}
	return s, nil
}
