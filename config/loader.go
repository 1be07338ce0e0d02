package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/jsphweid/smartpiano/constants"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flag name for each config key that can be set on the command line
var flagKeys = map[string]string{
	"socket":        "socket",
	"quietWindow":   "quiet-window",
	"maxChallenges": "max-challenges",
	"logLevel":      "log-level",
	"logFormat":     "log-format",
	"midi.device":   "device",
	"midi.virtual":  "virtual",
	"midi.portName": "port-name",
	"statusAddr":    "status-addr",
	"seed":          "seed",
}

// Load reads smartpiano.yaml from configPath, . or config/ if present, then
// applies SMARTPIANO_* environment variables (a .env file included) and any
// flags that were set. A missing config file is not an error.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	envFile := ".env"
	if configPath != "" {
		envFile = filepath.Join(configPath, ".env")
	}
	// variables already in the environment win over the file
	_ = godotenv.Load(envFile)

	v.SetDefault("socket", constants.DefaultSocketPath)
	v.SetDefault("quietWindow", constants.DefaultQuietWindow)
	v.SetDefault("maxChallenges", constants.DefaultMaxChallenges)
	v.SetDefault("logLevel", constants.DefaultLogLevel)
	v.SetDefault("logFormat", constants.DefaultLogFormat)
	v.SetDefault("midi.device", "")
	v.SetDefault("midi.virtual", false)
	v.SetDefault("midi.portName", constants.DefaultPortName)
	v.SetDefault("statusAddr", "")
	v.SetDefault("seed", 0)

	v.SetConfigName("smartpiano")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	// default config path
	v.AddConfigPath(".")
	v.AddConfigPath("config")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for key, name := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validateConfig(config *Config) error {
	if config.Socket == "" {
		return fmt.Errorf("socket path must not be empty")
	}

	if config.QuietWindow <= 0 {
		return fmt.Errorf("quietWindow must be positive, got %s", config.QuietWindow)
	}

	if config.MaxChallenges <= 0 {
		return fmt.Errorf("maxChallenges must be positive, got %d", config.MaxChallenges)
	}

	if _, err := ParseLogLevel(config.LogLevel); err != nil {
		return err
	}

	if config.LogFormat != "text" && config.LogFormat != "json" {
		return fmt.Errorf("logFormat must be text or json, got '%s'", config.LogFormat)
	}

	if config.Midi.Virtual && config.Midi.PortName == "" {
		return fmt.Errorf("midi.portName is required for a virtual input")
	}

	return nil
}

func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("invalid logLevel '%s': %w", s, err)
	}
	return level, nil
}
