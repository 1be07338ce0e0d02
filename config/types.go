package config

import "time"

// Config holds everything the serve command needs to run the engine.
type Config struct {
	Socket        string        `mapstructure:"socket"`
	QuietWindow   time.Duration `mapstructure:"quietWindow"` // max gap between notes of one chord
	MaxChallenges int           `mapstructure:"maxChallenges"`
	LogLevel      string        `mapstructure:"logLevel"`
	LogFormat     string        `mapstructure:"logFormat"` // text or json
	Midi          MidiConfig    `mapstructure:"midi"`
	StatusAddr    string        `mapstructure:"statusAddr"` // empty disables the status server
	Seed          int64         `mapstructure:"seed"`       // 0 seeds from the clock
}

type MidiConfig struct {
	Device   string `mapstructure:"device"`
	Virtual  bool   `mapstructure:"virtual"`
	PortName string `mapstructure:"portName"`
}
