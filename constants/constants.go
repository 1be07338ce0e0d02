package constants

import (
	"os"
	"time"
)

const (
	DefaultSocketPath    = "/tmp/smartpiano.sock"
	DefaultQuietWindow   = 100 * time.Millisecond
	DefaultMaxChallenges = 10
	DefaultPortName      = "smartpiano"
	DefaultScale         = "c"
	DefaultMode          = "maj"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"
)

// EnvPrefix is prepended to every configuration key read from the environment.
const EnvPrefix = "SMARTPIANO"

// GetSocketPath is used by commands that run without the full config, like play.
func GetSocketPath() string {
	path := os.Getenv(EnvPrefix + "_SOCKET")
	if path != "" {
		return path
	}
	return DefaultSocketPath
}
