package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jsphweid/smartpiano/constants"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir(), nil)
	require.NoError(t, err)

	assert.Equal(t, constants.DefaultSocketPath, cfg.Socket)
	assert.Equal(t, 100*time.Millisecond, cfg.QuietWindow)
	assert.Equal(t, 10, cfg.MaxChallenges)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "smartpiano", cfg.Midi.PortName)
	assert.False(t, cfg.Midi.Virtual)
	assert.Empty(t, cfg.StatusAddr)
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "smartpiano.yaml", `
socket: /tmp/other.sock
quietWindow: 250ms
maxChallenges: 4
midi:
  device: digital piano
  virtual: false
statusAddr: 127.0.0.1:8090
`)

	cfg, err := Load(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/other.sock", cfg.Socket)
	assert.Equal(t, 250*time.Millisecond, cfg.QuietWindow)
	assert.Equal(t, 4, cfg.MaxChallenges)
	assert.Equal(t, "digital piano", cfg.Midi.Device)
	assert.Equal(t, "127.0.0.1:8090", cfg.StatusAddr)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "smartpiano.yaml", "maxChallenges: 4\n")
	t.Setenv("SMARTPIANO_MAXCHALLENGES", "7")
	t.Setenv("SMARTPIANO_MIDI_DEVICE", "launchkey")

	cfg, err := Load(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.MaxChallenges)
	assert.Equal(t, "launchkey", cfg.Midi.Device)
}

func TestDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env", "SMARTPIANO_STATUSADDR=127.0.0.1:9999\n")
	t.Cleanup(func() { os.Unsetenv("SMARTPIANO_STATUSADDR") })

	cfg, err := Load(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", cfg.StatusAddr)
}

func TestFlagsOverrideEverything(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "smartpiano.yaml", "quietWindow: 250ms\nsocket: /tmp/file.sock\n")
	t.Setenv("SMARTPIANO_SOCKET", "/tmp/env.sock")

	flags := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	flags.String("socket", constants.DefaultSocketPath, "")
	flags.Duration("quiet-window", constants.DefaultQuietWindow, "")
	flags.Bool("virtual", false, "")
	require.NoError(t, flags.Parse([]string{"--socket", "/tmp/flag.sock", "--virtual"}))

	cfg, err := Load(dir, flags)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/flag.sock", cfg.Socket)
	assert.True(t, cfg.Midi.Virtual)
	assert.Equal(t, 250*time.Millisecond, cfg.QuietWindow, "unset flags leave the file value alone")
}

func TestValidation(t *testing.T) {
	cases := map[string]string{
		"zero challenges": "maxChallenges: 0\n",
		"negative window": "quietWindow: -5ms\n",
		"empty socket":    "socket: \"\"\n",
		"bad level":       "logLevel: loud\n",
		"bad format":      "logFormat: xml\n",
		"virtual no name": "midi:\n  virtual: true\n  portName: \"\"\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, "smartpiano.yaml", content)
			_, err := Load(dir, nil)
			assert.Error(t, err)
		})
	}
}

func TestBrokenConfigFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "smartpiano.yaml", "socket: [unterminated\n")
	_, err := Load(dir, nil)
	assert.Error(t, err)
}

func TestParseLogLevel(t *testing.T) {
	level, err := ParseLogLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	level, err = ParseLogLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)
}
