package cmd

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jsphweid/smartpiano/config"
	"github.com/jsphweid/smartpiano/protocol"
	"github.com/jsphweid/smartpiano/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatMessage(t *testing.T) {
	m := protocol.New(protocol.TypeResult).
		With(protocol.FieldID, "3").
		With(protocol.FieldIncorrect, "d4 f4").
		With(protocol.FieldDuration, "812")
	assert.Equal(t, `result duration="812" id="3" incorrect="d4 f4"`, formatMessage(m))
	assert.Equal(t, "ready", formatMessage(protocol.New(protocol.TypeReady)))
}

func TestForwardInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.sock")
	server := transport.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, server.Start(path))
	defer server.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	accepted := make(chan error, 1)
	go func() { accepted <- server.WaitForClient(ctx) }()
	c, err := transport.Dial(ctx, path)
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, <-accepted)

	require.NoError(t, forwardInput(c, strings.NewReader("\nready\nquit\nexit\nready\n")))

	var got []string
	for i := 0; i < 3; i++ {
		m, err := server.Receive()
		require.NoError(t, err)
		got = append(got, m.Type)
	}
	assert.Equal(t, []string{"ready", "ready", "quit"}, got)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&config.Config{LogLevel: "warn", LogFormat: "json"}, &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "session", "abc")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"session":"abc"`)

	_, err = newLogger(&config.Config{LogLevel: "info", LogFormat: "xml"}, &buf)
	assert.Error(t, err)
}
