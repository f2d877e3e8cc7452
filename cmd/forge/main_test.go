package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandWiring(t *testing.T) {
	cmd := rootCmd()
	assert.Equal(t, "forge", cmd.Name())

	serve, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)
	assert.Equal(t, "serve", serve.Name())

	version, _, err := cmd.Find([]string{"version"})
	require.NoError(t, err)
	assert.Equal(t, "version", version.Name())

	ingest, _, err := cmd.Find([]string{"ingest"})
	require.NoError(t, err)
	assert.Equal(t, "ingest", ingest.Name())

	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("log-level"))
}

func TestNewLoggerLevels(t *testing.T) {
	ctx := context.Background()

	logger := newLogger("debug")
	assert.True(t, logger.Enabled(ctx, slog.LevelDebug))

	logger = newLogger("error")
	assert.False(t, logger.Enabled(ctx, slog.LevelWarn))
	assert.True(t, logger.Enabled(ctx, slog.LevelError))

	// Unknown levels fall back to info.
	logger = newLogger("chatty")
	assert.False(t, logger.Enabled(ctx, slog.LevelDebug))
	assert.True(t, logger.Enabled(ctx, slog.LevelInfo))
}

func TestIngestRequiresKey(t *testing.T) {
	cmd := rootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"ingest", "page.html"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key")
}

func TestIngestRejectsBadKey(t *testing.T) {
	cmd := rootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"ingest", "page.html", "--key", "Not Kebab"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid capability key")
}
