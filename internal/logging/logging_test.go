package logging_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/diskpack/internal/logging"
)

func TestOptions_Level(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts logging.Options
		want slog.Level
	}{
		{"default", logging.Options{}, slog.LevelInfo},
		{"quiet", logging.Options{Quiet: true}, slog.LevelWarn},
		{"verbose", logging.Options{Verbose: true}, slog.LevelDebug},
		{"verbose wins", logging.Options{Verbose: true, Quiet: true}, slog.LevelDebug},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.opts.Level())
		})
	}
}

func TestNew_StderrOnly(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, closer := logging.New(logging.Options{Stderr: &buf, Quiet: true})
	defer closer.Close()

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNew_JSONFile(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "diskpack.log")
	logger, closer := logging.New(logging.Options{
		Stderr:    &buf,
		Quiet:     true,
		File:      path,
		MaxSizeMB: 1,
	})

	logger.Debug("copied", "file", 12)
	require.NoError(t, closer.Close())

	// Debug never reaches stderr at warn, but always reaches the file.
	assert.Empty(t, buf.String())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &rec))
	assert.Equal(t, "copied", rec["msg"])
	assert.EqualValues(t, 12, rec["file"])
}
