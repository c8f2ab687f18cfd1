package logger

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
		ok   bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{"Warn", LevelWarn, true},
		{"error", LevelError, true},
		{"verbose", LevelInfo, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseLevel(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestSetLevel(t *testing.T) {
	defer SetLevel("INFO")

	SetLevel("ERROR")
	assert.False(t, Enabled(LevelWarn))
	assert.True(t, Enabled(LevelError))

	SetLevel("nonsense")
	assert.False(t, Enabled(LevelWarn), "unknown levels must not change the level")

	SetLevel("debug")
	assert.True(t, Enabled(LevelDebug))
}

func TestConfigure_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vfs.log")
	require.NoError(t, Configure("INFO", "json", path))
	defer func() { _ = Configure("INFO", "text", "stdout") }()

	Debug("hidden %d", 1)
	Info("provider %s connected", "p1")
	require.NoError(t, Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `"msg":"provider p1 connected"`)
	assert.False(t, strings.Contains(out, "hidden"))
}

func TestConfigure_ClosesReplacedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Configure("INFO", "text", filepath.Join(dir, "a.log")))
	defer func() { _ = Configure("INFO", "text", "stdout") }()

	first, ok := sink.(*os.File)
	require.True(t, ok)

	require.NoError(t, Configure("INFO", "text", filepath.Join(dir, "b.log")))
	_, err := first.Write([]byte("late"))
	assert.True(t, errors.Is(err, os.ErrClosed), "previous log file is closed")

	second, ok := sink.(*os.File)
	require.True(t, ok)
	Info("into b")

	require.NoError(t, Configure("INFO", "text", "stderr"))
	assert.Nil(t, sink)
	_, err = second.Write([]byte("late"))
	assert.True(t, errors.Is(err, os.ErrClosed))

	data, err := os.ReadFile(filepath.Join(dir, "b.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "into b")
}
