package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleLevels(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		want    []string
		notWant []string
	}{
		{"default", Options{}, []string{"warn-msg", "error-msg"}, []string{"debug-msg"}},
		{"verbose", Options{Verbose: true}, []string{"debug-msg", "warn-msg"}, nil},
		{"quiet", Options{Quiet: true, Verbose: true}, []string{"error-msg"}, []string{"warn-msg", "debug-msg"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.opts.Console = &buf
			log, closer, err := New(tt.opts)
			require.NoError(t, err)
			defer closer.Close()

			log.Debug("debug-msg")
			log.Warn("warn-msg", "stream", "!_Columns")
			log.Error("error-msg")
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
			for _, w := range tt.notWant {
				assert.NotContains(t, buf.String(), w)
			}
		})
	}
}

func TestFileReceivesDebugJSON(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "run.log")
	log, closer, err := New(Options{File: path, Console: &console})
	require.NoError(t, err)

	log.With("component", "cfb").Debug("stream read", "stream", "!_Tables", "size", 12)
	require.NoError(t, closer.Close())

	assert.Empty(t, console.String(), "debug stays off the console")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(raw), &rec))
	assert.Equal(t, "stream read", rec["msg"])
	assert.Equal(t, "cfb", rec["component"])
	assert.Equal(t, "!_Tables", rec["stream"])
}

func TestFileDirectoryRotation(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, logPrefix+"2000-01-01"+logSuffix)
	keep := filepath.Join(dir, "other.log")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(keep, []byte("x"), 0o644))

	log, closer, err := New(Options{File: dir, Console: &bytes.Buffer{}})
	require.NoError(t, err)
	log.Info("hello")
	require.NoError(t, closer.Close())

	_, err = os.Stat(old)
	assert.True(t, os.IsNotExist(err))
	assert.FileExists(t, keep)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var dated int
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), logPrefix) {
			dated++
			assert.Contains(t, e.Name(), time.Now().Format("2006-01-02"))
		}
	}
	assert.Equal(t, 1, dated)
}

func TestDiscard(t *testing.T) {
	assert.NotPanics(t, func() { Discard().Error("nothing", "k", "v") })
}
