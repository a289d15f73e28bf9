package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"capsift/internal/config"
)

func TestApply_Console(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()

	closer, err := Apply(l, config.LogConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)
	defer closer.Close()

	assert.Equal(t, logrus.WarnLevel, l.GetLevel())

	l.Info("hidden")
	l.WithField("records", 3).Warn("Capture ended early")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Capture ended early", entry["msg"])
	assert.Equal(t, float64(3), entry["records"])
}

func TestApply_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capsift.log")
	var console bytes.Buffer
	l := logrus.New()

	closer, err := Apply(l, config.LogConfig{
		Level:  "debug",
		Format: "text",
		File:   config.LogFileConfig{Path: path, MaxSizeMB: 1, MaxBackups: 1},
	}, &console)
	require.NoError(t, err)

	l.Debug("Skip undecodable record")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Skip undecodable record")
	assert.Contains(t, console.String(), "Skip undecodable record")
}

func TestApply_InvalidLevel(t *testing.T) {
	_, err := Apply(logrus.New(), config.LogConfig{Level: "loud"}, &bytes.Buffer{})
	assert.Error(t, err)
}
