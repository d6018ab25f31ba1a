package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mazungumzo-chat-go/internal/config"
)

func TestNewLoggerParsesLevel(t *testing.T) {
	log, err := NewLogger(&config.LoggingConfig{Level: "debug", Format: "text", Output: "stdout"})
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := NewLogger(&config.LoggingConfig{Level: "chatty"})
	require.Error(t, err)
}

func TestNewLoggerJSONFormat(t *testing.T) {
	log, err := NewLogger(&config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"})
	require.NoError(t, err)

	var buf bytes.Buffer
	log.SetOutput(&buf)
	log.WithField("service", "ai").Info("hello")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["message"])
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "ai", line["service"])
	assert.Contains(t, line, "timestamp")
}

func TestNewLoggerFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "server.log")
	log, err := NewLogger(&config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "file",
		File:   config.FileConfig{Path: path, MaxSize: 1, MaxBackups: 1, MaxAge: 1},
	})
	require.NoError(t, err)

	log.Info("first line")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "first line")
}

func TestPseudonymizerAliases(t *testing.T) {
	p := NewPseudonymizer("secret-key")

	alias := p.Alias("+254700000001")
	assert.Len(t, alias, 8)
	assert.Equal(t, alias, p.Alias("+254700000001"))
	assert.NotEqual(t, alias, p.Alias("+254700000002"))
	assert.NotEqual(t, alias, NewPseudonymizer("other-key").Alias("+254700000001"))
}

func TestWithUserAddsFields(t *testing.T) {
	log := logrus.New()
	p := NewPseudonymizer("secret-key")

	entry := WithUser(log, p, "user-1", "web")
	assert.Equal(t, p.Alias("user-1"), entry.Data["user"])
	assert.Equal(t, "web", entry.Data["platform"])
}

func TestLogCrisisDetectionWarnsWithoutRawID(t *testing.T) {
	log := logrus.New()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	log.SetFormatter(&logrus.JSONFormatter{})

	LogCrisisDetection(log, NewPseudonymizer("k"), "user-1", 0.95, []string{"kill myself"})

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warning", line["level"])
	assert.Equal(t, "Crisis indicators detected", line["msg"])
	assert.InDelta(t, 0.95, line["confidence"], 1e-9)
	assert.NotEqual(t, "user-1", line["user"])
}

func TestLogAPICall(t *testing.T) {
	log := logrus.New()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	log.SetFormatter(&logrus.JSONFormatter{})

	LogAPICall(log, "cerebras", "/chat/completions", "ok", 1500*time.Millisecond)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "cerebras", line["service"])
	assert.EqualValues(t, 1500, line["duration_ms"])
}
