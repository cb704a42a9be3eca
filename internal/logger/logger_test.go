package logger_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mdouchement/feedmirror/internal/config"
	"github.com/mdouchement/feedmirror/internal/logger"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatter(t *testing.T) {
	entry := &logrus.Entry{
		Time:    time.Date(2022, 12, 25, 10, 0, 0, 0, time.UTC),
		Level:   logrus.WarnLevel,
		Message: "item dropped",
		Data:    logrus.Fields{"reason": "timeout", "id": 42},
	}

	b, err := new(logger.Formatter).Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "[2022-12-25T10:00:00Z] WARNING: item dropped (id=42, reason=timeout)\n", string(b))
}

func TestNew(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedmirror.log")

	var buf bytes.Buffer
	log, err := logger.NewWithOutput(config.Log{
		Level:      "debug",
		File:       path,
		MaxSizeMB:  1,
		MaxBackups: 1,
		MaxAgeDays: 1,
	}, &buf)
	require.NoError(t, err)

	log.WithField("run_id", "abc").Debug("batch stored")

	assert.Contains(t, buf.String(), "DEBUG: batch stored (run_id=abc)")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "DEBUG: batch stored (run_id=abc)")
}

func TestNew_Level(t *testing.T) {
	_, err := logger.New(config.Log{Level: "loud"})
	assert.Error(t, err)

	var buf bytes.Buffer
	log, err := logger.NewWithOutput(config.Log{Level: "warn"}, &buf)
	require.NoError(t, err)

	log.Info("hidden")
	assert.Empty(t, buf.String())
}
