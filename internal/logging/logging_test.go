package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_LevelFallback(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, New("debug", "json").GetLevel())
	assert.Equal(t, logrus.InfoLevel, New("nonsense", "text").GetLevel())
}

func TestLogError_Fields(t *testing.T) {
	var buf bytes.Buffer
	l := New("info", "json")
	l.SetOutput(&buf)

	LogError(l, "engine", "UpdateItem", map[string]string{"item": "x"}, errors.New("boom"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "boom", entry["msg"])
	assert.Equal(t, "engine", entry["module"])
	assert.Equal(t, "UpdateItem", entry["funcName"])
}
