package logger

import (
	"bytes"
	"errors"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONFormatCarriesComponentAndFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Component: "scanner", Output: &buf})

	log.WithField("request_id", "r1").WithError(errors.New("boom")).Warn("check failed")

	var line map[string]any
	require.NoError(t, jsoniter.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "scanner", line["component"])
	assert.Equal(t, "r1", line["request_id"])
	assert.Equal(t, "boom", line["error"])
	assert.Equal(t, "warning", line["level"])
}

func TestUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "chatty", Output: &buf})

	log.Debug("hidden")
	assert.Empty(t, buf.String())
	log.Info("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNamedReplacesComponent(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Format: "json", Component: "lendhub", Output: &buf}).Named("http")

	log.Info("x")
	assert.Contains(t, buf.String(), `"component":"http"`)
}
