package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_JSONOutputIncludesComponentField(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, JSONOutput: true, Output: &buf})

	WithComponent("engine").Info().Msg("started")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "engine", entry["component"])
	assert.Equal(t, "started", entry["message"])
}

func TestInit_DefaultsToInfoLevelOnUnknownLevel(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: Level("nonsense"), JSONOutput: true, Output: &buf})

	Logger.Debug().Msg("should be suppressed")
	assert.Empty(t, buf.String())

	Logger.Info().Msg("should appear")
	assert.NotEmpty(t, buf.String())
}

func TestWithJobID_AttachesJobIDField(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: DebugLevel, JSONOutput: true, Output: &buf})

	WithJobID("job-1").Info().Msg("scheduled")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "job-1", entry["job_id"])
}
