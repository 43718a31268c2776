package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewWithWriterProdWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("prod", &buf)

	log.Info().Str("project", "PROJ").Msg("analysis started")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "info", entry["level"])
	require.Equal(t, "PROJ", entry["project"])
	require.Equal(t, "analysis started", entry["message"])
	require.Contains(t, entry, "time")
}

func TestNewWithWriterDevIsHumanReadable(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("dev", &buf)

	log.Warn().Msg("retrying")

	require.Contains(t, buf.String(), "retrying")
	require.False(t, json.Valid(buf.Bytes()))
}
