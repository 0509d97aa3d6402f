package logging_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylane/utm/internal/logging"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zerolog.Level
		wantErr bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"INFO", zerolog.InfoLevel, false},
		{"", zerolog.InfoLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{" error ", zerolog.ErrorLevel, false},
		{"verbose", zerolog.NoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := logging.ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_JSONFieldsAndLevel(t *testing.T) {
	var out bytes.Buffer
	cfg := logging.DefaultConfig()
	cfg.Level = "warn"

	logger, closer, err := logging.NewLogger(cfg, &out, "utmd", "1.2.3")
	require.NoError(t, err)
	defer closer.Close()

	logger.Info().Msg("dropped")
	logger.Warn().Str("vehicle_id", "v-1").Msg("kept")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1)

	var line map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &line))
	assert.Equal(t, "kept", line["message"])
	assert.Equal(t, "utmd", line["service"])
	assert.Equal(t, "1.2.3", line["version"])
	assert.Equal(t, "v-1", line["vehicle_id"])
	assert.Contains(t, line, "time")
}

func TestNew_RotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "utmd.log")
	cfg := logging.DefaultConfig()
	cfg.File = path

	var out bytes.Buffer
	logger, closer, err := logging.NewLogger(cfg, &out, "utmd", "dev")
	require.NoError(t, err)

	logger.Info().Msg("airspace loaded")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "airspace loaded")
	assert.Contains(t, out.String(), "airspace loaded")
}

func TestNew_InvalidLevel(t *testing.T) {
	cfg := logging.DefaultConfig()
	cfg.Level = "loud"
	_, closer, err := logging.NewLogger(cfg, &bytes.Buffer{}, "utmd", "dev")
	assert.Error(t, err)
	assert.NoError(t, closer.Close())
}
