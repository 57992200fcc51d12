package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLogger_WritesServiceAndFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("purchase-service", &buf)

	log.Warn("Partial enrollment", map[string]interface{}{
		"purchase_id": "p-1",
		"attempt":     2,
	})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "purchase-service", entry["service"])
	assert.Equal(t, "Partial enrollment", entry["message"])
	assert.Equal(t, "p-1", entry["purchase_id"])
	assert.Equal(t, float64(2), entry["attempt"])
	assert.NotEmpty(t, entry["time"])
}

func TestJSONLogger_FatalExits(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("svc", &buf).(*jsonLogger)

	code := -1
	l.exit = func(c int) { code = c }

	l.Fatal("boom", nil)

	assert.Equal(t, 1, code)
	assert.Contains(t, buf.String(), `"level":"fatal"`)
}
