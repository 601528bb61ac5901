package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLog(t *testing.T, fn func()) map[string]interface{} {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(os.Stderr) })

	fn()

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestInfoEmitsJSON(t *testing.T) {
	entry := captureLog(t, func() {
		Info("pixel open", "message_id", "m1")
	})

	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "pixel open", entry["msg"])
	assert.Equal(t, "m1", entry["message_id"])
	assert.NotEmpty(t, entry["time"])
}

func TestEmailFieldsAreRedacted(t *testing.T) {
	SetRedactPII(true)
	entry := captureLog(t, func() {
		Info("pixel open", "email", "john.doe@example.com")
	})

	assert.Equal(t, "jo***@example.com", entry["email"])
}

func TestEmbeddedEmailsAreRedacted(t *testing.T) {
	SetRedactPII(true)
	entry := captureLog(t, func() {
		Warn("fetch failed", "url", "http://x.com/img?u=someone@example.com")
	})

	assert.NotContains(t, entry["url"], "someone@example.com")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(os.Stderr) })

	SetLevel(WARN)
	t.Cleanup(func() { SetLevel(INFO) })

	Info("suppressed")
	assert.Zero(t, buf.Len())

	Error("kept")
	assert.NotZero(t, buf.Len())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel("warning"))
	assert.Equal(t, ERROR, ParseLevel("ERROR"))
	assert.Equal(t, INFO, ParseLevel("bogus"))
}

func TestRedactEmail(t *testing.T) {
	assert.Equal(t, "jo***@example.com", RedactEmail("john@example.com"))
	assert.Equal(t, "***@example.com", RedactEmail("ab@example.com"))
	assert.Equal(t, "***@***", RedactEmail("not-an-email"))
}
