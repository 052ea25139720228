package logging

import (
	"context"
	"testing"

	"github.com/fyrsmithlabs/tenantrag/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func encodeEntry(t *testing.T, enc zapcore.Encoder, fields ...zapcore.Field) string {
	t.Helper()
	buf, err := enc.EncodeEntry(zapcore.Entry{Level: zapcore.InfoLevel, Message: "msg"}, fields)
	require.NoError(t, err)
	defer buf.Free()
	return buf.String()
}

func TestRedactingEncoder_EntryFields(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), NewDefaultConfig().Redaction)
	require.NoError(t, err)

	out := encodeEntry(t, enc,
		zap.String("api_key", "abc123"),
		zap.String("Authorization", "Bearer xyz"),
		zap.String("note", "uses sk-abcdefghijklmnopqrstu for auth"),
		zap.String("filename", "policy"),
		zap.Int("token", 7),
	)

	assert.NotContains(t, out, "abc123")
	assert.NotContains(t, out, "xyz")
	assert.NotContains(t, out, "sk-abcdefghijklmnopqrstu")
	assert.Contains(t, out, `"api_key":"[REDACTED]"`)
	assert.Contains(t, out, `"note":"[REDACTED:pattern]"`)
	assert.Contains(t, out, `"token":"[REDACTED]"`)
	assert.Contains(t, out, `"filename":"policy"`)
}

func TestRedactingEncoder_WithFields(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), NewDefaultConfig().Redaction)
	require.NoError(t, err)

	clone := enc.Clone()
	clone.AddString("password", "hunter2")
	clone.AddString("tenant", "t-1")

	out := encodeEntry(t, clone)
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, `"tenant":"t-1"`)
}

func TestRedactingEncoder_Disabled(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), RedactionConfig{Enabled: false})
	require.NoError(t, err)

	out := encodeEntry(t, enc, zap.String("password", "visible"))
	assert.Contains(t, out, "visible")
}

func TestRedactingEncoder_BadPattern(t *testing.T) {
	_, err := NewRedactingEncoder(newEncoder("json"), RedactionConfig{Enabled: true, Patterns: []string{"("}})
	assert.Error(t, err)
}

func TestSecretField(t *testing.T) {
	tl := NewTestLogger()
	tl.Info(context.Background(), "llm configured",
		Secret("api_key", config.Secret("sk-live-0123456789abcdef")),
	)

	tl.AssertNoSecrets(t)
	tl.AssertLogged(t, zapcore.InfoLevel, "llm configured")
}
