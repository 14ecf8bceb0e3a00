package console

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("BLOGCONSOLE_CONFIG", "")
	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5000", cfg.BaseURL)
	assert.Equal(t, TransportSSE, cfg.Transport)
	assert.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, DefaultRetryDelay, cfg.RetryDelay)
	assert.Equal(t, AuthModeNone, cfg.Auth.Mode)

	form := cfg.Form.Form()
	assert.Equal(t, 3, form.NumImages)
	assert.Equal(t, 1000, form.ArticleLength)
}

func TestLoadConfigYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.yaml")
	raw := `
base_url: http://automation.internal:5000
transport: ws
retry_delay: 500ms
auth:
  mode: bearer
  token: from-file
form:
  spreadsheet_id: sheet-from-file
  num_images: 5
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))
	t.Setenv("BLOGCONSOLE_AUTH_TOKEN", "from-env")
	t.Setenv("BLOGCONSOLE_MAX_RETRIES", "5")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://automation.internal:5000", cfg.BaseURL)
	assert.Equal(t, TransportWebSocket, cfg.Transport)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryDelay)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, AuthModeBearer, cfg.Auth.Mode)
	assert.Equal(t, "from-env", cfg.Auth.Token)
	assert.Equal(t, "/logs", cfg.LogsPath)

	form := cfg.Form.Form()
	assert.Equal(t, "sheet-from-file", form.SpreadsheetID)
	assert.Equal(t, 5, form.NumImages)
	assert.Equal(t, 1000, form.ArticleLength)
}

func TestConfigValidation(t *testing.T) {
	t.Setenv("BLOGCONSOLE_TRANSPORT", "nats")
	_, err := ConfigFromEnv()
	require.Error(t, err)

	t.Setenv("BLOGCONSOLE_TRANSPORT", "carrier-pigeon")
	_, err = ConfigFromEnv()
	require.Error(t, err)

	t.Setenv("BLOGCONSOLE_TRANSPORT", "sse")
	t.Setenv("BLOGCONSOLE_AUTH_MODE", "jwt")
	_, err = ConfigFromEnv()
	require.Error(t, err)

	t.Setenv("BLOGCONSOLE_JWT_HS256_SECRET", "secret")
	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, AuthModeJWT, cfg.Auth.Mode)

	t.Setenv("BLOGCONSOLE_MAX_RETRIES", "three")
	_, err = ConfigFromEnv()
	require.Error(t, err)
}

func TestConfigBuildsTransports(t *testing.T) {
	cfg := DefaultConfig()
	client, err := cfg.Client(nil)
	require.NoError(t, err)

	transport, err := cfg.NewTransport(client)
	require.NoError(t, err)
	assert.Equal(t, "sse", transport.Name())

	cfg.Transport = TransportWebSocket
	transport, err = cfg.NewTransport(client)
	require.NoError(t, err)
	ws, ok := transport.(*WebSocketTransport)
	require.True(t, ok)
	assert.Equal(t, "ws://localhost:5000/logs/ws", ws.URL())

	cfg.Transport = TransportNATS
	cfg.NATSURL = "nats://127.0.0.1:4222"
	transport, err = cfg.NewTransport(client)
	require.NoError(t, err)
	nt, ok := transport.(*NATSTransport)
	require.True(t, ok)
	assert.Equal(t, DefaultNATSSubject, nt.Subject())
}

func TestNATSTransportRequiresURL(t *testing.T) {
	if _, err := NewNATSTransport(NATSOptions{}); err == nil {
		t.Fatal("expected error when nats url is not configured")
	}
}
