package replay

import (
	"bufio"
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateRecordsFormAndReplies(t *testing.T) {
	srv := New(Script{Generate: GenerateReply{Status: "error", Message: "No Google Sheet ID provided"}})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	require.NoError(t, mw.WriteField("spreadsheet_id", "abc"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.URL+GeneratePath, mw.FormDataContentType(), body)
	require.NoError(t, err)
	defer resp.Body.Close()

	var envelope map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.Equal(t, "error", envelope["status"])
	assert.Equal(t, "No Google Sheet ID provided", envelope["message"])
	assert.Equal(t, 1, srv.Submissions())
	assert.Equal(t, "abc", srv.LastForm().Get("spreadsheet_id"))
}

func TestSSEPlaysScriptThenEnds(t *testing.T) {
	srv := New(Script{Connections: []Connection{{Steps: []Step{
		{Data: "heartbeat"},
		{Comment: "keepalive"},
		{Data: "two\nlines"},
		{Event: "progress", Data: "ignored by clients"},
	}}}})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + LogsPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var lines []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	assert.Equal(t, []string{
		"data: heartbeat", "",
		": keepalive", "",
		"data: two", "data: lines", "",
		"event: progress", "data: ignored by clients", "",
	}, lines)
	assert.Equal(t, 1, srv.Attempts())
}

func TestConnectionsPastScriptAreRefused(t *testing.T) {
	srv := New(Script{Connections: []Connection{{Reject: http.StatusBadGateway}}})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	first, err := http.Get(ts.URL + LogsPath)
	require.NoError(t, err)
	first.Body.Close()
	assert.Equal(t, http.StatusBadGateway, first.StatusCode)

	second, err := http.Get(ts.URL + LogsPath)
	require.NoError(t, err)
	second.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, second.StatusCode)
	assert.Equal(t, 2, srv.Attempts())
	assert.Equal(t, 0, srv.Connections("").Summary.Opened)
}

func TestWebSocketPlaysDataFrames(t *testing.T) {
	srv := New(Script{Connections: []Connection{{Steps: Lines("first", "second")}}})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + WebSocketPath
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var got []string
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			require.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected close: %v", err)
			break
		}
		got = append(got, string(data))
	}
	assert.Equal(t, []string{"first", "second"}, got)
}

func TestHeldConnectionIsListedUntilClientLeaves(t *testing.T) {
	srv := New(Script{Connections: []Connection{{Steps: Lines("hello"), Hold: true}}})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + LogsPath)
	require.NoError(t, err)
	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "data: hello\n", line)

	listing := srv.Connections("sse")
	assert.Equal(t, 1, listing.Summary.Total)
	assert.Equal(t, 1, listing.Summary.Peak)

	resp.Body.Close()
	require.Eventually(t, func() bool {
		return srv.Connections("").Summary.Total == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAuthRejectsMissingAndAcceptsSignedToken(t *testing.T) {
	cfg := AuthConfig{Mode: AuthModeJWT, JWTSecret: "replay-secret"}
	srv := New(Script{Connections: []Connection{{Steps: Lines("ok")}}}, WithAuth(cfg))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + LogsPath)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 0, srv.Attempts())

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "tester",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte("replay-secret"))
	require.NoError(t, err)

	subject, err := SubjectFromAuthHeader("Bearer "+token, cfg)
	require.NoError(t, err)
	assert.Equal(t, "tester", subject)

	req, err := http.NewRequest(http.MethodGet, ts.URL+LogsPath, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBearerModeComparesStaticToken(t *testing.T) {
	cfg := AuthConfig{Mode: AuthModeBearer, Token: "s3cret"}
	_, err := SubjectFromAuthHeader("Bearer s3cret", cfg)
	require.NoError(t, err)
	_, err = SubjectFromAuthHeader("Bearer wrong", cfg)
	require.Error(t, err)
	_, err = SubjectFromAuthHeader("", cfg)
	require.Error(t, err)
}
