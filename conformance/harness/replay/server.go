package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	GeneratePath    = "/generate"
	LogsPath        = "/logs"
	WebSocketPath   = "/logs/ws"
	ConnectionsPath = "/admin/connections"
)

type Option func(*Server)

func WithAuth(cfg AuthConfig) Option {
	return func(s *Server) {
		s.auth = cfg
	}
}

// Server plays a Script back over the automation service's HTTP surface.
type Server struct {
	script Script
	auth   AuthConfig

	mu          sync.Mutex
	next        int
	attempts    int
	opened      int
	peak        int
	submissions int
	lastForm    url.Values
	live        map[string]ConnectionSnapshot

	httpServer *http.Server
	listener   net.Listener
}

func New(script Script, opts ...Option) *Server {
	s := &Server{
		script: script,
		auth:   AuthConfig{Mode: AuthModeNone},
		live:   map[string]ConnectionSnapshot{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+GeneratePath, s.handleGenerate)
	mux.HandleFunc("GET "+LogsPath, s.handleSSE)
	mux.HandleFunc("GET "+WebSocketPath, s.handleWebSocket)
	mux.HandleFunc("GET "+ConnectionsPath, s.handleConnections)
	return s.authMiddleware(mux)
}

// Listen serves on addr in the background and returns the base URL.
func (s *Server) Listen(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("listen %s: %w", addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = s.httpServer.Serve(ln)
	}()
	return "http://" + ln.Addr().String(), nil
}

func (s *Server) Close() error {
	if s.httpServer == nil {
		return nil
	}
	err := s.httpServer.Close()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Attempts counts every log-stream request, refused ones included.
func (s *Server) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func (s *Server) Submissions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submissions
}

func (s *Server) LastForm() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := url.Values{}
	for key, values := range s.lastForm {
		out[key] = append([]string(nil), values...)
	}
	return out
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == ConnectionsPath {
			next.ServeHTTP(w, r)
			return
		}
		if _, err := SubjectFromAuthHeader(r.Header.Get("Authorization"), s.auth); err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"status": "error", "message": err.Error()})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "invalid form: " + err.Error()})
		return
	}
	s.mu.Lock()
	s.submissions++
	s.lastForm = r.MultipartForm.Value
	reply := s.script.Generate
	s.mu.Unlock()

	status := reply.HTTPStatus
	if status == 0 {
		status = http.StatusOK
	}
	if reply.RawBody != "" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply.RawBody))
		return
	}
	body := map[string]string{"status": reply.Status}
	if body["status"] == "" {
		body["status"] = "success"
	}
	if reply.Message != "" {
		body["message"] = reply.Message
	}
	writeJSON(w, status, body)
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	index, conn, ok := s.nextConnection()
	if !ok {
		http.Error(w, "no scripted connection left", http.StatusServiceUnavailable)
		return
	}
	if conn.Reject != 0 {
		http.Error(w, http.StatusText(conn.Reject), conn.Reject)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	subject, _ := SubjectFromAuthHeader(r.Header.Get("Authorization"), s.auth)
	_, unregister := s.registerConnection(ConnectionSnapshot{
		Protocol:   "sse",
		Actor:      subject,
		RemoteAddr: r.RemoteAddr,
		Index:      index,
	})
	defer unregister()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for _, step := range conn.Steps {
		if !sleepContext(r.Context(), step.Delay) {
			return
		}
		if _, err := fmt.Fprint(w, encodeSSE(step)); err != nil {
			return
		}
		flusher.Flush()
	}
	if conn.Hold {
		<-r.Context().Done()
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	index, script, ok := s.nextConnection()
	if !ok {
		http.Error(w, "no scripted connection left", http.StatusServiceUnavailable)
		return
	}
	if script.Reject != 0 {
		http.Error(w, http.StatusText(script.Reject), script.Reject)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	subject, _ := SubjectFromAuthHeader(r.Header.Get("Authorization"), s.auth)
	_, unregister := s.registerConnection(ConnectionSnapshot{
		Protocol:   "websocket",
		Actor:      subject,
		RemoteAddr: r.RemoteAddr,
		Index:      index,
	})
	defer unregister()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for _, step := range script.Steps {
		if !sleepContext(ctx, step.Delay) {
			return
		}
		if step.Event != "" && step.Event != "message" {
			continue
		}
		if step.Data == "" && step.Comment != "" {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte(step.Data)); err != nil {
			return
		}
	}
	if script.Hold {
		<-readerDone
		return
	}
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "script finished"), deadline)
}

func (s *Server) handleConnections(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Connections(r.URL.Query().Get("protocol")))
}

func (s *Server) nextConnection() (int, Connection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.next >= len(s.script.Connections) {
		return 0, Connection{}, false
	}
	index := s.next
	conn := s.script.Connections[index]
	s.next++
	if conn.Reject == 0 {
		s.opened++
	}
	return index, conn, true
}

func encodeSSE(step Step) string {
	var sb strings.Builder
	if step.Comment != "" {
		sb.WriteString(": ")
		sb.WriteString(step.Comment)
		sb.WriteByte('\n')
	}
	if step.Event != "" {
		sb.WriteString("event: ")
		sb.WriteString(step.Event)
		sb.WriteByte('\n')
	}
	if step.Data != "" || step.Comment == "" {
		for _, line := range strings.Split(step.Data, "\n") {
			sb.WriteString("data: ")
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
	}
	sb.WriteByte('\n')
	return sb.String()
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
