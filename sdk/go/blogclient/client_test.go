package blogclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestGenerateSendsMultipartFields(t *testing.T) {
	var got url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/generate" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		got = r.MultipartForm.Value
		_ = json.NewEncoder(w).Encode(GenerateResponse{Status: "success", Message: "started"})
	}))
	defer server.Close()

	form := DefaultForm()
	form.SpreadsheetID = "sheet-1234567890"
	form.WordPressURL = "https://blog.example.com"
	form.WordPressUsername = "editor"
	form.WordPressPassword = "secret"
	form.Extra = url.Values{"category": {"news"}}

	resp, err := New(server.URL+"/").Generate(context.Background(), form)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !resp.OK() {
		t.Fatalf("expected success envelope, got %#v", resp)
	}
	if got.Get("spreadsheet_id") != "sheet-1234567890" {
		t.Fatalf("unexpected spreadsheet_id: %q", got.Get("spreadsheet_id"))
	}
	if got.Get("num_images") != "3" || got.Get("article_length") != "1000" {
		t.Fatalf("unexpected numeric defaults: %v", got)
	}
	if got.Get("category") != "news" {
		t.Fatalf("expected extra field to pass through, got %v", got)
	}
}

func TestGenerateReturnsRejectionEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"error","message":"No Google Sheet ID provided"}`))
	}))
	defer server.Close()

	resp, err := New(server.URL).Generate(context.Background(), DefaultForm())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.OK() {
		t.Fatal("expected non-success envelope")
	}
	if resp.Message != "No Google Sheet ID provided" {
		t.Fatalf("unexpected message: %q", resp.Message)
	}
}

func TestGenerateNonJSONIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := New(server.URL).Generate(context.Background(), DefaultForm())
	if err == nil {
		t.Fatal("expected error for non-JSON body")
	}
	if !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected status in error, got %v", err)
	}
}

func TestRequestEditorsApplyToStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer t0k" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: heartbeat\n\n"))
	}))
	defer server.Close()

	bare := New(server.URL)
	if _, err := bare.OpenLogStream(context.Background()); err == nil {
		t.Fatal("expected 401 to surface as error")
	}

	authed := New(server.URL, WithRequestEditor(func(_ context.Context, req *http.Request) error {
		req.Header.Set("Authorization", "Bearer t0k")
		return nil
	}))
	body, err := authed.OpenLogStream(context.Background())
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer body.Close()
	raw, _ := io.ReadAll(body)
	if !strings.Contains(string(raw), "heartbeat") {
		t.Fatalf("unexpected stream body: %q", raw)
	}
}
