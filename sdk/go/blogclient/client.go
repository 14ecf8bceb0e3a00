package blogclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultGeneratePath = "/generate"
	DefaultLogsPath     = "/logs"

	StatusSuccess = "success"
)

// RequestEditorFn mutates an outgoing request, typically to attach credentials.
type RequestEditorFn func(ctx context.Context, req *http.Request) error

type Client struct {
	baseURL      string
	generatePath string
	logsPath     string
	http         *http.Client
	stream       *http.Client
	editors      []RequestEditorFn
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithStreamHTTPClient sets the client used for the long-lived log stream. It
// must not carry an overall timeout.
func WithStreamHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.stream = hc
		}
	}
}

func WithPaths(generatePath, logsPath string) Option {
	return func(c *Client) {
		if strings.TrimSpace(generatePath) != "" {
			c.generatePath = generatePath
		}
		if strings.TrimSpace(logsPath) != "" {
			c.logsPath = logsPath
		}
	}
}

func WithRequestEditor(fn RequestEditorFn) Option {
	return func(c *Client) {
		if fn != nil {
			c.editors = append(c.editors, fn)
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		generatePath: DefaultGeneratePath,
		logsPath:     DefaultLogsPath,
		http:         &http.Client{Timeout: 30 * time.Second},
		stream:       &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) LogsURL() string {
	return c.baseURL + c.logsPath
}

// Form is the generation form. Field values are opaque to the client; Extra is
// sent verbatim after the named fields.
type Form struct {
	SpreadsheetID     string
	WordPressURL      string
	WordPressUsername string
	WordPressPassword string
	NumImages         int
	ArticleLength     int
	Extra             url.Values
}

func DefaultForm() Form {
	return Form{NumImages: 3, ArticleLength: 1000}
}

// Fields returns the form in submission order.
func (f Form) Fields() [][2]string {
	out := [][2]string{
		{"spreadsheet_id", f.SpreadsheetID},
		{"wordpress_url", f.WordPressURL},
		{"wordpress_username", f.WordPressUsername},
		{"wordpress_password", f.WordPressPassword},
		{"num_images", strconv.Itoa(f.NumImages)},
		{"article_length", strconv.Itoa(f.ArticleLength)},
	}
	keys := make([]string, 0, len(f.Extra))
	for key := range f.Extra {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		for _, value := range f.Extra[key] {
			out = append(out, [2]string{key, value})
		}
	}
	return out
}

type GenerateResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func (r GenerateResponse) OK() bool {
	return r.Status == StatusSuccess
}

// Generate submits the form as multipart fields. A non-success envelope is not
// an error; only transport and decoding failures are.
func (c *Client) Generate(ctx context.Context, form Form) (GenerateResponse, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for _, field := range form.Fields() {
		if err := writer.WriteField(field[0], field[1]); err != nil {
			return GenerateResponse{}, fmt.Errorf("write field %s: %w", field[0], err)
		}
	}
	if err := writer.Close(); err != nil {
		return GenerateResponse{}, fmt.Errorf("close multipart body: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.generatePath, &body)
	if err != nil {
		return GenerateResponse{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return GenerateResponse{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return GenerateResponse{}, fmt.Errorf("read response: %w", err)
	}
	var out GenerateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		if resp.StatusCode >= 400 {
			return GenerateResponse{}, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		}
		return GenerateResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

// OpenLogStream issues the long-lived GET against the log stream endpoint. The
// caller owns the returned body.
func (c *Client) OpenLogStream(ctx context.Context) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.logsPath, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stream request failed: %w", err)
	}
	if resp.StatusCode >= 400 {
		blob, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("stream request failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(blob)))
	}
	return resp.Body, nil
}

// Authorize applies the configured request editors to req. Transports that
// dial outside of net/http use it to build handshake headers.
func (c *Client) Authorize(ctx context.Context, req *http.Request) error {
	for _, edit := range c.editors {
		if err := edit(ctx, req); err != nil {
			return fmt.Errorf("edit request: %w", err)
		}
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if err := c.Authorize(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}
