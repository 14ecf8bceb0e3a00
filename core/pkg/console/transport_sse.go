package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/InvariantDynamics/blog-automation-console/sdk/go/blogclient"
)

const (
	initialScanBuffer = 64 * 1024
	maxScanBuffer     = 4 * 1024 * 1024
)

// SSETransport reads the text/event-stream log endpoint.
type SSETransport struct {
	client *blogclient.Client
}

func NewSSETransport(client *blogclient.Client) *SSETransport {
	return &SSETransport{client: client}
}

func (t *SSETransport) Name() string { return "sse" }

func (t *SSETransport) Open(ctx context.Context) (Stream, error) {
	body, err := t.client.OpenLogStream(ctx)
	if err != nil {
		return nil, err
	}
	return newSSEStream(body), nil
}

type sseStream struct {
	body      io.ReadCloser
	scanner   *bufio.Scanner
	closeOnce sync.Once
}

func newSSEStream(body io.ReadCloser) *sseStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, initialScanBuffer), maxScanBuffer)
	return &sseStream{body: body, scanner: scanner}
}

// Next returns the data of the next "message" event. Events with any other
// type, comments and empty events are skipped. A trailing event without its
// blank-line terminator is discarded.
func (s *sseStream) Next(ctx context.Context) (string, error) {
	eventType := ""
	dataLines := make([]string, 0, 2)
	hasData := false

	for s.scanner.Scan() {
		line := strings.TrimSuffix(s.scanner.Text(), "\r")
		if line == "" {
			if hasData && (eventType == "" || eventType == "message") {
				return strings.Join(dataLines, "\n"), nil
			}
			eventType = ""
			dataLines = dataLines[:0]
			hasData = false
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			eventType = value
		case "data":
			dataLines = append(dataLines, value)
			hasData = true
		}
	}
	if err := s.scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if errors.Is(err, bufio.ErrTooLong) {
			return "", fmt.Errorf("stream event exceeded max size (%d bytes)", maxScanBuffer)
		}
		return "", fmt.Errorf("read log stream: %w", err)
	}
	return "", errStreamEnded
}

func (s *sseStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.body.Close()
	})
	return err
}
