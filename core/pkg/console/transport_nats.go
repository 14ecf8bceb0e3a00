package console

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

const DefaultNATSSubject = "blog.logs"

type NATSOptions struct {
	URL     string
	Subject string
	Token   string
	Name    string
	Timeout time.Duration
}

// NATSTransport subscribes to a subject carrying one log payload per message.
// Reconnects are left to the stream client, so the connection never redials
// on its own.
type NATSTransport struct {
	opts NATSOptions
}

func NewNATSTransport(opts NATSOptions) (*NATSTransport, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return nil, fmt.Errorf("nats url is not configured")
	}
	if strings.TrimSpace(opts.Subject) == "" {
		opts.Subject = DefaultNATSSubject
	}
	if opts.Name == "" {
		opts.Name = "blogconsole"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	return &NATSTransport{opts: opts}, nil
}

func (t *NATSTransport) Name() string { return "nats" }

func (t *NATSTransport) Subject() string { return t.opts.Subject }

func (t *NATSTransport) Open(ctx context.Context) (Stream, error) {
	closed := make(chan struct{})
	var closedOnce sync.Once
	options := []nats.Option{
		nats.Name(t.opts.Name),
		nats.NoReconnect(),
		nats.Timeout(t.opts.Timeout),
		nats.ClosedHandler(func(*nats.Conn) {
			closedOnce.Do(func() { close(closed) })
		}),
	}
	if t.opts.Token != "" {
		options = append(options, nats.Token(t.opts.Token))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	nc, err := nats.Connect(t.opts.URL, options...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	msgs := make(chan *nats.Msg, 256)
	sub, err := nc.ChanSubscribe(t.opts.Subject, msgs)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribe %s: %w", t.opts.Subject, err)
	}
	if err := nc.Flush(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("flush subscription: %w", err)
	}
	return &natsStream{nc: nc, sub: sub, msgs: msgs, closed: closed}, nil
}

type natsStream struct {
	nc        *nats.Conn
	sub       *nats.Subscription
	msgs      chan *nats.Msg
	closed    <-chan struct{}
	closeOnce sync.Once
}

func (s *natsStream) Next(ctx context.Context) (string, error) {
	select {
	case msg := <-s.msgs:
		return string(msg.Data), nil
	default:
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case msg := <-s.msgs:
		return string(msg.Data), nil
	case <-s.closed:
		if err := s.nc.LastError(); err != nil {
			return "", fmt.Errorf("nats connection closed: %w", err)
		}
		return "", errStreamEnded
	}
}

func (s *natsStream) Close() error {
	s.closeOnce.Do(func() {
		_ = s.sub.Unsubscribe()
		s.nc.Close()
	})
	return nil
}
