package console

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	clog "github.com/InvariantDynamics/blog-automation-console/core/pkg/log"
)

type StreamState string

const (
	StreamDisconnected StreamState = "disconnected"
	StreamConnecting   StreamState = "connecting"
	StreamConnected    StreamState = "connected"
	StreamCompleted    StreamState = "completed"
	StreamFailed       StreamState = "failed"
	StreamGivingUp     StreamState = "giving_up"
)

var streamTransitions = map[StreamState][]StreamState{
	StreamDisconnected: {StreamConnecting, StreamGivingUp},
	StreamConnecting:   {StreamConnected, StreamDisconnected},
	StreamConnected:    {StreamCompleted, StreamFailed, StreamDisconnected},
}

func (s StreamState) Terminal() bool {
	switch s {
	case StreamCompleted, StreamFailed, StreamGivingUp:
		return true
	}
	return false
}

func canTransition(from, to StreamState) bool {
	return slices.Contains(streamTransitions[from], to)
}

var errStreamEnded = errors.New("log stream ended")

// Transport opens one server-push connection per call.
type Transport interface {
	Name() string
	Open(ctx context.Context) (Stream, error)
}

// Stream yields payloads in arrival order. Close must be safe to call more
// than once and must unblock a pending Next.
type Stream interface {
	Next(ctx context.Context) (string, error)
	Close() error
}

type StreamOptions struct {
	Transport  Transport
	Status     *StatusIndicator
	Logs       *LogBuffer
	Metrics    *Metrics
	Logger     *zerolog.Logger
	RunID      string
	MaxRetries int
	RetryDelay time.Duration
}

// StreamClient follows one generation run's log stream until a terminal
// outcome. It holds at most one live connection.
type StreamClient struct {
	transport  Transport
	status     *StatusIndicator
	logs       *LogBuffer
	metrics    *Metrics
	logger     zerolog.Logger
	maxRetries int
	retryDelay time.Duration

	mu       sync.RWMutex
	state    StreamState
	retries  int
	attempts int
}

func NewStreamClient(opts StreamOptions) *StreamClient {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.Status == nil {
		opts.Status = NewStatusIndicator()
	}
	if opts.Logs == nil {
		opts.Logs = NewLogBuffer()
	}
	base := clog.WithComponent("stream")
	if opts.Logger != nil {
		base = *opts.Logger
	}
	logger := base.With().
		Str(clog.FieldRunID, opts.RunID).
		Str(clog.FieldTransport, transportName(opts.Transport)).
		Logger()
	return &StreamClient{
		transport:  opts.Transport,
		status:     opts.Status,
		logs:       opts.Logs,
		metrics:    opts.Metrics,
		logger:     logger,
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
		state:      StreamDisconnected,
	}
}

func (c *StreamClient) State() StreamState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *StreamClient) Retries() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.retries
}

// Attempts counts every connection attempt made so far.
func (c *StreamClient) Attempts() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.attempts
}

// Run connects and consumes until the run completes, fails, exhausts its
// retries or ctx is cancelled. A cancelled run renders nothing further.
func (c *StreamClient) Run(ctx context.Context) (StreamState, error) {
	if c.transport == nil {
		return StreamDisconnected, fmt.Errorf("stream transport is not configured")
	}
	c.logs.Append(msgConnecting)
	delay := backoff.NewConstantBackOff(c.retryDelay)

	for {
		c.transition(StreamConnecting)
		c.mu.Lock()
		c.attempts++
		attempt := c.attempts
		c.mu.Unlock()

		stream, err := c.transport.Open(ctx)
		if ctx.Err() != nil {
			if stream != nil {
				_ = stream.Close()
			}
			c.transition(StreamDisconnected)
			return StreamDisconnected, ctx.Err()
		}
		if err == nil {
			c.metrics.ConnectionOpened(c.transport.Name())
			c.onOpen()
			state, consumeErr := c.consume(ctx, stream)
			_ = stream.Close()
			c.metrics.ConnectionClosed(c.transport.Name())
			if state.Terminal() {
				c.metrics.Terminal(state)
				return state, consumeErr
			}
			if ctx.Err() != nil {
				c.transition(StreamDisconnected)
				return StreamDisconnected, ctx.Err()
			}
			err = consumeErr
		} else {
			c.metrics.ConnectionFailed(c.transport.Name())
		}
		c.transition(StreamDisconnected)
		c.logger.Warn().Err(err).Int(clog.FieldAttempt, attempt).Msg("log stream transport error")

		c.mu.Lock()
		exhausted := c.retries >= c.maxRetries
		if !exhausted {
			c.retries++
		}
		retries := c.retries
		c.mu.Unlock()

		if exhausted {
			c.giveUp()
			c.metrics.Terminal(StreamGivingUp)
			return StreamGivingUp, &Error{Kind: ErrorStreamExhausted, Message: "could not maintain connection to log stream", Err: err}
		}

		c.metrics.Reconnect(c.transport.Name())
		c.logs.Append(fmt.Sprintf(msgReconnectFormat, retries, c.maxRetries))

		timer := time.NewTimer(delay.NextBackOff())
		select {
		case <-ctx.Done():
			timer.Stop()
			return StreamDisconnected, ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *StreamClient) onOpen() {
	c.mu.Lock()
	c.retries = 0
	c.mu.Unlock()
	c.logs.Append(msgConnected)
	c.transition(StreamConnected)
}

func (c *StreamClient) consume(ctx context.Context, stream Stream) (StreamState, error) {
	stop := context.AfterFunc(ctx, func() { _ = stream.Close() })
	defer stop()

	for {
		payload, err := stream.Next(ctx)
		if err != nil {
			return StreamConnected, err
		}
		// Transports may still hand out buffered events after cancellation.
		if ctx.Err() != nil {
			return StreamConnected, ctx.Err()
		}
		if payload == HeartbeatPayload {
			c.metrics.Heartbeat()
			continue
		}

		frag := c.logs.Append(payload)
		c.metrics.Line(frag.Class)
		if containsErrorKeyword(payload) {
			c.status.Set(StatusError, LabelError)
		}

		switch {
		case strings.Contains(payload, CompletionSentinel):
			_ = stream.Close()
			c.status.Set(StatusCompleted, LabelCompleted)
			c.logs.Append(msgCompletedSummary)
			c.transition(StreamCompleted)
			return StreamCompleted, nil
		case strings.Contains(payload, FatalSentinel):
			_ = stream.Close()
			c.status.Set(StatusError, LabelFailed)
			c.logs.Append(msgFailedSummary)
			c.transition(StreamFailed)
			return StreamFailed, &Error{Kind: ErrorStreamFatal, Message: payload}
		}
	}
}

func (c *StreamClient) giveUp() {
	c.transition(StreamGivingUp)
	c.status.Set(StatusDisconnected, LabelDisconnected)
	c.logs.Append(msgGivingUp)
	c.logs.Append(msgRefreshToContinue)
}

func (c *StreamClient) transition(to StreamState) {
	c.mu.Lock()
	from := c.state
	if from == to {
		c.mu.Unlock()
		return
	}
	allowed := canTransition(from, to)
	if allowed {
		c.state = to
	}
	c.mu.Unlock()

	if !allowed {
		c.logger.Error().Str(clog.FieldOldState, string(from)).Str(clog.FieldNewState, string(to)).Msg("illegal stream transition")
		return
	}
	c.logger.Debug().Str(clog.FieldOldState, string(from)).Str(clog.FieldNewState, string(to)).Msg("stream state changed")
}

func transportName(t Transport) string {
	if t == nil {
		return "none"
	}
	return t.Name()
}
