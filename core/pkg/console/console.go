package console

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	clog "github.com/InvariantDynamics/blog-automation-console/core/pkg/log"
	"github.com/InvariantDynamics/blog-automation-console/sdk/go/blogclient"
)

const unknownServerError = "Unknown error occurred"

type Options struct {
	Client     *blogclient.Client
	Transport  Transport
	Metrics    *Metrics
	Logger     *zerolog.Logger
	MaxRetries int
	RetryDelay time.Duration
	// OnFragment, when set, sees every appended log line in order.
	OnFragment func(Fragment)
}

// Console owns the status indicator, the log buffer, the overlays and at most
// one live generation run.
type Console struct {
	client     *blogclient.Client
	transport  Transport
	metrics    *Metrics
	logger     zerolog.Logger
	maxRetries int
	retryDelay time.Duration
	onFragment func(Fragment)

	status *StatusIndicator
	logs   *LogBuffer
	modals *Modals

	baseCtx    context.Context
	baseCancel context.CancelFunc

	// submitMu is held for a whole submission, from admission to the start
	// of the new run.
	submitMu sync.Mutex

	runMu sync.Mutex
	run   *Run

	changes chan struct{}
}

func New(opts Options) (*Console, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("blog client is required")
	}
	if opts.Transport == nil {
		opts.Transport = NewSSETransport(opts.Client)
	}
	logger := clog.WithComponent("console")
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Console{
		client:     opts.Client,
		transport:  opts.Transport,
		metrics:    opts.Metrics,
		logger:     logger,
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
		onFragment: opts.OnFragment,
		status:     NewStatusIndicator(),
		logs:       NewLogBuffer(),
		modals:     NewModals(),
		baseCtx:    ctx,
		baseCancel: cancel,
		changes:    make(chan struct{}, 1),
	}
	c.status.OnChange(func(StatusSnapshot) { c.notify() })
	c.logs.OnAppend(func(f Fragment) {
		if c.onFragment != nil {
			c.onFragment(f)
		}
		c.notify()
	})
	c.logs.OnReset(c.notify)
	return c, nil
}

func (c *Console) Status() *StatusIndicator { return c.status }

func (c *Console) Logs() *LogBuffer { return c.logs }

func (c *Console) Modals() *Modals { return c.modals }

func (c *Console) TransportName() string { return c.transport.Name() }

// Changes receives a value whenever visible state changed since the last
// receive. Bursts coalesce into one notification.
func (c *Console) Changes() <-chan struct{} { return c.changes }

// Submit sends the form and, when the server accepts it, starts following the
// run's log stream in the background. It is refused while a submission is in
// flight.
func (c *Console) Submit(ctx context.Context, form blogclient.Form) (*Run, error) {
	if !c.submitMu.TryLock() {
		c.metrics.Submission("disabled")
		return nil, ErrSubmitDisabled
	}
	defer c.submitMu.Unlock()
	if !c.status.BeginProcessing() {
		c.metrics.Submission("disabled")
		return nil, ErrSubmitDisabled
	}
	c.stopRun()
	c.status.Set(StatusProcessing, LabelProcessing)
	c.logs.Reset()

	resp, err := c.client.Generate(ctx, form)
	if err != nil {
		c.metrics.Submission("transport_error")
		c.logger.Error().Err(err).Msg("generate request failed")
		c.status.Set(StatusError, LabelError)
		c.logs.Append("Error: " + err.Error())
		return nil, &Error{Kind: ErrorSubmissionTransport, Message: err.Error(), Err: err}
	}
	if !resp.OK() {
		message := strings.TrimSpace(resp.Message)
		if message == "" {
			message = unknownServerError
		}
		c.metrics.Submission("rejected")
		c.logger.Warn().Str("server_status", resp.Status).Str("message", message).Msg("generate request rejected")
		c.status.Set(StatusError, LabelError)
		c.logs.Append("Error: " + ExplainSubmitError(message))
		return nil, &Error{Kind: ErrorSubmissionRejected, Message: message}
	}

	c.metrics.Submission("accepted")
	c.logs.Append(msgStarting)
	run := c.startRun()
	c.logger.Info().Str(clog.FieldRunID, run.ID).Str(clog.FieldTransport, c.transport.Name()).Msg("generation run started")
	return run, nil
}

// Clear empties the log view and resets the status. A live run keeps
// streaming into the cleared buffer.
func (c *Console) Clear() {
	c.logs.Reset(ClearedPlaceholder)
	c.status.Set(StatusIdle, LabelReady)
}

func (c *Console) Trigger(name string) bool {
	ok := c.modals.Trigger(name)
	if ok {
		c.notify()
	}
	return ok
}

func (c *Console) CloseModals() {
	c.modals.CloseAll()
	c.notify()
}

func (c *Console) Click(target ClickTarget) bool {
	closed := c.modals.Click(target)
	if closed {
		c.notify()
	}
	return closed
}

// Run returns the most recent run, or nil before the first accepted
// submission.
func (c *Console) Run() *Run {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	return c.run
}

// Wait blocks until the current run ends or ctx is done.
func (c *Console) Wait(ctx context.Context) (StreamState, error) {
	run := c.Run()
	if run == nil {
		return StreamDisconnected, nil
	}
	return run.Wait(ctx)
}

// Close cancels the live run, if any, and waits for it to release its
// connection. The console must not be used afterwards.
func (c *Console) Close() {
	c.baseCancel()
	c.stopRun()
}

type Snapshot struct {
	Status      StatusSnapshot
	Fragments   []Fragment
	OpenModals  []string
	RunID       string
	StreamState StreamState
	Retries     int
}

func (c *Console) Snapshot() Snapshot {
	snap := Snapshot{
		Status:      c.status.Snapshot(),
		Fragments:   c.logs.Fragments(),
		OpenModals:  c.modals.OpenIDs(),
		StreamState: StreamDisconnected,
	}
	if run := c.Run(); run != nil {
		snap.RunID = run.ID
		snap.StreamState = run.stream.State()
		snap.Retries = run.stream.Retries()
	}
	return snap
}

func (c *Console) startRun() *Run {
	ctx, cancel := context.WithCancel(c.baseCtx)
	run := &Run{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	run.stream = NewStreamClient(StreamOptions{
		Transport:  c.transport,
		Status:     c.status,
		Logs:       c.logs,
		Metrics:    c.metrics,
		Logger:     &c.logger,
		RunID:      run.ID,
		MaxRetries: c.maxRetries,
		RetryDelay: c.retryDelay,
	})

	c.runMu.Lock()
	c.run = run
	c.runMu.Unlock()

	go func() {
		defer close(run.done)
		defer cancel()
		state, err := run.stream.Run(ctx)
		run.finish(state, err)
		c.logger.Info().Str(clog.FieldRunID, run.ID).Str(clog.FieldNewState, string(state)).Msg("generation run ended")
		c.notify()
	}()
	return run
}

func (c *Console) stopRun() {
	c.runMu.Lock()
	run := c.run
	c.runMu.Unlock()
	if run == nil {
		return
	}
	run.cancel()
	<-run.done
}

func (c *Console) notify() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

// Run is one accepted submission and the stream that follows it.
type Run struct {
	ID        string
	StartedAt time.Time

	stream *StreamClient
	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	state StreamState
	err   error
}

func (r *Run) Done() <-chan struct{} { return r.done }

func (r *Run) Stream() *StreamClient { return r.stream }

// Result is the outcome once Done is closed.
func (r *Run) Result() (StreamState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, r.err
}

func (r *Run) Wait(ctx context.Context) (StreamState, error) {
	select {
	case <-ctx.Done():
		return r.stream.State(), ctx.Err()
	case <-r.done:
		return r.Result()
	}
}

func (r *Run) finish(state StreamState, err error) {
	r.mu.Lock()
	r.state = state
	r.err = err
	r.mu.Unlock()
}
