package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/InvariantDynamics/blog-automation-console/conformance/harness/replay"
	"github.com/InvariantDynamics/blog-automation-console/core/pkg/console"
)

// Scenario is one scripted end-to-end run: the replay server plays Script and
// a console submits Form against it.
type Scenario struct {
	Name       string               `yaml:"name"`
	Transport  string               `yaml:"transport"`
	ServerAuth replay.AuthConfig    `yaml:"server_auth"`
	ClientAuth console.AuthConfig   `yaml:"client_auth"`
	MaxRetries int                  `yaml:"max_retries"`
	Form       console.FormDefaults `yaml:"form"`
	Script     replay.Script        `yaml:"script"`
	Expect     Expectation          `yaml:"expect"`
}

// Expectation lists what must hold once the run ends. Zero values are not
// checked.
type Expectation struct {
	SubmitError string         `yaml:"submit_error"`
	State       string         `yaml:"state"`
	Status      string         `yaml:"status"`
	Contains    []string       `yaml:"contains"`
	NotContains []string       `yaml:"not_contains"`
	Counts      map[string]int `yaml:"counts"`
	Attempts    int            `yaml:"attempts"`
}

type RunOptions struct {
	// BaseURL targets a live service instead of a replay server. The
	// scenario script is ignored and only log content is checked.
	BaseURL    string
	RetryDelay time.Duration
	Timeout    time.Duration
}

type Result struct {
	Scenario string
	State    console.StreamState
	Log      string
	Failures []string
}

func (r Result) Passed() bool { return len(r.Failures) == 0 }

func (r *Result) failf(format string, args ...interface{}) {
	r.Failures = append(r.Failures, fmt.Sprintf(format, args...))
}

func LoadScenario(path string) (Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("read scenario %s: %w", path, err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(raw, &sc); err != nil {
		return Scenario{}, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if sc.Name == "" {
		sc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return sc, nil
}

// LoadScenarios reads every *.yaml file in dir, sorted by file name.
func LoadScenarios(dir string) ([]Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	out := make([]Scenario, 0, len(paths))
	for _, path := range paths {
		sc, err := LoadScenario(path)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, nil
}

func RunScenario(ctx context.Context, sc Scenario, opts RunOptions) (Result, error) {
	result := Result{Scenario: sc.Name, State: console.StreamDisconnected}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	baseURL := opts.BaseURL
	var srv *replay.Server
	if baseURL == "" {
		srv = replay.New(sc.Script, replay.WithAuth(sc.ServerAuth))
		url, err := srv.Listen("127.0.0.1:0")
		if err != nil {
			return result, err
		}
		defer srv.Close()
		baseURL = url
	}

	cfg := console.DefaultConfig()
	cfg.BaseURL = baseURL
	if sc.Transport != "" {
		cfg.Transport = sc.Transport
	}
	cfg.Auth = sc.ClientAuth
	if sc.MaxRetries > 0 {
		cfg.MaxRetries = sc.MaxRetries
	}
	if opts.RetryDelay > 0 {
		cfg.RetryDelay = opts.RetryDelay
	}
	if err := cfg.Validate(); err != nil {
		return result, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}
	client, err := cfg.Client(nil)
	if err != nil {
		return result, err
	}
	transport, err := cfg.NewTransport(client)
	if err != nil {
		return result, err
	}
	c, err := console.New(console.Options{
		Client:     client,
		Transport:  transport,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
	})
	if err != nil {
		return result, err
	}
	defer c.Close()

	runCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	run, submitErr := c.Submit(runCtx, sc.Form.Form())
	expect := sc.Expect
	switch {
	case submitErr != nil && expect.SubmitError == "":
		result.failf("submit failed: %v", submitErr)
	case submitErr == nil && expect.SubmitError != "":
		result.failf("expected submit error %q, submission was accepted", expect.SubmitError)
	case submitErr != nil && string(console.KindOf(submitErr)) != expect.SubmitError:
		result.failf("expected submit error %q, got %q", expect.SubmitError, console.KindOf(submitErr))
	}

	if run != nil {
		state, err := run.Wait(runCtx)
		if errors.Is(err, context.DeadlineExceeded) {
			result.failf("run did not end within %s (state %s)", opts.Timeout, state)
		}
		result.State = state
	}
	result.Log = c.Logs().Text()

	if expect.State != "" && string(result.State) != expect.State {
		result.failf("expected stream state %q, got %q", expect.State, result.State)
	}
	if expect.Status != "" {
		if label := c.Status().Snapshot().Label; label != expect.Status {
			result.failf("expected status %q, got %q", expect.Status, label)
		}
	}
	for _, want := range expect.Contains {
		if !strings.Contains(result.Log, want) {
			result.failf("log is missing %q", want)
		}
	}
	for _, unwanted := range expect.NotContains {
		if strings.Contains(result.Log, unwanted) {
			result.failf("log unexpectedly contains %q", unwanted)
		}
	}
	for substr, want := range expect.Counts {
		if got := c.Logs().Count(substr); got != want {
			result.failf("expected %d lines containing %q, got %d", want, substr, got)
		}
	}
	if expect.Attempts > 0 && srv != nil {
		if got := srv.Attempts(); got != expect.Attempts {
			result.failf("expected %d stream connection attempts, got %d", expect.Attempts, got)
		}
	}
	return result, nil
}
