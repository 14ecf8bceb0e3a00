package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/InvariantDynamics/blog-automation-console/core/pkg/console"
	clog "github.com/InvariantDynamics/blog-automation-console/core/pkg/log"
	"github.com/InvariantDynamics/blog-automation-console/sdk/go/blogclient"
)

// printFragment writes each log line to out, one per line. Appends come from
// the run goroutine and from Submit, so writes are serialized.
func printFragment(out io.Writer) func(console.Fragment) {
	var mu sync.Mutex
	return func(f console.Fragment) {
		text := f.Text
		if !strings.HasSuffix(text, "\n") {
			text += "\n"
		}
		mu.Lock()
		defer mu.Unlock()
		_, _ = io.WriteString(out, text)
	}
}

// runHeadless submits form once and follows the run until it ends. The exit
// code is 0 only when the run completed.
func runHeadless(ctx context.Context, c *console.Console, form blogclient.Form) int {
	logger := clog.WithComponent("headless")

	run, err := c.Submit(ctx, form)
	if err != nil {
		logger.Error().Str("kind", string(console.KindOf(err))).Err(err).Msg("submission failed")
		return 1
	}

	state, err := run.Wait(ctx)
	if err != nil {
		logger.Warn().Err(err).Str(clog.FieldRunID, run.ID).Msg("interrupted before the run ended")
		return 1
	}
	logger.Info().
		Str(clog.FieldRunID, run.ID).
		Str(clog.FieldNewState, string(state)).
		Str("summary", summary(c)).
		Msg("run finished")
	if state != console.StreamCompleted {
		return 1
	}
	return 0
}

func summary(c *console.Console) string {
	snap := c.Snapshot()
	return fmt.Sprintf("status=%s stream=%s retries=%d lines=%d", snap.Status.Label, snap.StreamState, snap.Retries, len(snap.Fragments))
}
