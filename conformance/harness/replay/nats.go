package replay

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
)

// PublishSteps plays steps onto subject, one message per data step. Event
// filtering and comments have no NATS equivalent, so such steps are skipped.
func PublishSteps(ctx context.Context, nc *nats.Conn, subject string, steps []Step) (int, error) {
	if nc == nil {
		return 0, fmt.Errorf("nats connection is not configured")
	}
	published := 0
	for _, step := range steps {
		if !sleepContext(ctx, step.Delay) {
			return published, ctx.Err()
		}
		if step.Event != "" && step.Event != "message" {
			continue
		}
		if step.Data == "" && step.Comment != "" {
			continue
		}
		if err := nc.Publish(subject, []byte(step.Data)); err != nil {
			return published, fmt.Errorf("publish %s: %w", subject, err)
		}
		published++
	}
	if err := nc.FlushWithContext(ctx); err != nil {
		return published, fmt.Errorf("flush: %w", err)
	}
	return published, nil
}
