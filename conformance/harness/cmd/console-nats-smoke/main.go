package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/InvariantDynamics/blog-automation-console/conformance/harness/replay"
	"github.com/InvariantDynamics/blog-automation-console/core/pkg/console"
)

func main() {
	url := flag.String("url", nats.DefaultURL, "NATS url")
	subject := flag.String("subject", console.DefaultNATSSubject, "log subject")
	token := flag.String("token", "", "optional NATS auth token")
	flag.Parse()

	transport, err := console.NewNATSTransport(console.NATSOptions{URL: *url, Subject: *subject, Token: *token, Name: "console-nats-smoke"})
	if err != nil {
		fmt.Printf("[FAIL] transport: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := transport.Open(ctx)
	if err != nil {
		fmt.Printf("[FAIL] subscribe: %v\n", err)
		os.Exit(1)
	}
	defer stream.Close()
	fmt.Printf("[PASS] subscribe %s\n", transport.Subject())

	opts := []nats.Option{nats.Name("console-nats-smoke-publisher")}
	if *token != "" {
		opts = append(opts, nats.Token(*token))
	}
	nc, err := nats.Connect(*url, opts...)
	if err != nil {
		fmt.Printf("[FAIL] connect: %v\n", err)
		os.Exit(1)
	}
	defer nc.Close()

	steps := replay.Lines("Starting article 1", console.HeartbeatPayload, console.CompletionSentinel)
	published, err := replay.PublishSteps(ctx, nc, *subject, steps)
	if err != nil {
		fmt.Printf("[FAIL] publish: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("[PASS] publish %d messages\n", published)

	var received []string
	for len(received) < published {
		payload, err := stream.Next(ctx)
		if err != nil {
			fmt.Printf("[FAIL] receive: %v (got %d of %d)\n", err, len(received), published)
			os.Exit(1)
		}
		received = append(received, payload)
	}
	if !strings.Contains(received[len(received)-1], console.CompletionSentinel) {
		fmt.Printf("[FAIL] order: last message was %q\n", received[len(received)-1])
		os.Exit(1)
	}
	fmt.Printf("[PASS] receive %d messages in order\n", len(received))
}
