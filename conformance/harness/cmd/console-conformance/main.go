package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/InvariantDynamics/blog-automation-console/conformance/harness"
)

func main() {
	dir := flag.String("scenarios", "conformance/harness/testdata", "directory of scenario YAML files")
	baseURL := flag.String("base-url", "", "optional live automation service; scripts are ignored when set")
	retryDelay := flag.Duration("retry-delay", 50*time.Millisecond, "reconnect delay used by the console under test")
	timeout := flag.Duration("timeout", 15*time.Second, "per-scenario timeout")
	flag.Parse()

	scenarios, err := harness.LoadScenarios(*dir)
	if err != nil {
		fmt.Printf("[FAIL] load scenarios: %v\n", err)
		os.Exit(1)
	}
	if len(scenarios) == 0 {
		fmt.Printf("[FAIL] no scenarios found in %s\n", *dir)
		os.Exit(1)
	}

	opts := harness.RunOptions{BaseURL: *baseURL, RetryDelay: *retryDelay, Timeout: *timeout}
	failed := false
	for _, sc := range scenarios {
		result, err := harness.RunScenario(context.Background(), sc, opts)
		if err != nil {
			fmt.Printf("[FAIL] %s: %v\n", sc.Name, err)
			failed = true
			continue
		}
		if !result.Passed() {
			for _, failure := range result.Failures {
				fmt.Printf("[FAIL] %s: %s\n", sc.Name, failure)
			}
			failed = true
			continue
		}
		fmt.Printf("[PASS] %s (%s)\n", sc.Name, result.State)
	}

	if failed {
		os.Exit(1)
	}
}
