package replay

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Step is one server push. Event, when set, is sent as the SSE event type so
// clients can be checked for ignoring non-message events.
type Step struct {
	Data    string        `yaml:"data"`
	Event   string        `yaml:"event,omitempty"`
	Comment string        `yaml:"comment,omitempty"`
	Delay   time.Duration `yaml:"delay,omitempty"`
}

// Connection scripts one accepted log-stream connection. Reject refuses the
// connection with that HTTP status. Without Hold the server ends the stream
// after the last step.
type Connection struct {
	Reject int    `yaml:"reject,omitempty"`
	Steps  []Step `yaml:"steps"`
	Hold   bool   `yaml:"hold,omitempty"`
}

type GenerateReply struct {
	Status     string `yaml:"status"`
	Message    string `yaml:"message,omitempty"`
	HTTPStatus int    `yaml:"http_status,omitempty"`
	RawBody    string `yaml:"raw_body,omitempty"`
}

// Script drives the replay server. Connections are consumed in order; any
// connection past the end of the list is refused.
type Script struct {
	Generate    GenerateReply `yaml:"generate"`
	Connections []Connection  `yaml:"connections"`
}

func Lines(lines ...string) []Step {
	out := make([]Step, 0, len(lines))
	for _, line := range lines {
		out = append(out, Step{Data: line})
	}
	return out
}

func LoadScript(path string) (Script, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Script{}, fmt.Errorf("read script %s: %w", path, err)
	}
	var script Script
	if err := yaml.Unmarshal(raw, &script); err != nil {
		return Script{}, fmt.Errorf("parse script %s: %w", path, err)
	}
	return script, nil
}
