package console

import "sync"

type Status string

const (
	StatusIdle         Status = "idle"
	StatusProcessing   Status = "processing"
	StatusError        Status = "error"
	StatusCompleted    Status = "completed"
	StatusDisconnected Status = "disconnected"
)

const (
	LabelReady        = "Ready"
	LabelProcessing   = "Processing..."
	LabelError        = "Error"
	LabelFailed       = "Failed"
	LabelCompleted    = "Completed"
	LabelDisconnected = "Disconnected"
)

// Style is the badge class for the status. Completed shares the idle style and
// disconnected shares the error style.
func (s Status) Style() string {
	switch s {
	case StatusProcessing:
		return "processing"
	case StatusError, StatusDisconnected:
		return "error"
	default:
		return ""
	}
}

type StatusSnapshot struct {
	Status        Status
	Label         string
	SubmitEnabled bool
	Loading       bool
}

// StatusIndicator is last-write-wins: whoever calls Set last decides what is
// shown.
type StatusIndicator struct {
	mu       sync.RWMutex
	status   Status
	label    string
	onChange func(StatusSnapshot)
}

func NewStatusIndicator() *StatusIndicator {
	return &StatusIndicator{status: StatusIdle, label: LabelReady}
}

func (s *StatusIndicator) Set(status Status, label string) {
	s.mu.Lock()
	s.status = status
	s.label = label
	snap := s.snapshotLocked()
	notify := s.onChange
	s.mu.Unlock()
	if notify != nil {
		notify(snap)
	}
}

// BeginProcessing moves to processing unless a run is already in flight. It
// reports whether the caller won the transition.
func (s *StatusIndicator) BeginProcessing() bool {
	s.mu.Lock()
	if s.status == StatusProcessing {
		s.mu.Unlock()
		return false
	}
	s.status = StatusProcessing
	s.label = LabelProcessing
	snap := s.snapshotLocked()
	notify := s.onChange
	s.mu.Unlock()
	if notify != nil {
		notify(snap)
	}
	return true
}

func (s *StatusIndicator) Snapshot() StatusSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *StatusIndicator) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *StatusIndicator) SubmitEnabled() bool {
	return s.Status() != StatusProcessing
}

// OnChange registers the single observer called after every Set.
func (s *StatusIndicator) OnChange(fn func(StatusSnapshot)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *StatusIndicator) snapshotLocked() StatusSnapshot {
	processing := s.status == StatusProcessing
	return StatusSnapshot{
		Status:        s.status,
		Label:         s.label,
		SubmitEnabled: !processing,
		Loading:       processing,
	}
}
