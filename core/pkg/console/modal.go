package console

import (
	"slices"
	"sync"
)

// ClickTarget describes the element a click landed on.
type ClickTarget struct {
	ID      string
	Classes []string
}

func (t ClickTarget) HasClass(class string) bool {
	return slices.Contains(t.Classes, class)
}

// Modals tracks which overlays are shown. Every trigger maps to one overlay id.
type Modals struct {
	mu       sync.RWMutex
	triggers map[string]string
	open     map[string]struct{}
}

func NewModals() *Modals {
	return &Modals{
		triggers: map[string]string{
			"help":  HelpModalID,
			"about": HelpModalID,
		},
		open: map[string]struct{}{},
	}
}

// Trigger opens the overlay bound to name. Unknown names are ignored.
func (m *Modals) Trigger(name string) bool {
	m.mu.RLock()
	id, ok := m.triggers[name]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	m.Open(id)
	return true
}

func (m *Modals) Open(id string) {
	m.mu.Lock()
	m.open[id] = struct{}{}
	m.mu.Unlock()
}

// CloseAll hides every open overlay.
func (m *Modals) CloseAll() {
	m.mu.Lock()
	clear(m.open)
	m.mu.Unlock()
}

// Click closes every overlay when the click landed on the dimmed backdrop.
func (m *Modals) Click(target ClickTarget) bool {
	if !target.HasClass(BackdropClass) {
		return false
	}
	m.CloseAll()
	return true
}

func (m *Modals) IsOpen(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.open[id]
	return ok
}

func (m *Modals) OpenIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.open))
	for id := range m.open {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
