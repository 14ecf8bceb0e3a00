package console

import (
	"html"
	"strings"
	"sync"
)

type LineClass string

const (
	ClassNone    LineClass = ""
	ClassError   LineClass = "error"
	ClassWarning LineClass = "warning"
	ClassSuccess LineClass = "success"
	ClassInfo    LineClass = "info"
)

type classRule struct {
	class    LineClass
	keywords []string
}

// Order matters: the first matching class wins.
var classRules = []classRule{
	{class: ClassError, keywords: []string{"error"}},
	{class: ClassWarning, keywords: []string{"warning"}},
	{class: ClassSuccess, keywords: []string{"success"}},
	{class: ClassInfo, keywords: []string{"info", "starting"}},
}

// Classify matches line case-insensitively against the keyword classes. A
// line mentioning several classes is tagged by the first one only.
func Classify(line string) LineClass {
	lower := strings.ToLower(line)
	for _, rule := range classRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(lower, keyword) {
				return rule.class
			}
		}
	}
	return ClassNone
}

func containsErrorKeyword(line string) bool {
	return Classify(line) == ClassError
}

type Fragment struct {
	Class LineClass
	Text  string
}

func Format(line string) Fragment {
	return Fragment{Class: Classify(line), Text: line}
}

// HTML renders the fragment the way the dashboard markup tags it.
func (f Fragment) HTML() string {
	escaped := html.EscapeString(f.Text)
	if f.Class == ClassNone {
		return escaped
	}
	return `<span class="` + string(f.Class) + `">` + escaped + `</span>`
}

// LogBuffer is append-only; only Reset replaces its content.
type LogBuffer struct {
	mu        sync.RWMutex
	fragments []Fragment
	onAppend  func(Fragment)
	onReset   func()
}

func NewLogBuffer() *LogBuffer {
	return &LogBuffer{}
}

func (b *LogBuffer) Append(line string) Fragment {
	frag := Format(line)
	b.mu.Lock()
	b.fragments = append(b.fragments, frag)
	notify := b.onAppend
	b.mu.Unlock()
	if notify != nil {
		notify(frag)
	}
	return frag
}

// Reset replaces the buffer with lines, unclassified.
func (b *LogBuffer) Reset(lines ...string) {
	b.mu.Lock()
	b.fragments = b.fragments[:0:0]
	for _, line := range lines {
		b.fragments = append(b.fragments, Fragment{Text: line})
	}
	notify := b.onReset
	b.mu.Unlock()
	if notify != nil {
		notify()
	}
}

func (b *LogBuffer) Fragments() []Fragment {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Fragment, len(b.fragments))
	copy(out, b.fragments)
	return out
}

func (b *LogBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.fragments)
}

// Text is the plain buffer content, every fragment followed by a line break.
func (b *LogBuffer) Text() string {
	return b.render(func(f Fragment) string { return f.Text })
}

func (b *LogBuffer) HTML() string {
	return b.render(Fragment.HTML)
}

// Count returns how many fragments contain substr.
func (b *LogBuffer) Count(substr string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, frag := range b.fragments {
		if strings.Contains(frag.Text, substr) {
			n++
		}
	}
	return n
}

func (b *LogBuffer) OnAppend(fn func(Fragment)) {
	b.mu.Lock()
	b.onAppend = fn
	b.mu.Unlock()
}

func (b *LogBuffer) OnReset(fn func()) {
	b.mu.Lock()
	b.onReset = fn
	b.mu.Unlock()
}

func (b *LogBuffer) render(fn func(Fragment) string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var sb strings.Builder
	for _, frag := range b.fragments {
		sb.WriteString(fn(frag))
		sb.WriteByte('\n')
	}
	return sb.String()
}
