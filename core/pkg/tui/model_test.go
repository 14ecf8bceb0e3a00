package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/InvariantDynamics/blog-automation-console/conformance/harness/replay"
	"github.com/InvariantDynamics/blog-automation-console/core/pkg/console"
	"github.com/InvariantDynamics/blog-automation-console/sdk/go/blogclient"
)

func newTestModel(t *testing.T, baseURL string) (Model, *console.Console) {
	t.Helper()
	c, err := console.New(console.Options{
		Client:     blogclient.New(baseURL),
		RetryDelay: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new console: %v", err)
	}
	t.Cleanup(c.Close)
	m := NewModel(c, blogclient.DefaultForm())
	sized, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return sized.(Model), c
}

func TestCtrlPTogglesPasswordVisibility(t *testing.T) {
	t.Parallel()

	m, _ := newTestModel(t, "http://127.0.0.1:1")
	if m.inputs[fieldPassword].EchoMode != textinput.EchoPassword {
		t.Fatalf("expected password to start hidden")
	}
	shownModel, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlP})
	shown := shownModel.(Model)
	if shown.inputs[fieldPassword].EchoMode != textinput.EchoNormal || !shown.passwordVisible {
		t.Fatalf("expected password to be visible after ctrl+p")
	}
	hiddenModel, _ := shown.Update(tea.KeyMsg{Type: tea.KeyCtrlP})
	if hiddenModel.(Model).inputs[fieldPassword].EchoMode != textinput.EchoPassword {
		t.Fatalf("expected password hidden again")
	}
}

func TestHelpOverlayOpensAndClosesWithEsc(t *testing.T) {
	t.Parallel()

	m, c := newTestModel(t, "http://127.0.0.1:1")
	openedModel, _ := m.Update(tea.KeyMsg{Type: tea.KeyF1})
	opened := openedModel.(Model)
	if !c.Modals().IsOpen(console.HelpModalID) {
		t.Fatalf("expected help overlay open after f1")
	}
	if !strings.Contains(opened.View(), "Blog Automation Console") {
		t.Fatalf("expected help text in overlay view")
	}

	closedModel, _ := opened.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if c.Modals().IsOpen(console.HelpModalID) {
		t.Fatalf("expected overlay closed after esc")
	}
	if !strings.Contains(closedModel.(Model).View(), "Process Logs") {
		t.Fatalf("expected main view after closing overlay")
	}
}

func TestBackdropClickClosesOverlay(t *testing.T) {
	t.Parallel()

	m, c := newTestModel(t, "http://127.0.0.1:1")
	openedModel, _ := m.Update(tea.KeyMsg{Type: tea.KeyF2})
	opened := openedModel.(Model)

	inside := tea.MouseMsg{X: 60, Y: 20, Action: tea.MouseActionPress, Button: tea.MouseButtonLeft}
	afterInsideModel, _ := opened.Update(inside)
	if !c.Modals().IsOpen(console.HelpModalID) {
		t.Fatalf("click inside the overlay box must not close it")
	}

	outside := tea.MouseMsg{X: 0, Y: 0, Action: tea.MouseActionPress, Button: tea.MouseButtonLeft}
	afterInsideModel.(Model).Update(outside)
	if c.Modals().IsOpen(console.HelpModalID) {
		t.Fatalf("expected backdrop click to close overlay")
	}
}

func TestCtrlLClearsLogsAndStatus(t *testing.T) {
	t.Parallel()

	m, c := newTestModel(t, "http://127.0.0.1:1")
	c.Logs().Append("ERROR: something broke")
	c.Status().Set(console.StatusError, console.LabelError)

	nextModel, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlL})
	next := nextModel.(Model)
	frags := c.Logs().Fragments()
	if len(frags) != 1 || frags[0].Text != console.ClearedPlaceholder {
		t.Fatalf("expected only the cleared placeholder, got %#v", frags)
	}
	if c.Status().Snapshot().Label != console.LabelReady {
		t.Fatalf("expected Ready label, got %q", c.Status().Snapshot().Label)
	}
	if next.renderedFragments != 1 {
		t.Fatalf("expected log panel refreshed, got %d fragments", next.renderedFragments)
	}
}

func TestSubmitBlockedWhileProcessing(t *testing.T) {
	t.Parallel()

	m, c := newTestModel(t, "http://127.0.0.1:1")
	c.Status().Set(console.StatusProcessing, console.LabelProcessing)

	nextModel, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlR})
	if cmd != nil {
		t.Fatalf("expected no submit command while processing")
	}
	if nextModel.(Model).alert == "" {
		t.Fatalf("expected an alert explaining the disabled submit")
	}
}

func TestSubmitRejectsNonNumericImages(t *testing.T) {
	t.Parallel()

	m, _ := newTestModel(t, "http://127.0.0.1:1")
	m.inputs[fieldNumImages].SetValue("three")
	nextModel, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlR})
	if cmd != nil {
		t.Fatalf("expected no submit command for invalid form")
	}
	if !strings.Contains(nextModel.(Model).alert, "Images per article") {
		t.Fatalf("unexpected alert: %q", nextModel.(Model).alert)
	}
}

func TestTabCyclesFocus(t *testing.T) {
	t.Parallel()

	m, _ := newTestModel(t, "http://127.0.0.1:1")
	var model tea.Model = m
	for i := 0; i < fieldCount; i++ {
		model, _ = model.Update(tea.KeyMsg{Type: tea.KeyTab})
	}
	if model.(Model).focus != fieldSpreadsheet {
		t.Fatalf("expected focus to wrap around, got %d", model.(Model).focus)
	}
	back, _ := model.Update(tea.KeyMsg{Type: tea.KeyShiftTab})
	if back.(Model).focus != fieldArticleLength {
		t.Fatalf("expected shift+tab to wrap to the last field, got %d", back.(Model).focus)
	}
}

func TestSubmitRunsToCompletion(t *testing.T) {
	t.Parallel()

	srv := replay.New(replay.Script{
		Connections: []replay.Connection{{
			Steps: replay.Lines("Starting article 1", console.CompletionSentinel),
			Hold:  true,
		}},
	})
	baseURL, err := srv.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer srv.Close()

	m, c := newTestModel(t, baseURL)
	m.inputs[fieldSpreadsheet].SetValue("sheet-42")

	submittingModel, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlR})
	if cmd == nil {
		t.Fatalf("expected submit command")
	}
	msg := cmd()
	submitted, ok := msg.(submittedMsg)
	if !ok || submitted.err != nil {
		t.Fatalf("unexpected submit result: %#v", msg)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	state, err := submitted.run.Wait(ctx)
	if err != nil || state != console.StreamCompleted {
		t.Fatalf("expected completed run, got %s: %v", state, err)
	}
	if snap := c.Snapshot(); snap.RunID != submitted.run.ID || snap.StreamState != console.StreamCompleted {
		t.Fatalf("unexpected console snapshot: run %q state %s", snap.RunID, snap.StreamState)
	}

	doneModel, _ := submittingModel.Update(changedMsg{})
	view := doneModel.(Model).View()
	if !strings.Contains(view, console.LabelCompleted) {
		t.Fatalf("expected Completed badge in view")
	}
	if !strings.Contains(view, "Process finished successfully") {
		t.Fatalf("expected completion summary in log panel")
	}
	if srv.LastForm().Get("spreadsheet_id") != "sheet-42" {
		t.Fatalf("unexpected submitted sheet id: %q", srv.LastForm().Get("spreadsheet_id"))
	}
}
