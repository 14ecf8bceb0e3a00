package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/InvariantDynamics/blog-automation-console/core/pkg/console"
	"github.com/InvariantDynamics/blog-automation-console/sdk/go/blogclient"
)

var (
	chromeBG      = lipgloss.Color("#0B1015")
	panelBorder   = lipgloss.Color("#2D6A80")
	accentPrimary = lipgloss.Color("#50E3C2")
	accentWarm    = lipgloss.Color("#F6AE2D")
	mutedText     = lipgloss.Color("#8CA1AE")
	errorText     = lipgloss.Color("#FF6B6B")
	successText   = lipgloss.Color("#6AE18A")
	infoText      = lipgloss.Color("#20B6D9")
)

var (
	headerStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Bold(true).
			Foreground(accentPrimary)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(panelBorder).
			Padding(0, 1)

	panelTitleStyle = lipgloss.NewStyle().
			Foreground(accentPrimary).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(mutedText).
			Width(22)

	focusedLabelStyle = labelStyle.
				Foreground(accentPrimary).
				Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedText)

	alertStyle = lipgloss.NewStyle().
			Foreground(errorText).
			Bold(true)

	badgeBase = lipgloss.NewStyle().
			Padding(0, 1).
			Bold(true).
			Foreground(lipgloss.Color("#05090C"))

	buttonStyle = lipgloss.NewStyle().
			Padding(0, 2).
			Bold(true).
			Foreground(lipgloss.Color("#05090C")).
			Background(accentPrimary)

	disabledButtonStyle = buttonStyle.
				Foreground(mutedText).
				Background(lipgloss.Color("#1E2A31"))

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(accentWarm).
			Padding(1, 2)
)

var lineStyles = map[console.LineClass]lipgloss.Style{
	console.ClassError:   lipgloss.NewStyle().Foreground(errorText),
	console.ClassWarning: lipgloss.NewStyle().Foreground(accentWarm),
	console.ClassSuccess: lipgloss.NewStyle().Foreground(successText),
	console.ClassInfo:    lipgloss.NewStyle().Foreground(infoText),
}

const (
	fieldSpreadsheet = iota
	fieldWordPressURL
	fieldUsername
	fieldPassword
	fieldNumImages
	fieldArticleLength
	fieldCount
)

var fieldLabels = [fieldCount]string{
	"Google Sheet ID",
	"WordPress URL",
	"WordPress username",
	"WordPress password",
	"Images per article",
	"Article length (words)",
}

const modalContentID = "helpContent"

const helpText = `Blog Automation Console

1. Enter the ID of a publicly readable Google Sheet with
   the article topics.
2. Enter your WordPress site URL and an application
   password for the publishing account.
3. Press ctrl+r to generate. Progress streams into the
   log panel until the run completes or fails.

Ollama must be running locally with the Gemma model.

esc or a click outside this box closes it.`

type changedMsg struct{}

type submittedMsg struct {
	run *console.Run
	err error
}

type Model struct {
	console *console.Console
	extra   blogclient.Form

	ready  bool
	width  int
	height int

	inputs          []textinput.Model
	focus           int
	passwordVisible bool
	logs            viewport.Model
	spinner         spinner.Model

	renderedFragments int
	alert             string
}

func NewModel(c *console.Console, defaults blogclient.Form) Model {
	inputs := make([]textinput.Model, fieldCount)
	values := [fieldCount]string{
		defaults.SpreadsheetID,
		defaults.WordPressURL,
		defaults.WordPressUsername,
		defaults.WordPressPassword,
		strconv.Itoa(defaults.NumImages),
		strconv.Itoa(defaults.ArticleLength),
	}
	for i := range inputs {
		in := textinput.New()
		in.Prompt = ""
		in.CharLimit = 512
		in.Width = 48
		in.SetValue(values[i])
		inputs[i] = in
	}
	inputs[fieldWordPressURL].Placeholder = "https://example.com"
	inputs[fieldPassword].EchoMode = textinput.EchoPassword
	inputs[fieldPassword].EchoCharacter = '•'
	inputs[fieldNumImages].CharLimit = 2
	inputs[fieldArticleLength].CharLimit = 5
	inputs[fieldSpreadsheet].Focus()

	logs := viewport.New(80, 16)
	logs.SetContent("Logs will appear here once a run starts.")

	spin := spinner.New()
	spin.Spinner = spinner.MiniDot
	spin.Style = lipgloss.NewStyle().Foreground(accentWarm)

	return Model{
		console: c,
		extra:   defaults,
		inputs:  inputs,
		logs:    logs,
		spinner: spin,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForChangeCmd(m.console), m.spinner.Tick)
}

func waitForChangeCmd(c *console.Console) tea.Cmd {
	return func() tea.Msg {
		<-c.Changes()
		return changedMsg{}
	}
}

func submitCmd(c *console.Console, form blogclient.Form) tea.Cmd {
	return func() tea.Msg {
		run, err := c.Submit(context.Background(), form)
		return submittedMsg{run: run, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.resize()
		m.refreshLogs()
		return m, nil

	case changedMsg:
		m.refreshLogs()
		return m, waitForChangeCmd(m.console)

	case submittedMsg:
		if console.KindOf(msg.err) == console.ErrorSubmitDisabled {
			m.alert = "A run is already being submitted."
		}
		m.refreshLogs()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.modalOpen() {
			switch msg.String() {
			case "ctrl+c":
				return m, tea.Quit
			case "esc", "enter", "q":
				m.console.CloseModals()
			}
			return m, nil
		}

		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "ctrl+r":
			return m.submit()
		case "enter":
			if m.focus == fieldCount-1 {
				return m.submit()
			}
			m.setFocus(m.focus + 1)
			return m, nil
		case "tab", "down":
			m.setFocus((m.focus + 1) % fieldCount)
			return m, nil
		case "shift+tab", "up":
			m.setFocus((m.focus + fieldCount - 1) % fieldCount)
			return m, nil
		case "ctrl+l":
			m.alert = ""
			m.console.Clear()
			m.refreshLogs()
			return m, nil
		case "ctrl+p":
			m.togglePassword()
			return m, nil
		case "f1":
			m.console.Trigger("help")
			return m, nil
		case "f2":
			m.console.Trigger("about")
			return m, nil
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.logs, cmd = m.logs.Update(msg)
			return m, cmd
		}

		var cmd tea.Cmd
		m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
		return m, cmd

	case tea.MouseMsg:
		if m.modalOpen() {
			if msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft {
				m.console.Click(m.clickTarget(msg.X, msg.Y))
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.logs, cmd = m.logs.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	if !m.console.Status().SubmitEnabled() {
		m.alert = "A run is already in progress."
		return m, nil
	}
	form, err := m.formValues()
	if err != nil {
		m.alert = err.Error()
		return m, nil
	}
	m.alert = ""
	return m, submitCmd(m.console, form)
}

func (m Model) formValues() (blogclient.Form, error) {
	form := m.extra
	form.SpreadsheetID = strings.TrimSpace(m.inputs[fieldSpreadsheet].Value())
	form.WordPressURL = strings.TrimSpace(m.inputs[fieldWordPressURL].Value())
	form.WordPressUsername = strings.TrimSpace(m.inputs[fieldUsername].Value())
	form.WordPressPassword = m.inputs[fieldPassword].Value()

	images, err := strconv.Atoi(strings.TrimSpace(m.inputs[fieldNumImages].Value()))
	if err != nil {
		return blogclient.Form{}, fmt.Errorf("%s must be a whole number", fieldLabels[fieldNumImages])
	}
	length, err := strconv.Atoi(strings.TrimSpace(m.inputs[fieldArticleLength].Value()))
	if err != nil {
		return blogclient.Form{}, fmt.Errorf("%s must be a whole number", fieldLabels[fieldArticleLength])
	}
	form.NumImages = images
	form.ArticleLength = length
	return form, nil
}

func (m *Model) setFocus(i int) {
	if i < 0 || i >= fieldCount {
		return
	}
	m.inputs[m.focus].Blur()
	m.focus = i
	m.inputs[m.focus].Focus()
}

func (m *Model) togglePassword() {
	m.passwordVisible = !m.passwordVisible
	if m.passwordVisible {
		m.inputs[fieldPassword].EchoMode = textinput.EchoNormal
		return
	}
	m.inputs[fieldPassword].EchoMode = textinput.EchoPassword
}

func (m Model) modalOpen() bool {
	return m.console.Modals().IsOpen(console.HelpModalID)
}

// refreshLogs re-renders the log panel and pins it to the newest line.
func (m *Model) refreshLogs() {
	frags := m.console.Logs().Fragments()
	m.renderedFragments = len(frags)
	if len(frags) == 0 {
		m.logs.SetContent("")
		return
	}
	m.logs.SetContent(renderFragments(frags))
	m.logs.GotoBottom()
}

func renderFragments(frags []console.Fragment) string {
	var sb strings.Builder
	for _, frag := range frags {
		text := frag.Text
		if style, ok := lineStyles[frag.Class]; ok {
			text = style.Render(text)
		}
		sb.WriteString(text)
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (m *Model) resize() {
	logWidth := maxInt(20, m.width-6)
	formHeight := fieldCount + 4
	logHeight := maxInt(4, m.height-formHeight-8)
	m.logs.Width = logWidth
	m.logs.Height = logHeight
	for i := range m.inputs {
		m.inputs[i].Width = maxInt(16, m.width-labelStyle.GetWidth()-10)
	}
}

func (m Model) View() string {
	if !m.ready {
		return "Starting blog automation console..."
	}
	if m.modalOpen() {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, renderModal(),
			lipgloss.WithWhitespaceBackground(chromeBG))
	}

	snap := m.console.Status().Snapshot()
	header := lipgloss.JoinHorizontal(lipgloss.Center,
		headerStyle.Render("Blog Automation Console"),
		" ",
		renderBadge(snap),
	)

	rows := make([]string, 0, fieldCount+2)
	for i, in := range m.inputs {
		label := labelStyle.Render(fieldLabels[i])
		if i == m.focus {
			label = focusedLabelStyle.Render(fieldLabels[i])
		}
		view := in.View()
		if i == fieldPassword {
			toggle := "ctrl+p show"
			if m.passwordVisible {
				toggle = "ctrl+p hide"
			}
			view += "  " + helpStyle.Render(toggle)
		}
		rows = append(rows, label+view)
	}
	rows = append(rows, "", m.renderSubmit(snap))
	formPanel := renderPanel("Generate", strings.Join(rows, "\n"), maxInt(40, m.width-2))
	logPanel := renderPanel("Process Logs", m.logs.View(), maxInt(40, m.width-2))

	parts := []string{header, formPanel, logPanel}
	if strings.TrimSpace(m.alert) != "" {
		parts = append(parts, alertStyle.Render(m.alert))
	}
	parts = append(parts, helpStyle.Render("ctrl+r generate | tab/shift+tab move | ctrl+l clear logs | ctrl+p password | f1 help | f2 about | ctrl+c quit"))
	return strings.Join(parts, "\n")
}

func (m Model) renderSubmit(snap console.StatusSnapshot) string {
	if snap.Loading {
		return disabledButtonStyle.Render(m.spinner.View() + " Processing...")
	}
	if !snap.SubmitEnabled {
		return disabledButtonStyle.Render("Generate Blog Posts")
	}
	return buttonStyle.Render("Generate Blog Posts")
}

func renderBadge(snap console.StatusSnapshot) string {
	style := badgeBase.Background(successText)
	switch snap.Status.Style() {
	case "processing":
		style = badgeBase.Background(accentWarm)
	case "error":
		style = badgeBase.Background(errorText)
	}
	return style.Render(snap.Label)
}

func renderPanel(title, body string, width int) string {
	content := panelTitleStyle.Render(title) + "\n" + body
	return panelStyle.Width(maxInt(10, width-2)).Render(content)
}

func renderModal() string {
	return modalStyle.Render(helpText)
}

// clickTarget maps a terminal cell to the element under it. The overlay box
// is centred, so anything outside its bounds is the backdrop.
func (m Model) clickTarget(x, y int) console.ClickTarget {
	box := renderModal()
	w, h := lipgloss.Width(box), lipgloss.Height(box)
	left := maxInt(0, (m.width-w)/2)
	top := maxInt(0, (m.height-h)/2)
	if x >= left && x < left+w && y >= top && y < top+h {
		return console.ClickTarget{ID: modalContentID, Classes: []string{"modal-content"}}
	}
	return console.ClickTarget{ID: console.HelpModalID, Classes: []string{console.BackdropClass}}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
