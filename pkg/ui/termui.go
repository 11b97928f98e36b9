package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/murmurkit/murmur/pkg/model"
)

const (
	appASCIIBanner = `
 ███╗   ███╗██╗   ██╗██████╗ ███╗   ███╗██╗   ██╗██████╗
 ████╗ ████║██║   ██║██╔══██╗████╗ ████║██║   ██║██╔══██╗
 ██╔████╔██║██║   ██║██████╔╝██╔████╔██║██║   ██║██████╔╝
 ██║╚██╔╝██║██║   ██║██╔══██╗██║╚██╔╝██║██║   ██║██╔══██╗
 ██║ ╚═╝ ██║╚██████╔╝██║  ██║██║ ╚═╝ ██║╚██████╔╝██║  ██║
 ╚═╝     ╚═╝ ╚═════╝ ╚═╝  ╚═╝╚═╝     ╚═╝ ╚═════╝ ╚═╝  ╚═╝
              Speech-to-Text Workbench
`
	appVersion = "v0.1.0"
)

// Define some styles
var (
	appStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#61E3FA")).
			Background(lipgloss.Color("#1E1E2E")).
			Padding(1, 2)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A9B1D6"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#9ECE6A")).
			MarginTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F7768E"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7AA2F7"))

	activeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#9ECE6A"))

	frameStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7AA2F7")).
			Padding(1, 2)
)

// Messages delivered into the bubbletea loop
type (
	transcriptMsg   struct{ text string }
	captureMsg      struct{ capturing bool }
	levelMsg        struct{ level float32 }
	statusTextMsg   struct{ text string }
	errorTextMsg    struct{ text string }
	recordingMsg    struct{ recording bool }
	progressTickMsg time.Time

	initDoneMsg struct {
		id       string
		err      error
		degraded bool
	}
	deleteDoneMsg struct {
		id  string
		err error
	}
)

// TerminalModel is the TUI model
type TerminalModel struct {
	manager *model.Manager
	catalog []model.Descriptor
	withVAD bool

	spinner     spinner.Model
	progressBar progress.Model

	cursor      int
	activeID    string
	busyID      string
	degraded    bool
	audioLevels []float32
	transcript  string
	capturing   bool
	isRecording bool

	statusMessage string
	errorMessage  string
	width         int
	height        int
	ready         bool

	toggleCh chan struct{}
}

// NewTerminalModel creates a new TUI model
func NewTerminalModel(manager *model.Manager, withVAD bool) *TerminalModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ECE6A"))

	bar := progress.New(progress.WithDefaultGradient(), progress.WithWidth(40))

	return &TerminalModel{
		manager:       manager,
		catalog:       model.Catalog(),
		withVAD:       withVAD,
		spinner:       s,
		progressBar:   bar,
		audioLevels:   make([]float32, 20),
		statusMessage: "Ready",
		toggleCh:      make(chan struct{}, 1),
	}
}

// Init initializes the model
func (m *TerminalModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update updates the model based on messages
func (m *TerminalModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progressTickMsg:
		if m.busyID == "" {
			return m, nil
		}
		return m, progressTick()

	case initDoneMsg:
		m.busyID = ""
		if msg.err != nil {
			m.errorMessage = msg.err.Error()
			m.statusMessage = "Ready"
			return m, nil
		}
		m.activeID = msg.id
		m.degraded = msg.degraded
		m.errorMessage = ""
		if msg.degraded {
			m.statusMessage = fmt.Sprintf("Model %s ready (voice detection unavailable)", msg.id)
		} else {
			m.statusMessage = fmt.Sprintf("Model %s ready", msg.id)
		}

	case deleteDoneMsg:
		m.busyID = ""
		if msg.err != nil {
			m.errorMessage = msg.err.Error()
			return m, nil
		}
		if m.activeID == msg.id {
			m.activeID = ""
		}
		m.errorMessage = ""
		m.statusMessage = fmt.Sprintf("Deleted %s", msg.id)

	case transcriptMsg:
		m.transcript = msg.text

	case captureMsg:
		m.capturing = msg.capturing

	case levelMsg:
		copy(m.audioLevels[1:], m.audioLevels)
		m.audioLevels[0] = msg.level

	case recordingMsg:
		m.isRecording = msg.recording
		if msg.recording {
			m.statusMessage = "Recording..."
		} else {
			m.statusMessage = "Ready"
		}

	case statusTextMsg:
		m.statusMessage = msg.text

	case errorTextMsg:
		m.errorMessage = msg.text
	}

	return m, nil
}

func (m *TerminalModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(m.catalog)-1 {
			m.cursor++
		}

	case "enter":
		if m.busyID != "" || len(m.catalog) == 0 {
			return m, nil
		}
		desc := m.catalog[m.cursor]
		m.busyID = desc.ID
		m.errorMessage = ""
		if m.manager.IsCached(desc.ID) {
			m.statusMessage = fmt.Sprintf("Loading %s...", desc.ID)
		} else {
			m.statusMessage = fmt.Sprintf("Downloading %s (%s)...", desc.ID, desc.SizeLabel)
		}
		return m, tea.Batch(m.initializeCmd(desc.ID), progressTick())

	case "x":
		if m.busyID != "" || len(m.catalog) == 0 {
			return m, nil
		}
		desc := m.catalog[m.cursor]
		if !m.manager.IsCached(desc.ID) {
			return m, nil
		}
		m.busyID = desc.ID
		m.statusMessage = fmt.Sprintf("Deleting %s...", desc.ID)
		return m, m.deleteCmd(desc.ID)

	case " ", "r":
		if m.activeID == "" {
			m.errorMessage = "Select a model first (enter to load)"
			return m, nil
		}
		// Recording is driven by the session owner; just signal the toggle
		select {
		case m.toggleCh <- struct{}{}:
		default:
		}
	}

	return m, nil
}

// initializeCmd downloads the model if needed and brings up an engine handle
func (m *TerminalModel) initializeCmd(id string) tea.Cmd {
	return func() tea.Msg {
		res, err := m.manager.Initialize(context.Background(), id, model.Options{
			WithVoiceActivityDetection: m.withVAD,
		})
		if err != nil {
			return initDoneMsg{id: id, err: err}
		}
		return initDoneMsg{id: id, degraded: res.Degraded()}
	}
}

func (m *TerminalModel) deleteCmd(id string) tea.Cmd {
	return func() tea.Msg {
		return deleteDoneMsg{id: id, err: m.manager.Delete(id)}
	}
}

func progressTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return progressTickMsg(t)
	})
}

// View renders the TUI
func (m *TerminalModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var s strings.Builder

	s.WriteString(appStyle.Render(appASCIIBanner))

	// Status indicator
	statusIndicator := ""
	if m.isRecording || m.busyID != "" {
		statusIndicator = m.spinner.View() + " "
	}
	s.WriteString("\n" + statusStyle.Render(statusIndicator+"Status: "+m.statusMessage))

	helpLine := "enter: load model | x: delete | 'r' or SPACE: toggle recording | q: quit"
	s.WriteString("\n" + infoStyle.Render(helpLine))

	// Model catalog
	s.WriteString("\n\n" + m.renderCatalog())

	// Download progress
	if m.busyID != "" && m.manager.IsDownloading(m.busyID) {
		pct := m.manager.Progress(m.busyID)
		s.WriteString("\n\n" + m.progressBar.ViewAs(pct))
	}

	// Audio visualization
	s.WriteString("\n\n" + renderAudioVisualization(m.audioLevels, m.isRecording))

	// Transcript in a frame
	textArea := "No transcription yet..."
	if m.transcript != "" {
		textArea = m.transcript
	}
	if m.capturing {
		textArea += " ▌"
	}
	s.WriteString("\n\n" + frameStyle.Width(m.width-4).Render(textArea))

	if m.errorMessage != "" {
		s.WriteString("\n\n" + errorStyle.Render("Error: "+m.errorMessage))
	}

	return s.String()
}

// renderCatalog lists the compiled-in models with cache and capability markers
func (m *TerminalModel) renderCatalog() string {
	var s strings.Builder
	s.WriteString(infoStyle.Render("Models:"))

	for i, desc := range m.catalog {
		cached := " "
		if m.manager.IsCached(desc.ID) {
			cached = "*"
		}

		line := fmt.Sprintf("[%s] %-16s %-10s %s", cached, desc.ID, desc.SizeLabel, describeCapabilities(desc))

		switch {
		case desc.ID == m.activeID:
			suffix := " (active)"
			if m.degraded {
				suffix = " (active, no VAD)"
			}
			line = activeStyle.Render(line + suffix)
		case i == m.cursor:
			line = selectedStyle.Render("> " + line)
		default:
			line = "  " + line
		}

		s.WriteString("\n" + line)
	}

	return s.String()
}

// describeCapabilities summarizes a catalog entry's flags for the list view
func describeCapabilities(desc model.Descriptor) string {
	var parts []string
	if desc.Multilingual {
		parts = append(parts, "multilingual")
	} else {
		parts = append(parts, "english")
	}
	if desc.Quantized {
		parts = append(parts, "quantized")
	}
	if desc.SpeakerTurns {
		parts = append(parts, "speaker-turns")
	}
	return strings.Join(parts, ", ")
}

// renderAudioVisualization creates a text-based visualization of audio levels
func renderAudioVisualization(levels []float32, isRecording bool) string {
	var s strings.Builder
	s.WriteString("Audio Level: ")

	baseColor := "#555555"
	if isRecording {
		baseColor = "#7AA2F7"
	}

	const width = 30
	s.WriteString("[")
	for i := 0; i < width; i++ {
		ratio := float32(i) / float32(width)
		threshold := float32(1.0 - ratio)

		levelIdx := i % len(levels)
		level := levels[levelIdx]

		var char string
		var color string
		if level >= threshold {
			char = "█"
			color = getColorForLevel(level)
		} else {
			char = " "
			color = baseColor
		}

		s.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render(char))
	}
	s.WriteString("]")

	return s.String()
}

// getColorForLevel returns a color based on audio level
func getColorForLevel(level float32) string {
	switch {
	case level > 0.8:
		return "#F7768E" // Red for high levels
	case level > 0.5:
		return "#FF9E64" // Orange for medium-high levels
	case level > 0.3:
		return "#E0AF68" // Yellow for medium levels
	default:
		return "#9ECE6A" // Green for low levels
	}
}

// TerminalUI manages the terminal user interface
type TerminalUI struct {
	program *tea.Program
	model   *TerminalModel
}

// NewTerminalUI creates a new terminal UI around the model manager
func NewTerminalUI(manager *model.Manager, withVAD bool) *TerminalUI {
	tm := NewTerminalModel(manager, withVAD)
	return &TerminalUI{
		program: tea.NewProgram(tm),
		model:   tm,
	}
}

// RunBlocking runs the TUI in the current goroutine until it quits
func (t *TerminalUI) RunBlocking() error {
	if _, err := t.program.Run(); err != nil {
		if !errors.Is(err, tea.ErrProgramKilled) {
			return err
		}
	}
	return nil
}

// Stop terminates the terminal UI
func (t *TerminalUI) Stop() {
	t.program.Quit()
}

// UpdateTranscript replaces the displayed transcript
func (t *TerminalUI) UpdateTranscript(text string) {
	t.program.Send(transcriptMsg{text: text})
}

// SetCapturing toggles the live-speech cursor in the transcript frame
func (t *TerminalUI) SetCapturing(capturing bool) {
	t.program.Send(captureMsg{capturing: capturing})
}

// UpdateAudioLevel updates the audio level visualization
func (t *TerminalUI) UpdateAudioLevel(level float32) {
	t.program.Send(levelMsg{level: level})
}

// SetRecordingState updates the recording state
func (t *TerminalUI) SetRecordingState(isRecording bool) {
	t.program.Send(recordingMsg{recording: isRecording})
}

// SetStatus sets the status line
func (t *TerminalUI) SetStatus(text string) {
	t.program.Send(statusTextMsg{text: text})
}

// SetError sets an error message
func (t *TerminalUI) SetError(text string) {
	t.program.Send(errorTextMsg{text: text})
}

// ToggleChannel returns the channel that receives record-toggle keystrokes
func (t *TerminalUI) ToggleChannel() <-chan struct{} {
	return t.model.toggleCh
}

// ActiveModel returns the identifier of the model the UI last initialized
func (t *TerminalUI) ActiveModel() (string, bool) {
	if desc, ok := t.model.manager.Active(); ok {
		return desc.ID, true
	}
	return "", false
}
