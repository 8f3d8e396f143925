package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/meetcreator/roomdrop/internal/utils"
)

type TransferMode int

const (
	ModeSend TransferMode = iota
	ModeReceive
)

// TickMsg redraws the progress view.
type TickMsg time.Time

type doneMsg struct{ err error }

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// TransferUI shows live progress for one file moving to or from a peer.
// Progress is sampled on every tick so callers on hot paths never block.
type TransferUI struct {
	program *tea.Program
	model   *transferModel
	wg      sync.WaitGroup
}

type transferModel struct {
	mode     TransferMode
	peer     string
	bar      progress.Model
	spinner  spinner.Model
	onCancel func()

	mu        sync.Mutex
	state     string
	name      string
	current   int64
	total     int64
	startTime time.Time
	now       func() time.Time

	finished bool
	err      error
	quitting bool
}

// NewTransferUI creates a progress display. onCancel runs when the user
// presses q or ctrl+c. With a nil onCancel the display leaves the terminal
// input alone, so a prompt can keep reading it.
func NewTransferUI(mode TransferMode, peer string, onCancel func()) *TransferUI {
	return &TransferUI{model: newTransferModel(mode, peer, onCancel)}
}

func newTransferModel(mode TransferMode, peer string, onCancel func()) *transferModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &transferModel{
		mode: mode,
		peer: peer,
		bar: progress.New(
			progress.WithGradient(ProgressStart, ProgressEnd),
			progress.WithWidth(30),
			progress.WithoutPercentage(),
		),
		spinner:  s,
		onCancel: onCancel,
		state:    "Connecting...",
		now:      time.Now,
	}
}

// Start runs the display inline, keeping previous terminal output visible.
func (ui *TransferUI) Start() {
	opts := []tea.ProgramOption{tea.WithOutput(Output)}
	if ui.model.onCancel == nil {
		opts = append(opts, tea.WithInput(nil))
	}
	ui.program = tea.NewProgram(ui.model, opts...)
	ui.wg.Add(1)
	go func() {
		defer ui.wg.Done()
		if _, err := ui.program.Run(); err != nil {
			PrintErrorf("UI error: %v", err)
		}
	}()
}

// SetPeer names the remote side in the header.
func (ui *TransferUI) SetPeer(name string) {
	ui.model.mu.Lock()
	ui.model.peer = name
	ui.model.mu.Unlock()
}

// SetFile names the file being moved.
func (ui *TransferUI) SetFile(name string, size int64) {
	ui.model.mu.Lock()
	ui.model.name = name
	ui.model.total = size
	ui.model.mu.Unlock()
}

// SetState replaces the status line.
func (ui *TransferUI) SetState(state string) {
	ui.model.mu.Lock()
	ui.model.state = state
	ui.model.mu.Unlock()
}

// UpdateProgress records bytes moved so far.
func (ui *TransferUI) UpdateProgress(current, total int64) {
	ui.model.record(current, total)
}

// Finish renders the final state and stops the display.
func (ui *TransferUI) Finish(err error) {
	if ui.program != nil {
		ui.program.Send(doneMsg{err: err})
	}
	ui.wg.Wait()
}

// Stop tears the display down without a final frame.
func (ui *TransferUI) Stop() {
	if ui.program != nil {
		ui.program.Quit()
	}
	ui.wg.Wait()
}

func (m *transferModel) record(current, total int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startTime.IsZero() && current > 0 {
		m.startTime = m.now()
		m.state = "Transferring..."
	}
	m.current = current
	if total > 0 {
		m.total = total
	}
}

func (m *transferModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func (m *transferModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			if m.onCancel != nil {
				m.onCancel()
			}
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.bar.Width = max(10, min(30, msg.Width-60))

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case TickMsg:
		if !m.finished && !m.quitting {
			return m, tickCmd()
		}

	case doneMsg:
		m.mu.Lock()
		m.finished = true
		m.err = msg.err
		if msg.err == nil && m.total > 0 {
			m.current = m.total
		}
		m.mu.Unlock()
		return m, tea.Quit
	}

	return m, nil
}

func (m *transferModel) View() string {
	if m.quitting {
		return ""
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var b strings.Builder

	icon, verb, dir := IconSend, "Sending", "to"
	if m.mode == ModeReceive {
		icon, verb, dir = IconReceive, "Receiving", "from"
	}
	b.WriteString(HeaderStyle.Render(fmt.Sprintf("%s %s %s %s", icon, verb, dir, m.peer)))
	b.WriteString("\n\n")

	switch {
	case m.finished && m.err != nil:
		b.WriteString(ErrorStyle.Render(fmt.Sprintf("%s %v", IconError, m.err)))
	case m.finished:
		b.WriteString(SuccessStyle.Render(IconComplete + " Transfer complete"))
	default:
		b.WriteString(fmt.Sprintf("%s %s", m.spinner.View(), m.state))
	}
	b.WriteString("\n")

	if m.name != "" || m.total > 0 {
		name := m.name
		if name == "" {
			name = "incoming file"
		}
		b.WriteString(fmt.Sprintf("\n%s %s ", IconFile, utils.PadRight(name, 24)))
		b.WriteString(m.bar.ViewAs(m.fraction()))
		b.WriteString(fmt.Sprintf(" %5.1f%%", m.fraction()*100))
		b.WriteString(MutedStyle.Render(fmt.Sprintf(" (%s/%s)",
			utils.FormatSize(m.current), utils.FormatSize(m.total))))

		if speed := m.speed(); !m.finished && speed > 0 {
			b.WriteString(MutedStyle.Render(" " + utils.FormatSpeed(speed)))
			if remaining := m.total - m.current; remaining > 0 {
				eta := time.Duration(float64(remaining) / speed * float64(time.Second))
				b.WriteString(MutedStyle.Render(" ETA: " + utils.FormatTimeDuration(eta)))
			}
		}
		b.WriteString("\n")
	}

	if !m.finished && m.onCancel != nil {
		b.WriteString("\n" + MutedStyle.Render("Press q to cancel"))
	}
	return b.String() + "\n"
}

func (m *transferModel) fraction() float64 {
	if m.total <= 0 {
		if m.finished && m.err == nil {
			return 1
		}
		return 0
	}
	return min(1, float64(m.current)/float64(m.total))
}

func (m *transferModel) speed() float64 {
	if m.startTime.IsZero() {
		return 0
	}
	elapsed := m.now().Sub(m.startTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(m.current) / elapsed
}
