package ui

import (
	"fmt"
	"strings"
	"time"

	progressbar "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"sitevault/agent/internal/orchestrator"
	"sitevault/agent/internal/progress"
)

// Runner is the backup routine the UI drives. It receives a callback for
// phase changes and returns the archive path.
type Runner func(onState func(orchestrator.State)) (string, error)

type stateMsg orchestrator.State

type doneMsg struct {
	archive string
	err     error
}

type tickMsg time.Time

var (
	phaseStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

var phaseLabels = map[orchestrator.State]string{
	orchestrator.StateInit:         "Preparing",
	orchestrator.StateDBExport:     "Exporting database",
	orchestrator.StateDBDownload:   "Downloading database artifact",
	orchestrator.StateManifestInit: "Listing site files",
	orchestrator.StatePartition:    "Planning transfers",
	orchestrator.StateRetrieve:     "Retrieving files",
	orchestrator.StatePackage:      "Packaging archive",
	orchestrator.StateDone:         "Done",
	orchestrator.StateFailed:       "Failed",
}

type model struct {
	tracker *progress.Tracker
	bar     progressbar.Model
	spin    spinner.Model
	cancel  func()

	phase    orchestrator.State
	snap     progress.Snapshot
	archive  string
	err      error
	finished bool
	aborted  bool
}

func newModel(tracker *progress.Tracker, cancel func()) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))
	return model{
		tracker: tracker,
		bar:     progressbar.New(progressbar.WithDefaultGradient()),
		spin:    s,
		cancel:  cancel,
		phase:   orchestrator.StateInit,
	}
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, tick())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.String() == "q" {
			m.aborted = true
			if m.cancel != nil {
				m.cancel()
			}
			// Quit comes with the doneMsg so the runner can clean up first.
			return m, nil
		}

	case tea.WindowSizeMsg:
		w := msg.Width - 8
		if w > 60 {
			w = 60
		}
		if w > 0 {
			m.bar.Width = w
		}

	case stateMsg:
		m.phase = orchestrator.State(msg)
		return m, nil

	case tickMsg:
		m.snap = m.tracker.Snapshot()
		return m, tick()

	case doneMsg:
		m.finished = true
		m.archive = msg.archive
		m.err = msg.err
		m.snap = m.tracker.Snapshot()
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case progressbar.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progressbar.Model)
		return m, cmd
	}
	return m, nil
}

func (m model) View() string {
	if m.finished {
		if m.err != nil {
			return errStyle.Render("✗ backup failed: "+m.err.Error()) + "\n"
		}
		return okStyle.Render(fmt.Sprintf("✓ backup complete: %s (%d files, %s)",
			m.archive, m.snap.FilesDone, humanBytes(m.snap.BytesDone))) + "\n"
	}

	var b strings.Builder
	label := phaseLabels[m.phase]
	if label == "" {
		label = string(m.phase)
	}
	if m.aborted {
		label = "Cancelling"
	}
	b.WriteString(fmt.Sprintf("%s %s\n", m.spin.View(), phaseStyle.Render(label)))

	if m.phase == orchestrator.StateRetrieve && m.snap.TotalBytes > 0 {
		ratio := float64(m.snap.BytesDone) / float64(m.snap.TotalBytes)
		b.WriteString("  " + m.bar.ViewAs(ratio) + "\n")
		line := fmt.Sprintf("  %d/%d files, %s of %s",
			m.snap.FilesDone+m.snap.FilesFailed, m.snap.TotalFiles,
			humanBytes(m.snap.BytesDone), humanBytes(m.snap.TotalBytes))
		if m.snap.FilesFailed > 0 {
			line += errStyle.Render(fmt.Sprintf("  (%d failed)", m.snap.FilesFailed))
		}
		b.WriteString(dimStyle.Render(line) + "\n")
	}
	b.WriteString(dimStyle.Render("  press q to cancel") + "\n")
	return b.String()
}

// Run renders the live progress display while the runner executes in the
// background. cancel is invoked when the user aborts; the runner is still
// expected to return, which lets it clean up before the program exits.
func Run(tracker *progress.Tracker, cancel func(), run Runner) (string, error) {
	p := tea.NewProgram(newModel(tracker, cancel))
	go func() {
		archive, err := run(func(s orchestrator.State) {
			p.Send(stateMsg(s))
		})
		p.Send(doneMsg{archive: archive, err: err})
	}()
	final, err := p.Run()
	if err != nil {
		return "", err
	}
	m := final.(model)
	return m.archive, m.err
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
