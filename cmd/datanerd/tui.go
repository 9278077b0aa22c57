package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"datanerd/internal/graph"
	"datanerd/internal/logging"
)

const progressHistory = 6

type eventMsg graph.Event

type runDoneMsg struct{}

// progressModel shows the node a run is in and its most recent steps.
type progressModel struct {
	spinner    spinner.Model
	dataset    string
	current    graph.Event
	history    []string
	cancel     context.CancelFunc
	cancelling bool
	done       bool
}

func newProgressModel(dataset string, cancel context.CancelFunc) progressModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = titleStyle
	return progressModel{spinner: sp, dataset: dataset, cancel: cancel}
}

func (m progressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if !m.cancelling {
				m.cancelling = true
				m.cancel()
			}
		}
		return m, nil

	case eventMsg:
		ev := graph.Event(msg)
		switch ev.Type {
		case graph.EventNodeStarted:
			m.current = ev
		case graph.EventNodeFailed:
			m.push(errorStyle.Render("✗ ") + fmt.Sprintf("%s task %d: %s", ev.Node, ev.TaskIndex, firstLine(ev.Message)))
		case graph.EventRoute:
			m.push(dimStyle.Render(fmt.Sprintf("%3d  %s → %s", ev.Step, ev.Node, ev.Next)))
		}
		return m, nil

	case runDoneMsg:
		m.done = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) push(line string) {
	m.history = append(m.history, line)
	if len(m.history) > progressHistory {
		m.history = m.history[len(m.history)-progressHistory:]
	}
}

func (m progressModel) View() string {
	if m.done {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s  %s", m.spinner.View(), titleStyle.Render(m.dataset), m.current.Node)
	if m.current.Step > 0 {
		fmt.Fprintf(&sb, dimStyle.Render("  step %d, task %d, errors %d"), m.current.Step, m.current.TaskIndex, m.current.ErrorCount)
	}
	if m.cancelling {
		sb.WriteString(warnStyle.Render("  cancelling..."))
	}
	sb.WriteString("\n")
	for _, line := range m.history {
		sb.WriteString("  " + line + "\n")
	}
	return boxStyle.Render(strings.TrimRight(sb.String(), "\n")) + "\n"
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

type analyzeResult struct {
	o   *outcome
	err error
}

// runWithProgress runs one analysis while a bubbletea view on stderr shows
// its progress. Quitting the view cancels the run.
func runWithProgress(ctx context.Context, p *pipeline, path string) (*outcome, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prog := tea.NewProgram(newProgressModel(name, cancel), tea.WithOutput(os.Stderr))

	results := make(chan analyzeResult, 1)
	go func() {
		o, err := p.analyze(ctx, path, func(ev graph.Event) { prog.Send(eventMsg(ev)) })
		results <- analyzeResult{o, err}
		prog.Send(runDoneMsg{})
	}()

	if _, err := prog.Run(); err != nil {
		logging.Get(logging.CategoryBoot).Warn("progress view failed: %v", err)
	}
	r := <-results
	return r.o, r.err
}
