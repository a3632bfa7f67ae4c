package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/frhnm/tgfleet/internal/domain"
)

type bulkDoneMsg struct {
	result domain.BulkResult
}

type bulkSpinnerModel struct {
	spinner spinner.Model
	label   string
	run     tea.Cmd
	result  domain.BulkResult
	done    bool
}

func newBulkSpinnerModel(label string, run tea.Cmd) bulkSpinnerModel {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("69"))),
	)

	return bulkSpinnerModel{
		spinner: s,
		label:   label,
		run:     run,
	}
}

func (m bulkSpinnerModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.run)
}

func (m bulkSpinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case bulkDoneMsg:
		m.done = true
		m.result = msg.result
		return m, tea.Quit
	default:
		return m, nil
	}
}

func (m bulkSpinnerModel) View() string {
	if m.done {
		return ""
	}
	return fmt.Sprintf("%s %s", m.spinner.View(), m.label)
}

func runBulkWithSpinner(ctx context.Context, output io.Writer, app *app, label string, run func(context.Context) domain.BulkResult) (domain.BulkResult, error) {
	if app.cfg.GetBool("ui.no_spinner") {
		return run(ctx), nil
	}

	runCmd := func() tea.Msg {
		return bulkDoneMsg{result: run(ctx)}
	}

	p := tea.NewProgram(
		newBulkSpinnerModel(label, runCmd),
		tea.WithInput(nil),
		tea.WithOutput(output),
		tea.WithContext(ctx),
	)

	finalModel, err := p.Run()
	if err != nil {
		return domain.BulkResult{}, err
	}

	model, ok := finalModel.(bulkSpinnerModel)
	if !ok {
		return domain.BulkResult{}, fmt.Errorf("unexpected final spinner model type %T", finalModel)
	}
	return model.result, nil
}
