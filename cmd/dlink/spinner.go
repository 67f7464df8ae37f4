package main

import (
	"context"
	"errors"
	"os"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

var errInterrupted = errors.New("interrupted")

// doneMsg carries the result of the wrapped operation into the program.
type doneMsg struct{ err error }

// spinnerModel shows a spinner next to label until a doneMsg arrives.
type spinnerModel struct {
	spinner     spinner.Model
	label       string
	done        bool
	interrupted bool
}

func newSpinnerModel(label string) spinnerModel {
	s := spinner.New()
	s.Spinner = spinner.MiniDot
	s.Style = spinnerStyle

	return spinnerModel{spinner: s, label: label}
}

func (m spinnerModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m spinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.interrupted = true
			return m, tea.Quit
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m spinnerModel) View() string {
	if m.done || m.interrupted {
		return ""
	}

	return m.spinner.View() + " " + dimStyle.Render(m.label)
}

// withSpinner runs fn, animating a spinner on stderr while it works. With
// enabled false fn runs directly.
func withSpinner(ctx context.Context, enabled bool, label string, fn func(context.Context) error) error {
	if !enabled {
		return fn(ctx)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newSpinnerModel(label), tea.WithOutput(os.Stderr), tea.WithContext(ctx))

	result := make(chan error, 1)
	go func() {
		err := fn(ctx)
		result <- err
		p.Send(doneMsg{err: err})
	}()

	// A program error only means the terminal could not be driven; the
	// operation itself still completes.
	final, _ := p.Run()
	if m, ok := final.(spinnerModel); ok && m.interrupted {
		cancel()
		<-result
		return errInterrupted
	}

	return <-result
}
