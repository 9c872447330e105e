package main

import (
	"os"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
)

// spinnerProgress shows a terminal spinner while a batch match is running.
type spinnerProgress struct{}

type spinnerModel struct {
	spinner spinner.Model
	label   string
}

type stopMsg struct{}

func (m spinnerModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m spinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg.(type) {
	case stopMsg:
		return m, tea.Quit
	case tea.KeyMsg:
		return m, nil
	}
	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	return m, cmd
}

func (m spinnerModel) View() string {
	return m.spinner.View() + " " + mutedStyle.Render(m.label)
}

func (spinnerProgress) Begin(label string) func() {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		return func() {}
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = headerStyle

	p := tea.NewProgram(spinnerModel{spinner: s, label: label},
		tea.WithOutput(os.Stderr),
		tea.WithInput(nil),
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = p.Run()
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.Send(stopMsg{})
			<-done
		})
	}
}
