package ui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// RunTailTUI starts the interactive action tail connected to the given
// WebSocket URL.
func RunTailTUI(url string) error {
	p := tea.NewProgram(
		NewModel(url),
		tea.WithAltScreen(),
	)

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	m := finalModel.(Model)
	if m.err != nil {
		return m.err
	}
	return nil
}
