package ui

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/recera/formflux/pkg/live"
)

// Update handles all incoming messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			if !m.quitting {
				m.quitting = true
				close(m.done)
			}
			return m, tea.Quit

		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 3
		footerHeight := 2
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-headerHeight-footerHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - headerHeight - footerHeight
		}
		m.viewport.SetContent(m.renderEvents())
		return m, nil

	case connectedMsg:
		m.connected = true
		return m, nil

	case eventMsg:
		m.events = append(m.events, live.TailEvent(msg))
		if len(m.events) > maxEvents {
			m.events = m.events[len(m.events)-maxEvents:]
		}
		if m.ready {
			atBottom := m.viewport.AtBottom()
			m.viewport.SetContent(m.renderEvents())
			if atBottom {
				m.viewport.GotoBottom()
			}
		}
		return m, listen(m.eventCh)

	case disconnectedMsg:
		m.connected = false
		return m, listen(m.eventCh)

	case errMsg:
		m.err = msg.err
		if !m.quitting {
			m.quitting = true
			close(m.done)
		}
		return m, tea.Quit
	}

	// Delegate remaining messages to the components.
	var cmds []tea.Cmd
	var cmd tea.Cmd

	m.spinner, cmd = m.spinner.Update(msg)
	cmds = append(cmds, cmd)

	if m.ready {
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}
