package ui

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/recera/formflux/pkg/live"
)

// Style definitions
var (
	// Colors
	primaryColor   = lipgloss.Color("#3b82f6")
	secondaryColor = lipgloss.Color("#64748b")
	successColor   = lipgloss.Color("#10b981")
	warningColor   = lipgloss.Color("#f59e0b")
	errorColor     = lipgloss.Color("#ef4444")
	mutedColor     = lipgloss.Color("#94a3b8")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	statusConnected = lipgloss.NewStyle().
			Foreground(successColor)

	statusWaiting = lipgloss.NewStyle().
			Foreground(warningColor)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(primaryColor)

	sessionStyle = lipgloss.NewStyle().
			Foreground(secondaryColor)

	patchStyle = lipgloss.NewStyle().
			Foreground(primaryColor).
			Bold(true)

	submitStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	resetStyle = lipgloss.NewStyle().
			Foreground(warningColor).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor)
)

// View renders the tail TUI
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v", m.err)) + "\n"
	}
	if !m.ready {
		return m.spinner.View() + " Initializing..."
	}

	var b strings.Builder

	// Header
	b.WriteString(titleStyle.Render("FormFlux Action Tail"))
	b.WriteString("  ")
	if m.connected {
		b.WriteString(statusConnected.Render("● connected"))
	} else {
		b.WriteString(m.spinner.View())
		b.WriteString(statusWaiting.Render(" connecting"))
	}
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render(m.url))
	b.WriteString("\n\n")

	// Action stream
	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	// Footer
	if m.showHelp {
		b.WriteString(helpStyle.Render("↑/k scroll up • ↓/j scroll down • ? help • q quit"))
	} else {
		b.WriteString(helpStyle.Render(fmt.Sprintf("%d actions • ? for help • q to quit", len(m.events))))
	}

	return b.String()
}

// renderEvents formats the action history for the viewport
func (m Model) renderEvents() string {
	if len(m.events) == 0 {
		return mutedStyle.Render("Waiting for actions...")
	}

	var b strings.Builder
	for _, event := range m.events {
		b.WriteString(renderEvent(event))
		b.WriteString("\n")
	}
	return b.String()
}

func renderEvent(event live.TailEvent) string {
	var tag string
	switch event.Type {
	case "FORM_DATA_PATCHED":
		tag = patchStyle.Render("PATCH ")
	case "FORM_SUBMIT":
		tag = submitStyle.Render("SUBMIT")
	case "FORM_RESET":
		tag = resetStyle.Render("RESET ")
	default:
		tag = mutedStyle.Render(event.Type)
	}

	line := fmt.Sprintf("%s %s v%d %s",
		tag,
		event.FormID,
		event.Version,
		sessionStyle.Render("("+event.Session+")"))

	if detail := renderDetail(event); detail != "" {
		line += " " + mutedStyle.Render(detail)
	}
	return line
}

func renderDetail(event live.TailEvent) string {
	switch event.Type {
	case "FORM_DATA_PATCHED":
		if len(event.Update) == 0 {
			return ""
		}
		data, err := json.Marshal(event.Update)
		if err != nil {
			return ""
		}
		return string(data)
	case "FORM_SUBMIT":
		if event.FormType == "" {
			return ""
		}
		return "type=" + event.FormType
	}
	return ""
}
