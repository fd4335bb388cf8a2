package ui

import (
	"encoding/json"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"

	"github.com/recera/formflux/pkg/live"
)

// maxEvents bounds the in-memory action history
const maxEvents = 500

// Model represents the tail TUI application state
type Model struct {
	// Window dimensions
	width  int
	height int

	// Connection
	url       string
	connected bool

	// Action stream
	events  []live.TailEvent
	eventCh chan tea.Msg
	done    chan struct{} // closed on quit so the reader can exit

	// UI components
	spinner  spinner.Model
	viewport viewport.Model
	ready    bool

	// Key bindings
	keys keyMap

	showHelp bool
	quitting bool
	err      error
}

type keyMap struct {
	Up   key.Binding
	Down key.Binding
	Help key.Binding
	Quit key.Binding
}

// Messages delivered by the WebSocket reader goroutine.
type connectedMsg struct{}
type eventMsg live.TailEvent
type errMsg struct{ err error }
type disconnectedMsg struct{}

// NewModel creates the tail model for the given WebSocket URL.
func NewModel(url string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	return Model{
		url:     url,
		eventCh: make(chan tea.Msg, 64),
		done:    make(chan struct{}),
		spinner: s,
		keys: keyMap{
			Up:   key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "scroll up")),
			Down: key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "scroll down")),
			Help: key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle help")),
			Quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		},
	}
}

// Init starts the spinner, the connection, and the event pump.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, connect(m.url, m.eventCh, m.done), listen(m.eventCh))
}

// connect dials the server and starts the reader goroutine.
func connect(url string, ch chan tea.Msg, done chan struct{}) tea.Cmd {
	return func() tea.Msg {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			return errMsg{err}
		}

		go func() {
			defer conn.Close()
			for {
				messageType, data, err := conn.ReadMessage()
				if err != nil {
					deliver(ch, done, disconnectedMsg{})
					return
				}
				if messageType != websocket.TextMessage {
					continue // binary control frames are not tail events
				}
				var event live.TailEvent
				if json.Unmarshal(data, &event) == nil {
					if !deliver(ch, done, eventMsg(event)) {
						return
					}
				}
			}
		}()

		return connectedMsg{}
	}
}

// deliver queues a message for the program. Once the model has quit the
// channel is no longer pumped, so give up instead of blocking forever.
func deliver(ch chan tea.Msg, done chan struct{}, msg tea.Msg) bool {
	select {
	case ch <- msg:
		return true
	case <-done:
		return false
	}
}

// listen pumps one message from the reader channel into the program.
func listen(ch chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}
