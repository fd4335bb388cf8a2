package live

import (
	"bytes"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/recera/formflux/pkg/flux"
	"github.com/recera/formflux/pkg/forms"
)

// Client mirrors locally dispatched form actions to a live server.
type Client struct {
	url  string
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool

	onAck   func(Ack)
	onReady func()
	onError func(error)
}

// NewClient creates a new live protocol client for the given WebSocket
// URL (ws://host/formflux/live/<session>).
func NewClient(url string) *Client {
	return &Client{url: url}
}

// OnAck sets the ack handler
func (c *Client) OnAck(handler func(Ack)) {
	c.onAck = handler
}

// OnReady sets the handler invoked after the server HELLO
func (c *Client) OnReady(handler func()) {
	c.onReady = handler
}

// OnError sets the error handler
func (c *Client) OnError(handler func(error)) {
	c.onError = handler
}

// Connect establishes the WebSocket connection, performs the HELLO
// exchange, and starts the read loop.
func (c *Client) Connect() error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("live: dial %s: %w", c.url, err)
	}
	c.conn = conn

	// Client HELLO: resumable flag and last sequence seen.
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	enc.WriteBytes([]byte{byte(FrameControl)})
	enc.WriteString("HELLO")
	enc.WriteUvarint(0)
	enc.WriteUvarint(0)
	if err := conn.WriteMessage(websocket.BinaryMessage, buf.Bytes()); err != nil {
		conn.Close()
		return fmt.Errorf("live: send hello: %w", err)
	}

	go c.readLoop()
	return nil
}

// Mirror registers a handler on the dispatcher that forwards every form
// action to the server. Returns the handler ID for Unregister.
func (c *Client) Mirror(d *flux.Dispatcher) flux.HandlerID {
	return d.Register(func(env flux.Envelope) {
		switch env.Action.(type) {
		case forms.FormDataPatched, forms.FormSubmit, forms.FormReset:
			if err := c.SendAction(env.Action); err != nil {
				log.Printf("[Live Client] Failed to mirror %s: %v", env.Action.Type(), err)
				if c.onError != nil {
					c.onError(err)
				}
			}
		}
	})
}

// SendAction encodes and sends a single form action.
func (c *Client) SendAction(action flux.Action) error {
	data, err := EncodeAction(action)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.conn == nil {
		return fmt.Errorf("live: client not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

// readLoop handles frames from the server
func (c *Client) readLoop() {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if !closed {
				log.Printf("[Live Client] Read error: %v", err)
				if c.onError != nil {
					c.onError(err)
				}
			}
			return
		}

		if messageType != websocket.BinaryMessage || len(data) == 0 {
			continue
		}

		switch MessageType(data[0]) {
		case FrameAck:
			ack, err := DecodeAck(data)
			if err != nil {
				log.Printf("[Live Client] Failed to decode ack: %v", err)
				continue
			}
			if c.onAck != nil {
				c.onAck(ack)
			}

		case FrameControl:
			dec := NewDecoder(bytes.NewReader(data[1:]))
			msgType, err := dec.ReadString()
			if err != nil {
				continue
			}
			if msgType == "HELLO" {
				log.Println("[Live Client] Connected")
				if c.onReady != nil {
					c.onReady()
				}
			}
		}
	}
}

// Close closes the WebSocket connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
}
