package live

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/recera/formflux/pkg/flux"
	"github.com/recera/formflux/pkg/forms"
)

// DefaultLivePath is the WebSocket endpoint prefix served by Server.
const DefaultLivePath = "/formflux/live/"

// Server accepts WebSocket sessions that mirror form actions into a
// shared dispatcher and store. Sessions connecting with ?mode=tail
// instead receive every processed action as a JSON text frame.
type Server struct {
	upgrader   websocket.Upgrader
	dispatcher *flux.Dispatcher
	store      *forms.Store
	basePath   string

	mu       sync.RWMutex
	sessions map[string]*Session
	tails    map[string]*Session

	// dispatchMu serializes dispatches across session goroutines; the
	// dispatcher itself rejects overlapping dispatches.
	dispatchMu sync.Mutex
}

// Session represents a live connection session
type Session struct {
	ID           string
	conn         *websocket.Conn
	tail         bool
	lastSeq      uint64
	sendChan     chan []byte
	sendTextChan chan []byte // for JSON tail frames
	closeChan    chan struct{}
}

// NewServer creates a live protocol server over the given dispatcher
// and store.
func NewServer(dispatcher *flux.Dispatcher, store *forms.Store) *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// TODO: Implement proper origin checking
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		dispatcher: dispatcher,
		store:      store,
		basePath:   DefaultLivePath,
		sessions:   make(map[string]*Session),
		tails:      make(map[string]*Session),
	}
}

// SetBasePath overrides the endpoint prefix used to extract session IDs.
func (s *Server) SetBasePath(path string) {
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	s.basePath = path
}

// HandleWebSocket handles WebSocket upgrade and session management
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimPrefix(r.URL.Path, s.basePath)
	if sessionID == "" || strings.Contains(sessionID, "/") {
		http.Error(w, "Session ID required", http.StatusBadRequest)
		return
	}

	tail := r.URL.Query().Get("mode") == "tail"

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Live Server] Failed to upgrade connection: %v", err)
		return
	}

	session := s.addSession(sessionID, conn, tail)
	go s.handleConnection(session)
}

// addSession registers a new session, closing any previous connection
// with the same ID.
func (s *Server) addSession(sessionID string, conn *websocket.Conn, tail bool) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, exists := s.sessions[sessionID]; exists {
		old.conn.Close()
	}

	session := &Session{
		ID:           sessionID,
		conn:         conn,
		tail:         tail,
		sendChan:     make(chan []byte, 256),
		sendTextChan: make(chan []byte, 256),
		closeChan:    make(chan struct{}),
	}
	s.sessions[sessionID] = session
	if tail {
		s.tails[sessionID] = session
	}
	return session
}

// GetSession retrieves a session by ID
func (s *Server) GetSession(sessionID string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, exists := s.sessions[sessionID]
	return session, exists
}

// removeSession drops a session from both registries. The pointer check
// keeps a stale connection's cleanup from evicting its replacement.
func (s *Server) removeSession(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[sess.ID] == sess {
		delete(s.sessions, sess.ID)
	}
	if s.tails[sess.ID] == sess {
		delete(s.tails, sess.ID)
	}
}

// SessionCount returns the number of connected sessions.
func (s *Server) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// handleConnection manages the WebSocket connection for a session
func (s *Server) handleConnection(sess *Session) {
	var closeOnce sync.Once
	cleanup := func() {
		closeOnce.Do(func() {
			sess.conn.Close()
			close(sess.closeChan)
			s.removeSession(sess)
		})
	}
	defer cleanup()

	go sess.writer()

	sess.sendHello()
	log.Printf("[Live Session %s] Sent server HELLO (tail=%v)", sess.ID, sess.tail)

	sess.conn.SetReadDeadline(time.Now().Add(300 * time.Second))
	sess.conn.SetPongHandler(func(string) error {
		sess.conn.SetReadDeadline(time.Now().Add(300 * time.Second))
		return nil
	})

	for {
		messageType, data, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("[Live Session %s] Unexpected close: %v", sess.ID, err)
			}
			break
		}

		if messageType == websocket.BinaryMessage {
			s.handleBinaryMessage(sess, data)
		} else if messageType == websocket.TextMessage {
			log.Printf("[Live Session %s] Text message: %s", sess.ID, string(data))
		}
	}
}

// writer handles writing messages to the WebSocket
func (sess *Session) writer() {
	ticker := time.NewTicker(54 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-sess.sendChan:
			sess.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				sess.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := sess.conn.WriteMessage(websocket.BinaryMessage, message); err != nil {
				log.Printf("[Live Session %s] Failed to write message: %v", sess.ID, err)
				return
			}

		case message, ok := <-sess.sendTextChan:
			sess.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				return
			}
			if err := sess.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("[Live Session %s] Failed to write text message: %v", sess.ID, err)
				return
			}

		case <-ticker.C:
			sess.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := sess.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-sess.closeChan:
			return
		}
	}
}

// sendHello sends the initial hello message
func (sess *Session) sendHello() {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	enc.WriteBytes([]byte{byte(FrameControl)})
	enc.WriteString("HELLO")
	enc.WriteUvarint(sess.lastSeq)

	sess.send(buf.Bytes())
}

// sendControl sends a control message
func (sess *Session) sendControl(msgType string) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	enc.WriteBytes([]byte{byte(FrameControl)})
	enc.WriteString(msgType)

	sess.send(buf.Bytes())
}

// send queues a binary frame, dropping it if the buffer is full
func (sess *Session) send(data []byte) {
	select {
	case sess.sendChan <- data:
	default:
		log.Printf("[Live Session %s] Send buffer full, dropping frame", sess.ID)
	}
}

// handleBinaryMessage processes binary protocol messages
func (s *Server) handleBinaryMessage(sess *Session, data []byte) {
	if len(data) == 0 {
		return
	}

	switch MessageType(data[0]) {
	case FrameAction:
		action, err := DecodeAction(data)
		if err != nil {
			log.Printf("[Live Session %s] Failed to decode action: %v", sess.ID, err)
			return
		}
		s.handleAction(sess, action)

	case FrameControl:
		dec := NewDecoder(bytes.NewReader(data[1:]))
		msgType, err := dec.ReadString()
		if err != nil {
			log.Printf("[Live Session %s] Failed to decode control message type: %v", sess.ID, err)
			return
		}

		switch msgType {
		case "HELLO":
			resumable, err1 := dec.ReadUvarint()
			lastSeq, err2 := dec.ReadUvarint()
			if err1 != nil || err2 != nil {
				log.Printf("[Live Session %s] Failed to decode HELLO params: %v, %v", sess.ID, err1, err2)
				return
			}
			log.Printf("[Live Session %s] Client hello: resumable=%v, lastSeq=%d", sess.ID, resumable > 0, lastSeq)

		case "PING":
			sess.sendControl("PONG")
		}
	}
}

// handleAction dispatches a decoded form action, acks it, and feeds
// tail sessions.
func (s *Server) handleAction(sess *Session, action flux.Action) {
	log.Printf("[Live Session %s] Action: %s", sess.ID, action.Type())

	formID := formIDOf(action)

	// The version is read under dispatchMu so each ack carries the
	// version produced by its own action, not a later session's.
	s.dispatchMu.Lock()
	s.dispatcher.Dispatch(flux.Envelope{Action: action})
	var version uint64
	if form, ok := s.store.Form(formID); ok {
		version = form.Version
	}
	s.dispatchMu.Unlock()

	sess.send(EncodeAck(Ack{FormID: formID, Version: version}))
	sess.lastSeq++

	s.broadcastTail(sess.ID, action, version)
}

// broadcastTail sends the action as JSON to every tail session.
func (s *Server) broadcastTail(sourceID string, action flux.Action, version uint64) {
	s.mu.RLock()
	tails := make([]*Session, 0, len(s.tails))
	for _, t := range s.tails {
		tails = append(tails, t)
	}
	s.mu.RUnlock()

	if len(tails) == 0 {
		return
	}

	event := TailEvent{
		Session: sourceID,
		Type:    action.Type(),
		FormID:  formIDOf(action),
		Version: version,
	}
	switch a := action.(type) {
	case forms.FormDataPatched:
		event.Update = a.Update
	case forms.FormSubmit:
		event.FormType = a.FormType
		event.RequestContext = a.RequestContext
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[Live Server] Failed to marshal tail event: %v", err)
		return
	}

	for _, t := range tails {
		select {
		case t.sendTextChan <- data:
		default:
			log.Printf("[Live Session %s] Tail buffer full, dropping event", t.ID)
		}
	}
}

// formIDOf extracts the form ID from any of the three action shapes.
func formIDOf(action flux.Action) string {
	switch a := action.(type) {
	case forms.FormDataPatched:
		return a.FormID
	case forms.FormSubmit:
		return a.FormID
	case forms.FormReset:
		return a.FormID
	}
	return ""
}
