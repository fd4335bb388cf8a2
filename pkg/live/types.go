package live

// MessageType represents the type of live protocol frame
type MessageType uint8

const (
	// Frame types
	FrameAck     MessageType = 0x00
	FrameAction  MessageType = 0x01
	FrameControl MessageType = 0x02
)

// ActionKind identifies the form action carried in an action frame
type ActionKind uint8

const (
	KindPatch  ActionKind = 0x01
	KindSubmit ActionKind = 0x02
	KindReset  ActionKind = 0x03
)

// Ack acknowledges one processed action frame, carrying the form's
// resulting version.
type Ack struct {
	FormID  string
	Version uint64
}

// TailEvent is the JSON representation of an action broadcast to tail
// sessions (and consumed by the tail CLI).
type TailEvent struct {
	Session        string         `json:"session"`
	Type           string         `json:"type"`
	FormID         string         `json:"formId"`
	FormType       string         `json:"formType,omitempty"`
	Update         map[string]any `json:"update,omitempty"`
	RequestContext map[string]any `json:"requestContext,omitempty"`
	Version        uint64         `json:"version"`
}
