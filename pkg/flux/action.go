package flux

// Action is a tagged message describing an intended state change.
// The Type method returns the string discriminant for logging and routing.
type Action interface {
	Type() string
}

// Envelope wraps an action for delivery to the dispatcher.
// This is the standard unit handed to Dispatcher.Dispatch.
type Envelope struct {
	Action Action
}
