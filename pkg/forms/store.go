package forms

import (
	"sort"
	"sync"

	"github.com/recera/formflux/pkg/flux"
)

// Form is a snapshot of one form's state. Data is a deep copy; callers
// may mutate it freely without affecting the store.
type Form struct {
	ID          string
	FormType    string
	Data        map[string]any
	Dirty       bool
	SubmitCount int
	Version     uint64
	LastError   string
}

// Submission is the snapshot handed to a Submitter when a FORM_SUBMIT
// action arrives.
type Submission struct {
	FormID         string
	FormType       string
	Data           map[string]any
	RequestContext map[string]any
}

// Submitter performs the actual submission of a form.
type Submitter interface {
	Submit(Submission) error
}

// SubmitterFunc adapts a function to the Submitter interface.
type SubmitterFunc func(Submission) error

// Submit calls the function.
func (f SubmitterFunc) Submit(s Submission) error { return f(s) }

// Listener receives a snapshot of a form after each change.
type Listener func(Form)

// entry is the store's mutable record for one form
type entry struct {
	formType    string
	data        map[string]any
	initial     map[string]any
	dirty       bool
	submitCount int
	version     uint64
	lastError   string
}

// Store consumes form actions from a dispatcher and owns form state.
//
// Forms come into existence on first patch, or up front via Seed. All
// snapshots returned or delivered to listeners carry deep-copied data.
type Store struct {
	mu    sync.RWMutex
	forms map[string]*entry

	submitter Submitter
	handlerID flux.HandlerID

	// Listeners - callbacks notified after each state change
	listeners    map[uint32]Listener
	listenersMu  sync.RWMutex
	nextListener uint32
}

// NewStore creates a store and registers it on the dispatcher.
func NewStore(d *flux.Dispatcher, submitter Submitter) *Store {
	s := &Store{
		forms:     make(map[string]*entry),
		submitter: submitter,
		listeners: make(map[uint32]Listener),
	}
	s.handlerID = d.Register(s.handle)
	return s
}

// HandlerID returns the store's dispatcher registration, for WaitFor.
func (s *Store) HandlerID() flux.HandlerID {
	return s.handlerID
}

// Seed declares a form up front with a type and initial data. Reset
// returns the form to this data. Re-seeding an existing form replaces
// its state.
func (s *Store) Seed(formID, formType string, initial map[string]any) {
	s.mu.Lock()
	e := &entry{
		formType: formType,
		data:     deepCopyMap(initial),
		initial:  deepCopyMap(initial),
	}
	s.forms[formID] = e
	snap := e.snapshot(formID)
	s.mu.Unlock()

	s.notify(snap)
}

// Form returns a snapshot of one form.
func (s *Store) Form(formID string) (Form, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.forms[formID]
	if !ok {
		return Form{}, false
	}
	return e.snapshot(formID), true
}

// Forms returns snapshots of all forms, sorted by ID.
func (s *Store) Forms() []Form {
	s.mu.RLock()
	out := make([]Form, 0, len(s.forms))
	for id, e := range s.forms {
		out = append(out, e.snapshot(id))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Subscribe registers a listener and returns its ID.
func (s *Store) Subscribe(l Listener) uint32 {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	s.nextListener++
	id := s.nextListener
	s.listeners[id] = l
	return id
}

// Unsubscribe removes a listener.
func (s *Store) Unsubscribe(id uint32) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	delete(s.listeners, id)
}

// handle processes a single dispatched envelope
func (s *Store) handle(env flux.Envelope) {
	switch a := env.Action.(type) {
	case FormDataPatched:
		s.applyPatch(a)
	case FormSubmit:
		s.applySubmit(a)
	case FormReset:
		s.applyReset(a)
	}
}

func (s *Store) applyPatch(a FormDataPatched) {
	s.mu.Lock()
	e := s.getOrCreate(a.FormID)
	for k, v := range a.Update {
		e.data[k] = deepCopyValue(v)
	}
	e.dirty = true
	e.version++
	snap := e.snapshot(a.FormID)
	s.mu.Unlock()

	s.notify(snap)
}

func (s *Store) applySubmit(a FormSubmit) {
	s.mu.Lock()
	e := s.getOrCreate(a.FormID)
	if a.FormType != "" {
		e.formType = a.FormType
	}
	sub := Submission{
		FormID:         a.FormID,
		FormType:       e.formType,
		Data:           deepCopyMap(e.data),
		RequestContext: a.RequestContext,
	}
	s.mu.Unlock()

	// Run the submitter outside the lock; it may be slow or re-enter
	// the store's read paths.
	var submitErr error
	if s.submitter != nil {
		submitErr = s.submitter.Submit(sub)
	}

	s.mu.Lock()
	// Re-fetch the entry: Seed may have replaced it while the submitter
	// was running, and the result must land on the store's live entry.
	e = s.getOrCreate(a.FormID)
	e.submitCount++
	if submitErr != nil {
		e.lastError = submitErr.Error()
	} else {
		e.dirty = false
		e.lastError = ""
	}
	e.version++
	snap := e.snapshot(a.FormID)
	s.mu.Unlock()

	s.notify(snap)
}

func (s *Store) applyReset(a FormReset) {
	s.mu.Lock()
	e := s.getOrCreate(a.FormID)
	e.data = deepCopyMap(e.initial)
	e.dirty = false
	e.submitCount = 0
	e.lastError = ""
	e.version++
	snap := e.snapshot(a.FormID)
	s.mu.Unlock()

	s.notify(snap)
}

// getOrCreate returns the entry for a form, creating it on first use.
// Caller must hold s.mu.
func (s *Store) getOrCreate(formID string) *entry {
	if e, ok := s.forms[formID]; ok {
		return e
	}
	e := &entry{
		data:    make(map[string]any),
		initial: make(map[string]any),
	}
	s.forms[formID] = e
	return e
}

// notify delivers a snapshot to all listeners outside the store lock.
func (s *Store) notify(snap Form) {
	s.listenersMu.RLock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.listenersMu.RUnlock()

	for _, l := range listeners {
		l(snap)
	}
}

func (e *entry) snapshot(formID string) Form {
	return Form{
		ID:          formID,
		FormType:    e.formType,
		Data:        deepCopyMap(e.data),
		Dirty:       e.dirty,
		SubmitCount: e.submitCount,
		Version:     e.version,
		LastError:   e.lastError,
	}
}

// deepCopyMap copies a payload map, recursing into nested maps and
// slices. Other values are copied by assignment.
func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return v
	}
}
