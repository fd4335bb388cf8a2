package forms

import (
	"reflect"
	"testing"

	"github.com/recera/formflux/pkg/flux"
)

// recordingSink captures every envelope it receives
type recordingSink struct {
	envelopes []flux.Envelope
}

func (r *recordingSink) Dispatch(env flux.Envelope) {
	r.envelopes = append(r.envelopes, env)
}

func TestActions_PatchForm(t *testing.T) {
	sink := &recordingSink{}
	actions := NewActions(sink)

	patch := map[string]any{"email": "a@b.com"}
	actions.PatchForm("login", patch)

	if len(sink.envelopes) != 1 {
		t.Fatalf("Expected exactly 1 dispatch, got %d", len(sink.envelopes))
	}

	action, ok := sink.envelopes[0].Action.(FormDataPatched)
	if !ok {
		t.Fatalf("Expected FormDataPatched, got %T", sink.envelopes[0].Action)
	}
	if action.Type() != "FORM_DATA_PATCHED" {
		t.Errorf("Expected type FORM_DATA_PATCHED, got %s", action.Type())
	}
	if action.FormID != "login" {
		t.Errorf("Expected formID login, got %s", action.FormID)
	}
	if !reflect.DeepEqual(action.Update, map[string]any{"email": "a@b.com"}) {
		t.Errorf("Expected update %v, got %v", patch, action.Update)
	}
}

func TestActions_SubmitForm(t *testing.T) {
	sink := &recordingSink{}
	actions := NewActions(sink)

	reqCtx := map[string]any{"csrf": "tok-1"}
	actions.SubmitForm("signup", "registration", reqCtx)

	if len(sink.envelopes) != 1 {
		t.Fatalf("Expected exactly 1 dispatch, got %d", len(sink.envelopes))
	}

	action, ok := sink.envelopes[0].Action.(FormSubmit)
	if !ok {
		t.Fatalf("Expected FormSubmit, got %T", sink.envelopes[0].Action)
	}
	if action.Type() != "FORM_SUBMIT" {
		t.Errorf("Expected type FORM_SUBMIT, got %s", action.Type())
	}
	if action.FormID != "signup" {
		t.Errorf("Expected formID signup, got %s", action.FormID)
	}
	if action.FormType != "registration" {
		t.Errorf("Expected formType registration, got %s", action.FormType)
	}
	if !reflect.DeepEqual(action.RequestContext, map[string]any{"csrf": "tok-1"}) {
		t.Errorf("Expected requestContext %v, got %v", reqCtx, action.RequestContext)
	}
}

func TestActions_ResetForm(t *testing.T) {
	sink := &recordingSink{}
	actions := NewActions(sink)

	actions.ResetForm("login")

	if len(sink.envelopes) != 1 {
		t.Fatalf("Expected exactly 1 dispatch, got %d", len(sink.envelopes))
	}

	action, ok := sink.envelopes[0].Action.(FormReset)
	if !ok {
		t.Fatalf("Expected FormReset, got %T", sink.envelopes[0].Action)
	}
	if action.Type() != "FORM_RESET" {
		t.Errorf("Expected type FORM_RESET, got %s", action.Type())
	}
	if action.FormID != "login" {
		t.Errorf("Expected formID login, got %s", action.FormID)
	}
}

func TestActions_DoNotMutateArguments(t *testing.T) {
	sink := &recordingSink{}
	actions := NewActions(sink)

	patch := map[string]any{"email": "a@b.com", "nested": map[string]any{"n": 1}}
	reqCtx := map[string]any{"csrf": "tok-1"}

	actions.PatchForm("login", patch)
	actions.SubmitForm("login", "auth", reqCtx)

	if !reflect.DeepEqual(patch, map[string]any{"email": "a@b.com", "nested": map[string]any{"n": 1}}) {
		t.Errorf("Expected patch to be unmodified, got %v", patch)
	}
	if !reflect.DeepEqual(reqCtx, map[string]any{"csrf": "tok-1"}) {
		t.Errorf("Expected requestContext to be unmodified, got %v", reqCtx)
	}
}

func TestActions_AcceptsNilPayloads(t *testing.T) {
	sink := &recordingSink{}
	actions := NewActions(sink)

	// No validation: nil payloads and empty IDs pass through as-is.
	actions.PatchForm("", nil)
	actions.SubmitForm("", "", nil)

	if len(sink.envelopes) != 2 {
		t.Fatalf("Expected 2 dispatches, got %d", len(sink.envelopes))
	}

	patched := sink.envelopes[0].Action.(FormDataPatched)
	if patched.FormID != "" || patched.Update != nil {
		t.Errorf("Expected empty patch action to pass through, got %+v", patched)
	}
}

func TestActions_OneCallOneDispatch(t *testing.T) {
	sink := &recordingSink{}
	actions := NewActions(sink)

	actions.PatchForm("a", map[string]any{"x": 1})
	actions.SubmitForm("a", "t", nil)
	actions.ResetForm("a")

	if len(sink.envelopes) != 3 {
		t.Errorf("Expected 3 dispatches for 3 calls, got %d", len(sink.envelopes))
	}
}

func TestActions_AgainstRealDispatcher(t *testing.T) {
	d := flux.NewDispatcher()
	actions := NewActions(d)

	var received []flux.Envelope
	d.Register(func(env flux.Envelope) {
		received = append(received, env)
	})

	actions.PatchForm("login", map[string]any{"email": "a@b.com"})

	if len(received) != 1 {
		t.Fatalf("Expected 1 envelope through the real dispatcher, got %d", len(received))
	}
	if received[0].Action.Type() != "FORM_DATA_PATCHED" {
		t.Errorf("Expected FORM_DATA_PATCHED, got %s", received[0].Action.Type())
	}
}
