package forms

import "github.com/recera/formflux/pkg/flux"

// Sink is the dispatching dependency of the action creators. Satisfied
// by *flux.Dispatcher; tests and adapters provide their own.
type Sink interface {
	Dispatch(flux.Envelope)
}

// Actions builds form action messages and hands them to a dispatcher.
// Each creator performs exactly one dispatch before returning and does
// no validation: any formID or payload value is accepted as-is, and
// payloads are never copied or mutated.
type Actions struct {
	dispatcher Sink
}

// NewActions creates action creators bound to the given dispatcher.
func NewActions(dispatcher Sink) *Actions {
	return &Actions{dispatcher: dispatcher}
}

// PatchForm dispatches a FORM_DATA_PATCHED message applying a partial
// update to the identified form.
func (a *Actions) PatchForm(formID string, patch map[string]any) {
	a.dispatcher.Dispatch(flux.Envelope{Action: FormDataPatched{
		FormID: formID,
		Update: patch,
	}})
}

// SubmitForm dispatches a FORM_SUBMIT message for the identified form.
func (a *Actions) SubmitForm(formID, formType string, requestContext map[string]any) {
	a.dispatcher.Dispatch(flux.Envelope{Action: FormSubmit{
		FormID:         formID,
		FormType:       formType,
		RequestContext: requestContext,
	}})
}

// ResetForm dispatches a FORM_RESET message for the identified form.
func (a *Actions) ResetForm(formID string) {
	a.dispatcher.Dispatch(flux.Envelope{Action: FormReset{
		FormID: formID,
	}})
}
