package forms

import "github.com/recera/formflux/pkg/flux"

// Action type discriminants for form state changes.
const (
	// ActionFormDataPatched applies a partial update to a form's data.
	// Payload: FormDataPatched
	ActionFormDataPatched = "FORM_DATA_PATCHED"

	// ActionFormSubmit requests submission of a form.
	// Payload: FormSubmit
	ActionFormSubmit = "FORM_SUBMIT"

	// ActionFormReset clears a form's state.
	// Payload: FormReset
	ActionFormReset = "FORM_RESET"
)

// FormDataPatched carries a partial update to a form's data. The shape
// of Update is owned by the consuming store, not by this package.
type FormDataPatched struct {
	FormID string
	Update map[string]any
}

// Type returns the action discriminant.
func (FormDataPatched) Type() string { return ActionFormDataPatched }

// FormSubmit requests that a form be submitted. RequestContext is an
// opaque payload forwarded to whatever performs the submission.
type FormSubmit struct {
	FormID         string
	FormType       string
	RequestContext map[string]any
}

// Type returns the action discriminant.
func (FormSubmit) Type() string { return ActionFormSubmit }

// FormReset requests that a form's state be cleared.
type FormReset struct {
	FormID string
}

// Type returns the action discriminant.
func (FormReset) Type() string { return ActionFormReset }

// Compile-time checks that all form messages satisfy flux.Action.
var (
	_ flux.Action = FormDataPatched{}
	_ flux.Action = FormSubmit{}
	_ flux.Action = FormReset{}
)
