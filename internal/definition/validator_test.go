package definition

import (
	"strings"
	"testing"

	"github.com/opero/lifeline/model"
)

func validDefinition() model.EntityDefinition {
	return model.EntityDefinition{
		Entity:       "order",
		InitialState: "created",
		States: []model.StateSpec{
			{Name: "created"},
			{Name: "validation"},
			{Name: "accepted"},
		},
		Transitions: []model.TransitionSpec{
			{Name: "submit", From: []string{"created"}, To: "validation", SideEffect: "notify"},
			{Name: "accept", From: []string{"validation"}, To: "accepted"},
		},
	}
}

func newTestValidator() *Validator {
	return NewValidator([]string{"notify", "export"}, []string{"is_weekend"})
}

func hasError(t *testing.T, errs []VError, code, fragment string) {
	t.Helper()
	for _, e := range errs {
		if e.Code == code && strings.Contains(e.Message, fragment) {
			return
		}
	}
	t.Errorf("no %s error mentioning %q in %+v", code, fragment, errs)
}

func TestValidator_validDefinition(t *testing.T) {
	if errs := newTestValidator().Validate([]model.EntityDefinition{validDefinition()}); len(errs) != 0 {
		t.Errorf("unexpected errors: %+v", errs)
	}
}

func TestValidator_duplicateEntity(t *testing.T) {
	errs := newTestValidator().Validate([]model.EntityDefinition{validDefinition(), validDefinition()})
	hasError(t, errs, "DUPLICATE", `entity "order"`)
}

func TestValidator_missingBasics(t *testing.T) {
	def := model.EntityDefinition{}
	errs := newTestValidator().Validate([]model.EntityDefinition{def})
	hasError(t, errs, "REQUIRED", "entity is required")
	hasError(t, errs, "REQUIRED", "at least one state")
	hasError(t, errs, "REQUIRED", "initial_state")
}

func TestValidator_unknownInitialState(t *testing.T) {
	def := validDefinition()
	def.InitialState = "limbo"
	errs := newTestValidator().Validate([]model.EntityDefinition{def})
	hasError(t, errs, "UNKNOWN_STATE", `"limbo"`)
}

func TestValidator_duplicateState(t *testing.T) {
	def := validDefinition()
	def.States = append(def.States, model.StateSpec{Name: "created"})
	errs := newTestValidator().Validate([]model.EntityDefinition{def})
	hasError(t, errs, "DUPLICATE", `state "created"`)
}

func TestValidator_unknownStatesInTransition(t *testing.T) {
	def := validDefinition()
	def.Transitions = append(def.Transitions,
		model.TransitionSpec{Name: "warp", From: []string{"limbo"}, To: "void"})
	errs := newTestValidator().Validate([]model.EntityDefinition{def})
	hasError(t, errs, "UNKNOWN_STATE", `source state "limbo"`)
	hasError(t, errs, "UNKNOWN_STATE", `destination state "void"`)
}

func TestValidator_duplicateNameSourcePair(t *testing.T) {
	def := validDefinition()
	// submit is already bound to created above.
	def.Transitions = append(def.Transitions,
		model.TransitionSpec{Name: "submit", From: []string{"created"}, To: "validation"})
	errs := newTestValidator().Validate([]model.EntityDefinition{def})
	hasError(t, errs, "DUPLICATE", `"submit" bound to source state "created"`)
}

func TestValidator_rowsMustAgreeOnDestination(t *testing.T) {
	def := validDefinition()
	def.Transitions = append(def.Transitions,
		model.TransitionSpec{Name: "submit", From: []string{"validation"}, To: "accepted"})
	errs := newTestValidator().Validate([]model.EntityDefinition{def})
	hasError(t, errs, "CONFLICT", "single state")
}

func TestValidator_rowsMustAgreeOnPermission(t *testing.T) {
	def := validDefinition()
	def.Transitions[0].Permission = model.PermissionSpec{Groups: []string{"qa"}}
	def.Transitions = append(def.Transitions,
		model.TransitionSpec{
			Name: "submit", From: []string{"validation"}, To: "validation",
			Permission: model.PermissionSpec{Groups: []string{"support"}},
		})
	errs := newTestValidator().Validate([]model.EntityDefinition{def})
	hasError(t, errs, "CONFLICT", "conflicting permissions")
}

func TestValidator_laterRowMayOmitPermission(t *testing.T) {
	def := validDefinition()
	def.Transitions[0].Permission = model.PermissionSpec{Groups: []string{"qa"}}
	def.Transitions = append(def.Transitions,
		model.TransitionSpec{Name: "submit", From: []string{"validation"}, To: "validation"})
	for _, e := range newTestValidator().Validate([]model.EntityDefinition{def}) {
		if e.Code == "CONFLICT" {
			t.Errorf("empty later row flagged as conflict: %+v", e)
		}
	}
}

func TestValidator_rowsMustAgreeOnRequiredFields(t *testing.T) {
	def := validDefinition()
	def.Transitions[0].RequiredFields = []string{"message"}
	def.Transitions = append(def.Transitions,
		model.TransitionSpec{
			Name: "submit", From: []string{"validation"}, To: "validation",
			RequiredFields: []string{"reason"},
		})
	errs := newTestValidator().Validate([]model.EntityDefinition{def})
	hasError(t, errs, "CONFLICT", "conflicting required_fields")
}

func TestValidator_unknownSideEffect(t *testing.T) {
	def := validDefinition()
	def.Transitions[0].SideEffect = "teleport"
	errs := newTestValidator().Validate([]model.EntityDefinition{def})
	hasError(t, errs, "UNKNOWN_HANDLER", `"teleport"`)
}

func TestValidator_unknownCustomPredicate(t *testing.T) {
	def := validDefinition()
	def.Transitions[0].Permission = model.PermissionSpec{Custom: "ghost"}
	errs := newTestValidator().Validate([]model.EntityDefinition{def})
	hasError(t, errs, "UNKNOWN_PREDICATE", `"ghost"`)

	// Nested specs are checked too.
	def = validDefinition()
	def.Transitions[0].Permission = model.PermissionSpec{
		Any: []model.PermissionSpec{{Custom: "ghost"}},
	}
	errs = newTestValidator().Validate([]model.EntityDefinition{def})
	hasError(t, errs, "UNKNOWN_PREDICATE", `"ghost"`)
}

func TestValidator_knownNamesAccepted(t *testing.T) {
	def := validDefinition()
	def.Transitions[0].Permission = model.PermissionSpec{Custom: "is_weekend"}
	def.Transitions[1].SideEffect = "export"
	if errs := newTestValidator().Validate([]model.EntityDefinition{def}); len(errs) != 0 {
		t.Errorf("unexpected errors: %+v", errs)
	}
}
