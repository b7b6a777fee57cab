package definition

import (
	"fmt"
	"reflect"

	"github.com/opero/lifeline/model"
)

// VError describes a single validation error in a definition.
type VError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e VError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validator checks definitions structurally and referentially before they
// are compiled. Side-effect and custom-predicate references are checked
// against the names registered at startup, so a typo in a definition file
// fails the process at boot instead of denying transitions at runtime.
type Validator struct {
	effectNames    map[string]bool
	predicateNames map[string]bool
}

// NewValidator creates a Validator that accepts the given registered
// side-effect and custom-predicate names.
func NewValidator(effectNames, predicateNames []string) *Validator {
	v := &Validator{
		effectNames:    make(map[string]bool, len(effectNames)),
		predicateNames: make(map[string]bool, len(predicateNames)),
	}
	for _, n := range effectNames {
		v.effectNames[n] = true
	}
	for _, n := range predicateNames {
		v.predicateNames[n] = true
	}
	return v
}

// Validate checks all definitions and returns every problem found.
func (v *Validator) Validate(defs []model.EntityDefinition) []VError {
	var errs []VError

	seen := make(map[string]bool, len(defs))
	for i, def := range defs {
		prefix := fmt.Sprintf("definitions[%d]", i)
		if def.Entity != "" && seen[def.Entity] {
			errs = append(errs, VError{
				Path: prefix + ".entity", Code: "DUPLICATE",
				Message: fmt.Sprintf("entity %q defined more than once", def.Entity),
			})
		}
		seen[def.Entity] = true
		errs = append(errs, v.validateEntity(prefix, def)...)
	}
	return errs
}

func (v *Validator) validateEntity(prefix string, def model.EntityDefinition) []VError {
	var errs []VError

	if def.Entity == "" {
		errs = append(errs, VError{Path: prefix + ".entity", Code: "REQUIRED", Message: "entity is required"})
	}
	if len(def.States) == 0 {
		errs = append(errs, VError{Path: prefix + ".states", Code: "REQUIRED", Message: "at least one state is required"})
	}

	states := make(map[string]bool, len(def.States))
	for i, s := range def.States {
		sp := fmt.Sprintf("%s.states[%d]", prefix, i)
		if s.Name == "" {
			errs = append(errs, VError{Path: sp + ".name", Code: "REQUIRED", Message: "state name is required"})
			continue
		}
		if states[s.Name] {
			errs = append(errs, VError{
				Path: sp + ".name", Code: "DUPLICATE",
				Message: fmt.Sprintf("state %q defined more than once", s.Name),
			})
		}
		states[s.Name] = true
	}

	if def.InitialState == "" {
		errs = append(errs, VError{Path: prefix + ".initial_state", Code: "REQUIRED", Message: "initial_state is required"})
	} else if !states[def.InitialState] {
		errs = append(errs, VError{
			Path: prefix + ".initial_state", Code: "UNKNOWN_STATE",
			Message: fmt.Sprintf("initial_state %q is not a declared state", def.InitialState),
		})
	}

	// Rows sharing a transition name must agree on everything except the
	// side-effect, which may differ per source state.
	firstRow := make(map[string]model.TransitionSpec)
	boundSources := make(map[string]bool)

	for i, t := range def.Transitions {
		tp := fmt.Sprintf("%s.transitions[%d]", prefix, i)

		if t.Name == "" {
			errs = append(errs, VError{Path: tp + ".name", Code: "REQUIRED", Message: "transition name is required"})
			continue
		}
		if len(t.From) == 0 {
			errs = append(errs, VError{Path: tp + ".from", Code: "REQUIRED", Message: "at least one source state is required"})
		}
		for _, src := range t.From {
			if !states[src] {
				errs = append(errs, VError{
					Path: tp + ".from", Code: "UNKNOWN_STATE",
					Message: fmt.Sprintf("source state %q is not a declared state", src),
				})
			}
			key := t.Name + "\x00" + src
			if boundSources[key] {
				errs = append(errs, VError{
					Path: tp + ".from", Code: "DUPLICATE",
					Message: fmt.Sprintf("transition %q bound to source state %q more than once", t.Name, src),
				})
			}
			boundSources[key] = true
		}
		if t.To == "" {
			errs = append(errs, VError{Path: tp + ".to", Code: "REQUIRED", Message: "destination state is required"})
		} else if !states[t.To] {
			errs = append(errs, VError{
				Path: tp + ".to", Code: "UNKNOWN_STATE",
				Message: fmt.Sprintf("destination state %q is not a declared state", t.To),
			})
		}

		if prev, ok := firstRow[t.Name]; ok {
			if prev.To != t.To {
				errs = append(errs, VError{
					Path: tp + ".to", Code: "CONFLICT",
					Message: fmt.Sprintf("transition %q declares destinations %q and %q; a transition lands on a single state", t.Name, prev.To, t.To),
				})
			}
			if !specAgrees(prev.Permission, t.Permission) {
				errs = append(errs, VError{
					Path: tp + ".permission", Code: "CONFLICT",
					Message: fmt.Sprintf("transition %q declares conflicting permissions across rows", t.Name),
				})
			}
			if !fieldsAgree(prev.RequiredFields, t.RequiredFields) {
				errs = append(errs, VError{
					Path: tp + ".required_fields", Code: "CONFLICT",
					Message: fmt.Sprintf("transition %q declares conflicting required_fields across rows", t.Name),
				})
			}
		} else {
			firstRow[t.Name] = t
		}

		if t.SideEffect != "" && !v.effectNames[t.SideEffect] {
			errs = append(errs, VError{
				Path: tp + ".side_effect", Code: "UNKNOWN_HANDLER",
				Message: fmt.Sprintf("side effect %q is not registered", t.SideEffect),
			})
		}
		errs = append(errs, v.validatePermission(tp+".permission", t.Permission)...)
	}

	return errs
}

func (v *Validator) validatePermission(path string, spec model.PermissionSpec) []VError {
	var errs []VError
	if spec.Custom != "" && !v.predicateNames[spec.Custom] {
		errs = append(errs, VError{
			Path: path + ".custom", Code: "UNKNOWN_PREDICATE",
			Message: fmt.Sprintf("custom predicate %q is not registered", spec.Custom),
		})
	}
	for i, sub := range spec.Any {
		errs = append(errs, v.validatePermission(fmt.Sprintf("%s.any[%d]", path, i), sub)...)
	}
	return errs
}

// specAgrees treats an empty spec as "inherit": a later row may leave the
// permission out and take the first row's.
func specAgrees(a, b model.PermissionSpec) bool {
	if a.IsEmpty() || b.IsEmpty() {
		return true
	}
	return reflect.DeepEqual(a, b)
}

func fieldsAgree(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}
