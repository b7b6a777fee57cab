// Package capability evaluates permission predicates: the closed set of
// rules deciding whether an acting principal may invoke a transition on a
// document.
package capability

import (
	"fmt"
	"sort"
	"sync"

	"github.com/opero/lifeline/model"
)

// Predicate decides whether the acting context may proceed, given the
// document as it currently is. Predicates must be side-effect-free.
type Predicate interface {
	Allows(rctx *model.RequestContext, doc model.Document) bool
}

// PredicateFunc adapts a plain function to the Predicate interface.
type PredicateFunc func(rctx *model.RequestContext, doc model.Document) bool

// Allows implements Predicate.
func (f PredicateFunc) Allows(rctx *model.RequestContext, doc model.Document) bool {
	return f(rctx, doc)
}

// AllowAny permits every authenticated principal. It is the predicate
// compiled from an empty permission spec.
type AllowAny struct{}

// Allows implements Predicate.
func (AllowAny) Allows(_ *model.RequestContext, _ model.Document) bool { return true }

// AnyOfGroups permits principals holding at least one of the listed groups.
type AnyOfGroups []string

// Allows implements Predicate.
func (g AnyOfGroups) Allows(rctx *model.RequestContext, _ model.Document) bool {
	return rctx != nil && rctx.HasAnyGroup(g...)
}

// IsOwner permits the principal whose ID equals the named document
// attribute. The attribute is compared as a string so UUIDs stored either
// way match.
type IsOwner struct {
	Attribute string
}

// Allows implements Predicate.
func (o IsOwner) Allows(rctx *model.RequestContext, doc model.Document) bool {
	if rctx == nil || rctx.PrincipalID == "" || doc == nil {
		return false
	}
	v := doc.Attr(o.Attribute)
	if v == nil {
		return false
	}
	return fmt.Sprint(v) == rctx.PrincipalID
}

// AnyOf permits when any member predicate permits (OR semantics).
type AnyOf []Predicate

// Allows implements Predicate.
func (ps AnyOf) Allows(rctx *model.RequestContext, doc model.Document) bool {
	for _, p := range ps {
		if p.Allows(rctx, doc) {
			return true
		}
	}
	return false
}

// Registry stores custom predicates registered in code at startup, looked up
// by name from definition files. It is safe for concurrent use after initial
// registration.
type Registry struct {
	mu         sync.RWMutex
	predicates map[string]Predicate
}

// NewRegistry creates an empty custom-predicate registry.
func NewRegistry() *Registry {
	return &Registry{predicates: make(map[string]Predicate)}
}

// Register adds a predicate under the given name. Panics if the name is
// already taken, since that indicates a wiring mistake at startup.
func (r *Registry) Register(name string, p Predicate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.predicates[name]; exists {
		panic(fmt.Sprintf("capability: predicate %q already registered", name))
	}
	r.predicates[name] = p
}

// Get returns the predicate registered under the given name.
func (r *Registry) Get(name string) (Predicate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.predicates[name]
	return p, ok
}

// Names returns all registered predicate names, sorted alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.predicates))
	for name := range r.predicates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Compile turns a declarative permission spec into a runtime predicate.
// Clauses declared side by side OR together; an empty spec compiles to
// AllowAny. Unknown custom names are an error so misconfiguration fails at
// startup rather than denying at runtime.
func Compile(spec model.PermissionSpec, customs *Registry) (Predicate, error) {
	if spec.IsEmpty() {
		return AllowAny{}, nil
	}

	var clauses AnyOf
	if len(spec.Groups) > 0 {
		clauses = append(clauses, AnyOfGroups(spec.Groups))
	}
	if spec.Owner != "" {
		clauses = append(clauses, IsOwner{Attribute: spec.Owner})
	}
	if spec.Custom != "" {
		if customs == nil {
			return nil, fmt.Errorf("custom predicate %q referenced but no registry configured", spec.Custom)
		}
		p, ok := customs.Get(spec.Custom)
		if !ok {
			return nil, fmt.Errorf("custom predicate %q is not registered", spec.Custom)
		}
		clauses = append(clauses, p)
	}
	for _, sub := range spec.Any {
		p, err := Compile(sub, customs)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, p)
	}

	if len(clauses) == 1 {
		return clauses[0], nil
	}
	return clauses, nil
}
