package definition

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/opero/lifeline/internal/capability"
	"github.com/opero/lifeline/model"
)

// Transition is the compiled, immutable form of one named transition: a set
// of valid source states, a single destination, one permission predicate,
// required payload fields, and a side-effect handler per source state.
type Transition struct {
	Name           string
	Title          string
	Destination    string
	Sources        []string
	RequiredFields []string
	Permission     capability.Predicate

	sourceSet      map[string]bool
	effectBySource map[string]string
}

// ValidFrom reports whether the transition may fire from the given state.
func (t *Transition) ValidFrom(state string) bool {
	return t.sourceSet[state]
}

// EffectFor returns the side-effect handler name bound to the given source
// state, or "" when the pairing has none. Dispatch is per (source state,
// transition name): the same transition may mean different work depending on
// where the document currently is.
func (t *Transition) EffectFor(state string) string {
	return t.effectBySource[state]
}

// Permitted implements the permission check for this transition. State
// validity precedes predicate evaluation: when the document's current state
// is not a valid source, the result is false regardless of the context. The
// predicate sees the document in its current, not destination, state.
func (t *Transition) Permitted(rctx *model.RequestContext, doc model.Document) bool {
	if doc == nil || !t.ValidFrom(doc.CurrentState()) {
		return false
	}
	return t.Permission.Allows(rctx, doc)
}

// Workflow is the compiled definition of one entity kind's lifecycle. It is
// immutable after compilation; every lookup structure is built once.
type Workflow struct {
	Entity       string
	Title        string
	InitialState string
	Checksum     string

	stateOrder  []model.StateSpec
	states      map[string]model.StateSpec
	order       []*Transition
	transitions map[string]*Transition
	bySource    map[string][]*Transition
}

// State returns the named state.
func (w *Workflow) State(name string) (model.StateSpec, bool) {
	s, ok := w.states[name]
	return s, ok
}

// States returns all states in declaration order.
func (w *Workflow) States() []model.StateSpec {
	return w.stateOrder
}

// Transition returns the named transition.
func (w *Workflow) Transition(name string) (*Transition, bool) {
	t, ok := w.transitions[name]
	return t, ok
}

// Transitions returns all transitions in declaration order.
func (w *Workflow) Transitions() []*Transition {
	return w.order
}

// TransitionsFrom returns the transitions whose sources include the given
// state, in declaration order. The index is precomputed at compile time;
// every permission check and introspection call goes through it.
func (w *Workflow) TransitionsFrom(state string) []*Transition {
	return w.bySource[state]
}

// Compile builds a runtime Workflow from a raw definition. Rows sharing a
// transition name merge: sources accumulate, the first declared title,
// permission and required-field set win, and each row's side-effect binds to
// that row's source states.
func Compile(def model.EntityDefinition, customs *capability.Registry) (*Workflow, error) {
	w := &Workflow{
		Entity:       def.Entity,
		Title:        def.Title,
		InitialState: def.InitialState,
		Checksum:     def.Checksum,
		states:       make(map[string]model.StateSpec, len(def.States)),
		transitions:  make(map[string]*Transition),
		bySource:     make(map[string][]*Transition),
	}

	w.stateOrder = append(w.stateOrder, def.States...)
	for _, s := range def.States {
		w.states[s.Name] = s
	}

	for _, row := range def.Transitions {
		t, exists := w.transitions[row.Name]
		if !exists {
			pred, err := capability.Compile(row.Permission, customs)
			if err != nil {
				return nil, fmt.Errorf("transition %q: %w", row.Name, err)
			}
			title := row.Title
			if title == "" {
				title = humanize(row.Name)
			}
			t = &Transition{
				Name:           row.Name,
				Title:          title,
				Destination:    row.To,
				RequiredFields: row.RequiredFields,
				Permission:     pred,
				sourceSet:      make(map[string]bool),
				effectBySource: make(map[string]string),
			}
			w.transitions[row.Name] = t
			w.order = append(w.order, t)
		} else {
			// Later rows may carry the permission or required fields the
			// first row omitted.
			if _, isAny := t.Permission.(capability.AllowAny); isAny && !row.Permission.IsEmpty() {
				pred, err := capability.Compile(row.Permission, customs)
				if err != nil {
					return nil, fmt.Errorf("transition %q: %w", row.Name, err)
				}
				t.Permission = pred
			}
			if len(t.RequiredFields) == 0 {
				t.RequiredFields = row.RequiredFields
			}
		}

		for _, src := range row.From {
			if t.sourceSet[src] {
				continue
			}
			t.sourceSet[src] = true
			t.Sources = append(t.Sources, src)
			w.bySource[src] = append(w.bySource[src], t)
			if row.SideEffect != "" {
				t.effectBySource[src] = row.SideEffect
			}
		}
	}

	return w, nil
}

// snapshot is an immutable collection of compiled workflows indexed by
// entity name.
type snapshot struct {
	workflows map[string]*Workflow
	checksum  string
}

// Registry is a read-optimized, thread-safe store of compiled workflow
// definitions. It uses atomic pointer swap for lock-free concurrent reads so
// a reload never blocks in-flight requests.
type Registry struct {
	snap atomic.Pointer[snapshot]
}

// NewRegistry compiles the given definitions into a Registry.
func NewRegistry(defs []model.EntityDefinition, customs *capability.Registry) (*Registry, error) {
	r := &Registry{}
	if err := r.Replace(defs, customs); err != nil {
		return nil, err
	}
	return r, nil
}

// Replace atomically swaps the registry contents with a snapshot compiled
// from the given definitions.
func (r *Registry) Replace(defs []model.EntityDefinition, customs *capability.Registry) error {
	s := &snapshot{workflows: make(map[string]*Workflow, len(defs))}

	var checksumParts []string
	for _, def := range defs {
		w, err := Compile(def, customs)
		if err != nil {
			return fmt.Errorf("compiling entity %q: %w", def.Entity, err)
		}
		s.workflows[w.Entity] = w
		checksumParts = append(checksumParts, def.Checksum)
	}

	sort.Strings(checksumParts)
	combined := strings.Join(checksumParts, ":")
	s.checksum = fmt.Sprintf("%x", sha256.Sum256([]byte(combined)))

	r.snap.Store(s)
	return nil
}

func (r *Registry) current() *snapshot {
	return r.snap.Load()
}

// Workflow returns the compiled workflow for the given entity kind.
func (r *Registry) Workflow(entity string) (*Workflow, bool) {
	w, ok := r.current().workflows[entity]
	return w, ok
}

// Entities returns all registered entity names, sorted alphabetically.
func (r *Registry) Entities() []string {
	s := r.current()
	names := make([]string, 0, len(s.workflows))
	for name := range s.workflows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered workflows.
func (r *Registry) Len() int {
	return len(r.current().workflows)
}

// Checksum returns the combined checksum of all loaded definitions.
func (r *Registry) Checksum() string {
	return r.current().checksum
}

// humanize turns "mark_ready" into "Mark ready" for display fallbacks.
func humanize(name string) string {
	s := strings.ReplaceAll(name, "_", " ")
	s = strings.ReplaceAll(s, "-", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
