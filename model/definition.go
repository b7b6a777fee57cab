package model

// EntityDefinition is the raw, YAML-facing form of one workflow definition:
// the full lifecycle of one entity kind. The loader parses files into this
// shape; the definition registry compiles it into its immutable runtime
// form.
type EntityDefinition struct {
	Entity       string           `yaml:"entity"`
	Title        string           `yaml:"title"`
	InitialState string           `yaml:"initial_state"`
	States       []StateSpec      `yaml:"states"`
	Transitions  []TransitionSpec `yaml:"transitions"`

	// Checksum and SourceFile are filled in by the loader, not the file.
	Checksum   string `yaml:"-"`
	SourceFile string `yaml:"-"`
}

// StateSpec declares one named state. States are purely descriptive and
// carry no behavior.
type StateSpec struct {
	Name        string `yaml:"name" json:"name"`
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description,omitempty"`
}

// TransitionSpec is one registration row: a transition name bound to one or
// more source states, landing on a single destination. The same name may
// appear in several rows to attach a different side-effect per source state;
// permission and required fields must agree across rows sharing a name.
type TransitionSpec struct {
	Name           string         `yaml:"name"`
	Title          string         `yaml:"title"`
	From           []string       `yaml:"from"`
	To             string         `yaml:"to"`
	Permission     PermissionSpec `yaml:"permission"`
	RequiredFields []string       `yaml:"required_fields"`
	SideEffect     string         `yaml:"side_effect"`
}

// PermissionSpec declares who may invoke a transition. Clauses combine with
// OR semantics: the transition is permitted when any declared clause holds.
// An empty spec permits any authenticated principal.
type PermissionSpec struct {
	// Groups permits principals holding any of the listed groups.
	Groups []string `yaml:"groups"`

	// Owner permits the principal whose ID equals the named document
	// attribute.
	Owner string `yaml:"owner"`

	// Custom names a predicate registered in code at startup.
	Custom string `yaml:"custom"`

	// Any nests further specs, each combined with OR.
	Any []PermissionSpec `yaml:"any"`
}

// IsEmpty reports whether no clause is declared.
func (p PermissionSpec) IsEmpty() bool {
	return len(p.Groups) == 0 && p.Owner == "" && p.Custom == "" && len(p.Any) == 0
}
