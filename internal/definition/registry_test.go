package definition

import (
	"testing"

	"github.com/opero/lifeline/internal/capability"
	"github.com/opero/lifeline/model"
)

func orderDefinition() model.EntityDefinition {
	return model.EntityDefinition{
		Entity:       "order",
		InitialState: "created",
		Checksum:     "abc123",
		States: []model.StateSpec{
			{Name: "created"},
			{Name: "validation"},
			{Name: "accepted"},
			{Name: "archived"},
		},
		Transitions: []model.TransitionSpec{
			{
				Name:           "submit",
				From:           []string{"created"},
				To:             "validation",
				Permission:     model.PermissionSpec{Groups: []string{"qa"}},
				RequiredFields: []string{"message"},
				SideEffect:     "notify",
			},
			{Name: "accept", From: []string{"validation"}, To: "accepted"},
			// Multi-row transition: one name, a different effect per source.
			{Name: "archive", From: []string{"created"}, To: "archived", SideEffect: "purge_draft"},
			{Name: "archive", From: []string{"accepted"}, To: "archived", SideEffect: "export"},
		},
	}
}

// --- Compile ---

func TestCompile_mergesRowsByName(t *testing.T) {
	w, err := Compile(orderDefinition(), nil)
	if err != nil {
		t.Fatalf("Compile error: %v", err)
	}

	archive, ok := w.Transition("archive")
	if !ok {
		t.Fatal("archive not compiled")
	}
	if archive.Destination != "archived" {
		t.Errorf("Destination = %q", archive.Destination)
	}
	if len(archive.Sources) != 2 {
		t.Errorf("Sources = %v, want both source rows merged", archive.Sources)
	}
	if !archive.ValidFrom("created") || !archive.ValidFrom("accepted") {
		t.Error("merged transition must be valid from both sources")
	}
	if archive.ValidFrom("validation") {
		t.Error("ValidFrom must reject undeclared sources")
	}
}

func TestCompile_effectPerSource(t *testing.T) {
	w, err := Compile(orderDefinition(), nil)
	if err != nil {
		t.Fatalf("Compile error: %v", err)
	}

	archive, _ := w.Transition("archive")
	if got := archive.EffectFor("created"); got != "purge_draft" {
		t.Errorf("EffectFor(created) = %q", got)
	}
	if got := archive.EffectFor("accepted"); got != "export" {
		t.Errorf("EffectFor(accepted) = %q", got)
	}
	if got := archive.EffectFor("validation"); got != "" {
		t.Errorf("EffectFor(validation) = %q, want none", got)
	}

	accept, _ := w.Transition("accept")
	if got := accept.EffectFor("validation"); got != "" {
		t.Errorf("effect-less transition returned %q", got)
	}
}

func TestCompile_declarationOrderPreserved(t *testing.T) {
	w, err := Compile(orderDefinition(), nil)
	if err != nil {
		t.Fatalf("Compile error: %v", err)
	}

	var names []string
	for _, tr := range w.Transitions() {
		names = append(names, tr.Name)
	}
	want := []string{"submit", "accept", "archive"}
	if len(names) != len(want) {
		t.Fatalf("names = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestCompile_transitionsFromIndex(t *testing.T) {
	w, err := Compile(orderDefinition(), nil)
	if err != nil {
		t.Fatalf("Compile error: %v", err)
	}

	fromCreated := w.TransitionsFrom("created")
	if len(fromCreated) != 2 {
		t.Fatalf("TransitionsFrom(created) = %d entries", len(fromCreated))
	}
	if fromCreated[0].Name != "submit" || fromCreated[1].Name != "archive" {
		t.Errorf("order = %q, %q", fromCreated[0].Name, fromCreated[1].Name)
	}
	if got := w.TransitionsFrom("archived"); len(got) != 0 {
		t.Errorf("terminal state has %d outgoing transitions", len(got))
	}
}

func TestCompile_permittedChecksStateBeforePredicate(t *testing.T) {
	w, err := Compile(orderDefinition(), nil)
	if err != nil {
		t.Fatalf("Compile error: %v", err)
	}
	submit, _ := w.Transition("submit")

	qa := &model.RequestContext{PrincipalID: "usr-1", TenantID: "t1", Groups: []string{"qa"}}
	doc := &model.Record{State: "validation"}

	// qa holds the group, but the document is past the source state.
	if submit.Permitted(qa, doc) {
		t.Error("wrong current state must deny regardless of groups")
	}
	doc.State = "created"
	if !submit.Permitted(qa, doc) {
		t.Error("valid state plus group must permit")
	}
	if submit.Permitted(&model.RequestContext{PrincipalID: "usr-2", TenantID: "t1"}, doc) {
		t.Error("missing group must deny")
	}
}

func TestCompile_titleFallback(t *testing.T) {
	def := model.EntityDefinition{
		Entity:       "pool",
		InitialState: "open",
		States:       []model.StateSpec{{Name: "open"}, {Name: "closed"}},
		Transitions: []model.TransitionSpec{
			{Name: "mark_ready", From: []string{"open"}, To: "closed"},
			{Name: "close", Title: "Close pool", From: []string{"open"}, To: "closed"},
		},
	}
	w, err := Compile(def, nil)
	if err != nil {
		t.Fatalf("Compile error: %v", err)
	}

	tr, _ := w.Transition("mark_ready")
	if tr.Title != "Mark ready" {
		t.Errorf("Title = %q, want humanized fallback", tr.Title)
	}
	tr, _ = w.Transition("close")
	if tr.Title != "Close pool" {
		t.Errorf("Title = %q, declared title must win", tr.Title)
	}
}

func TestCompile_unknownCustomPredicateFails(t *testing.T) {
	def := orderDefinition()
	def.Transitions[0].Permission = model.PermissionSpec{Custom: "ghost"}

	if _, err := Compile(def, capability.NewRegistry()); err == nil {
		t.Error("unknown custom predicate must fail compilation")
	}
}

func TestHumanize(t *testing.T) {
	tests := []struct{ in, want string }{
		{"mark_ready", "Mark ready"},
		{"close", "Close"},
		{"re-open_case", "Re open case"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := humanize(tt.in); got != tt.want {
			t.Errorf("humanize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// --- Registry ---

func TestRegistry_WorkflowLookup(t *testing.T) {
	reg, err := NewRegistry([]model.EntityDefinition{orderDefinition()}, nil)
	if err != nil {
		t.Fatalf("NewRegistry error: %v", err)
	}

	if _, ok := reg.Workflow("order"); !ok {
		t.Error("order workflow not found")
	}
	if _, ok := reg.Workflow("spaceship"); ok {
		t.Error("unknown entity must not resolve")
	}
	if reg.Len() != 1 {
		t.Errorf("Len = %d", reg.Len())
	}
	if names := reg.Entities(); len(names) != 1 || names[0] != "order" {
		t.Errorf("Entities = %v", names)
	}
	if reg.Checksum() == "" {
		t.Error("combined checksum must be set")
	}
}

func TestRegistry_Replace(t *testing.T) {
	reg, err := NewRegistry([]model.EntityDefinition{orderDefinition()}, nil)
	if err != nil {
		t.Fatalf("NewRegistry error: %v", err)
	}
	before := reg.Checksum()

	pool := model.EntityDefinition{
		Entity:       "pool",
		InitialState: "open",
		Checksum:     "def456",
		States:       []model.StateSpec{{Name: "open"}, {Name: "closed"}},
		Transitions:  []model.TransitionSpec{{Name: "close", From: []string{"open"}, To: "closed"}},
	}
	if err := reg.Replace([]model.EntityDefinition{orderDefinition(), pool}, nil); err != nil {
		t.Fatalf("Replace error: %v", err)
	}

	if reg.Len() != 2 {
		t.Errorf("Len = %d after replace", reg.Len())
	}
	if reg.Checksum() == before {
		t.Error("checksum unchanged after replace")
	}
}

func TestRegistry_ReplaceFailureKeepsOldSnapshot(t *testing.T) {
	reg, err := NewRegistry([]model.EntityDefinition{orderDefinition()}, nil)
	if err != nil {
		t.Fatalf("NewRegistry error: %v", err)
	}

	bad := orderDefinition()
	bad.Transitions[0].Permission = model.PermissionSpec{Custom: "ghost"}
	if err := reg.Replace([]model.EntityDefinition{bad}, capability.NewRegistry()); err == nil {
		t.Fatal("expected Replace to fail")
	}

	if _, ok := reg.Workflow("order"); !ok {
		t.Error("failed replace must leave the previous snapshot serving")
	}
}
