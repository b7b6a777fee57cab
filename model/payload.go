package model

import "strings"

// Payload is the free-form invocation body a caller submits with a
// transition. Required-field checks and side-effects read from it; the
// engine itself never writes to it.
type Payload map[string]any

// Message returns the free-text message for the audit record, or "" when
// absent.
func (p Payload) Message() string {
	if p == nil {
		return ""
	}
	s, _ := p["message"].(string)
	return s
}

// Has reports whether the named field is present and non-empty. Empty
// strings (after trimming), empty slices and empty maps all count as
// missing.
func (p Payload) Has(field string) bool {
	if p == nil {
		return false
	}
	v, ok := p[field]
	if !ok || v == nil {
		return false
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t) != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return true
}
