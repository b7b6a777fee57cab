package model

import "testing"

func TestPayload_Has(t *testing.T) {
	tests := []struct {
		name    string
		payload Payload
		field   string
		want    bool
	}{
		{"nil payload", nil, "message", false},
		{"absent field", Payload{}, "message", false},
		{"nil value", Payload{"message": nil}, "message", false},
		{"empty string", Payload{"message": ""}, "message", false},
		{"whitespace only", Payload{"message": " \t "}, "message", false},
		{"non-empty string", Payload{"message": "hi"}, "message", true},
		{"empty slice", Payload{"tags": []any{}}, "tags", false},
		{"non-empty slice", Payload{"tags": []any{"a"}}, "tags", true},
		{"empty map", Payload{"meta": map[string]any{}}, "meta", false},
		{"non-empty map", Payload{"meta": map[string]any{"k": 1}}, "meta", true},
		{"zero number counts as present", Payload{"amount": 0.0}, "amount", true},
		{"false counts as present", Payload{"flag": false}, "flag", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.payload.Has(tt.field); got != tt.want {
				t.Errorf("Has(%q) = %v, want %v", tt.field, got, tt.want)
			}
		})
	}
}

func TestPayload_Message(t *testing.T) {
	if got := Payload(nil).Message(); got != "" {
		t.Errorf("nil payload Message = %q", got)
	}
	if got := (Payload{"message": 42}).Message(); got != "" {
		t.Errorf("non-string message = %q", got)
	}
	if got := (Payload{"message": "note"}).Message(); got != "note" {
		t.Errorf("Message = %q", got)
	}
}
