package assistant

import (
	"errors"
	"testing"
)

func TestParseOutput(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		want      Output
		violation bool
	}{
		{"response", `{"response":"It's 3pm.","task":""}`, Output{Response: "It's 3pm."}, false},
		{"task", `{"response":"","task":"Call mom"}`, Output{Task: "Call mom"}, false},
		{"neither", `{"response":"","task":""}`, Output{}, false},
		{"missing fields", `{}`, Output{}, false},
		{"whitespace only", `{"response":"  ","task":"\n"}`, Output{}, false},
		{"fenced", "```json\n{\"response\":\"Sure.\",\"task\":\"\"}\n```", Output{Response: "Sure."}, false},
		{"both set", `{"response":"Done.","task":"Buy milk"}`, Output{Response: "Done."}, true},
		{"not json", "I think you should call your mom.", Output{}, true},
		{"wrong type", `{"response":42}`, Output{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseOutput(tt.raw)
			if got != tt.want {
				t.Errorf("ParseOutput = %+v, want %+v", got, tt.want)
			}
			if errors.Is(err, ErrProtocolViolation) != tt.violation {
				t.Errorf("err = %v, violation want %v", err, tt.violation)
			}
			if !tt.violation && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestOutput_Kind(t *testing.T) {
	if k := (Output{Response: "x"}).Kind(); k != KindResponse {
		t.Errorf("Kind = %q", k)
	}
	if k := (Output{Task: "x"}).Kind(); k != KindTask {
		t.Errorf("Kind = %q", k)
	}
	if k := (Output{}).Kind(); k != KindNone {
		t.Errorf("Kind = %q", k)
	}
}
