package priority

import (
	"encoding/json"
	"testing"
)

type ranked struct {
	id       string
	priority Priority
}

func rankOf(r ranked) Priority { return r.priority }

func TestSupersedes(t *testing.T) {
	tests := []struct {
		name       string
		best       Priority
		candidate  Priority
		supersedes bool
	}{
		{name: "higher value wins", best: Of(1), candidate: Of(2), supersedes: true},
		{name: "lower value loses", best: Of(2), candidate: Of(1), supersedes: false},
		{name: "tie keeps best", best: Of(2), candidate: Of(2), supersedes: false},
		{name: "unset best always replaced", best: None, candidate: Of(0), supersedes: true},
		{name: "unset best replaced by unset", best: None, candidate: None, supersedes: true},
		{name: "unset candidate never replaces set best", best: Of(-5), candidate: None, supersedes: false},
		{name: "zero beats negative", best: Of(-1), candidate: Of(0), supersedes: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Supersedes(tt.best, tt.candidate); got != tt.supersedes {
				t.Errorf("Supersedes(%s, %s) = %v, want %v", tt.best, tt.candidate, got, tt.supersedes)
			}
		})
	}
}

func TestPick(t *testing.T) {
	tests := []struct {
		name    string
		entries []ranked
		want    string
	}{
		{
			name:    "single entry",
			entries: []ranked{{"a", Of(1)}},
			want:    "a",
		},
		{
			name:    "highest priority wins",
			entries: []ranked{{"a", Of(1)}, {"b", Of(2)}},
			want:    "b",
		},
		{
			name:    "tie keeps earlier entry",
			entries: []ranked{{"a", Of(2)}, {"b", Of(2)}},
			want:    "a",
		},
		{
			name:    "missing priority loses to zero",
			entries: []ranked{{"a", None}, {"b", Of(0)}},
			want:    "b",
		},
		{
			name:    "zero is kept over later missing priority",
			entries: []ranked{{"a", Of(0)}, {"b", None}},
			want:    "a",
		},
		{
			name:    "run of unset priorities resolves to the last",
			entries: []ranked{{"a", None}, {"b", None}, {"c", None}},
			want:    "c",
		},
		{
			name:    "winner is not displaced by later lower entries",
			entries: []ranked{{"a", Of(1)}, {"b", Of(5)}, {"c", Of(3)}, {"d", Of(5)}},
			want:    "b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Pick(tt.entries, rankOf)
			if !ok {
				t.Fatal("Pick() reported empty input")
			}
			if got.id != tt.want {
				t.Errorf("Pick() = %q, want %q", got.id, tt.want)
			}
		})
	}
}

func TestPickEmpty(t *testing.T) {
	if _, ok := Pick[ranked](nil, rankOf); ok {
		t.Fatal("Pick(nil) should report false")
	}
}

func TestPriorityJSON(t *testing.T) {
	var payload struct {
		A Priority `json:"a"`
		B Priority `json:"b"`
	}
	if err := json.Unmarshal([]byte(`{"a": 3.5, "b": null}`), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v, ok := payload.A.Value(); !ok || v != 3.5 {
		t.Errorf("a = %v/%v, want 3.5/true", v, ok)
	}
	if payload.B.IsSet() {
		t.Error("b should be unset")
	}

	out, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"a":3.5,"b":null}` {
		t.Errorf("marshal = %s", out)
	}
}
