package database

import (
	"reflect"
	"testing"
)

func TestParseAngle(t *testing.T) {
	tests := []struct {
		input string
		want  Angle
		ok    bool
	}{
		{"center", AngleCenter, true},
		{"UP", AngleUp, true},
		{"up-left", AngleUpLeft, true},
		{"down_right", AngleDownRight, true},
		{"sideways", "sideways", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseAngle(tt.input)
			if got != tt.want || ok != tt.ok {
				t.Errorf("ParseAngle(%q) = %q, %v, want %q, %v", tt.input, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestAnglesAreNineAndUnique(t *testing.T) {
	seen := make(map[Angle]bool)
	for _, a := range Angles {
		if seen[a] {
			t.Errorf("duplicate angle %q", a)
		}
		seen[a] = true
	}
	if len(seen) != 9 {
		t.Errorf("got %d angles, want 9", len(seen))
	}
}

func TestProfileAngleBookkeeping(t *testing.T) {
	p := &FacialProfile{Captures: map[Angle]*PoseCapture{
		AngleLeft:   {Angle: AngleLeft},
		AngleCenter: {Angle: AngleCenter},
		AngleUp:     {Angle: AngleUp},
	}}

	if got, want := p.CapturedAngles(), []Angle{AngleCenter, AngleUp, AngleLeft}; !reflect.DeepEqual(got, want) {
		t.Errorf("CapturedAngles() = %v, want %v", got, want)
	}
	if got := len(p.MissingAngles()); got != 6 {
		t.Errorf("MissingAngles() has %d entries, want 6", got)
	}
	if got := p.CompletionPercentage(); got < 33.33 || got > 33.34 {
		t.Errorf("CompletionPercentage() = %f, want 33.33", got)
	}

	empty := &FacialProfile{}
	if empty.CompletionPercentage() != 0 {
		t.Error("empty profile should be 0% complete")
	}
}

func TestEmbeddings(t *testing.T) {
	e := Embeddings{"b": {1}, "a": {2}, "c": nil}

	if !e.Has("a") || e.Has("c") || e.Has("missing") {
		t.Error("Has() reported wrong presence")
	}
	if got := e.Backends(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Backends() = %v, want [a b]", got)
	}

	clone := e.Clone()
	clone["a"][0] = 99
	if e["a"][0] != 2 {
		t.Error("Clone() shares vector storage")
	}
}
