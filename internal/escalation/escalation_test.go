package escalation

import (
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		hint string
		want Level
	}{
		{"", None},
		{"   ", None},
		{"Seek emergency care if swelling spreads", Emergency},
		{"Call 911 if you have trouble breathing", Emergency},
		{"Urgent: see a dermatologist", Urgent},
		{"Stop use immediately and see a doctor", Urgent},
		{"Warning: may cause dryness", Warning},
		{"We warn against combining retinoids", Warning},
		{"Consider seeing a dermatologist", Caution},
		// keyword priority: emergency beats urgent beats warn
		{"urgent emergency warning", Emergency},
		{"warning: urgent", Urgent},
	}
	for _, tt := range tests {
		if got := Classify(tt.hint); got != tt.want {
			t.Errorf("Classify(%q) = %v, want %v", tt.hint, got, tt.want)
		}
	}
}

func TestLevelOrderingAndNames(t *testing.T) {
	order := []Level{None, Warning, Caution, Urgent, Emergency}
	for i := 1; i < len(order); i++ {
		if !(order[i-1] < order[i]) {
			t.Errorf("%v must be lower than %v", order[i-1], order[i])
		}
	}
	for _, l := range order {
		parsed, err := ParseLevel(l.String())
		if err != nil || parsed != l {
			t.Errorf("ParseLevel(%q) = %v, %v", l.String(), parsed, err)
		}
	}
	if _, err := ParseLevel("severe"); err == nil {
		t.Error("expected unknown level to fail")
	}
}

func TestFoldTieKeepsFirstMessage(t *testing.T) {
	var s State
	s.Fold(Urgent, "urgent: see a dermatologist this week", "r010")
	s.Fold(Urgent, "urgent: infection risk", "r020")

	if s.Level != Urgent {
		t.Fatalf("level = %v, want urgent", s.Level)
	}
	if s.Message != "urgent: see a dermatologist this week" {
		t.Errorf("message = %q, want first-seen message", s.Message)
	}
	if len(s.SourceRules) != 2 || s.SourceRules[0] != "r010" || s.SourceRules[1] != "r020" {
		t.Errorf("source rules = %v, want [r010 r020]", s.SourceRules)
	}
}

func TestFoldTieKeepsEmptyFirstMessage(t *testing.T) {
	var s State
	s.Fold(Caution, "", "explicit")
	s.Fold(Caution, "keep an eye on it", "hinted")

	if s.Message != "" {
		t.Errorf("message = %q, want the first rule's empty message", s.Message)
	}
	out := s.Finalize()
	if out.Message != DefaultMessage || len(out.SourceRules) != 2 {
		t.Errorf("finalized = %+v", out)
	}
}

func TestFoldRaisesAndIgnoresLower(t *testing.T) {
	var s State
	s.Fold(Caution, "consider a visit", "a")
	s.Fold(Emergency, "emergency", "b")
	s.Fold(Warning, "warn", "c")
	s.Fold(Emergency, "another emergency", "d")

	if s.Level != Emergency {
		t.Fatalf("level = %v, want emergency", s.Level)
	}
	if s.Message != "emergency" {
		t.Errorf("message = %q", s.Message)
	}
	if len(s.SourceRules) != 2 || s.SourceRules[0] != "b" || s.SourceRules[1] != "d" {
		t.Errorf("source rules = %v, want [b d]", s.SourceRules)
	}
}

func TestFoldIsMonotonicInAnyOrder(t *testing.T) {
	levels := []Level{Caution, None, Urgent, Warning, Emergency, Warning}
	perms := [][]int{
		{0, 1, 2, 3, 4, 5},
		{5, 4, 3, 2, 1, 0},
		{2, 0, 5, 1, 4, 3},
	}
	for _, p := range perms {
		var s State
		prev := None
		for _, idx := range p {
			s.Fold(levels[idx], levels[idx].String(), string(rune('a'+idx)))
			if s.Level < prev {
				t.Fatalf("level decreased from %v to %v", prev, s.Level)
			}
			prev = s.Level
		}
		if s.Level != Emergency {
			t.Errorf("final level = %v, want emergency", s.Level)
		}
	}
}

func TestFinalize(t *testing.T) {
	var empty State
	if empty.Finalize() != nil {
		t.Error("none must finalize to nil")
	}

	s := State{Level: Caution, SourceRules: []string{"r1"}}
	out := s.Finalize()
	if out == nil || out.Message != DefaultMessage {
		t.Fatalf("Finalize() = %+v, want default message", out)
	}
	out.SourceRules[0] = "changed"
	if s.SourceRules[0] != "r1" {
		t.Error("Finalize must copy source rules")
	}
}
