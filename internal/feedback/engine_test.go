package feedback

import (
	"testing"

	"stridebeat/internal/control"
)

func tick(old, new float64) control.Transition {
	return control.Transition{Kind: control.TransitionTick, OldRate: old, NewRate: new}
}

func TestEngine_Thresholds(t *testing.T) {
	e := NewEngine(0.6, 1.0)
	if e.Fast < 0.8999 || e.Fast > 0.9001 {
		t.Errorf("expected fast threshold 0.9, got %f", e.Fast)
	}
	if e.KeepGoing < 0.7999 || e.KeepGoing > 0.8001 {
		t.Errorf("expected keep-going threshold 0.8, got %f", e.KeepGoing)
	}
	if e.Faster < 0.6999 || e.Faster > 0.7001 {
		t.Errorf("expected faster threshold 0.7, got %f", e.Faster)
	}
}

func TestEngine_Rules(t *testing.T) {
	e := NewEngine(0.6, 1.0)

	tests := []struct {
		name    string
		current string
		tr      control.Transition
		want    string
		changed bool
	}{
		{
			name:    "floored wins over everything",
			current: TextFast,
			tr:      control.Transition{Kind: control.TransitionTick, OldRate: 0.85, NewRate: 0.95, Decaying: true, Floored: true},
			want:    TextFloored,
			changed: true,
		},
		{
			name:    "decaying wins over crossings",
			current: TextStarted,
			tr:      control.Transition{Kind: control.TransitionTick, OldRate: 0.88, NewRate: 0.91, Decaying: true},
			want:    TextAdmonition,
			changed: true,
		},
		{
			name:    "upward through fast",
			current: TextKeepGoing,
			tr:      tick(0.898, 0.901),
			want:    TextFast,
			changed: true,
		},
		{
			name:    "upward landing exactly on threshold",
			current: TextKeepGoing,
			tr:      tick(0.85, 0.9),
			want:    TextFast,
			changed: true,
		},
		{
			name:    "upward through keep going",
			current: TextStarted,
			tr:      tick(0.798, 0.801),
			want:    TextKeepGoing,
			changed: true,
		},
		{
			name:    "downward through faster",
			current: TextKeepGoing,
			tr:      tick(0.701, 0.698),
			want:    TextFaster,
			changed: true,
		},
		{
			name:    "staying above does not repeat",
			current: TextStarted,
			tr:      tick(0.95, 0.953),
			want:    TextStarted,
			changed: false,
		},
		{
			name:    "downward through fast is not a cue",
			current: TextFast,
			tr:      tick(0.91, 0.89),
			want:    TextFast,
			changed: false,
		},
		{
			name:    "first start",
			current: TextIntro,
			tr:      control.Transition{Kind: control.TransitionStep, OldRate: 0, NewRate: 1.0, Started: true},
			want:    TextStarted,
			changed: true,
		},
		{
			name:    "start step does not count as crossing",
			current: TextIntro,
			tr:      control.Transition{Kind: control.TransitionStep, OldRate: 0, NewRate: 0.95, Started: true},
			want:    TextStarted,
			changed: true,
		},
		{
			name:    "recovery after admonition",
			current: TextAdmonition,
			tr:      tick(0.95, 0.95),
			want:    TextRecovered,
			changed: true,
		},
		{
			name:    "recovery on step after admonition",
			current: TextAdmonition,
			tr:      control.Transition{Kind: control.TransitionStep, OldRate: 0.9, NewRate: 0.9},
			want:    TextRecovered,
			changed: true,
		},
		{
			name:    "floored text persists without recovery",
			current: TextFloored,
			tr:      tick(0.4, 0.403),
			want:    TextFloored,
			changed: false,
		},
		{
			name:    "crossing preferred over recovery",
			current: TextAdmonition,
			tr:      tick(0.799, 0.802),
			want:    TextKeepGoing,
			changed: true,
		},
		{
			name:    "floored repeated is unchanged",
			current: TextFloored,
			tr:      control.Transition{Kind: control.TransitionTick, OldRate: 0.3, NewRate: 0.3, Decaying: true, Floored: true},
			want:    TextFloored,
			changed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := e.Next(tt.current, tt.tr)
			if got != tt.want {
				t.Errorf("Next() text = %q, want %q", got, tt.want)
			}
			if changed != tt.changed {
				t.Errorf("Next() changed = %v, want %v", changed, tt.changed)
			}
		})
	}
}

func TestEngine_DecayThenFloorSequence(t *testing.T) {
	e := NewEngine(0.6, 1.0)
	text := TextStarted

	text, _ = e.Next(text, control.Transition{Kind: control.TransitionTick, OldRate: 1.0, NewRate: 1.0, Decaying: true})
	if text != TextAdmonition {
		t.Fatalf("expected admonition, got %q", text)
	}
	text, _ = e.Next(text, control.Transition{Kind: control.TransitionTick, OldRate: 0.31, NewRate: 0.307, Decaying: true, Floored: true})
	if text != TextFloored {
		t.Fatalf("expected floored text, got %q", text)
	}
}
