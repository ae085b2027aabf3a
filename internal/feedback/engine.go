// Package feedback derives the on-screen status text from controller
// transitions and animates it with a typewriter reveal and a blinking cursor.
package feedback

import "stridebeat/internal/control"

// Status texts.
const (
	TextIntro      = "Start moving to hear the music"
	TextFloored    = "BOOOOOOOO"
	TextAdmonition = "DON'T STOP!!!"
	TextFast       = "YOU'RE FAST!!"
	TextKeepGoing  = "Keep going!"
	TextFaster     = "Faster!"
	TextStarted    = "Nice! Keep going"
	TextRecovered  = "NICE!!"
)

// Engine holds the rate thresholds the text rules test against.
type Engine struct {
	Fast      float64 // upward crossing -> TextFast
	KeepGoing float64 // upward crossing -> TextKeepGoing
	Faster    float64 // downward crossing -> TextFaster
}

// NewEngine derives the thresholds from the controller rate bounds.
func NewEngine(minRate, maxRate float64) Engine {
	return Engine{
		Fast:      maxRate - 0.1,
		KeepGoing: maxRate - 0.2,
		Faster:    minRate + 0.1,
	}
}

// Next returns the text that should be shown after tr, given the current
// text. changed is false when no rule fired (the current text stays).
//
// Rules are evaluated in order and the first match wins. Threshold crossings
// are only considered for tick transitions.
func (e Engine) Next(current string, tr control.Transition) (text string, changed bool) {
	tick := tr.Kind == control.TransitionTick

	switch {
	case tr.Floored:
		text = TextFloored
	case tr.Decaying:
		text = TextAdmonition
	case tick && crossedUp(tr.OldRate, tr.NewRate, e.Fast):
		text = TextFast
	case tick && crossedUp(tr.OldRate, tr.NewRate, e.KeepGoing):
		text = TextKeepGoing
	case tick && crossedDown(tr.OldRate, tr.NewRate, e.Faster):
		text = TextFaster
	case tr.Started:
		text = TextStarted
	case current == TextAdmonition:
		text = TextRecovered
	default:
		return current, false
	}

	return text, text != current
}

func crossedUp(old, new, threshold float64) bool {
	return old < threshold && new >= threshold
}

func crossedDown(old, new, threshold float64) bool {
	return old > threshold && new <= threshold
}
