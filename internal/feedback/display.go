package feedback

import "unicode/utf8"

// Display is the text state: the current text, how much of it has been
// revealed, and the blinker. It is owned by the session goroutine.
type Display struct {
	text     string
	runes    int
	revealed int
	blinker  bool
}

// NewDisplay returns a display showing nothing of text yet.
func NewDisplay(text string) *Display {
	d := &Display{}
	d.SetText(text)
	return d
}

// SetText replaces the text and restarts the reveal. Setting the same text is a no-op.
func (d *Display) SetText(text string) bool {
	if text == d.text {
		return false
	}
	d.text = text
	d.runes = utf8.RuneCountInString(text)
	d.revealed = 0
	return true
}

// Reveal shows one more rune. It reports whether anything changed.
func (d *Display) Reveal() bool {
	if d.revealed >= d.runes {
		return false
	}
	d.revealed++
	return true
}

// Blink toggles the blinker, or forces it off once the text is fully revealed.
// It reports whether the blinker changed.
func (d *Display) Blink() bool {
	prev := d.blinker
	if d.Complete() {
		d.blinker = false
	} else {
		d.blinker = !d.blinker
	}
	return d.blinker != prev
}

// Complete reports whether the full text is revealed.
func (d *Display) Complete() bool { return d.revealed >= d.runes }

func (d *Display) Text() string         { return d.text }
func (d *Display) Revealed() int        { return d.revealed }
func (d *Display) BlinkerVisible() bool { return d.blinker }

// Visible returns the revealed prefix of the text.
func (d *Display) Visible() string {
	if d.revealed >= d.runes {
		return d.text
	}
	n := 0
	for i := range d.text {
		if n == d.revealed {
			return d.text[:i]
		}
		n++
	}
	return d.text
}
