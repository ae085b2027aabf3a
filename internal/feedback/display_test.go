package feedback

import "testing"

func TestDisplay_RevealOneRunePerTick(t *testing.T) {
	d := NewDisplay("Faster!")
	if d.Visible() != "" {
		t.Fatalf("expected nothing visible, got %q", d.Visible())
	}

	want := []string{"F", "Fa", "Fas", "Fast", "Faste", "Faster", "Faster!"}
	for i, w := range want {
		if !d.Reveal() {
			t.Fatalf("reveal %d reported no change", i)
		}
		if got := d.Visible(); got != w {
			t.Fatalf("reveal %d: got %q, want %q", i, got, w)
		}
	}

	if d.Reveal() {
		t.Errorf("expected reveal to stop at full length")
	}
	if d.Revealed() != 7 {
		t.Errorf("expected 7 revealed, got %d", d.Revealed())
	}
}

func TestDisplay_RevealCountsRunes(t *testing.T) {
	d := NewDisplay("né!")
	d.Reveal()
	d.Reveal()
	if got := d.Visible(); got != "né" {
		t.Errorf("expected %q, got %q", "né", got)
	}
	d.Reveal()
	if !d.Complete() {
		t.Errorf("expected complete after 3 runes")
	}
}

func TestDisplay_SetTextResetsReveal(t *testing.T) {
	d := NewDisplay(TextStarted)
	for i := 0; i < 5; i++ {
		d.Reveal()
	}

	if !d.SetText(TextFast) {
		t.Fatalf("expected text change")
	}
	if d.Revealed() != 0 || d.Visible() != "" {
		t.Errorf("expected reveal reset, got %d %q", d.Revealed(), d.Visible())
	}
}

func TestDisplay_SetSameTextKeepsReveal(t *testing.T) {
	d := NewDisplay(TextFloored)
	d.Reveal()
	d.Reveal()

	if d.SetText(TextFloored) {
		t.Errorf("expected no change for identical text")
	}
	if d.Revealed() != 2 {
		t.Errorf("expected reveal kept at 2, got %d", d.Revealed())
	}
}

func TestDisplay_BlinkTogglesUntilComplete(t *testing.T) {
	d := NewDisplay("ab")

	d.Blink()
	if !d.BlinkerVisible() {
		t.Fatalf("expected blinker on after first blink")
	}
	d.Blink()
	if d.BlinkerVisible() {
		t.Fatalf("expected blinker off after second blink")
	}
	d.Blink()

	d.Reveal()
	d.Reveal()
	if !d.Complete() {
		t.Fatalf("expected complete")
	}

	d.Blink()
	if d.BlinkerVisible() {
		t.Errorf("expected blinker forced off once complete")
	}
	if d.Blink() {
		t.Errorf("expected blinker to stay off")
	}
}
