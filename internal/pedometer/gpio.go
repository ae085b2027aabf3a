package pedometer

import "time"

// GPIOConfig configures the GPIO step source.
type GPIOConfig struct {
	Chip      string        // e.g. "gpiochip0"
	Line      int           // line offset (BCM numbering on a Pi)
	Debounce  time.Duration // kernel debounce period; zero disables
	ActiveLow bool          // count falling edges with pull-up instead of rising with pull-down
}
