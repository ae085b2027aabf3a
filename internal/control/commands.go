package control

import "fmt"

// Command represents a player side effect to be executed by the session loop.
type Command interface {
	commandMarker()
	String() string
}

// CmdLoadTrack asks the loop to load the configured track.
type CmdLoadTrack struct{}

func (CmdLoadTrack) commandMarker() {}
func (CmdLoadTrack) String() string { return "CmdLoadTrack()" }

// CmdStartPlayback starts playback: play, enable looping, then apply Rate.
type CmdStartPlayback struct {
	Rate          float64
	PreservePitch bool
}

func (CmdStartPlayback) commandMarker() {}
func (c CmdStartPlayback) String() string {
	return fmt.Sprintf("CmdStartPlayback(rate=%.3f)", c.Rate)
}

// CmdSetRate applies Rate to the player. Re-applying an unchanged rate is allowed.
type CmdSetRate struct {
	Rate          float64
	PreservePitch bool
}

func (CmdSetRate) commandMarker() {}
func (c CmdSetRate) String() string {
	return fmt.Sprintf("CmdSetRate(rate=%.3f)", c.Rate)
}
