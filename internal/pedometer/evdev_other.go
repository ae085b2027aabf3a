//go:build !linux

package pedometer

import (
	"fmt"
	"os"
)

// readInputEvents starts one blocking reader per device.
func readInputEvents(files []*os.File, events chan<- inputEvent, readErr chan<- error, done <-chan struct{}) {
	if len(files) == 0 {
		readErr <- fmt.Errorf("no input devices provided")
		return
	}
	for _, f := range files {
		go readDeviceEvents(f, events, readErr, done)
	}
}
