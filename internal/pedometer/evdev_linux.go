//go:build linux

package pedometer

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// epollTimeoutMs bounds each wait so the reader notices done.
const epollTimeoutMs = 200

// readInputEvents reads from every device with a single epoll loop.
func readInputEvents(files []*os.File, events chan<- inputEvent, readErr chan<- error, done <-chan struct{}) {
	fail := func(err error) {
		select {
		case readErr <- err:
		case <-done:
		}
	}

	if len(files) == 0 {
		fail(fmt.Errorf("no input devices provided"))
		return
	}

	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		fail(fmt.Errorf("epoll_create1: %w", err))
		return
	}
	defer unix.Close(epfd)

	fdToFile := make(map[int]*os.File)
	for _, f := range files {
		fd := int(f.Fd())
		fdToFile[fd] = f

		event := unix.EpollEvent{
			Events: unix.EPOLLIN,
			Fd:     int32(fd),
		}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
			fail(fmt.Errorf("epoll_ctl_add fd=%d: %w", fd, err))
			return
		}
	}

	const maxEvents = 32
	epollEvents := make([]unix.EpollEvent, maxEvents)
	buf := make([]byte, inputEventSize)

	for {
		select {
		case <-done:
			return
		default:
		}

		n, err := unix.EpollWait(epfd, epollEvents, epollTimeoutMs)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			fail(fmt.Errorf("epoll_wait: %w", err))
			return
		}

		for i := 0; i < n; i++ {
			fd := int(epollEvents[i].Fd)
			f := fdToFile[fd]

			if epollEvents[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				fail(fmt.Errorf("device error/hangup: %s (fd=%d)", f.Name(), fd))
				return
			}

			if _, err := f.Read(buf); err != nil {
				fail(fmt.Errorf("read from %s: %w", f.Name(), err))
				return
			}

			ev, err := decodeInputEvent(buf)
			if err != nil {
				continue
			}
			select {
			case events <- ev:
			case <-done:
				return
			}
		}
	}
}
