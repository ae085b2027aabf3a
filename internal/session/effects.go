package session

import (
	"context"
	"errors"
	"fmt"

	"stridebeat/internal/control"
)

// runEffect executes a single reducer-emitted Command against the player and
// reports the outcome as an Event via onEvent.
//
// It must never call Reduce directly; the loop sequences
// Reduce -> Commands -> runEffect -> Events -> Reduce.
func (s *Session) runEffect(ctx context.Context, cmd control.Command, onEvent func(control.Event)) {
	if ctx.Err() != nil {
		return
	}

	fail := func(err error) {
		s.logger.Error("player command failed", "command", cmd.String(), "error", err)
		onEvent(control.PlayerCommandFailed{Command: cmd, Err: err, At: s.clock.Now()})
	}

	switch c := cmd.(type) {
	case control.CmdLoadTrack:
		if err := s.loadTrack(ctx); err != nil {
			// Not fatal: the session keeps running without music.
			s.logger.Warn("track load failed, continuing without audio", "track", s.track, "error", err)
			onEvent(control.TrackLoadFailed{Err: err, At: s.clock.Now()})
			return
		}
		s.logger.Info("track loaded", "track", s.track)
		onEvent(control.TrackLoaded{At: s.clock.Now()})

	case control.CmdStartPlayback:
		ctx, cancel := context.WithTimeout(ctx, PlayerCommandTimeout)
		defer cancel()
		if err := s.player.Play(ctx); err != nil {
			fail(fmt.Errorf("play: %w", err))
			return
		}
		if err := s.player.SetLooping(ctx, true); err != nil {
			fail(fmt.Errorf("set looping: %w", err))
			return
		}
		if err := s.player.SetRate(ctx, c.Rate, c.PreservePitch); err != nil {
			fail(fmt.Errorf("set rate: %w", err))
			return
		}
		s.logger.Info("playback started", "rate", c.Rate)

	case control.CmdSetRate:
		ctx, cancel := context.WithTimeout(ctx, PlayerCommandTimeout)
		defer cancel()
		if err := s.player.SetRate(ctx, c.Rate, c.PreservePitch); err != nil {
			fail(fmt.Errorf("set rate: %w", err))
		}

	default:
		s.logger.Warn("unknown command type", "command", cmd.String())
		fail(errUnknownCommand{cmd: cmd})
	}
}

func (s *Session) loadTrack(ctx context.Context) error {
	if s.track == "" {
		return errors.New("no track configured")
	}
	path := s.track
	if s.assets != nil {
		resolved, err := s.assets.Resolve(ctx, s.track)
		if err != nil {
			return err
		}
		path = resolved
	}
	return s.player.Load(ctx, path)
}

type errUnknownCommand struct {
	cmd control.Command
}

func (e errUnknownCommand) Error() string { return "unknown command: " + e.cmd.String() }
