// Package session hosts one cadence-driven playback session.
//
// A single goroutine (Run) owns the controller state and the feedback text
// state. Step samples, the control tick, the reveal and blink ticks and
// snapshot requests are multiplexed onto that goroutine, so every reduction
// is atomic with respect to the others.
package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"stridebeat/internal/control"
	"stridebeat/internal/feedback"
	"stridebeat/internal/pedometer"
	"stridebeat/internal/player"
)

// Loop periods.
const (
	ControlPeriod = 100 * time.Millisecond
	RevealPeriod  = 60 * time.Millisecond
	BlinkPeriod   = 300 * time.Millisecond

	// PlayerCommandTimeout bounds every playback command run on the loop.
	// It stays below ControlPeriod so a stalled player cannot hold a tick.
	PlayerCommandTimeout = 80 * time.Millisecond
)

// ErrStopped is returned by Snapshot once Run has returned.
var ErrStopped = errors.New("session: stopped")

// Resolver turns a track reference into something the player can load.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// Options configures a Session.
type Options struct {
	Source pedometer.Source
	Player player.Player
	// Assets resolves Track before loading. Optional.
	Assets Resolver
	Track  string

	Control control.Config
	Clock   Clock
	Logger  *slog.Logger

	// Broadcasts receives state changes. Sends never block; when the channel
	// is full the broadcast is dropped. Optional.
	Broadcasts chan<- Broadcast
}

// Session is one run of the cadence control loop.
type Session struct {
	id string

	source pedometer.Source
	player player.Player
	assets Resolver
	track  string

	cfg    control.Config
	clock  Clock
	logger *slog.Logger
	out    chan<- Broadcast

	engine  feedback.Engine
	state   control.State
	display *feedback.Display

	// last broadcast rates, to suppress unchanged RateChanged
	lastCurrent float64
	lastDesired float64

	snapshots chan chan Snapshot
	done      chan struct{}
}

// New creates a session. The player, if nil, is replaced by player.Null.
func New(opts Options) (*Session, error) {
	if opts.Source == nil {
		return nil, errors.New("session: source is required")
	}
	if err := opts.Control.Validate(); err != nil {
		return nil, err
	}

	p := opts.Player
	if p == nil {
		p = player.Null{}
	}
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	id := uuid.NewString()

	return &Session{
		id:        id,
		source:    opts.Source,
		player:    p,
		assets:    opts.Assets,
		track:     opts.Track,
		cfg:       opts.Control,
		clock:     clock,
		logger:    logger.With("session_id", id),
		out:       opts.Broadcasts,
		engine:    feedback.NewEngine(opts.Control.Mapper.MinRate, opts.Control.Mapper.MaxRate),
		display:   feedback.NewDisplay(feedback.TextIntro),
		snapshots: make(chan chan Snapshot),
		done:      make(chan struct{}),
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Snapshot asks the session goroutine for a copy of its state.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	select {
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case <-s.done:
		return Snapshot{}, ErrStopped
	case s.snapshots <- reply:
	}
	select {
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case snap := <-reply:
		return snap, nil
	}
}

// Run runs the session until ctx is canceled. It may be called once.
//
// Shutdown semantics:
//   - Every ticker is stopped and the step subscription is closed on return
//   - A session whose pedometer is unavailable stays inert but keeps serving snapshots
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)

	s.logger.Info("session starting", "track", s.track)

	// Explicit queues:
	// - eventQueue holds events awaiting reduction
	// - cmdQueue holds commands awaiting execution
	var eventQueue []control.Event
	var cmdQueue []control.Command

	enqueueEvent := func(ev control.Event) {
		eventQueue = append(eventQueue, ev)
	}

	flushEvents := func() {
		for len(eventQueue) > 0 {
			ev := eventQueue[0]
			eventQueue = eventQueue[1:]

			prev := s.state
			rr := control.Reduce(s.state, ev, s.cfg)
			s.state = rr.State
			cmdQueue = append(cmdQueue, rr.Commands...)
			s.publish(prev, rr.Transition)
		}
	}

	// Effects run in emission order; observations are reduced promptly so
	// follow-up commands see a coherent state.
	flushCommands := func() {
		for len(cmdQueue) > 0 {
			cmd := cmdQueue[0]
			cmdQueue = cmdQueue[1:]

			s.runEffect(ctx, cmd, enqueueEvent)
			flushEvents()
		}
	}

	sub := s.subscribe(ctx)
	if sub != nil {
		defer func() {
			if err := sub.Close(); err != nil {
				s.logger.Warn("step subscription close failed", "error", err)
			}
		}()
	}

	enqueueEvent(control.PedometerChecked{Available: sub != nil, At: s.clock.Now()})
	flushEvents()
	flushCommands()

	if sub == nil {
		s.logger.Warn("pedometer unavailable, session inert")
		return s.serveInert(ctx)
	}

	ctrl := s.clock.NewTicker(ControlPeriod)
	defer ctrl.Stop()
	reveal := s.clock.NewTicker(RevealPeriod)
	defer reveal.Stop()
	blink := s.clock.NewTicker(BlinkPeriod)
	defer blink.Stop()

	samples := sub.Samples()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("session stopping (context canceled)")
			return nil

		case sample, ok := <-samples:
			if !ok {
				// Ticking continues so idle decay still runs.
				s.logger.Warn("step feed ended")
				samples = nil
				continue
			}
			// Staleness compares against ticks from s.clock, so samples
			// are stamped on arrival. Device timestamps may come from
			// another clock.
			s.logger.Debug("step sample", "steps", sample.Steps, "source_at", sample.At)
			sample.At = s.clock.Now()
			enqueueEvent(control.StepObserved{Sample: sample})
			flushEvents()
			flushCommands()

		case now := <-ctrl.C():
			enqueueEvent(control.Tick{Now: now})
			flushEvents()
			flushCommands()

		case now := <-reveal.C():
			if s.display.Reveal() {
				s.emitDisplay(now)
			}

		case now := <-blink.C():
			if s.display.Blink() {
				s.emitDisplay(now)
			}

		case reply := <-s.snapshots:
			reply <- buildSnapshot(s.id, s.clock.Now(), s.state, s.cfg, s.display)
		}
	}
}

// subscribe checks the pedometer once. A nil Subscription means unavailable.
func (s *Session) subscribe(ctx context.Context) pedometer.Subscription {
	if !s.source.Available() {
		return nil
	}
	sub, err := s.source.Subscribe(ctx)
	if err != nil {
		s.logger.Warn("pedometer subscribe failed", "error", err)
		return nil
	}
	return sub
}

func (s *Session) serveInert(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("session stopping (context canceled)")
			return nil
		case reply := <-s.snapshots:
			reply <- buildSnapshot(s.id, s.clock.Now(), s.state, s.cfg, s.display)
		}
	}
}

// ============================================================================
// Broadcasts
// ============================================================================

// publish turns one reduction into text updates and broadcasts.
func (s *Session) publish(prev control.State, tr *control.Transition) {
	now := s.clock.Now()
	st := s.state

	if st.Phase != prev.Phase || st.SensorUnavailable != prev.SensorUnavailable {
		s.logger.Info("phase changed", "from", prev.Phase.String(), "to", st.Phase.String(), "audio_ready", st.AudioReady)
		s.emit(PhaseChanged{
			Phase:             st.Phase,
			SensorUnavailable: st.SensorUnavailable,
			AudioReady:        st.AudioReady,
			At:                now,
		})
	}

	if tr == nil {
		return
	}

	if tr.Started {
		s.emit(PlaybackStarted{Rate: st.CurrentRate, At: now})
	}

	if st.CurrentRate != s.lastCurrent || st.DesiredRate != s.lastDesired {
		s.lastCurrent = st.CurrentRate
		s.lastDesired = st.DesiredRate
		s.emit(RateChanged{
			CurrentRate: st.CurrentRate,
			DesiredRate: st.DesiredRate,
			Ratio:       st.Ratio,
			At:          now,
		})
	}

	if text, changed := s.engine.Next(s.display.Text(), *tr); changed {
		s.logger.Debug("feedback text", "text", text, "rate", st.CurrentRate)
		s.display.SetText(text)
		s.emit(TextChanged{Text: text, At: now})
		s.emitDisplay(now)
	}
}

func (s *Session) emitDisplay(at time.Time) {
	s.emit(DisplayChanged{
		Visible: s.display.Visible(),
		Blinker: s.display.BlinkerVisible(),
		At:      at,
	})
}

// emit never blocks the loop.
func (s *Session) emit(b Broadcast) {
	if s.out == nil {
		return
	}
	select {
	case s.out <- b:
	default:
		s.logger.Debug("broadcast channel full, dropping", "type", broadcastType(b))
	}
}

func broadcastType(b Broadcast) string {
	switch b.(type) {
	case PhaseChanged:
		return "phase_changed"
	case PlaybackStarted:
		return "playback_started"
	case RateChanged:
		return "rate_changed"
	case TextChanged:
		return "text_changed"
	case DisplayChanged:
		return "display_changed"
	default:
		return "unknown"
	}
}
