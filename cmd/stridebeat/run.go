package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"stridebeat/internal/assets"
	"stridebeat/internal/mqtt"
	"stridebeat/internal/pedometer"
	"stridebeat/internal/player"
	"stridebeat/internal/session"
	"stridebeat/internal/statews"
)

func newRunCmd(root *rootOptions) *cobra.Command {
	var (
		track         string
		playerType    string
		playerSocket  string
		playerURL     string
		pedometerType string
		ipcSocket     string
		fakeSPS       float64
		minRate       float64
		maxRate       float64
		preservePitch bool
		stateEnabled  bool
		stateAddr     string
		mqttEnabled   bool
		mqttBroker    string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the cadence daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			var ov FlagOverrides
			if f.Changed("track") {
				ov.Track = &track
			}
			if f.Changed("player") {
				ov.PlayerType = &playerType
			}
			if f.Changed("player-socket") {
				ov.PlayerSocket = &playerSocket
			}
			if f.Changed("player-url") {
				ov.PlayerURL = &playerURL
			}
			if f.Changed("pedometer") {
				ov.PedometerType = &pedometerType
			}
			if f.Changed("ipc-socket") {
				ov.IPCSocketPath = &ipcSocket
			}
			if f.Changed("fake-steps-per-sec") {
				ov.FakeStepsPerSec = &fakeSPS
			}
			if f.Changed("min-rate") {
				ov.MinRate = &minRate
			}
			if f.Changed("max-rate") {
				ov.MaxRate = &maxRate
			}
			if f.Changed("preserve-pitch") {
				ov.PreservePitch = &preservePitch
			}
			if f.Changed("state-ws") {
				ov.StateWSEnabled = &stateEnabled
			}
			if f.Changed("state-ws-addr") {
				ov.StateWSAddr = &stateAddr
			}
			if f.Changed("mqtt") {
				ov.MQTTEnabled = &mqttEnabled
			}
			if f.Changed("mqtt-broker") {
				ov.MQTTBroker = &mqttBroker
			}

			cfg, err := root.loadConfig(cmd, ov)
			if err != nil {
				return err
			}
			logger, err := root.logger(cmd, cfg.Logging.Level, os.Stdout)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancelCause(cmd.Context())
			defer cancel(nil)

			sigc := make(chan os.Signal, 1)
			signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigc)
			go func() {
				select {
				case sig := <-sigc:
					logger.Info("shutting down", "signal", sig.String())
					cancel(shutdownSignal{sig})
				case <-ctx.Done():
				}
			}()

			return runDaemon(ctx, cfg, logger)
		},
	}

	f := cmd.Flags()
	f.StringVar(&track, "track", "", "Track to loop (local path or http(s) URL)")
	f.StringVar(&playerType, "player", PlayerNull, "Player: null, mpv, remote")
	f.StringVar(&playerSocket, "player-socket", "", "mpv IPC socket path")
	f.StringVar(&playerURL, "player-url", "", "Remote player WebSocket URL")
	f.StringVar(&pedometerType, "pedometer", PedometerIPC, "Step source: fake, ipc, mqtt, gpio, ble, evdev")
	f.StringVar(&ipcSocket, "ipc-socket", "", "Unix socket for the ipc step source")
	f.Float64Var(&fakeSPS, "fake-steps-per-sec", 2.0, "Cadence of the fake step source")
	f.Float64Var(&minRate, "min-rate", 0.6, "Playback rate at rest")
	f.Float64Var(&maxRate, "max-rate", 1.0, "Playback rate at full pace")
	f.BoolVar(&preservePitch, "preserve-pitch", false, "Keep pitch constant when the rate changes")
	f.BoolVar(&stateEnabled, "state-ws", true, "Serve the state WebSocket")
	f.StringVar(&stateAddr, "state-ws-addr", "", "State server listen address")
	f.BoolVar(&mqttEnabled, "mqtt", false, "Publish feedback to MQTT")
	f.StringVar(&mqttBroker, "mqtt-broker", "", "MQTT broker URL")

	return cmd
}

// shutdownSignal is the cancel cause recorded when a signal stops the daemon.
type shutdownSignal struct{ sig os.Signal }

func (s shutdownSignal) Error() string { return s.sig.String() }

// runDaemon wires the session to its source, player and outputs, and runs
// until ctx is canceled or the session fails.
func runDaemon(ctx context.Context, cfg Config, logger *slog.Logger) error {
	source := buildSource(cfg.Pedometer, logger)

	pl, err := buildPlayer(cfg.Player, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := pl.Close(); err != nil {
			logger.Warn("player close failed", "error", err)
		}
	}()

	cache := assets.New(ExpandPath(cfg.Assets.CacheDir), logger)
	cache.PassThrough = cfg.Player.Type == PlayerRemote

	broadcasts := make(chan session.Broadcast, 64)
	sess, err := session.New(session.Options{
		Source:     source,
		Player:     pl,
		Assets:     cache,
		Track:      cfg.Track,
		Control:    cfg.ToControlConfig(),
		Logger:     logger,
		Broadcasts: broadcasts,
	})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	logger.Debug("configuration",
		"session_id", sess.ID(),
		"track", cfg.Track,
		"player", cfg.Player.Type,
		"pedometer", cfg.Pedometer.Type,
		"min_rate", cfg.Control.MinRate,
		"max_rate", cfg.Control.MaxRate,
		"preserve_pitch", cfg.Control.PreservePitch,
		"state_ws", cfg.StateWS.Enabled,
		"mqtt", cfg.MQTT.Enabled)

	var pub mqtt.Publisher
	if cfg.MQTT.Enabled {
		p, err := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID, sess.ID())
		if err != nil {
			logger.Error("MQTT publisher disabled", "broker", cfg.MQTT.Broker, "error", err)
		} else {
			pub = p
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	var sinks []chan session.Broadcast

	if cfg.StateWS.Enabled {
		srv := statews.NewServer(logger, sess.Snapshot, statews.ServerConfig{})
		mux := http.NewServeMux()
		srv.Register(mux, cfg.StateWS.Path)

		ch := make(chan session.Broadcast, 64)
		sinks = append(sinks, ch)

		g.Go(func() error {
			srv.Hub().Run(gctx)
			return nil
		})
		g.Go(func() error {
			statews.RunBroadcaster(gctx, srv.Hub(), ch, logger)
			return nil
		})
		g.Go(func() error {
			// The state server is optional; a bind failure is not fatal.
			if err := statews.ListenAndServe(gctx, cfg.StateWS.Addr, mux, logger); err != nil {
				logger.Error("state server stopped", "error", err)
			}
			return nil
		})
	}

	if pub != nil {
		ch := make(chan session.Broadcast, 64)
		sinks = append(sinks, ch)

		if err := pub.PublishSystem(mqtt.SystemEvent{
			Timestamp: time.Now(),
			Event:     mqtt.SystemStartup,
			SessionID: sess.ID(),
		}); err != nil {
			logger.Warn("MQTT startup event failed", "error", err)
		}

		g.Go(func() error {
			mqtt.RunBridge(gctx, pub, sess.ID(), ch, logger)
			return nil
		})
	}

	g.Go(func() error {
		fanOut(gctx, broadcasts, sinks, logger)
		return nil
	})

	g.Go(func() error {
		return sess.Run(gctx)
	})

	logger.Info("listening",
		"session_id", sess.ID(),
		"pedometer", cfg.Pedometer.Type,
		"player", cfg.Player.Type,
		"state_ws", stateWSAddr(cfg.StateWS))

	err = g.Wait()

	if pub != nil {
		reason := ""
		var sig shutdownSignal
		if errors.As(context.Cause(ctx), &sig) {
			reason = sig.Error()
		}
		if err := pub.PublishSystem(mqtt.SystemEvent{
			Timestamp: time.Now(),
			Event:     mqtt.SystemShutdown,
			SessionID: sess.ID(),
			Reason:    reason,
		}); err != nil {
			logger.Warn("MQTT shutdown event failed", "error", err)
		}
		if err := pub.Close(); err != nil {
			logger.Warn("MQTT close failed", "error", err)
		}
	}

	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	logger.Info("stopped", "session_id", sess.ID())
	return nil
}

// fanOut copies every session broadcast to each sink. A full sink drops the
// broadcast. Sinks are closed when src closes or ctx is canceled.
func fanOut(ctx context.Context, src <-chan session.Broadcast, sinks []chan session.Broadcast, logger *slog.Logger) {
	defer func() {
		for _, s := range sinks {
			close(s)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case b, ok := <-src:
			if !ok {
				return
			}
			for _, s := range sinks {
				select {
				case s <- b:
				default:
					logger.Debug("broadcast sink full; dropping", "type", fmt.Sprintf("%T", b))
				}
			}
		}
	}
}

func stateWSAddr(c StateWSConfig) string {
	if !c.Enabled {
		return "disabled"
	}
	return c.Addr + c.Path
}

// ============================================================================
// Factories
// ============================================================================

// buildSource creates the configured step source. A source that cannot be
// constructed is reported as unavailable so the session runs inert.
func buildSource(c PedometerConfig, logger *slog.Logger) pedometer.Source {
	switch c.Type {
	case PedometerFake:
		return pedometer.Steady{
			StepsPerSecond: c.Fake.StepsPerSecond,
			Interval:       msDuration(c.Fake.IntervalMS),
		}
	case PedometerIPC:
		return pedometer.NewIPC(ExpandPath(c.IPC.SocketPath), logger)
	case PedometerMQTT:
		src, err := pedometer.NewMQTT(pedometer.MQTTConfig{
			Broker:   c.MQTT.Broker,
			ClientID: c.MQTT.ClientID,
			Topic:    c.MQTT.Topic,
			QoS:      byte(c.MQTT.QoS),
		}, logger)
		if err != nil {
			logger.Error("MQTT step source unavailable", "broker", c.MQTT.Broker, "error", err)
			return unavailableSource{}
		}
		return src
	case PedometerGPIO:
		return pedometer.NewGPIO(pedometer.GPIOConfig{
			Chip:      c.GPIO.Chip,
			Line:      c.GPIO.Line,
			Debounce:  msDuration(c.GPIO.DebounceMS),
			ActiveLow: c.GPIO.ActiveLow,
		}, logger)
	case PedometerBLE:
		return pedometer.NewBLE(pedometer.BLEConfig{
			Address:     c.BLE.Address,
			ScanTimeout: msDuration(c.BLE.ScanTimeoutMS),
		}, logger)
	case PedometerEvdev:
		return pedometer.NewEvdev(pedometer.EvdevConfig{
			Devices:  c.Evdev.Devices,
			KeyCodes: c.Evdev.KeyCodes,
		}, logger)
	default:
		logger.Error("unknown pedometer type", "type", c.Type)
		return unavailableSource{}
	}
}

// unavailableSource stands in for a source that failed to initialize.
type unavailableSource struct{}

func (unavailableSource) Available() bool { return false }

func (unavailableSource) Subscribe(context.Context) (pedometer.Subscription, error) {
	return nil, pedometer.ErrUnavailable
}

// buildPlayer creates the configured player.
func buildPlayer(c PlayerConfig, logger *slog.Logger) (player.Player, error) {
	switch c.Type {
	case PlayerMPV:
		return player.NewMPV(ExpandPath(c.Socket), msDuration(c.TimeoutMS), logger), nil
	case PlayerRemote:
		p, err := player.NewRemote(player.RemoteConfig{
			URL:         c.URL,
			ReadTimeout: msDuration(c.TimeoutMS),
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("remote player: %w", err)
		}
		return p, nil
	default:
		return player.Null{}, nil
	}
}
