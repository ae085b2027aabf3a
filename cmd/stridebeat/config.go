package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"stridebeat/internal/cadence"
	"stridebeat/internal/control"
)

// Config is the top-level YAML configuration of the stridebeat daemon.
//
// Defaults and validation live here so the rest of the code can assume a
// well-formed config. Flags only override individual values.
type Config struct {
	Control   ControlFileConfig `yaml:"control"`
	Track     string            `yaml:"track"`
	Assets    AssetsConfig      `yaml:"assets"`
	Player    PlayerConfig      `yaml:"player"`
	Pedometer PedometerConfig   `yaml:"pedometer"`
	StateWS   StateWSConfig     `yaml:"state_ws"`
	MQTT      MQTTConfig        `yaml:"mqtt"`
	Logging   LoggingConfig     `yaml:"logging"`
}

// ControlFileConfig is the controller tuning as represented in YAML.
type ControlFileConfig struct {
	MinRate          float64 `yaml:"min_rate"`
	MaxRate          float64 `yaml:"max_rate"`
	FullPace         float64 `yaml:"full_pace"` // steps per second mapped to max_rate
	RateChangeSpeed  float64 `yaml:"rate_change_speed"`
	IdleRateDecrease float64 `yaml:"idle_rate_decrease"`
	MinIdleRate      float64 `yaml:"min_idle_rate"`
	StaleFactor      float64 `yaml:"stale_factor"`
	PreservePitch    bool    `yaml:"preserve_pitch"`
}

type AssetsConfig struct {
	CacheDir string `yaml:"cache_dir"`
}

// Player types.
const (
	PlayerNull   = "null"
	PlayerMPV    = "mpv"
	PlayerRemote = "remote"
)

type PlayerConfig struct {
	Type string `yaml:"type"`

	// mpv
	Socket    string `yaml:"socket,omitempty"`
	TimeoutMS int    `yaml:"timeout_ms"`

	// remote
	URL string `yaml:"url,omitempty"`
}

// Pedometer types.
const (
	PedometerFake  = "fake"
	PedometerIPC   = "ipc"
	PedometerMQTT  = "mqtt"
	PedometerGPIO  = "gpio"
	PedometerBLE   = "ble"
	PedometerEvdev = "evdev"
)

type PedometerConfig struct {
	Type string `yaml:"type"`

	Fake  FakePedometerConfig  `yaml:"fake"`
	IPC   IPCPedometerConfig   `yaml:"ipc"`
	MQTT  MQTTPedometerConfig  `yaml:"mqtt"`
	GPIO  GPIOPedometerConfig  `yaml:"gpio"`
	BLE   BLEPedometerConfig   `yaml:"ble"`
	Evdev EvdevPedometerConfig `yaml:"evdev"`
}

type FakePedometerConfig struct {
	StepsPerSecond float64 `yaml:"steps_per_second"`
	IntervalMS     int     `yaml:"interval_ms"`
}

type IPCPedometerConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type MQTTPedometerConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	QoS      int    `yaml:"qos"`
}

type GPIOPedometerConfig struct {
	Chip       string `yaml:"chip"`
	Line       int    `yaml:"line"`
	DebounceMS int    `yaml:"debounce_ms"`
	ActiveLow  bool   `yaml:"active_low"`
}

type BLEPedometerConfig struct {
	Address       string `yaml:"address,omitempty"`
	ScanTimeoutMS int    `yaml:"scan_timeout_ms"`
}

type EvdevPedometerConfig struct {
	Devices  []string `yaml:"devices"`
	KeyCodes []uint16 `yaml:"key_codes,omitempty"` // empty counts every key press
}

type StateWSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
func DefaultConfig() Config {
	def := control.DefaultConfig()
	return Config{
		Control: ControlFileConfig{
			MinRate:          def.Mapper.MinRate,
			MaxRate:          def.Mapper.MaxRate,
			FullPace:         def.Mapper.FullPace,
			RateChangeSpeed:  def.RateChangeSpeed,
			IdleRateDecrease: def.IdleRateDecrease,
			MinIdleRate:      def.MinIdleRate,
			StaleFactor:      def.StaleFactor,
			PreservePitch:    def.PreservePitch,
		},
		Assets: AssetsConfig{
			CacheDir: "~/.cache/stridebeat",
		},
		Player: PlayerConfig{
			Type:      PlayerNull,
			Socket:    "/tmp/stridebeat-mpv.sock",
			TimeoutMS: 2000,
		},
		Pedometer: PedometerConfig{
			Type: PedometerIPC,
			Fake: FakePedometerConfig{
				StepsPerSecond: 2.0,
				IntervalMS:     500,
			},
			IPC: IPCPedometerConfig{
				SocketPath: "/tmp/stridebeat.sock",
			},
			MQTT: MQTTPedometerConfig{
				Broker:   "tcp://127.0.0.1:1883",
				ClientID: "stridebeat-steps",
				Topic:    "stridebeat/steps",
			},
			GPIO: GPIOPedometerConfig{
				Chip:       "gpiochip0",
				Line:       17,
				DebounceMS: 20,
			},
			BLE: BLEPedometerConfig{
				ScanTimeoutMS: 30000,
			},
			Evdev: EvdevPedometerConfig{
				Devices: []string{"/dev/input/event0"},
			},
		},
		StateWS: StateWSConfig{
			Enabled: true,
			Addr:    "127.0.0.1:3002",
			Path:    "/ws",
		},
		MQTT: MQTTConfig{
			Enabled:  false,
			Broker:   "tcp://127.0.0.1:1883",
			ClientID: "stridebeat",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of the defaults.
// Unknown fields and trailing documents are rejected.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides holds flag values on top of a loaded config. Each override
// is only applied if its pointer is non-nil.
type FlagOverrides struct {
	Track *string

	PlayerType   *string
	PlayerSocket *string
	PlayerURL    *string

	PedometerType   *string
	IPCSocketPath   *string
	FakeStepsPerSec *float64

	MinRate       *float64
	MaxRate       *float64
	PreservePitch *bool

	StateWSEnabled *bool
	StateWSAddr    *string

	MQTTEnabled *bool
	MQTTBroker  *string

	LogLevel *string
}

// Apply merges the overrides into cfg. A non-nil pointer is applied even if
// it holds a zero value.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.Track != nil {
		cfg.Track = *o.Track
	}

	if o.PlayerType != nil {
		cfg.Player.Type = *o.PlayerType
	}
	if o.PlayerSocket != nil {
		cfg.Player.Socket = *o.PlayerSocket
	}
	if o.PlayerURL != nil {
		cfg.Player.URL = *o.PlayerURL
	}

	if o.PedometerType != nil {
		cfg.Pedometer.Type = *o.PedometerType
	}
	if o.IPCSocketPath != nil {
		cfg.Pedometer.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.FakeStepsPerSec != nil {
		cfg.Pedometer.Fake.StepsPerSecond = *o.FakeStepsPerSec
	}

	if o.MinRate != nil {
		cfg.Control.MinRate = *o.MinRate
	}
	if o.MaxRate != nil {
		cfg.Control.MaxRate = *o.MaxRate
	}
	if o.PreservePitch != nil {
		cfg.Control.PreservePitch = *o.PreservePitch
	}

	if o.StateWSEnabled != nil {
		cfg.StateWS.Enabled = *o.StateWSEnabled
	}
	if o.StateWSAddr != nil {
		cfg.StateWS.Addr = *o.StateWSAddr
	}

	if o.MQTTEnabled != nil {
		cfg.MQTT.Enabled = *o.MQTTEnabled
	}
	if o.MQTTBroker != nil {
		cfg.MQTT.Broker = *o.MQTTBroker
	}

	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// Call it after defaults, file and overrides are applied.
func (c *Config) Validate() error {
	// Control
	if err := c.ToControlConfig().Validate(); err != nil {
		return fmt.Errorf("control: %w", err)
	}

	// Player
	switch c.Player.Type {
	case PlayerNull:
	case PlayerMPV:
		if c.Player.Socket == "" {
			return errors.New("player.socket must not be empty for player.type mpv")
		}
		if c.Player.TimeoutMS <= 0 {
			return errors.New("player.timeout_ms must be > 0")
		}
	case PlayerRemote:
		if c.Player.URL == "" {
			return errors.New("player.url must not be empty for player.type remote")
		}
	default:
		return fmt.Errorf("player.type must be one of %q, %q, %q", PlayerNull, PlayerMPV, PlayerRemote)
	}

	// Pedometer
	p := c.Pedometer
	switch p.Type {
	case PedometerFake:
		if p.Fake.StepsPerSecond < 0 {
			return errors.New("pedometer.fake.steps_per_second must be >= 0")
		}
		if p.Fake.IntervalMS <= 0 {
			return errors.New("pedometer.fake.interval_ms must be > 0")
		}
	case PedometerIPC:
		if p.IPC.SocketPath == "" {
			return errors.New("pedometer.ipc.socket_path must not be empty")
		}
	case PedometerMQTT:
		if p.MQTT.Broker == "" || p.MQTT.Topic == "" {
			return errors.New("pedometer.mqtt.broker and pedometer.mqtt.topic must not be empty")
		}
		if p.MQTT.QoS < 0 || p.MQTT.QoS > 2 {
			return errors.New("pedometer.mqtt.qos must be 0, 1 or 2")
		}
	case PedometerGPIO:
		if p.GPIO.Chip == "" {
			return errors.New("pedometer.gpio.chip must not be empty")
		}
		if p.GPIO.Line < 0 {
			return errors.New("pedometer.gpio.line must be >= 0")
		}
		if p.GPIO.DebounceMS < 0 {
			return errors.New("pedometer.gpio.debounce_ms must be >= 0")
		}
	case PedometerBLE:
		if p.BLE.ScanTimeoutMS < 0 {
			return errors.New("pedometer.ble.scan_timeout_ms must be >= 0")
		}
	case PedometerEvdev:
		if len(p.Evdev.Devices) == 0 {
			return errors.New("pedometer.evdev.devices must not be empty")
		}
		for i, dev := range p.Evdev.Devices {
			if dev == "" {
				return fmt.Errorf("pedometer.evdev.devices[%d] is empty", i)
			}
		}
	default:
		return fmt.Errorf("pedometer.type %q is not supported", p.Type)
	}

	// State server
	if c.StateWS.Enabled {
		if c.StateWS.Addr == "" {
			return errors.New("state_ws.enabled is true but state_ws.addr is empty")
		}
		if c.StateWS.Path == "" || c.StateWS.Path[0] != '/' {
			return errors.New("state_ws.path must start with /")
		}
	}

	// MQTT
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return errors.New("mqtt.enabled is true but mqtt.broker is empty")
	}

	// Logging
	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}

	return nil
}

// ToControlConfig converts the file config into the controller tuning.
func (c *Config) ToControlConfig() control.Config {
	return control.Config{
		Mapper: cadence.Mapper{
			MinRate:  c.Control.MinRate,
			MaxRate:  c.Control.MaxRate,
			FullPace: c.Control.FullPace,
		},
		RateChangeSpeed:  c.Control.RateChangeSpeed,
		IdleRateDecrease: c.Control.IdleRateDecrease,
		MinIdleRate:      c.Control.MinIdleRate,
		StaleFactor:      c.Control.StaleFactor,
		PreservePitch:    c.Control.PreservePitch,
	}
}

func msDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
