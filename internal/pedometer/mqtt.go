package pedometer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig configures the MQTT step source.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
	QoS      byte
}

// MQTT subscribes to a topic carrying StepMessage payloads, e.g. from a
// phone or watch bridge.
type MQTT struct {
	client paho.Client
	topic  string
	qos    byte
	logger *slog.Logger
	now    func() time.Time
}

// NewMQTT connects to the broker.
func NewMQTT(cfg MQTTConfig, logger *slog.Logger) (*MQTT, error) {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "stridebeat-steps"
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return newMQTTWithClient(client, cfg.Topic, cfg.QoS, logger), nil
}

func newMQTTWithClient(client paho.Client, topic string, qos byte, logger *slog.Logger) *MQTT {
	return &MQTT{
		client: client,
		topic:  topic,
		qos:    qos,
		logger: logger,
		now:    time.Now,
	}
}

// Available reports whether the broker connection is up.
func (s *MQTT) Available() bool {
	return s.client.IsConnectionOpen()
}

// Subscribe subscribes to the step topic. Close unsubscribes and disconnects.
func (s *MQTT) Subscribe(ctx context.Context) (Subscription, error) {
	st := newStream(16, func() error {
		token := s.client.Unsubscribe(s.topic)
		token.WaitTimeout(2 * time.Second)
		s.client.Disconnect(1000) // 1 second timeout
		return token.Error()
	})

	c := newCounter(s.now)
	token := s.client.Subscribe(s.topic, s.qos, s.handler(st, c))
	if !token.WaitTimeout(5 * time.Second) {
		return nil, fmt.Errorf("subscribe timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", s.topic, err)
	}

	s.logger.Info("MQTT step source subscribed", "topic", s.topic)

	go func() {
		select {
		case <-ctx.Done():
			_ = st.Close()
		case <-st.done:
		}
	}()

	return st, nil
}

func (s *MQTT) handler(st *stream, c *counter) paho.MessageHandler {
	return func(_ paho.Client, m paho.Message) {
		msg, err := DecodeStepMessage(m.Payload())
		if err != nil {
			s.logger.Warn("MQTT step message rejected", "topic", m.Topic(), "error", err)
			return
		}
		st.emit(msg.apply(c))
	}
}
