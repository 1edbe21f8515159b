// Package bus wraps the MQTT connection shared by the backend and the
// hardware bridge. Publishing is fire-and-forget: a failed publish is
// logged, never retried; QoS1 gives at-least-once delivery and the
// subscribers deduplicate.
package bus

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	connectRetries    = 10
	connectRetryPause = 2 * time.Second
	qos               = 1
)

// Handler consumes the raw JSON payload of one inbound message.
type Handler func(payload []byte)

// Publisher is the narrow outbound contract handed to the bridge and the
// controllers.
type Publisher interface {
	Publish(topic string, v any)
}

type Bus struct {
	client mqtt.Client
	log    *zap.SugaredLogger
}

// Connect dials the broker, retrying a bounded number of times so the
// service survives broker restarts during boot ordering.
func Connect(host string, port int, clientID string, log *zap.SugaredLogger) (*Bus, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", host, port)).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetOrderMatters(false)

	client := mqtt.NewClient(opts)

	var err error
	for i := 0; i < connectRetries; i++ {
		tok := client.Connect()
		tok.Wait()
		if err = tok.Error(); err == nil {
			log.Infow("mqtt connected", "broker", fmt.Sprintf("%s:%d", host, port), "client_id", clientID)
			return &Bus{client: client, log: log}, nil
		}
		log.Warnw("mqtt connect retry", "attempt", i+1, "err", err)
		time.Sleep(connectRetryPause)
	}
	return nil, fmt.Errorf("mqtt connect %s:%d: %w", host, port, err)
}

// Publish marshals v as JSON and publishes at QoS1. Errors surface only in
// the log; callers never block on broker acks.
func (b *Bus) Publish(topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		b.log.Errorw("mqtt marshal", "topic", topic, "err", err)
		return
	}
	tok := b.client.Publish(topic, qos, false, payload)
	go func() {
		tok.Wait()
		if err := tok.Error(); err != nil {
			b.log.Errorw("mqtt publish", "topic", topic, "err", err)
		}
	}()
}

// Subscribe attaches every handler in the registry. The registry is built
// explicitly at startup and passed in whole so it can be tested by calling
// handlers directly.
func (b *Bus) Subscribe(handlers map[string]Handler) error {
	for topic, h := range handlers {
		h := h
		tok := b.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
			h(msg.Payload())
		})
		tok.Wait()
		if err := tok.Error(); err != nil {
			return fmt.Errorf("mqtt subscribe %s: %w", topic, err)
		}
		b.log.Infow("mqtt subscribed", "topic", topic)
	}
	return nil
}

func (b *Bus) Close() {
	b.client.Disconnect(250)
}
