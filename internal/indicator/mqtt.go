package indicator

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 250 // milliseconds
)

// MQTTConfig holds MQTT indicator configuration.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string // alarm state is published retained here; blinks go to Topic+"/blink"
}

// statePayload is the retained alarm state message.
type statePayload struct {
	Alarm bool   `json:"alarm"`
	State string `json:"state"`
	Time  string `json:"ts"`
}

// publisher is the subset of mqtt.Client used by MQTTOutput.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTOutput publishes the alarm state to an MQTT broker. Publishes never
// block the caller; delivery results are logged.
type MQTTOutput struct {
	client publisher
	topic  string
}

// NewMQTTOutput connects to the broker in the background and returns the output.
// The connection is retried until it succeeds; publishes made before that are queued.
func NewMQTTOutput(cfg MQTTConfig) *MQTTOutput {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		slog.Info("mqtt indicator connected", "broker", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		slog.Warn("mqtt indicator connection lost", "error", err)
	})

	// Last will marks the detector offline if the process dies.
	opts.SetWill(cfg.Topic+"/online", "false", 1, true)

	client := mqtt.NewClient(opts)
	client.Connect() // retried in the background, see SetConnectRetry

	out := &MQTTOutput{client: client, topic: cfg.Topic}
	out.publish(cfg.Topic+"/online", true, "true")
	return out
}

// SetAlarm implements Output.
func (o *MQTTOutput) SetAlarm(on bool) error {
	payload, err := json.Marshal(newStatePayload(on, time.Now()))
	if err != nil {
		return fmt.Errorf("marshal indicator state: %w", err)
	}
	o.publish(o.topic, true, payload)
	return nil
}

// Blink implements Output.
func (o *MQTTOutput) Blink() error {
	o.publish(o.topic+"/blink", false, time.Now().UTC().Format(time.RFC3339))
	return nil
}

// Close implements Output.
func (o *MQTTOutput) Close() error {
	o.client.Disconnect(disconnectQuiesce)
	return nil
}

func (o *MQTTOutput) publish(topic string, retained bool, payload any) {
	token := o.client.Publish(topic, 1, retained, payload)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			slog.Warn("mqtt publish still pending", "topic", topic)
			return
		}
		if err := token.Error(); err != nil {
			slog.Warn("failed to publish indicator state", "topic", topic, "error", err)
		}
	}()
}

func newStatePayload(on bool, at time.Time) statePayload {
	state := "off"
	if on {
		state = "on"
	}
	return statePayload{Alarm: on, State: state, Time: at.UTC().Format(time.RFC3339)}
}
