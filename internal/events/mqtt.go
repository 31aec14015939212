package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// mqttPublisher is satisfied by *common/mqtt.Client.
type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// MQTTPublisher maps "alert.created" to <prefix>/alert/created.
type MQTTPublisher struct {
	client mqttPublisher
	prefix string
	qos    byte
}

func NewMQTTPublisher(client mqttPublisher, prefix string, qos byte) *MQTTPublisher {
	return &MQTTPublisher{client: client, prefix: strings.TrimSuffix(prefix, "/"), qos: qos}
}

func (p *MQTTPublisher) Topic(eventType string) string {
	return p.prefix + "/" + strings.ReplaceAll(eventType, ".", "/")
}

func (p *MQTTPublisher) Publish(_ context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return p.client.Publish(p.Topic(e.Type), p.qos, false, payload)
}
