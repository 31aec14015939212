// Package consumer ingests detection reports published by camera pipelines
// over MQTT.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	mqttcommon "github.com/TalApelfeld/AI-Smart-Crosswalk/common/mqtt"
	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/domain"
	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/service"
)

// anonymousSegment in the topic means "resolve by location".
const anonymousSegment = "_"

type subscriber interface {
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
	Unsubscribe(topics ...string) error
}

type ingester interface {
	Ingest(ctx context.Context, req service.IngestRequest) (*domain.Alert, error)
}

// DetectionConsumer subscribes to crosswalk/{crosswalkId}/detections and
// feeds every payload through the ingest pipeline.
type DetectionConsumer struct {
	client  subscriber
	ingest  ingester
	topic   string
	qos     byte
	timeout time.Duration
	logger  *zap.Logger
}

func NewDetectionConsumer(client subscriber, ingest ingester, topic string, qos byte, logger *zap.Logger) *DetectionConsumer {
	return &DetectionConsumer{
		client:  client,
		ingest:  ingest,
		topic:   topic,
		qos:     qos,
		timeout: 10 * time.Second,
		logger:  logger,
	}
}

func (c *DetectionConsumer) Start() error {
	if err := c.client.Subscribe(c.topic, c.qos, c.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to detection topic: %w", err)
	}
	c.logger.Info("Detection consumer started", zap.String("topic", c.topic))
	return nil
}

func (c *DetectionConsumer) Stop() {
	if err := c.client.Unsubscribe(c.topic); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.Error(err))
	}
	c.logger.Info("Detection consumer stopped")
}

func (c *DetectionConsumer) handleMessage(topic string, payload []byte) error {
	c.logger.Debug("Received detection message",
		zap.String("topic", topic),
		zap.Int("payload_size", len(payload)),
	)

	var req service.IngestRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("failed to unmarshal detection payload: %w", err)
	}
	if strings.TrimSpace(req.CrosswalkID) == "" {
		req.CrosswalkID = crosswalkFromTopic(topic)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	alert, err := c.ingest.Ingest(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to ingest detection from %s: %w", topic, err)
	}
	c.logger.Info("Detection ingested",
		zap.String("topic", topic),
		zap.String("alert_id", alert.ID),
		zap.String("danger_level", string(alert.DangerLevel)),
	)
	return nil
}

// crosswalkFromTopic returns the {crosswalkId} segment of
// crosswalk/{crosswalkId}/detections, or "" for "_" and malformed topics.
func crosswalkFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return ""
	}
	seg := strings.TrimSpace(parts[len(parts)-2])
	if seg == anonymousSegment {
		return ""
	}
	return seg
}
