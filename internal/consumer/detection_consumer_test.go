package consumer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mqttcommon "github.com/TalApelfeld/AI-Smart-Crosswalk/common/mqtt"
	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/domain"
	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/service"
)

type fakeSubscriber struct {
	topic        string
	handler      mqttcommon.MessageHandler
	unsubscribed []string
}

func (f *fakeSubscriber) Subscribe(topic string, _ byte, handler mqttcommon.MessageHandler) error {
	f.topic = topic
	f.handler = handler
	return nil
}

func (f *fakeSubscriber) Unsubscribe(topics ...string) error {
	f.unsubscribed = append(f.unsubscribed, topics...)
	return nil
}

type fakeIngester struct {
	reqs []service.IngestRequest
	err  error
}

func (f *fakeIngester) Ingest(_ context.Context, req service.IngestRequest) (*domain.Alert, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Alert{ID: "a1", DangerLevel: domain.DangerHigh}, nil
}

func startConsumer(t *testing.T, ing *fakeIngester) *fakeSubscriber {
	t.Helper()
	sub := &fakeSubscriber{}
	c := NewDetectionConsumer(sub, ing, "crosswalk/+/detections", 1, zap.NewNop())
	require.NoError(t, c.Start())
	require.NotNil(t, sub.handler)
	return sub
}

func TestDetectionConsumer_TopicSuppliesCrosswalk(t *testing.T) {
	ing := &fakeIngester{}
	sub := startConsumer(t, ing)
	assert.Equal(t, "crosswalk/+/detections", sub.topic)

	err := sub.handler("crosswalk/cw-1/detections", []byte(`{"detections":[{"class":"child","confidence":0.8}]}`))
	require.NoError(t, err)
	require.Len(t, ing.reqs, 1)
	assert.Equal(t, "cw-1", ing.reqs[0].CrosswalkID)
	require.Len(t, ing.reqs[0].Detections, 1)
	assert.Equal(t, "child", ing.reqs[0].Detections[0].Class)
}

func TestDetectionConsumer_PayloadWins(t *testing.T) {
	ing := &fakeIngester{}
	sub := startConsumer(t, ing)

	require.NoError(t, sub.handler("crosswalk/cw-1/detections", []byte(`{"crosswalkId":"cw-2"}`)))
	assert.Equal(t, "cw-2", ing.reqs[0].CrosswalkID)
}

func TestDetectionConsumer_AnonymousResolvesByLocation(t *testing.T) {
	ing := &fakeIngester{}
	sub := startConsumer(t, ing)

	payload := `{"cameraId":"cam-1","location":{"city":"X","street":"Y","number":"1"}}`
	require.NoError(t, sub.handler("crosswalk/_/detections", []byte(payload)))
	assert.Empty(t, ing.reqs[0].CrosswalkID)
	assert.Equal(t, domain.Location{City: "X", Street: "Y", Number: "1"}, ing.reqs[0].Location)
	assert.Equal(t, "cam-1", ing.reqs[0].CameraID)
}

func TestDetectionConsumer_Errors(t *testing.T) {
	ing := &fakeIngester{err: domain.ErrNotFound}
	sub := startConsumer(t, ing)

	err := sub.handler("crosswalk/cw-1/detections", []byte(`not json`))
	assert.Error(t, err)
	assert.Empty(t, ing.reqs)

	err = sub.handler("crosswalk/cw-1/detections", []byte(`{}`))
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestDetectionConsumer_Stop(t *testing.T) {
	sub := &fakeSubscriber{}
	c := NewDetectionConsumer(sub, &fakeIngester{}, "crosswalk/+/detections", 1, zap.NewNop())
	c.Stop()
	assert.Equal(t, []string{"crosswalk/+/detections"}, sub.unsubscribed)
}

func TestCrosswalkFromTopic(t *testing.T) {
	assert.Equal(t, "abc", crosswalkFromTopic("crosswalk/abc/detections"))
	assert.Equal(t, "", crosswalkFromTopic("crosswalk/_/detections"))
	assert.Equal(t, "", crosswalkFromTopic("detections"))
}
