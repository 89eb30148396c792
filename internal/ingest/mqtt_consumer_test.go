package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mqttcommon "github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/common/mqtt"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/apperrors"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/auth"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/domain"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/notify"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/repository"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/service"
)

type fakeSubscriber struct {
	topic        string
	qos          byte
	handler      mqttcommon.MessageHandler
	unsubscribed []string
	subscribed   chan struct{}
}

func (f *fakeSubscriber) Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error {
	f.topic, f.qos, f.handler = topic, qos, handler
	close(f.subscribed)
	return nil
}

func (f *fakeSubscriber) Unsubscribe(topics ...string) error {
	f.unsubscribed = append(f.unsubscribed, topics...)
	return nil
}

type fakeIngester struct {
	reqs []service.IngestFallEventRequest
	err  error
}

func (f *fakeIngester) IngestFallEvent(_ context.Context, req service.IngestFallEventRequest) (*service.CreateFallEventResponse, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &service.CreateFallEventResponse{Event: &domain.FallEvent{ID: "ev-1", DeviceID: req.DeviceID}, Created: true}, nil
}

// fakeDevices device id -> key hash; a nil hash means no key configured.
type fakeDevices map[string]*string

func (f fakeDevices) GetDevice(_ context.Context, deviceID string) (*domain.Device, error) {
	hash, ok := f[deviceID]
	if !ok {
		return nil, repository.ErrDeviceNotFound
	}
	return &domain.Device{DeviceID: deviceID, DeviceKeyHash: hash, IsActive: true}, nil
}

const deviceKey = "s3cret-key"

var deviceKeyHash = func() *string {
	h, err := auth.HashDeviceKey(deviceKey)
	if err != nil {
		panic(err)
	}
	return &h
}()

func newConsumer() (*MQTTConsumer, *fakeSubscriber, *fakeIngester) {
	sub := &fakeSubscriber{subscribed: make(chan struct{})}
	ing := &fakeIngester{}
	devices := fakeDevices{"dev-1": deviceKeyHash, "dev-2": deviceKeyHash, "dev-7": deviceKeyHash, "dev-nokey": nil}
	return NewMQTTConsumer(sub, ing, devices, "falls/+/events", 1, zap.NewNop()), sub, ing
}

func TestHandleMessage(t *testing.T) {
	c, _, ing := newConsumer()

	err := c.handleMessage("falls/dev-7/events", []byte(`{"deviceKey":"s3cret-key","eventUid":"hw-1","eventType":"FALL","occurredAt":"2026-05-10T08:30:00Z"}`))
	require.NoError(t, err)
	require.Len(t, ing.reqs, 1)

	req := ing.reqs[0]
	assert.Equal(t, "dev-7", req.DeviceID)
	assert.Equal(t, "hw-1", req.EventUID)
	assert.Equal(t, "FALL", req.EventType)
	assert.Equal(t, notify.SourceMQTT, req.Source)
	require.NotNil(t, req.OccurredAt)
	assert.True(t, req.OccurredAt.Equal(time.Date(2026, 5, 10, 8, 30, 0, 0, time.UTC)))
}

func TestHandleMessage_DropsBadInput(t *testing.T) {
	c, _, ing := newConsumer()

	assert.Error(t, c.handleMessage("falls", []byte(`{}`)))
	assert.Error(t, c.handleMessage("falls//events", []byte(`{}`)))
	assert.Error(t, c.handleMessage("falls/dev-1/events", []byte(`not json`)))
	assert.Error(t, c.handleMessage("falls/dev-1/events", []byte(`{"deviceKey":"s3cret-key","eventUid":"u","eventType":"FALL","occurredAt":"soon"}`)))
	assert.Empty(t, ing.reqs)

	ing.err = apperrors.Validation(apperrors.CodeEventUIDRequired, "eventUid is required")
	err := c.handleMessage("falls/dev-1/events", []byte(`{"deviceKey":"s3cret-key","eventType":"FALL"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), apperrors.CodeEventUIDRequired)

	ing.err = errors.New("db down")
	assert.Error(t, c.handleMessage("falls/dev-1/events", []byte(`{"deviceKey":"s3cret-key","eventUid":"u","eventType":"FALL"}`)))
}

func TestHandleMessage_RequiresDeviceKey(t *testing.T) {
	c, _, ing := newConsumer()

	tests := []struct {
		name    string
		topic   string
		payload string
	}{
		{"missing key", "falls/dev-1/events", `{"eventUid":"hw-9","eventType":"FALL"}`},
		{"wrong key", "falls/dev-1/events", `{"deviceKey":"guess","eventUid":"hw-9","eventType":"FALL"}`},
		{"unknown device", "falls/dev-404/events", `{"deviceKey":"s3cret-key","eventUid":"hw-9","eventType":"FALL"}`},
		{"no key configured", "falls/dev-nokey/events", `{"deviceKey":"s3cret-key","eventUid":"hw-9","eventType":"FALL"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, c.handleMessage(tt.topic, []byte(tt.payload)))
		})
	}
	assert.Empty(t, ing.reqs, "unauthenticated messages must not reach ingest")

	err := c.handleMessage("falls/dev-1/events", []byte(`{"deviceKey":"guess","eventUid":"hw-9","eventType":"FALL"}`))
	assert.ErrorIs(t, err, errDeviceUnauthorized)
}

func TestStartAndStop(t *testing.T) {
	c, sub, ing := newConsumer()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	select {
	case <-sub.subscribed:
	case <-time.After(time.Second):
		t.Fatal("consumer did not subscribe")
	}
	assert.Equal(t, "falls/+/events", sub.topic)
	assert.Equal(t, byte(1), sub.qos)

	require.NoError(t, sub.handler("falls/dev-2/events", []byte(`{"deviceKey":"s3cret-key","eventUid":"x","eventType":"EMERGENCY_BUTTON"}`)))
	assert.Len(t, ing.reqs, 1)

	cancel()
	require.NoError(t, <-done)
	c.Stop()
	assert.Equal(t, []string{"falls/+/events"}, sub.unsubscribed)
}
