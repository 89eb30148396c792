// Package ingest receives fall events published by devices over MQTT.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	mqttcommon "github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/common/mqtt"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/apperrors"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/auth"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/domain"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/notify"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/service"
)

const defaultHandleTimeout = 10 * time.Second

// Subscriber satisfied by *mqttcommon.Client.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// Ingester the part of the event service the consumer drives.
type Ingester interface {
	IngestFallEvent(ctx context.Context, req service.IngestFallEventRequest) (*service.CreateFallEventResponse, error)
}

// DeviceLookup satisfied by repository.DevicesRepository.
type DeviceLookup interface {
	GetDevice(ctx context.Context, deviceID string) (*domain.Device, error)
}

var errDeviceUnauthorized = errors.New("invalid device credentials")

// eventMessage payload published on falls/{deviceId}/events. DeviceKey is the
// same secret devices send as X-Device-Key over HTTP.
type eventMessage struct {
	DeviceKey  string  `json:"deviceKey"`
	EventUID   string  `json:"eventUid"`
	EventType  string  `json:"eventType"`
	OccurredAt *string `json:"occurredAt"`
}

// MQTTConsumer subscribes to the device event topic and feeds the ingest path.
type MQTTConsumer struct {
	client  Subscriber
	svc     Ingester
	devices DeviceLookup
	topic   string
	qos     byte
	timeout time.Duration
	logger  *zap.Logger

	mu  sync.RWMutex
	ctx context.Context
}

func NewMQTTConsumer(client Subscriber, svc Ingester, devices DeviceLookup, topic string, qos byte, logger *zap.Logger) *MQTTConsumer {
	return &MQTTConsumer{
		client:  client,
		svc:     svc,
		devices: devices,
		topic:   topic,
		qos:     qos,
		timeout: defaultHandleTimeout,
		logger:  logger,
		ctx:     context.Background(),
	}
}

// Start subscribes and blocks until ctx is cancelled.
func (c *MQTTConsumer) Start(ctx context.Context) error {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()

	if err := c.client.Subscribe(c.topic, c.qos, c.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to event topic: %w", err)
	}
	c.logger.Info("MQTT consumer started", zap.String("topic", c.topic))

	<-ctx.Done()
	return nil
}

func (c *MQTTConsumer) Stop() {
	if err := c.client.Unsubscribe(c.topic); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.Error(err))
	}
	c.logger.Info("MQTT consumer stopped")
}

// deviceFromTopic second segment of falls/{deviceId}/events.
func deviceFromTopic(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || strings.TrimSpace(parts[1]) == "" {
		return "", fmt.Errorf("invalid topic format: %s", topic)
	}
	return parts[1], nil
}

// handleMessage errors are logged by the MQTT client and the message dropped.
func (c *MQTTConsumer) handleMessage(topic string, payload []byte) error {
	deviceID, err := deviceFromTopic(topic)
	if err != nil {
		return err
	}

	var msg eventMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}

	c.mu.RLock()
	parent := c.ctx
	c.mu.RUnlock()
	ctx, cancel := context.WithTimeout(parent, c.timeout)
	defer cancel()

	if err := c.authenticate(ctx, deviceID, msg.DeviceKey); err != nil {
		return err
	}

	var occurredAt *time.Time
	if msg.OccurredAt != nil && strings.TrimSpace(*msg.OccurredAt) != "" {
		t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(*msg.OccurredAt))
		if err != nil {
			return fmt.Errorf("invalid occurredAt %q: %w", *msg.OccurredAt, err)
		}
		occurredAt = &t
	}

	resp, err := c.svc.IngestFallEvent(ctx, service.IngestFallEventRequest{
		DeviceID:   deviceID,
		EventUID:   msg.EventUID,
		EventType:  msg.EventType,
		OccurredAt: occurredAt,
		Source:     notify.SourceMQTT,
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return fmt.Errorf("device %s rejected: %s: %s", deviceID, appErr.Code, appErr.Message)
		}
		return fmt.Errorf("device %s ingest failed: %w", deviceID, err)
	}

	c.logger.Debug("MQTT event ingested",
		zap.String("device_id", deviceID),
		zap.String("event_id", resp.Event.ID),
		zap.Bool("created", resp.Created),
	)
	return nil
}

// authenticate applies the HTTP device-key check to the topic's device.
func (c *MQTTConsumer) authenticate(ctx context.Context, deviceID, key string) error {
	if key == "" {
		return fmt.Errorf("device %s: %w: deviceKey missing", deviceID, errDeviceUnauthorized)
	}
	device, err := c.devices.GetDevice(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("device %s lookup failed: %w", deviceID, err)
	}
	if !auth.VerifyDeviceKey(device.DeviceKeyHash, key) {
		c.logger.Info("Device key rejected", zap.String("device_id", deviceID), zap.String("transport", "mqtt"))
		return fmt.Errorf("device %s: %w", deviceID, errDeviceUnauthorized)
	}
	return nil
}
