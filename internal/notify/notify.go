// Package notify fans fall event changes out to external sinks (Discord, Redis streams).
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/domain"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/metrics"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/worker"
)

type Kind string

const (
	KindEventCreated  Kind = "event.created"
	KindEventReviewed Kind = "event.reviewed"
)

// Source creation path of an event.
type Source string

const (
	SourceAPI    Source = "api"
	SourceIngest Source = "ingest"
	SourceMQTT   Source = "mqtt"
)

// Label human label used in messages.
func (s Source) Label() string {
	if s == SourceAPI {
		return "api/events"
	}
	return "hardware/ingest"
}

// Notification one event change to deliver.
type Notification struct {
	Kind   Kind             `json:"kind"`
	Source Source           `json:"source,omitempty"`
	Event  domain.FallEvent `json:"event"`
	SentAt time.Time        `json:"sentAt"`
}

// Sink delivers notifications to one destination.
type Sink interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// Notifier is what the event service calls after a commit. Implementations never block
// on delivery and never report delivery errors to the caller.
type Notifier interface {
	EventCreated(event *domain.FallEvent, source Source)
	EventReviewed(event *domain.FallEvent)
}

// Nop discards notifications.
type Nop struct{}

func (Nop) EventCreated(*domain.FallEvent, Source) {}
func (Nop) EventReviewed(*domain.FallEvent)        {}

// Submitter runs detached tasks; satisfied by *worker.Pool.
type Submitter interface {
	SubmitDetached(task worker.Task) error
}

// Dispatcher submits one task per sink to the worker pool.
type Dispatcher struct {
	sinks   []Sink
	pool    Submitter
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewDispatcher m may be nil.
func NewDispatcher(pool Submitter, timeout time.Duration, m *metrics.Metrics, logger *zap.Logger, sinks ...Sink) *Dispatcher {
	return &Dispatcher{sinks: sinks, pool: pool, timeout: timeout, metrics: m, logger: logger}
}

var _ Notifier = (*Dispatcher)(nil)

func (d *Dispatcher) EventCreated(event *domain.FallEvent, source Source) {
	d.dispatch(KindEventCreated, source, event)
}

func (d *Dispatcher) EventReviewed(event *domain.FallEvent) {
	d.dispatch(KindEventReviewed, "", event)
}

func (d *Dispatcher) dispatch(kind Kind, source Source, event *domain.FallEvent) {
	if event == nil || len(d.sinks) == 0 {
		return
	}
	n := Notification{Kind: kind, Source: source, Event: *event, SentAt: time.Now().UTC()}

	for _, sink := range d.sinks {
		sink := sink
		err := d.pool.SubmitDetached(func(ctx context.Context) {
			d.deliver(ctx, sink, n)
		})
		if err != nil {
			d.record(sink.Name(), "dropped")
			d.logger.Warn("Notification dropped",
				zap.String("sink", sink.Name()),
				zap.String("event_id", event.ID),
				zap.Error(err),
			)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, sink Sink, n Notification) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	if err := sink.Send(ctx, n); err != nil {
		d.record(sink.Name(), "error")
		d.logger.Error("Notification delivery failed",
			zap.String("sink", sink.Name()),
			zap.String("kind", string(n.Kind)),
			zap.String("event_id", n.Event.ID),
			zap.Error(err),
		)
		return
	}
	d.record(sink.Name(), "success")
	d.logger.Debug("Notification delivered",
		zap.String("sink", sink.Name()),
		zap.String("kind", string(n.Kind)),
		zap.String("event_id", n.Event.ID),
	)
}

func (d *Dispatcher) record(sink, result string) {
	if d.metrics == nil {
		return
	}
	d.metrics.NotificationsTotal.WithLabelValues(sink, result).Inc()
}
