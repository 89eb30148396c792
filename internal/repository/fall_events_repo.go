package repository

import (
	"context"
	"time"

	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/domain"
)

// FallEventsRepository persistence of fall events and their samples.
// Every method runs its reads and its single write in one transaction.
type FallEventsRepository interface {
	// ListFallEvents returns one page plus a pagination envelope computed from
	// the same snapshot as the page (the page number may be corrected).
	ListFallEvents(ctx context.Context, filters FallEventFilters, page, pageSize int) ([]*domain.FallEvent, domain.PaginationMeta, error)

	// GetFallEvent looks up by event id or event uid.
	GetFallEvent(ctx context.Context, idOrUID string) (*domain.FallEvent, error)

	// CreateFallEvent inserts event. When event.EventUID is already stored the
	// existing row is returned with created=false.
	CreateFallEvent(ctx context.Context, event *domain.FallEvent) (stored *domain.FallEvent, created bool, err error)

	// ReviewFallEvent locks the row, hands it to apply and persists the
	// returned update. A nil update leaves the row untouched.
	ReviewFallEvent(ctx context.Context, idOrUID string, apply ReviewFunc) (*domain.FallEvent, error)

	// ListEventSamples returns the samples of eventID ordered by seq.
	ListEventSamples(ctx context.Context, eventID string) ([]domain.EventSample, error)

	// InsertEventSamples writes samples, skipping seq values already stored.
	InsertEventSamples(ctx context.Context, eventID string, samples []domain.EventSample) (int, error)

	// CountEventsByDevice aggregates the whole event history per device.
	CountEventsByDevice(ctx context.Context) ([]domain.DeviceEventCount, error)
}

// FallEventFilters list filters; nil fields are not applied.
type FallEventFilters struct {
	DeviceID *string
	Status   *domain.EventStatus

	// AccessibleTo restricts to devices granted to this account in device_access.
	AccessibleTo *string
}

// ReviewUpdate the full set of reviewable columns to write.
type ReviewUpdate struct {
	Status        domain.EventStatus
	ReviewedBy    *string
	ReviewedAt    *time.Time
	ReviewComment *string
}

// ReviewFunc computes the update for the locked current row.
// Returning (nil, nil) means nothing changes.
type ReviewFunc func(current *domain.FallEvent) (*ReviewUpdate, error)
