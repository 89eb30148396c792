package repository

import (
	"context"

	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/domain"
)

// DevicesRepository read access to devices needed by event review and ingest.
type DevicesRepository interface {
	GetDevice(ctx context.Context, deviceID string) (*domain.Device, error)

	// TouchLastSeen records device activity.
	TouchLastSeen(ctx context.Context, deviceID string) error

	// HasDeviceAccess reports whether accountID was granted deviceID.
	HasDeviceAccess(ctx context.Context, accountID, deviceID string) (bool, error)
}
