package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/domain"
)

// PostgresDevicesRepository DevicesRepository on Postgres.
type PostgresDevicesRepository struct {
	db *sql.DB
}

func NewPostgresDevicesRepository(db *sql.DB) *PostgresDevicesRepository {
	return &PostgresDevicesRepository{db: db}
}

var _ DevicesRepository = (*PostgresDevicesRepository)(nil)

func (r *PostgresDevicesRepository) GetDevice(ctx context.Context, deviceID string) (*domain.Device, error) {
	if deviceID == "" {
		return nil, ErrDeviceNotFound
	}

	var d domain.Device
	var alias, patientID, keyHash sql.NullString
	var lastSeen sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT device_id, alias, patient_id, device_key_hash, is_active, last_seen_at
		FROM devices
		WHERE device_id = $1
	`, deviceID).Scan(&d.DeviceID, &alias, &patientID, &keyHash, &d.IsActive, &lastSeen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	d.Alias = nullStringPtr(alias)
	d.PatientID = nullStringPtr(patientID)
	d.DeviceKeyHash = nullStringPtr(keyHash)
	if lastSeen.Valid {
		t := lastSeen.Time
		d.LastSeenAt = &t
	}
	return &d, nil
}

func (r *PostgresDevicesRepository) TouchLastSeen(ctx context.Context, deviceID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE devices SET last_seen_at = now() WHERE device_id = $1`, deviceID)
	if err != nil {
		return fmt.Errorf("failed to touch device last_seen_at: %w", err)
	}
	return nil
}

func (r *PostgresDevicesRepository) HasDeviceAccess(ctx context.Context, accountID, deviceID string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM device_access WHERE account_id = $1 AND device_id = $2
		)
	`, accountID, deviceID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("failed to check device access: %w", err)
	}
	return ok, nil
}
