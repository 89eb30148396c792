package domain

import "time"

// Device read model of the devices table (owned by device management).
type Device struct {
	DeviceID      string     `json:"id"`
	Alias         *string    `json:"alias"`
	PatientID     *string    `json:"patientId"`
	DeviceKeyHash *string    `json:"-"`
	IsActive      bool       `json:"isActive"`
	LastSeenAt    *time.Time `json:"lastSeenAt"`
}
