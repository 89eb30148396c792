package domain

import "time"

// EventType kind of trigger that produced a FallEvent.
type EventType string

const (
	EventTypeFall            EventType = "FALL"
	EventTypeEmergencyButton EventType = "EMERGENCY_BUTTON"
	EventTypeSimulated       EventType = "SIMULATED"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventTypeFall, EventTypeEmergencyButton, EventTypeSimulated:
		return true
	}
	return false
}

// EventStatus review state of a FallEvent.
// Any status may move to any other status through a review.
type EventStatus string

const (
	StatusOpen          EventStatus = "OPEN"
	StatusConfirmedFall EventStatus = "CONFIRMED_FALL"
	StatusFalseAlarm    EventStatus = "FALSE_ALARM"
	StatusResolved      EventStatus = "RESOLVED"
)

// Valid reports whether s is one of the four review states.
func (s EventStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusConfirmedFall, StatusFalseAlarm, StatusResolved:
		return true
	}
	return false
}

// MaxReviewCommentLength upper bound in characters (runes).
const MaxReviewCommentLength = 255

// FallEvent row of the events table plus joined display fields.
type FallEvent struct {
	ID        string      `json:"id"`
	EventUID  *string     `json:"eventUid"`
	DeviceID  string      `json:"deviceId"`
	EventType EventType   `json:"eventType"`
	Status    EventStatus `json:"status"`

	OccurredAt time.Time `json:"occurredAt"` // immutable
	CreatedAt  time.Time `json:"createdAt"`  // immutable

	// ReviewedBy and ReviewedAt are always written together.
	ReviewedBy    *string    `json:"reviewedBy"`
	ReviewedAt    *time.Time `json:"reviewedAt"`
	ReviewComment *string    `json:"reviewComment"`

	Version int64 `json:"version"`

	// Derived via LEFT JOIN, not authoritative.
	DeviceAlias    *string `json:"deviceAlias"`
	PatientName    *string `json:"patientName"`
	ReviewedByName *string `json:"reviewedByName"`
}

// EventSample one acceleration reading of an event waveform. Write-once.
type EventSample struct {
	Seq  int     `json:"seq"`
	TMs  int64   `json:"tMs"`
	AccX float64 `json:"accX"`
	AccY float64 `json:"accY"`
	AccZ float64 `json:"accZ"`
}

// DeviceEventCount one podium entry.
type DeviceEventCount struct {
	DeviceID string `json:"deviceId"`
	Count    int    `json:"count"`
}
