package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"

	"github.com/lib/pq"
)

var (
	// ErrNotFound no row matched the lookup.
	ErrNotFound = errors.New("record not found")
	// ErrDeviceNotFound referenced device does not exist.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrEventUIDTaken event_uid is stored for a different device.
	ErrEventUIDTaken = errors.New("event uid belongs to another device")
)

// Postgres SQLSTATE codes the repositories care about.
const (
	pqForeignKeyViolation   = "23503"
	pqInvalidTextRepr       = "22P02"
	pqInvalidDatetime       = "22007"
	pqDatetimeFieldOverflow = "22008"
	pqCharNotInRepertoire   = "22021"
	pqQueryCanceled         = "57014"
	pqAdminShutdown         = "57P01"
	pqCrashShutdown         = "57P02"
	pqCannotConnectNow      = "57P03"
	pqTooManyConnections    = "53300"
)

// IsUnavailable reports whether err means the store could not serve the call
// (connection failure, shutdown, timeout or cancellation).
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code.Class() == "08" {
			return true
		}
		switch pqErr.Code {
		case pqQueryCanceled, pqAdminShutdown, pqCrashShutdown, pqCannotConnectNow, pqTooManyConnections:
			return true
		}
		return false
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsInvalidInput reports whether Postgres rejected a value's representation.
func IsInvalidInput(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case pqInvalidTextRepr, pqInvalidDatetime, pqDatetimeFieldOverflow, pqCharNotInRepertoire:
		return true
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation
}
