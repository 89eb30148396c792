package apperrors

// Event error codes.
const (
	CodeEventNotFound        = "EVENT_NOT_FOUND"
	CodeEventVersionConflict = "EVENT_VERSION_CONFLICT"
	CodeEventDeviceMismatch  = "EVENT_DEVICE_MISMATCH"
	CodeInvalidEventType     = "INVALID_EVENT_TYPE"
	CodeInvalidStatus        = "INVALID_STATUS"
	CodeReviewCommentTooLong = "REVIEW_COMMENT_TOO_LONG"
	CodeEventUIDRequired     = "EVENT_UID_REQUIRED"
	CodeEventUIDConflict     = "EVENT_UID_CONFLICT"
	CodeInvalidSample        = "INVALID_SAMPLE"
	CodeInvalidOccurredAt    = "INVALID_OCCURRED_AT"
)

// Device error codes.
const (
	CodeDeviceNotFound     = "DEVICE_NOT_FOUND"
	CodeDeviceUnauthorized = "DEVICE_UNAUTHORIZED"
	CodeDeviceKeyMissing   = "DEVICE_KEY_NOT_CONFIGURED"
)

// Request error codes.
const (
	CodeInvalidPagination = "INVALID_PAGINATION"
	CodeInvalidBody       = "INVALID_REQUEST_BODY"
	CodeFieldRequired     = "FIELD_REQUIRED"
)

// Auth error codes.
const (
	CodeTokenMissing = "TOKEN_MISSING"
	CodeTokenInvalid = "TOKEN_INVALID"
	CodeTokenExpired = "TOKEN_EXPIRED"
	CodeAdminOnly    = "ADMIN_REQUIRED"
	CodeAccessDenied = "ACCESS_DENIED"
)

// Infrastructure error codes.
const (
	CodeStoreUnavailable = "STORE_UNAVAILABLE"
	CodeInternal         = "INTERNAL_ERROR"
)
