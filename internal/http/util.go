package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/apperrors"
)

const maxBodyBytes = 1 << 20

// samples uploads carry up to 10k readings
const maxSamplesBodyBytes = 4 << 20

var errBodyTooLarge = errors.New("request body too large")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// readBodyJSON decodes at most maxBytes; an empty body leaves out untouched.
func readBodyJSON(r *http.Request, maxBytes int64, out any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes+1))
	if err != nil {
		return err
	}
	if int64(len(body)) > maxBytes {
		return errBodyTooLarge
	}
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

// errorBody wire shape of every error response.
type errorBody struct {
	Code        string                 `json:"code"`
	Message     string                 `json:"message"`
	FieldErrors []apperrors.FieldError `json:"field_errors,omitempty"`
}

// writeError maps err onto the apperrors taxonomy and writes it.
// 5xx are logged at error level, 4xx at debug.
func writeError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	appErr := apperrors.From(err)

	fields := []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", appErr.HTTPStatus),
		zap.String("code", appErr.Code),
	}
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		logger.Error("Request failed", append(fields, zap.Error(err))...)
	} else {
		logger.Debug("Request rejected", append(fields, zap.String("message", appErr.Message))...)
	}

	writeJSON(w, appErr.HTTPStatus, errorBody{
		Code:        appErr.Code,
		Message:     appErr.Message,
		FieldErrors: appErr.FieldErrors,
	})
}

func invalidBody(err error) *apperrors.AppError {
	if errors.Is(err, errBodyTooLarge) {
		return apperrors.Validation(apperrors.CodeInvalidBody, "request body too large")
	}
	return apperrors.Validation(apperrors.CodeInvalidBody, "request body is not valid JSON")
}

// parseOptionalInt nil for an absent parameter; a present non-integer is a
// validation error.
func parseOptionalInt(r *http.Request, name string) (*int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, apperrors.Validation(apperrors.CodeInvalidPagination, name+" must be an integer").
			WithFieldErrors(apperrors.FieldError{Field: name, Code: apperrors.CodeInvalidPagination})
	}
	return &v, nil
}
