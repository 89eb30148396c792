package httpapi

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/apperrors"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/auth"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/domain"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/notify"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// FallEventHandler HTTP surface of the fall event service.
type FallEventHandler struct {
	svc    service.FallEventService
	logger *zap.Logger
}

func NewFallEventHandler(svc service.FallEventService, logger *zap.Logger) *FallEventHandler {
	return &FallEventHandler{svc: svc, logger: logger}
}

// ServeHTTP dispatches the bearer-authenticated /api/events routes.
func (h *FallEventHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == "/api/events" && r.Method == http.MethodGet:
		h.List(w, r)
	case path == "/api/events" && r.Method == http.MethodPost:
		h.Create(w, r)
	case path == "/api/events/export.xlsx" && r.Method == http.MethodGet:
		h.Export(w, r)
	case path == "/api/events/update" && r.Method == http.MethodPut:
		h.Review(w, r, "")
	case strings.HasPrefix(path, "/api/events/"):
		rest := strings.TrimPrefix(path, "/api/events/")
		if id, ok := strings.CutSuffix(rest, "/samples"); ok {
			if id == "" || strings.Contains(id, "/") {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			if r.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			h.Samples(w, r, id)
			return
		}
		if rest == "" || strings.Contains(rest, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch r.Method {
		case http.MethodGet:
			h.Get(w, r, rest)
		case http.MethodPut:
			h.Review(w, r, rest)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case path == "/api/events":
		w.WriteHeader(http.StatusMethodNotAllowed)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *FallEventHandler) caller(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		writeError(w, r, h.logger, apperrors.Unauthorized(apperrors.CodeTokenMissing, "authentication required"))
		return auth.Identity{}, false
	}
	return id, true
}

func (h *FallEventHandler) listRequest(r *http.Request, caller auth.Identity) (service.ListFallEventsRequest, error) {
	page, err := parseOptionalInt(r, "page")
	if err != nil {
		return service.ListFallEventsRequest{}, err
	}
	pageSize, err := parseOptionalInt(r, "pageSize")
	if err != nil {
		return service.ListFallEventsRequest{}, err
	}
	q := r.URL.Query()
	return service.ListFallEventsRequest{
		Caller:   caller,
		Page:     page,
		PageSize: pageSize,
		DeviceID: strings.TrimSpace(q.Get("deviceId")),
		Status:   strings.TrimSpace(q.Get("status")),
	}, nil
}

// List GET /api/events
func (h *FallEventHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	req, err := h.listRequest(r, caller)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	resp, err := h.svc.ListFallEvents(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get GET /api/events/{id}
func (h *FallEventHandler) Get(w http.ResponseWriter, r *http.Request, id string) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	event, err := h.svc.GetFallEvent(r.Context(), caller, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// Samples GET /api/events/{id}/samples
func (h *FallEventHandler) Samples(w http.ResponseWriter, r *http.Request, id string) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	samples, err := h.svc.GetEventSamples(r.Context(), caller, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, samples)
}

type createEventBody struct {
	DeviceID   string  `json:"deviceId"`
	EventType  string  `json:"eventType"`
	OccurredAt *string `json:"occurredAt"`
	EventUID   *string `json:"eventUid"`
}

// parseOccurredAt accepts RFC 3339; absent or empty means "now".
func parseOccurredAt(raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(*raw))
	if err != nil {
		return nil, apperrors.Validation(apperrors.CodeInvalidOccurredAt, "occurredAt must be an RFC 3339 timestamp").
			WithFieldErrors(apperrors.FieldError{Field: "occurredAt", Code: apperrors.CodeInvalidOccurredAt})
	}
	return &t, nil
}

func createdStatus(resp *service.CreateFallEventResponse) int {
	if resp.Created {
		return http.StatusCreated
	}
	return http.StatusOK
}

// Create POST /api/events
func (h *FallEventHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var body createEventBody
	if err := readBodyJSON(r, maxBodyBytes, &body); err != nil {
		writeError(w, r, h.logger, invalidBody(err))
		return
	}
	occurredAt, err := parseOccurredAt(body.OccurredAt)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	resp, err := h.svc.CreateFallEvent(r.Context(), service.CreateFallEventRequest{
		Caller:     caller,
		DeviceID:   body.DeviceID,
		EventType:  body.EventType,
		OccurredAt: occurredAt,
		EventUID:   body.EventUID,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, createdStatus(resp), resp.Event)
}

type reviewEventBody struct {
	ID              string  `json:"id"`
	Status          *string `json:"status"`
	ReviewedBy      *string `json:"reviewedBy"`
	ReviewComment   *string `json:"reviewComment"`
	ExpectedVersion *int64  `json:"expectedVersion"`
}

// Review PUT /api/events/{id}, or PUT /api/events/update with the id in the body.
func (h *FallEventHandler) Review(w http.ResponseWriter, r *http.Request, pathID string) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var body reviewEventBody
	if err := readBodyJSON(r, maxBodyBytes, &body); err != nil {
		writeError(w, r, h.logger, invalidBody(err))
		return
	}
	id := pathID
	if id == "" {
		id = body.ID
	}

	event, err := h.svc.ReviewFallEvent(r.Context(), service.ReviewFallEventRequest{
		Caller:          caller,
		EventID:         id,
		Status:          body.Status,
		ReviewedBy:      body.ReviewedBy,
		ReviewComment:   body.ReviewComment,
		ExpectedVersion: body.ExpectedVersion,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// Podium GET /api/devices/podium
func (h *FallEventHandler) Podium(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	counts, err := h.svc.DevicePodium(r.Context(), caller)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// Export GET /api/events/export.xlsx
func (h *FallEventHandler) Export(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	req, err := h.listRequest(r, caller)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	data, err := h.svc.ExportFallEvents(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	filename := "fall-events-" + time.Now().UTC().Format("20060102-150405") + ".xlsx"
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type ingestEventBody struct {
	DeviceID   string  `json:"deviceId"`
	EventUID   string  `json:"eventUid"`
	EventType  string  `json:"eventType"`
	OccurredAt *string `json:"occurredAt"`
}

// authenticatedDevice resolves the device id set by DeviceAuth and checks it
// against the one in the body, if any.
func (h *FallEventHandler) authenticatedDevice(w http.ResponseWriter, r *http.Request, bodyDeviceID string) (string, bool) {
	deviceID, ok := auth.DeviceFrom(r.Context())
	if !ok {
		writeError(w, r, h.logger, apperrors.Unauthorized(apperrors.CodeDeviceUnauthorized, "device credentials required"))
		return "", false
	}
	if b := strings.TrimSpace(bodyDeviceID); b != "" && b != deviceID {
		writeError(w, r, h.logger, apperrors.Validation(apperrors.CodeEventDeviceMismatch, "deviceId does not match the authenticated device").
			WithFieldErrors(apperrors.FieldError{Field: "deviceId", Code: apperrors.CodeEventDeviceMismatch}))
		return "", false
	}
	return deviceID, true
}

// Ingest POST /api/events/ingest
func (h *FallEventHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var body ingestEventBody
	if err := readBodyJSON(r, maxBodyBytes, &body); err != nil {
		writeError(w, r, h.logger, invalidBody(err))
		return
	}
	deviceID, ok := h.authenticatedDevice(w, r, body.DeviceID)
	if !ok {
		return
	}
	occurredAt, err := parseOccurredAt(body.OccurredAt)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	resp, err := h.svc.IngestFallEvent(r.Context(), service.IngestFallEventRequest{
		DeviceID:   deviceID,
		EventUID:   body.EventUID,
		EventType:  body.EventType,
		OccurredAt: occurredAt,
		Source:     notify.SourceIngest,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, createdStatus(resp), resp.Event)
}

type uploadSamplesBody struct {
	DeviceID string               `json:"deviceId"`
	EventUID string               `json:"eventUid"`
	Samples  []domain.EventSample `json:"samples"`
}

// UploadSamples POST /api/events/samples
func (h *FallEventHandler) UploadSamples(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var body uploadSamplesBody
	if err := readBodyJSON(r, maxSamplesBodyBytes, &body); err != nil {
		writeError(w, r, h.logger, invalidBody(err))
		return
	}
	deviceID, ok := h.authenticatedDevice(w, r, body.DeviceID)
	if !ok {
		return
	}

	inserted, err := h.svc.AddEventSamples(r.Context(), service.AddEventSamplesRequest{
		DeviceID: deviceID,
		EventUID: body.EventUID,
		Samples:  body.Samples,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"inserted": inserted})
}
