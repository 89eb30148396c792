package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/apperrors"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/auth"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/domain"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/export"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/metrics"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/notify"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/repository"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/store"
)

const (
	maxEventUIDLength = 128
	maxSamplesPerCall = 10000
	maxExportRows     = 10000
)

// FallEventService event lifecycle, review and aggregates.
type FallEventService interface {
	ListFallEvents(ctx context.Context, req ListFallEventsRequest) (*ListFallEventsResponse, error)
	GetFallEvent(ctx context.Context, caller auth.Identity, idOrUID string) (*domain.FallEvent, error)
	GetEventSamples(ctx context.Context, caller auth.Identity, idOrUID string) ([]domain.EventSample, error)
	CreateFallEvent(ctx context.Context, req CreateFallEventRequest) (*CreateFallEventResponse, error)
	ReviewFallEvent(ctx context.Context, req ReviewFallEventRequest) (*domain.FallEvent, error)
	DevicePodium(ctx context.Context, caller auth.Identity) ([]domain.DeviceEventCount, error)

	// IngestFallEvent device-authenticated creation; eventUid is mandatory.
	IngestFallEvent(ctx context.Context, req IngestFallEventRequest) (*CreateFallEventResponse, error)
	AddEventSamples(ctx context.Context, req AddEventSamplesRequest) (int, error)
	ExportFallEvents(ctx context.Context, req ListFallEventsRequest) ([]byte, error)
}

// PodiumCache cache used by DevicePodium; satisfied by *store.PodiumCache.
type PodiumCache interface {
	Get(ctx context.Context) ([]domain.DeviceEventCount, error)
	Generation(ctx context.Context) (int64, error)
	Set(ctx context.Context, gen int64, counts []domain.DeviceEventCount) error
	Invalidate(ctx context.Context) error
}

type fallEventService struct {
	eventsRepo  repository.FallEventsRepository
	devicesRepo repository.DevicesRepository
	podium      PodiumCache
	notifier    notify.Notifier
	metrics     *metrics.Metrics
	logger      *zap.Logger
	now         func() time.Time
}

// NewFallEventService podium, notifier and m may be nil.
func NewFallEventService(
	eventsRepo repository.FallEventsRepository,
	devicesRepo repository.DevicesRepository,
	podium PodiumCache,
	notifier notify.Notifier,
	m *metrics.Metrics,
	logger *zap.Logger,
) FallEventService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &fallEventService{
		eventsRepo:  eventsRepo,
		devicesRepo: devicesRepo,
		podium:      podium,
		notifier:    notifier,
		metrics:     m,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// ============================================
// Request/Response DTOs
// ============================================

// ListFallEventsRequest nil Page/PageSize take the defaults.
type ListFallEventsRequest struct {
	Caller   auth.Identity
	Page     *int
	PageSize *int
	DeviceID string
	Status   string
}

type ListFallEventsResponse struct {
	Items      []*domain.FallEvent   `json:"data"`
	Pagination domain.PaginationMeta `json:"pagination"`
}

type CreateFallEventRequest struct {
	Caller     auth.Identity
	DeviceID   string
	EventType  string
	OccurredAt *time.Time
	EventUID   *string
}

// CreateFallEventResponse Created is false when EventUID was already stored.
type CreateFallEventResponse struct {
	Event   *domain.FallEvent
	Created bool
}

// ReviewFallEventRequest nil fields are left as stored.
type ReviewFallEventRequest struct {
	Caller          auth.Identity
	EventID         string
	Status          *string
	ReviewedBy      *string
	ReviewComment   *string
	ExpectedVersion *int64
}

type IngestFallEventRequest struct {
	DeviceID   string
	EventUID   string
	EventType  string
	OccurredAt *time.Time
	Source     notify.Source
}

type AddEventSamplesRequest struct {
	DeviceID string
	EventUID string
	Samples  []domain.EventSample
}

// ============================================
// Queries
// ============================================

func (s *fallEventService) ListFallEvents(ctx context.Context, req ListFallEventsRequest) (*ListFallEventsResponse, error) {
	page, pageSize, err := normalizePagination(req.Page, req.PageSize)
	if err != nil {
		return nil, err
	}
	filters, err := s.buildFilters(req)
	if err != nil {
		return nil, err
	}

	events, meta, err := s.eventsRepo.ListFallEvents(ctx, filters, page, pageSize)
	if err != nil {
		return nil, s.storeError(ctx, "list events", err)
	}
	return &ListFallEventsResponse{Items: events, Pagination: meta}, nil
}

func (s *fallEventService) buildFilters(req ListFallEventsRequest) (repository.FallEventFilters, error) {
	filters := repository.FallEventFilters{}
	if id := strings.TrimSpace(req.DeviceID); id != "" {
		filters.DeviceID = &id
	}
	if req.Status != "" {
		status := domain.EventStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
		if !status.Valid() {
			return filters, apperrors.Validation(apperrors.CodeInvalidStatus, "status must be one of OPEN, CONFIRMED_FALL, FALSE_ALARM, RESOLVED")
		}
		filters.Status = &status
	}
	if !req.Caller.IsAdmin() {
		account := req.Caller.AccountID
		filters.AccessibleTo = &account
	}
	return filters, nil
}

// normalizePagination applies defaults and the page size ceiling.
func normalizePagination(page, pageSize *int) (int, int, error) {
	p, size := 1, domain.DefaultPageSize
	if page != nil {
		if *page < 1 {
			return 0, 0, apperrors.Validation(apperrors.CodeInvalidPagination, "page must be a positive integer").
				WithFieldErrors(apperrors.FieldError{Field: "page", Code: apperrors.CodeInvalidPagination})
		}
		p = *page
	}
	if pageSize != nil {
		if *pageSize < 1 {
			return 0, 0, apperrors.Validation(apperrors.CodeInvalidPagination, "pageSize must be a positive integer").
				WithFieldErrors(apperrors.FieldError{Field: "pageSize", Code: apperrors.CodeInvalidPagination})
		}
		size = *pageSize
	}
	if size > domain.MaxPageSize {
		size = domain.MaxPageSize
	}
	return p, size, nil
}

func (s *fallEventService) GetFallEvent(ctx context.Context, caller auth.Identity, idOrUID string) (*domain.FallEvent, error) {
	id := strings.TrimSpace(idOrUID)
	if id == "" {
		return nil, apperrors.NotFound(apperrors.CodeEventNotFound, "event not found")
	}
	event, err := s.eventsRepo.GetFallEvent(ctx, id)
	if err != nil {
		return nil, s.storeError(ctx, "get event", err)
	}
	if err := s.checkDeviceAccess(ctx, caller, event.DeviceID); err != nil {
		return nil, err
	}
	return event, nil
}

func (s *fallEventService) GetEventSamples(ctx context.Context, caller auth.Identity, idOrUID string) ([]domain.EventSample, error) {
	event, err := s.GetFallEvent(ctx, caller, idOrUID)
	if err != nil {
		return nil, err
	}
	samples, err := s.eventsRepo.ListEventSamples(ctx, event.ID)
	if err != nil {
		return nil, s.storeError(ctx, "list samples", err)
	}
	if samples == nil {
		samples = []domain.EventSample{}
	}
	return samples, nil
}

// checkDeviceAccess admins see every device, members only granted ones.
func (s *fallEventService) checkDeviceAccess(ctx context.Context, caller auth.Identity, deviceID string) error {
	if caller.IsAdmin() {
		return nil
	}
	ok, err := s.devicesRepo.HasDeviceAccess(ctx, caller.AccountID, deviceID)
	if err != nil {
		return s.storeError(ctx, "check device access", err)
	}
	if !ok {
		return apperrors.Forbidden(apperrors.CodeAccessDenied, "no access to this device")
	}
	return nil
}

func requireAdmin(caller auth.Identity) error {
	if !caller.IsAdmin() {
		return apperrors.Forbidden(apperrors.CodeAdminOnly, "administrator role required")
	}
	return nil
}

// DevicePodium serves from cache when possible; cache errors fall through to the database.
func (s *fallEventService) DevicePodium(ctx context.Context, caller auth.Identity) ([]domain.DeviceEventCount, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}

	cacheable := false
	var gen int64
	if s.podium != nil {
		counts, err := s.podium.Get(ctx)
		if err == nil {
			return counts, nil
		}
		if !errors.Is(err, store.ErrMiss) {
			s.logger.Warn("Podium cache read failed", zap.Error(err))
		}
		// Read before counting so a concurrent invalidation voids this write.
		if gen, err = s.podium.Generation(ctx); err != nil {
			s.logger.Warn("Podium cache generation read failed", zap.Error(err))
		} else {
			cacheable = true
		}
	}

	counts, err := s.eventsRepo.CountEventsByDevice(ctx)
	if err != nil {
		return nil, s.storeError(ctx, "count events by device", err)
	}
	if counts == nil {
		counts = []domain.DeviceEventCount{}
	}

	if cacheable {
		if err := s.podium.Set(ctx, gen, counts); err != nil {
			s.logger.Warn("Podium cache write failed", zap.Error(err))
		}
	}
	return counts, nil
}

// ExportFallEvents walks every page of the filtered list, up to maxExportRows.
func (s *fallEventService) ExportFallEvents(ctx context.Context, req ListFallEventsRequest) ([]byte, error) {
	if err := requireAdmin(req.Caller); err != nil {
		return nil, err
	}
	filters, err := s.buildFilters(req)
	if err != nil {
		return nil, err
	}

	all := []*domain.FallEvent{}
	for page := 1; len(all) < maxExportRows; page++ {
		events, meta, err := s.eventsRepo.ListFallEvents(ctx, filters, page, domain.MaxPageSize)
		if err != nil {
			return nil, s.storeError(ctx, "export events", err)
		}
		all = append(all, events...)
		if meta.Page >= meta.TotalPages {
			break
		}
	}
	if len(all) > maxExportRows {
		all = all[:maxExportRows]
	}

	data, err := export.EventsXLSX(all)
	if err != nil {
		s.logger.Error("Failed to render events export", zap.Error(err))
		return nil, apperrors.Internal(err)
	}
	return data, nil
}

// ============================================
// Commands
// ============================================

func (s *fallEventService) CreateFallEvent(ctx context.Context, req CreateFallEventRequest) (*CreateFallEventResponse, error) {
	if err := requireAdmin(req.Caller); err != nil {
		return nil, err
	}
	var uid *string
	if req.EventUID != nil {
		trimmed := strings.TrimSpace(*req.EventUID)
		if trimmed != "" {
			if err := validateEventUID(trimmed); err != nil {
				return nil, err
			}
			uid = &trimmed
		}
	}
	return s.create(ctx, req.DeviceID, req.EventType, req.OccurredAt, uid, notify.SourceAPI)
}

func (s *fallEventService) IngestFallEvent(ctx context.Context, req IngestFallEventRequest) (*CreateFallEventResponse, error) {
	uid := strings.TrimSpace(req.EventUID)
	if uid == "" {
		return nil, apperrors.Validation(apperrors.CodeEventUIDRequired, "eventUid is required").
			WithFieldErrors(apperrors.FieldError{Field: "eventUid", Code: apperrors.CodeFieldRequired})
	}
	if err := validateEventUID(uid); err != nil {
		return nil, err
	}

	source := req.Source
	if source == "" {
		source = notify.SourceIngest
	}
	resp, err := s.create(ctx, req.DeviceID, req.EventType, req.OccurredAt, &uid, source)
	if err != nil {
		return nil, err
	}

	if err := s.devicesRepo.TouchLastSeen(ctx, req.DeviceID); err != nil {
		s.logger.Warn("Failed to update device last_seen_at",
			zap.String("device_id", req.DeviceID),
			zap.Error(err),
		)
	}
	return resp, nil
}

func validateEventUID(uid string) error {
	if utf8.RuneCountInString(uid) > maxEventUIDLength {
		return apperrors.Validation(apperrors.CodeInvalidBody, "eventUid is too long").
			WithFieldErrors(apperrors.FieldError{Field: "eventUid", Code: apperrors.CodeInvalidBody})
	}
	return rejectNUL("eventUid", uid)
}

// rejectNUL Postgres text columns cannot hold U+0000.
func rejectNUL(field, v string) error {
	if strings.IndexByte(v, 0) >= 0 {
		return apperrors.Validation(apperrors.CodeInvalidBody, field+" must not contain NUL characters").
			WithFieldErrors(apperrors.FieldError{Field: field, Code: apperrors.CodeInvalidBody})
	}
	return nil
}

// create is the single insert path for API, HTTP ingest and MQTT.
func (s *fallEventService) create(ctx context.Context, deviceID, eventType string, occurredAt *time.Time, uid *string, source notify.Source) (*CreateFallEventResponse, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, apperrors.Validation(apperrors.CodeFieldRequired, "deviceId is required").
			WithFieldErrors(apperrors.FieldError{Field: "deviceId", Code: apperrors.CodeFieldRequired})
	}
	et := domain.EventType(strings.ToUpper(strings.TrimSpace(eventType)))
	if !et.Valid() {
		return nil, apperrors.Validation(apperrors.CodeInvalidEventType, "eventType must be one of FALL, EMERGENCY_BUTTON, SIMULATED").
			WithFieldErrors(apperrors.FieldError{Field: "eventType", Code: apperrors.CodeInvalidEventType})
	}

	occurred := s.now()
	if occurredAt != nil && !occurredAt.IsZero() {
		occurred = occurredAt.UTC()
	}

	event := &domain.FallEvent{
		ID:         uuid.NewString(),
		EventUID:   uid,
		DeviceID:   deviceID,
		EventType:  et,
		Status:     domain.StatusOpen,
		OccurredAt: occurred,
		Version:    1,
	}

	stored, created, err := s.eventsRepo.CreateFallEvent(ctx, event)
	if err != nil {
		return nil, s.storeError(ctx, "create event", err)
	}

	if created {
		s.logger.Info("Fall event created",
			zap.String("event_id", stored.ID),
			zap.String("device_id", stored.DeviceID),
			zap.String("event_type", string(stored.EventType)),
			zap.String("source", string(source)),
		)
		if s.metrics != nil {
			s.metrics.EventsCreatedTotal.WithLabelValues(string(source)).Inc()
		}
		s.invalidatePodium(ctx)
		s.notifier.EventCreated(stored, source)
	} else {
		s.logger.Debug("Duplicate event uid, returning stored event",
			zap.String("event_id", stored.ID),
			zap.String("device_id", stored.DeviceID),
		)
	}
	return &CreateFallEventResponse{Event: stored, Created: created}, nil
}

func (s *fallEventService) invalidatePodium(ctx context.Context) {
	if s.podium == nil {
		return
	}
	if err := s.podium.Invalidate(ctx); err != nil {
		s.logger.Warn("Podium cache invalidation failed", zap.Error(err))
	}
}

// ReviewFallEvent validates before touching the store, then compares and writes
// under the row lock. An identical request performs no write.
// ReviewFallEvent admins may review any event and name a reviewer; members
// need access to the event's device and are always recorded as the reviewer.
func (s *fallEventService) ReviewFallEvent(ctx context.Context, req ReviewFallEventRequest) (*domain.FallEvent, error) {
	id := strings.TrimSpace(req.EventID)
	if id == "" {
		return nil, apperrors.Validation(apperrors.CodeFieldRequired, "id is required").
			WithFieldErrors(apperrors.FieldError{Field: "id", Code: apperrors.CodeFieldRequired})
	}

	var status *domain.EventStatus
	if req.Status != nil {
		st := domain.EventStatus(strings.ToUpper(strings.TrimSpace(*req.Status)))
		if !st.Valid() {
			return nil, apperrors.Validation(apperrors.CodeInvalidStatus, "status must be one of OPEN, CONFIRMED_FALL, FALSE_ALARM, RESOLVED").
				WithFieldErrors(apperrors.FieldError{Field: "status", Code: apperrors.CodeInvalidStatus})
		}
		status = &st
	}

	comment, commentSet, err := normalizeComment(req.ReviewComment)
	if err != nil {
		return nil, err
	}

	var reviewer *string
	if req.Caller.IsAdmin() && req.ReviewedBy != nil && strings.TrimSpace(*req.ReviewedBy) != "" {
		r := strings.TrimSpace(*req.ReviewedBy)
		if err := rejectNUL("reviewedBy", r); err != nil {
			return nil, err
		}
		reviewer = &r
	} else if req.Caller.AccountID != "" {
		r := req.Caller.AccountID
		reviewer = &r
	}

	changed := false
	event, err := s.eventsRepo.ReviewFallEvent(ctx, id, func(current *domain.FallEvent) (*repository.ReviewUpdate, error) {
		if err := s.checkDeviceAccess(ctx, req.Caller, current.DeviceID); err != nil {
			return nil, err
		}
		if req.ExpectedVersion != nil && *req.ExpectedVersion != current.Version {
			return nil, apperrors.Conflict(apperrors.CodeEventVersionConflict, "event was modified by another review")
		}

		update := &repository.ReviewUpdate{
			Status:        current.Status,
			ReviewedBy:    current.ReviewedBy,
			ReviewedAt:    current.ReviewedAt,
			ReviewComment: current.ReviewComment,
		}
		if status != nil {
			update.Status = *status
		}
		if commentSet {
			update.ReviewComment = comment
		}
		if reviewer != nil {
			update.ReviewedBy = reviewer
		}

		if update.Status == current.Status &&
			equalStringPtr(update.ReviewedBy, current.ReviewedBy) &&
			equalStringPtr(update.ReviewComment, current.ReviewComment) {
			return nil, nil
		}

		if reviewer != nil {
			now := s.now()
			update.ReviewedAt = &now
		}
		changed = true
		return update, nil
	})
	if err != nil {
		return nil, s.storeError(ctx, "review event", err)
	}

	if changed {
		s.logger.Info("Fall event reviewed",
			zap.String("event_id", event.ID),
			zap.String("status", string(event.Status)),
			zap.Int64("version", event.Version),
		)
		if s.metrics != nil {
			s.metrics.EventsReviewedTotal.WithLabelValues(string(event.Status)).Inc()
		}
		s.notifier.EventReviewed(event)
	}
	return event, nil
}

// normalizeComment trims; empty clears the comment. set reports whether the
// caller supplied a comment at all.
func normalizeComment(raw *string) (comment *string, set bool, err error) {
	if raw == nil {
		return nil, false, nil
	}
	trimmed := strings.TrimSpace(*raw)
	if trimmed == "" {
		return nil, true, nil
	}
	if utf8.RuneCountInString(trimmed) > domain.MaxReviewCommentLength {
		return nil, false, apperrors.Validation(apperrors.CodeReviewCommentTooLong, "reviewComment must be at most 255 characters").
			WithFieldErrors(apperrors.FieldError{Field: "reviewComment", Code: apperrors.CodeReviewCommentTooLong})
	}
	if err := rejectNUL("reviewComment", trimmed); err != nil {
		return nil, false, err
	}
	return &trimmed, true, nil
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (s *fallEventService) AddEventSamples(ctx context.Context, req AddEventSamplesRequest) (int, error) {
	uid := strings.TrimSpace(req.EventUID)
	if uid == "" {
		return 0, apperrors.Validation(apperrors.CodeEventUIDRequired, "eventUid is required").
			WithFieldErrors(apperrors.FieldError{Field: "eventUid", Code: apperrors.CodeFieldRequired})
	}
	if len(req.Samples) > maxSamplesPerCall {
		return 0, apperrors.Validation(apperrors.CodeInvalidSample, "too many samples in one request")
	}
	for i, sm := range req.Samples {
		if sm.Seq < 0 || sm.TMs < 0 {
			return 0, apperrors.Validation(apperrors.CodeInvalidSample, "seq and tMs must be non-negative").
				WithFieldErrors(apperrors.FieldError{Field: "samples", Code: apperrors.CodeInvalidSample, Message: sampleIndex(i)})
		}
	}

	event, err := s.eventsRepo.GetFallEvent(ctx, uid)
	if err != nil {
		return 0, s.storeError(ctx, "get event for samples", err)
	}
	if event.DeviceID != req.DeviceID {
		return 0, apperrors.Forbidden(apperrors.CodeEventDeviceMismatch, "event does not belong to the authenticated device")
	}
	if len(req.Samples) == 0 {
		return 0, nil
	}

	inserted, err := s.eventsRepo.InsertEventSamples(ctx, event.ID, req.Samples)
	if err != nil {
		return 0, s.storeError(ctx, "insert samples", err)
	}
	s.logger.Debug("Event samples stored",
		zap.String("event_id", event.ID),
		zap.Int("received", len(req.Samples)),
		zap.Int("inserted", inserted),
	)
	return inserted, nil
}

func sampleIndex(i int) string {
	return "index " + strconv.Itoa(i)
}
