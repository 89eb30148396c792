package httpapi

import (
	"context"
	"sync"

	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/auth"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/domain"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/repository"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/service"
)

// stubService records the last request and returns canned results.
type stubService struct {
	mu sync.Mutex

	lastList   service.ListFallEventsRequest
	lastCreate service.CreateFallEventRequest
	lastReview service.ReviewFallEventRequest
	lastIngest service.IngestFallEventRequest
	lastUpload service.AddEventSamplesRequest
	lastGetID  string

	event    *domain.FallEvent
	created  bool
	samples  []domain.EventSample
	podium   []domain.DeviceEventCount
	inserted int
	xlsx     []byte
	err      error
}

func (s *stubService) ListFallEvents(_ context.Context, req service.ListFallEventsRequest) (*service.ListFallEventsResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastList = req
	if s.err != nil {
		return nil, s.err
	}
	items := []*domain.FallEvent{}
	if s.event != nil {
		items = append(items, s.event)
	}
	return &service.ListFallEventsResponse{
		Items:      items,
		Pagination: domain.NewPaginationMeta(1, domain.DefaultPageSize, len(items)),
	}, nil
}

func (s *stubService) GetFallEvent(_ context.Context, _ auth.Identity, id string) (*domain.FallEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastGetID = id
	return s.event, s.err
}

func (s *stubService) GetEventSamples(_ context.Context, _ auth.Identity, id string) ([]domain.EventSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastGetID = id
	return s.samples, s.err
}

func (s *stubService) CreateFallEvent(_ context.Context, req service.CreateFallEventRequest) (*service.CreateFallEventResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCreate = req
	if s.err != nil {
		return nil, s.err
	}
	return &service.CreateFallEventResponse{Event: s.event, Created: s.created}, nil
}

func (s *stubService) ReviewFallEvent(_ context.Context, req service.ReviewFallEventRequest) (*domain.FallEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastReview = req
	return s.event, s.err
}

func (s *stubService) DevicePodium(_ context.Context, _ auth.Identity) ([]domain.DeviceEventCount, error) {
	return s.podium, s.err
}

func (s *stubService) IngestFallEvent(_ context.Context, req service.IngestFallEventRequest) (*service.CreateFallEventResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastIngest = req
	if s.err != nil {
		return nil, s.err
	}
	return &service.CreateFallEventResponse{Event: s.event, Created: s.created}, nil
}

func (s *stubService) AddEventSamples(_ context.Context, req service.AddEventSamplesRequest) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUpload = req
	return s.inserted, s.err
}

func (s *stubService) ExportFallEvents(_ context.Context, req service.ListFallEventsRequest) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastList = req
	return s.xlsx, s.err
}

// stubDevices DevicesRepository backed by a map of device id to key hash.
type stubDevices struct {
	hashes map[string]string
	err    error
}

func (d *stubDevices) GetDevice(_ context.Context, deviceID string) (*domain.Device, error) {
	if d.err != nil {
		return nil, d.err
	}
	hash, ok := d.hashes[deviceID]
	if !ok {
		return nil, repository.ErrDeviceNotFound
	}
	dev := &domain.Device{DeviceID: deviceID, IsActive: true}
	if hash != "" {
		dev.DeviceKeyHash = &hash
	}
	return dev, nil
}

func (d *stubDevices) TouchLastSeen(context.Context, string) error { return nil }

func (d *stubDevices) HasDeviceAccess(context.Context, string, string) (bool, error) {
	return true, nil
}
