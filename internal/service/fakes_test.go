package service

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/domain"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/notify"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/repository"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/store"
)

// fakeEventsRepo in-memory FallEventsRepository, serialised by one mutex.
type fakeEventsRepo struct {
	mu       sync.Mutex
	accessMu sync.Mutex
	devices  map[string]bool
	access   map[string]map[string]bool // account -> device, guarded by accessMu
	events   map[string]*domain.FallEvent
	samples  map[string]map[int]domain.EventSample

	err         error // returned by every call when set
	writes      int
	countCalls  int
	lastFilters repository.FallEventFilters
	onCount     func() // runs inside CountEventsByDevice; must not touch the repo
}

func newFakeEventsRepo(devices ...string) *fakeEventsRepo {
	r := &fakeEventsRepo{
		devices: map[string]bool{},
		access:  map[string]map[string]bool{},
		events:  map[string]*domain.FallEvent{},
		samples: map[string]map[int]domain.EventSample{},
	}
	for _, d := range devices {
		r.devices[d] = true
	}
	return r
}

func (r *fakeEventsRepo) grant(account, device string) {
	r.accessMu.Lock()
	defer r.accessMu.Unlock()
	if r.access[account] == nil {
		r.access[account] = map[string]bool{}
	}
	r.access[account][device] = true
}

func (r *fakeEventsRepo) hasAccess(account, device string) bool {
	r.accessMu.Lock()
	defer r.accessMu.Unlock()
	return r.access[account][device]
}

func (r *fakeEventsRepo) seed(ev domain.FallEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ev.Version == 0 {
		ev.Version = 1
	}
	if ev.Status == "" {
		ev.Status = domain.StatusOpen
	}
	r.events[ev.ID] = &ev
}

func clone(ev *domain.FallEvent) *domain.FallEvent {
	c := *ev
	return &c
}

func (r *fakeEventsRepo) find(idOrUID string) *domain.FallEvent {
	if ev, ok := r.events[idOrUID]; ok {
		return ev
	}
	for _, ev := range r.events {
		if ev.EventUID != nil && *ev.EventUID == idOrUID {
			return ev
		}
	}
	return nil
}

func (r *fakeEventsRepo) ListFallEvents(_ context.Context, f repository.FallEventFilters, page, pageSize int) ([]*domain.FallEvent, domain.PaginationMeta, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastFilters = f
	if r.err != nil {
		return nil, domain.PaginationMeta{}, r.err
	}

	matched := []*domain.FallEvent{}
	for _, ev := range r.events {
		if f.DeviceID != nil && ev.DeviceID != *f.DeviceID {
			continue
		}
		if f.Status != nil && ev.Status != *f.Status {
			continue
		}
		if f.AccessibleTo != nil && !r.hasAccess(*f.AccessibleTo, ev.DeviceID) {
			continue
		}
		matched = append(matched, clone(ev))
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].OccurredAt.Equal(matched[j].OccurredAt) {
			return matched[i].OccurredAt.After(matched[j].OccurredAt)
		}
		return matched[i].ID < matched[j].ID
	})

	meta := domain.NewPaginationMeta(page, pageSize, len(matched))
	start := meta.Offset()
	if start > len(matched) {
		start = len(matched)
	}
	end := start + meta.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], meta, nil
}

func (r *fakeEventsRepo) GetFallEvent(_ context.Context, idOrUID string) (*domain.FallEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	ev := r.find(idOrUID)
	if ev == nil {
		return nil, repository.ErrNotFound
	}
	return clone(ev), nil
}

func (r *fakeEventsRepo) CreateFallEvent(_ context.Context, event *domain.FallEvent) (*domain.FallEvent, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, false, r.err
	}
	if !r.devices[event.DeviceID] {
		return nil, false, repository.ErrDeviceNotFound
	}
	if event.EventUID != nil {
		if existing := r.find(*event.EventUID); existing != nil {
			if existing.DeviceID != event.DeviceID {
				return nil, false, repository.ErrEventUIDTaken
			}
			return clone(existing), false, nil
		}
	}
	stored := clone(event)
	stored.Status = domain.StatusOpen
	stored.Version = 1
	stored.CreatedAt = time.Now().UTC()
	r.events[stored.ID] = stored
	r.writes++
	return clone(stored), true, nil
}

func (r *fakeEventsRepo) ReviewFallEvent(_ context.Context, idOrUID string, apply repository.ReviewFunc) (*domain.FallEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	ev := r.find(idOrUID)
	if ev == nil {
		return nil, repository.ErrNotFound
	}
	update, err := apply(clone(ev))
	if err != nil {
		return nil, err
	}
	if update != nil {
		ev.Status = update.Status
		ev.ReviewedBy = update.ReviewedBy
		ev.ReviewedAt = update.ReviewedAt
		ev.ReviewComment = update.ReviewComment
		ev.Version++
		r.writes++
	}
	return clone(ev), nil
}

func (r *fakeEventsRepo) ListEventSamples(_ context.Context, eventID string) ([]domain.EventSample, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	out := []domain.EventSample{}
	for _, s := range r.samples[eventID] {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (r *fakeEventsRepo) InsertEventSamples(_ context.Context, eventID string, samples []domain.EventSample) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	if r.samples[eventID] == nil {
		r.samples[eventID] = map[int]domain.EventSample{}
	}
	n := 0
	for _, s := range samples {
		if _, exists := r.samples[eventID][s.Seq]; exists {
			continue
		}
		r.samples[eventID][s.Seq] = s
		n++
	}
	return n, nil
}

func (r *fakeEventsRepo) CountEventsByDevice(_ context.Context) ([]domain.DeviceEventCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.countCalls++
	if r.onCount != nil {
		r.onCount()
	}
	if r.err != nil {
		return nil, r.err
	}
	counts := map[string]int{}
	for _, ev := range r.events {
		counts[ev.DeviceID]++
	}
	out := []domain.DeviceEventCount{}
	for d, c := range counts {
		out = append(out, domain.DeviceEventCount{DeviceID: d, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].DeviceID < out[j].DeviceID
	})
	return out, nil
}

// fakeDevicesRepo shares device and grant data with the events fake.
type fakeDevicesRepo struct {
	events  *fakeEventsRepo
	touched []string
}

func (d *fakeDevicesRepo) GetDevice(_ context.Context, deviceID string) (*domain.Device, error) {
	d.events.mu.Lock()
	defer d.events.mu.Unlock()
	if !d.events.devices[deviceID] {
		return nil, repository.ErrDeviceNotFound
	}
	return &domain.Device{DeviceID: deviceID, IsActive: true}, nil
}

func (d *fakeDevicesRepo) TouchLastSeen(_ context.Context, deviceID string) error {
	d.touched = append(d.touched, deviceID)
	return nil
}

// HasDeviceAccess does not take events.mu so it can run inside a review callback.
func (d *fakeDevicesRepo) HasDeviceAccess(_ context.Context, accountID, deviceID string) (bool, error) {
	return d.events.hasAccess(accountID, deviceID), nil
}

// fakeKVStore in-memory store.KV with TTL.
type fakeKVStore struct {
	mu   sync.Mutex
	data map[string]fakeKVItem
}

type fakeKVItem struct {
	value   string
	expires time.Time
}

func newFakeKVStore() *fakeKVStore {
	return &fakeKVStore{data: make(map[string]fakeKVItem)}
}

func (f *fakeKVStore) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.data[key]
	if !ok {
		return "", store.ErrMiss
	}
	if !item.expires.IsZero() && time.Now().After(item.expires) {
		delete(f.data, key)
		return "", store.ErrMiss
	}
	return item.value, nil
}

func (f *fakeKVStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	f.data[key] = fakeKVItem{value: value, expires: exp}
	return nil
}

func (f *fakeKVStore) Incr(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, _ := strconv.ParseInt(f.data[key].value, 10, 64)
	n++
	f.data[key] = fakeKVItem{value: strconv.FormatInt(n, 10), expires: f.data[key].expires}
	return n, nil
}

func (f *fakeKVStore) Delete(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

// recordingNotifier captures notifications synchronously.
type recordingNotifier struct {
	mu       sync.Mutex
	created  []*domain.FallEvent
	sources  []notify.Source
	reviewed []*domain.FallEvent
}

func (n *recordingNotifier) EventCreated(ev *domain.FallEvent, source notify.Source) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, ev)
	n.sources = append(n.sources, source)
}

func (n *recordingNotifier) EventReviewed(ev *domain.FallEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reviewed = append(n.reviewed, ev)
}
