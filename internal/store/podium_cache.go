package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/domain"
)

const (
	podiumKey    = "falls:podium:v2"
	podiumGenKey = "falls:podium:gen"
)

// PodiumCache short-lived copy of the per-device event counts.
//
// Every entry is stamped with the generation read before the counts were
// computed. Invalidate bumps the generation, so an entry computed before an
// invalidation is never served even if its write lands afterwards.
type PodiumCache struct {
	kv  KV
	ttl time.Duration
}

type podiumEntry struct {
	Generation int64                     `json:"generation"`
	Counts     []domain.DeviceEventCount `json:"counts"`
}

func NewPodiumCache(kv KV, ttl time.Duration) *PodiumCache {
	return &PodiumCache{kv: kv, ttl: ttl}
}

// Generation returns the current invalidation generation, 0 when none was recorded.
func (c *PodiumCache) Generation(ctx context.Context) (int64, error) {
	raw, err := c.kv.Get(ctx, podiumGenKey)
	if err != nil {
		if errors.Is(err, ErrMiss) {
			return 0, nil
		}
		return 0, err
	}
	gen, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("decode podium generation: %w", err)
	}
	return gen, nil
}

// Get returns ErrMiss when nothing valid is cached.
func (c *PodiumCache) Get(ctx context.Context) ([]domain.DeviceEventCount, error) {
	raw, err := c.kv.Get(ctx, podiumKey)
	if err != nil {
		return nil, err
	}
	var entry podiumEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, fmt.Errorf("decode podium cache: %w", err)
	}
	gen, err := c.Generation(ctx)
	if err != nil {
		return nil, err
	}
	if entry.Generation != gen {
		return nil, ErrMiss
	}
	if entry.Counts == nil {
		entry.Counts = []domain.DeviceEventCount{}
	}
	return entry.Counts, nil
}

// Set stores counts computed while gen was current.
func (c *PodiumCache) Set(ctx context.Context, gen int64, counts []domain.DeviceEventCount) error {
	if counts == nil {
		counts = []domain.DeviceEventCount{}
	}
	b, err := json.Marshal(podiumEntry{Generation: gen, Counts: counts})
	if err != nil {
		return fmt.Errorf("encode podium cache: %w", err)
	}
	return c.kv.Set(ctx, podiumKey, string(b), c.ttl)
}

func (c *PodiumCache) Invalidate(ctx context.Context) error {
	if _, err := c.kv.Incr(ctx, podiumGenKey); err != nil {
		return err
	}
	return c.kv.Delete(ctx, podiumKey)
}
