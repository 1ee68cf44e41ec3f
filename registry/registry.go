// Package registry holds the in-memory view of configured recipient
// channels and their dispatch watermarks.
package registry

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"rssbus/domain"
)

type Registry struct {
	mu       sync.RWMutex
	channels map[string]*domain.RecipientChannel
	logger   *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

func New(logger *slog.Logger) *Registry {
	return &Registry{
		channels: make(map[string]*domain.RecipientChannel),
		logger:   logger,
		now:      time.Now,
	}
}

// Rebuild replaces the channel set with the freshly loaded one. New
// (tenant, channel) pairs start with a watermark of now so recipients
// are not flooded with history; pairs that survive the reload keep their
// watermark; pairs that disappeared are dropped without draining.
func (r *Registry) Rebuild(channels []domain.RecipientChannel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]*domain.RecipientChannel, len(channels))
	for i := range channels {
		ch := channels[i]
		key := ch.Key()
		if existing, ok := r.channels[key]; ok {
			ch.Watermark = existing.Watermark
			r.logger.Info("recipient channel reloaded", "channel", key)
		} else {
			ch.Watermark = r.now()
			r.logger.Info("recipient channel added", "channel", key)
		}
		next[key] = &ch
	}

	for key := range r.channels {
		if _, ok := next[key]; !ok {
			r.logger.Info("recipient channel removed", "channel", key)
		}
	}

	r.channels = next
}

// Channels returns a stable-ordered snapshot of the registered channels.
// The returned pointers stay valid until the next Rebuild; watermark
// updates go through AdvanceWatermark.
func (r *Registry) Channels() []*domain.RecipientChannel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	channels := make([]*domain.RecipientChannel, 0, len(r.channels))
	for _, ch := range r.channels {
		channels = append(channels, ch)
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i].Key() < channels[j].Key() })
	return channels
}

// Watermark returns the dispatch cutoff for the given channel key.
func (r *Registry) Watermark(key string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ch, ok := r.channels[key]
	if !ok {
		return time.Time{}, false
	}
	return ch.Watermark, true
}

// AdvanceWatermark moves the channel's watermark forward. Attempts to
// move it backwards are ignored so the cutoff stays monotonic within a
// process lifetime.
func (r *Registry) AdvanceWatermark(key string, to time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.channels[key]
	if !ok {
		return
	}
	if to.After(ch.Watermark) {
		ch.Watermark = to
	}
}

// Len returns the number of registered channels.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}
