package domain

import "time"

// TopicRoute resolves one source id to a forum topic, optionally with its
// own keyword filter overriding the channel default.
type TopicRoute struct {
	TopicID int
	Filter  *FilterSpec
}

// RecipientChannel is a single delivery target: one chat reachable through
// one bot credential, with its own routing table and watermark.
type RecipientChannel struct {
	TenantID  string
	ChannelID string
	BotToken  string
	ChatID    string

	// Sources restricts delivery to the listed source ids. Empty means all.
	Sources []string

	// Topics maps source id to its forum topic and optional filter.
	Topics map[string]TopicRoute

	// Filter is the channel-level fallback applied when the resolved route
	// carries no per-source filter.
	Filter *FilterSpec

	// Watermark is the per-channel dispatch cutoff: articles with an ingest
	// time strictly after it are candidates for the next tick. In-memory
	// only; it resets to now on process start.
	Watermark time.Time
}

// Key returns the registry key identifying this (tenant, channel) pair.
func (c *RecipientChannel) Key() string {
	return c.TenantID + "::" + c.ChannelID
}

// AllowsSource reports whether the channel's source scoping admits the
// given feed id.
func (c *RecipientChannel) AllowsSource(sourceID string) bool {
	if len(c.Sources) == 0 {
		return true
	}
	for _, s := range c.Sources {
		if s == sourceID {
			return true
		}
	}
	return false
}
