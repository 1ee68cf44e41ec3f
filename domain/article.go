package domain

import "time"

// MediaKind classifies an article media attachment.
type MediaKind string

const (
	MediaEnclosure MediaKind = "enclosure"
	MediaImage     MediaKind = "image"
	MediaVideo     MediaKind = "video"
)

// MediaAttachment is one enclosure, image or video attached to an article.
// The store serializes the full list as a JSON array.
type MediaAttachment struct {
	Kind      MediaKind `json:"type"`
	URL       string    `json:"url"`
	MimeType  string    `json:"mime_type"`
	Length    int64     `json:"length,omitempty"`
	Source    string    `json:"source,omitempty"`
	Copyright string    `json:"copyright,omitempty"`
}

// Article is the canonical, normalized form of one feed entry.
type Article struct {
	ID          int64
	FeedID      string
	Title       string
	Link        string
	GUID        string
	Description string
	Content     string
	FullText    string
	Author      string
	Published   time.Time
	Modified    time.Time
	Category    string
	Tags        []string
	Media       []MediaAttachment

	// Vendor extension passthrough.
	NewsID      string
	ContentType string
	Newsline    string

	// AddedAt is when the store accepted the article. It is the watermark
	// field used by the dispatcher, not the publication time.
	AddedAt time.Time
}
