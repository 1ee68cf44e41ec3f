// Package normalizer turns raw feed bytes into canonical articles.
package normalizer

import (
	"html"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"rssbus/domain"
)

// vendorNS is the extension namespace prefix carried by newswire feeds
// (news id, content type, newsline, inline media).
const vendorNS = "rbc_news"

type Normalizer struct {
	parser     *gofeed.Parser
	policy     *bluemonday.Policy
	maxAge     time.Duration
	maxEntries int
	logger     *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

func New(maxAge time.Duration, maxEntries int, logger *slog.Logger) *Normalizer {
	return &Normalizer{
		parser:     gofeed.NewParser(),
		policy:     bluemonday.StrictPolicy(),
		maxAge:     maxAge,
		maxEntries: maxEntries,
		logger:     logger,
		now:        time.Now,
	}
}

// Normalize parses the feed bytes and returns the feed title plus the
// canonical articles that survive validation and the age cutoff. A parse
// failure or an empty feed is a parsing error; a single bad entry is
// logged and dropped without affecting its siblings.
func (n *Normalizer) Normalize(feedID string, body []byte) (string, []domain.Article, error) {
	feed, err := n.parser.ParseString(string(body))
	if err != nil {
		return "", nil, &domain.FetchError{Kind: domain.ErrorParsing, Message: err.Error()}
	}
	if len(feed.Items) == 0 {
		return feed.Title, nil, &domain.FetchError{Kind: domain.ErrorParsing, Message: "feed has no entries"}
	}

	cutoff := n.now().UTC().Add(-n.maxAge)

	items := feed.Items
	if len(items) > n.maxEntries {
		items = items[:n.maxEntries]
	}

	articles := make([]domain.Article, 0, len(items))
	for _, item := range items {
		article, err := n.normalizeEntry(feedID, item)
		if err != nil {
			n.logger.Warn("dropping entry", "feed", feedID, "link", item.Link, "error", err)
			continue
		}
		if article.Published.Before(cutoff) {
			continue
		}
		articles = append(articles, *article)
	}

	return feed.Title, articles, nil
}

func (n *Normalizer) normalizeEntry(feedID string, item *gofeed.Item) (*domain.Article, error) {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		return nil, domain.ErrEmptyTitle
	}

	article := &domain.Article{
		FeedID:      feedID,
		Title:       title,
		Link:        strings.TrimSpace(item.Link),
		GUID:        item.GUID,
		Description: n.cleanText(item.Description),
		Content:     n.cleanText(item.Content),
		Published:   n.publishedTime(item),
		Tags:        n.collectTags(item),
		Media:       n.collectMedia(item),
	}

	if item.Author != nil {
		article.Author = item.Author.Name
	}
	if len(item.Categories) > 0 {
		article.Category = item.Categories[0]
	}

	n.applyVendorExtensions(article, item)

	return article, nil
}

// cleanText strips inline markup and unescapes HTML entities, yielding
// plain text suitable for chat delivery.
func (n *Normalizer) cleanText(s string) string {
	if s == "" {
		return ""
	}
	clean := n.policy.Sanitize(s)
	clean = html.UnescapeString(clean)
	clean = strings.ReplaceAll(clean, "[continued]", "")
	return strings.TrimSpace(clean)
}

// publishedTime prefers the published timestamp, falls back to updated,
// then to ingest time. Always UTC.
func (n *Normalizer) publishedTime(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return item.PublishedParsed.UTC()
	}
	if item.UpdatedParsed != nil {
		return item.UpdatedParsed.UTC()
	}
	return n.now().UTC()
}

// collectTags merges standardized category terms with vendor-prefixed
// tag extensions, preserving order and dropping duplicates.
func (n *Normalizer) collectTags(item *gofeed.Item) []string {
	var tags []string
	seen := make(map[string]bool)

	add := func(tag string) {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			return
		}
		seen[tag] = true
		tags = append(tags, tag)
	}

	for _, category := range item.Categories {
		add(category)
	}
	for _, e := range vendorExtensions(item, "tag") {
		add(e.Value)
	}

	return tags
}

func (n *Normalizer) collectMedia(item *gofeed.Item) []domain.MediaAttachment {
	var media []domain.MediaAttachment

	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		attachment := domain.MediaAttachment{
			Kind:     domain.MediaEnclosure,
			URL:      enc.URL,
			MimeType: enc.Type,
		}
		if length, err := parseLength(enc.Length); err == nil {
			attachment.Length = length
		}
		media = append(media, attachment)
	}

	for _, e := range vendorExtensions(item, "image") {
		attachment := domain.MediaAttachment{
			Kind:      domain.MediaImage,
			URL:       childValue(e, "url"),
			MimeType:  childValueDefault(e, "type", "image/jpeg"),
			Source:    childValue(e, "source"),
			Copyright: childValue(e, "copyright"),
		}
		if attachment.URL != "" {
			media = append(media, attachment)
		}
	}

	for _, e := range vendorExtensions(item, "video") {
		attachment := domain.MediaAttachment{
			Kind:      domain.MediaVideo,
			URL:       childValue(e, "url"),
			MimeType:  childValueDefault(e, "type", "video/mp4"),
			Copyright: childValue(e, "copyright"),
		}
		if attachment.URL != "" {
			media = append(media, attachment)
		}
	}

	return media
}

func (n *Normalizer) applyVendorExtensions(article *domain.Article, item *gofeed.Item) {
	article.NewsID = vendorValue(item, "news_id")
	article.Newsline = vendorValue(item, "newsline")
	article.FullText = n.cleanText(vendorValue(item, "full-text"))

	article.ContentType = "article"
	if v := vendorValue(item, "type"); v != "" {
		article.ContentType = v
	}

	if raw := vendorValue(item, "newsmodifdate"); raw != "" {
		if modified, err := dateparse.ParseAny(raw); err == nil {
			article.Modified = modified.UTC()
		}
	}
}

func vendorExtensions(item *gofeed.Item, name string) []ext.Extension {
	ns, ok := item.Extensions[vendorNS]
	if !ok {
		return nil
	}
	return ns[name]
}

func vendorValue(item *gofeed.Item, name string) string {
	exts := vendorExtensions(item, name)
	if len(exts) == 0 {
		return ""
	}
	return strings.TrimSpace(exts[0].Value)
}

func childValue(e ext.Extension, name string) string {
	children, ok := e.Children[name]
	if !ok || len(children) == 0 {
		// Some producers put the value in an attribute instead.
		return e.Attrs[name]
	}
	return strings.TrimSpace(children[0].Value)
}

func childValueDefault(e ext.Extension, name, fallback string) string {
	if v := childValue(e, name); v != "" {
		return v
	}
	return fallback
}

func parseLength(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}
