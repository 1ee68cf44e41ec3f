package dispatcher

import (
	"html"
	"strings"
	"unicode"

	"rssbus/domain"
)

// ParseMode is the markup mode used for all outgoing posts.
const ParseMode = "HTML"

// FormatArticle renders the canonical post layout: bold title, blank
// line, description, blank line, hash-tag list, blank line, link.
// Empty sections are omitted along with their separators.
func FormatArticle(article *domain.Article) string {
	sections := make([]string, 0, 4)

	sections = append(sections, "<b>"+html.EscapeString(article.Title)+"</b>")

	if desc := strings.TrimSpace(article.Description); desc != "" {
		sections = append(sections, html.EscapeString(desc))
	}

	if tags := hashtags(article.Tags); len(tags) > 0 {
		sections = append(sections, strings.Join(tags, " "))
	}

	if article.Link != "" {
		sections = append(sections, article.Link)
	}

	return strings.Join(sections, "\n\n")
}

// hashtags converts tag names into chat hashtags, replacing runs of
// characters a hashtag cannot carry with a single underscore. Duplicates
// after sanitization collapse into one.
func hashtags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		sanitized := sanitizeTag(tag)
		if sanitized == "" {
			continue
		}
		if _, ok := seen[sanitized]; ok {
			continue
		}
		seen[sanitized] = struct{}{}
		out = append(out, "#"+sanitized)
	}
	return out
}

func sanitizeTag(tag string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.TrimSpace(tag) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastUnderscore = false
		case r == '_':
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimRight(b.String(), "_")
}
