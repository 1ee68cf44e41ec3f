// Package filter decides whether an article passes a keyword filter spec.
package filter

import (
	"fmt"
	"strings"

	"rssbus/domain"
)

// Result carries the filter verdict plus the matched terms and a short
// stable reason string for the dispatch logs.
type Result struct {
	Include bool
	Matched []string
	Reason  string
}

// Apply evaluates the article against the spec. Matching is
// whole-substring over the concatenation of the searched fields,
// case-insensitive unless the spec says otherwise.
func Apply(article *domain.Article, spec domain.FilterSpec) Result {
	spec = spec.Normalized()

	switch spec.Mode {
	case domain.FilterAll:
		return Result{Include: true, Reason: "all articles mode"}

	case domain.FilterInclude:
		matched := findMatches(article, spec)
		if len(matched) >= spec.MinMatches {
			return Result{
				Include: true,
				Matched: matched,
				Reason:  fmt.Sprintf("matched %d keyword(s): %s", len(matched), strings.Join(matched, ", ")),
			}
		}
		return Result{
			Matched: matched,
			Reason:  fmt.Sprintf("matched %d keyword(s), need %d", len(matched), spec.MinMatches),
		}

	case domain.FilterExclude:
		matched := findMatches(article, spec)
		if len(matched) > 0 {
			return Result{
				Matched: matched,
				Reason:  fmt.Sprintf("excluded by keyword(s): %s", strings.Join(matched, ", ")),
			}
		}
		return Result{Include: true, Reason: "no excluded keywords present"}

	default:
		return Result{Include: true, Reason: fmt.Sprintf("unknown filter mode %q", spec.Mode)}
	}
}

func findMatches(article *domain.Article, spec domain.FilterSpec) []string {
	text := searchedText(article, spec.Fields)
	if !spec.CaseSensitive {
		text = strings.ToLower(text)
	}

	var matched []string
	for _, keyword := range spec.Keywords {
		needle := keyword
		if !spec.CaseSensitive {
			needle = strings.ToLower(needle)
		}
		if needle != "" && strings.Contains(text, needle) {
			matched = append(matched, keyword)
		}
	}
	return matched
}

// searchedText concatenates the selected article fields with single
// spaces.
func searchedText(article *domain.Article, fields []string) string {
	var parts []string
	for _, field := range fields {
		switch field {
		case "title":
			parts = append(parts, article.Title)
		case "description":
			parts = append(parts, article.Description)
		case "content":
			parts = append(parts, article.Content)
		}
	}
	return strings.Join(parts, " ")
}
