package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSourceIDFromURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected string
	}{
		{
			name:     "plain apex domain",
			url:      "https://example.com/rss.xml",
			expected: "example.com",
		},
		{
			name:     "www prefix stripped",
			url:      "https://www.kommersant.ru/RSS/news.xml",
			expected: "kommersant.ru",
		},
		{
			name:     "generic subdomain collapses to apex",
			url:      "https://rss.nytimes.com/services/xml/rss/nyt/World.xml",
			expected: "nytimes.com",
		},
		{
			name:     "known CDN host maps to canonical source",
			url:      "https://static.feed.rbc.ru/rbc/logical/footer/news.rss",
			expected: "rbc.ru",
		},
		{
			name:     "override keeps country code domain intact",
			url:      "https://feeds.bbci.co.uk/news/world/rss.xml",
			expected: "bbc.co.uk",
		},
		{
			name:     "uppercase host normalized",
			url:      "https://WWW.Example.COM/feed",
			expected: "example.com",
		},
		{
			name:     "unparseable input returned as is",
			url:      "not a url",
			expected: "not a url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SourceIDFromURL(tt.url))
		})
	}
}
