package governor

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rssbus/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGovernor(now time.Time) (*Governor, *time.Time) {
	clock := now
	g := New(testLogger())
	g.now = func() time.Time { return clock }
	return g, &clock
}

func recordErrors(g *Governor, url string, n int) {
	for i := 0; i < n; i++ {
		g.RecordError(url, "feed", domain.ErrorTimeout, 0, "request timed out")
	}
}

func TestShouldSkipBelowThreshold(t *testing.T) {
	g, _ := newTestGovernor(time.Now())
	recordErrors(g, "https://example.com/rss", 4)

	skip, reason := g.ShouldSkip("https://example.com/rss")
	assert.False(t, skip)
	assert.Empty(t, reason)
}

func TestShouldSkipEntersCooldownAtThreshold(t *testing.T) {
	g, clock := newTestGovernor(time.Now())
	recordErrors(g, "https://example.com/rss", 5)

	skip, reason := g.ShouldSkip("https://example.com/rss")
	assert.True(t, skip)
	assert.Equal(t, "cooldown 32m (errors: 5)", reason)

	// Still inside the 32 minute window.
	*clock = clock.Add(31 * time.Minute)
	skip, _ = g.ShouldSkip("https://example.com/rss")
	assert.True(t, skip)

	// Window elapsed, fetches resume.
	*clock = clock.Add(2 * time.Minute)
	skip, _ = g.ShouldSkip("https://example.com/rss")
	assert.False(t, skip)
}

func TestCooldownCapsAtOneHour(t *testing.T) {
	g, _ := newTestGovernor(time.Now())
	recordErrors(g, "https://example.com/rss", 9)

	skip, reason := g.ShouldSkip("https://example.com/rss")
	assert.True(t, skip)
	assert.Equal(t, "cooldown 60m (errors: 9)", reason)
}

func TestResetClearsFailureState(t *testing.T) {
	g, _ := newTestGovernor(time.Now())
	recordErrors(g, "https://example.com/rss", 7)

	g.Reset("https://example.com/rss")

	skip, _ := g.ShouldSkip("https://example.com/rss")
	assert.False(t, skip)
	assert.Equal(t, 0, g.ErrorCount("https://example.com/rss"))
}

func TestRecommendAlternative(t *testing.T) {
	tests := []struct {
		name       string
		errors     int
		statusCode int
		expected   Remedy
	}{
		{"first 403 swaps user agent", 1, 403, RemedyUserAgent},
		{"second 403 swaps user agent", 2, 403, RemedyUserAgent},
		{"third 403 goes through proxy", 3, 403, RemedyProxy},
		{"persistent 403 uses both", 5, 403, RemedyBoth},
		{"429 goes straight to proxy", 1, 429, RemedyProxy},
		{"503 goes straight to proxy", 1, 503, RemedyProxy},
		{"500 has no remedy", 3, 500, RemedyNone},
		{"transport failure has no remedy", 3, 0, RemedyNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _ := newTestGovernor(time.Now())
			url := "https://example.com/rss"
			for i := 0; i < tt.errors; i++ {
				g.RecordError(url, "feed", domain.ErrorForbidden, tt.statusCode, "rejected")
			}
			assert.Equal(t, tt.expected, g.RecommendAlternative(url, tt.statusCode))
		})
	}
}

func TestStatsSnapshot(t *testing.T) {
	g, _ := newTestGovernor(time.Now())
	recordErrors(g, "https://a.example/rss", 2)
	recordErrors(g, "https://b.example/rss", 1)
	g.Reset("https://b.example/rss")

	stats := g.Stats()
	require.Len(t, stats, 1)
	require.Contains(t, stats, "https://a.example/rss")
	assert.Equal(t, 2, stats["https://a.example/rss"].ErrorCount)
	assert.Len(t, stats["https://a.example/rss"].Recent, 2)
}

func TestHistoryBounded(t *testing.T) {
	g, _ := newTestGovernor(time.Now())
	recordErrors(g, "https://example.com/rss", 25)

	stats := g.Stats()
	assert.Len(t, stats["https://example.com/rss"].Recent, historyLimit)
	assert.Equal(t, 25, stats["https://example.com/rss"].ErrorCount)
}
