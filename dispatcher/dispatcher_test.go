package dispatcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rssbus/domain"
	"rssbus/registry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var dispatchStart = time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

type fakeStore struct {
	mu         sync.Mutex
	articles   []domain.Article
	err        error
	lastCutoff time.Time
	lastLimit  int
}

func (f *fakeStore) ArticlesSince(_ context.Context, cutoff time.Time, limit int) ([]domain.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCutoff = cutoff
	f.lastLimit = limit
	return f.articles, f.err
}

func (f *fakeStore) LastLimit() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastLimit
}

type sentMessage struct {
	ChatID    string
	ThreadID  int
	Text      string
	ParseMode string
}

type fakeClient struct {
	mu   sync.Mutex
	sent []sentMessage
	// errs are consumed one per call; nil means success.
	errs []error
}

func (f *fakeClient) SendMessage(_ context.Context, chatID string, threadID int, text, parseMode string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{chatID, threadID, text, parseMode})
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func (f *fakeClient) Sent() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

func article(feedID, link, title string) domain.Article {
	return domain.Article{
		FeedID:    feedID,
		Link:      link,
		Title:     title,
		Published: dispatchStart.Add(-time.Hour),
		AddedAt:   dispatchStart.Add(-time.Minute),
	}
}

func newTestDispatcher(t *testing.T, store *fakeStore, client *fakeClient, channels ...domain.RecipientChannel) (*Dispatcher, *registry.Registry, *[]time.Duration) {
	t.Helper()

	reg := registry.New(testLogger())
	reg.Rebuild(channels)

	d := New(store, reg, func(string) ChatClient { return client }, Config{
		ScanLimit:    500,
		PostInterval: time.Millisecond,
	}, testLogger())

	d.now = func() time.Time { return dispatchStart.Add(time.Minute) }

	var sleeps []time.Duration
	d.sleep = func(_ context.Context, dur time.Duration) error {
		sleeps = append(sleeps, dur)
		return nil
	}

	return d, reg, &sleeps
}

func testChannel() domain.RecipientChannel {
	return domain.RecipientChannel{
		TenantID:  "acme",
		ChannelID: "main",
		BotToken:  "12345:token",
		ChatID:    "-1001",
		Topics: map[string]domain.TopicRoute{
			"rbc.ru": {TopicID: 17},
		},
	}
}

func TestTickDeliversRoutedArticlesInOrder(t *testing.T) {
	store := &fakeStore{articles: []domain.Article{
		article("rbc.ru", "https://rbc.ru/1", "First"),
		article("rbc.ru", "https://rbc.ru/2", "Second"),
	}}
	client := &fakeClient{}

	d, reg, _ := newTestDispatcher(t, store, client, testChannel())
	d.Tick(context.Background())

	require.Len(t, client.sent, 2)
	assert.Contains(t, client.sent[0].Text, "First")
	assert.Contains(t, client.sent[1].Text, "Second")
	assert.Equal(t, "-1001", client.sent[0].ChatID)
	assert.Equal(t, 17, client.sent[0].ThreadID)
	assert.Equal(t, ParseMode, client.sent[0].ParseMode)
	assert.Equal(t, 500, store.LastLimit())

	mark, ok := reg.Watermark("acme::main")
	require.True(t, ok)
	assert.Equal(t, dispatchStart.Add(time.Minute), mark)
}

func TestUnroutedSourceIsSkipped(t *testing.T) {
	store := &fakeStore{articles: []domain.Article{
		article("rbc.ru", "https://rbc.ru/1", "Routed"),
		article("unmapped.example", "https://unmapped.example/1", "Unrouted"),
	}}
	client := &fakeClient{}

	d, _, _ := newTestDispatcher(t, store, client, testChannel())
	d.Tick(context.Background())

	require.Len(t, client.sent, 1)
	assert.Contains(t, client.sent[0].Text, "Routed")
}

func TestRouteResolutionBySubstring(t *testing.T) {
	ch := testChannel()
	ch.Topics = map[string]domain.TopicRoute{
		"news.rbc.ru": {TopicID: 42},
	}
	store := &fakeStore{articles: []domain.Article{
		article("rbc.ru", "https://rbc.ru/1", "World news"),
	}}
	client := &fakeClient{}

	d, _, _ := newTestDispatcher(t, store, client, ch)
	d.Tick(context.Background())

	require.Len(t, client.sent, 1)
	assert.Equal(t, 42, client.sent[0].ThreadID)
}

func TestSourceScopingExcludesUnlistedFeeds(t *testing.T) {
	ch := testChannel()
	ch.Sources = []string{"lenta.ru"}
	ch.Topics["lenta.ru"] = domain.TopicRoute{TopicID: 5}

	store := &fakeStore{articles: []domain.Article{
		article("rbc.ru", "https://rbc.ru/1", "Out of scope"),
		article("lenta.ru", "https://lenta.ru/1", "In scope"),
	}}
	client := &fakeClient{}

	d, _, _ := newTestDispatcher(t, store, client, ch)
	d.Tick(context.Background())

	require.Len(t, client.sent, 1)
	assert.Contains(t, client.sent[0].Text, "In scope")
}

func TestPerSourceFilterOverridesChannelFilter(t *testing.T) {
	ch := testChannel()
	ch.Filter = &domain.FilterSpec{Mode: domain.FilterExclude, Keywords: []string{"sport"}}
	ch.Topics["rbc.ru"] = domain.TopicRoute{
		TopicID: 17,
		Filter:  &domain.FilterSpec{Mode: domain.FilterInclude, Keywords: []string{"economy"}},
	}
	ch.Topics["lenta.ru"] = domain.TopicRoute{TopicID: 5}

	store := &fakeStore{articles: []domain.Article{
		article("rbc.ru", "https://rbc.ru/1", "Economy outlook"),
		article("rbc.ru", "https://rbc.ru/2", "Sport economy digest"),
		article("rbc.ru", "https://rbc.ru/3", "Weather"),
		article("lenta.ru", "https://lenta.ru/1", "Sport finals"),
	}}
	client := &fakeClient{}

	d, _, _ := newTestDispatcher(t, store, client, ch)
	d.Tick(context.Background())

	// rbc.ru uses its include filter (the channel exclude does not apply),
	// lenta.ru falls back to the channel-level exclude.
	require.Len(t, client.sent, 2)
	assert.Contains(t, client.sent[0].Text, "Economy outlook")
	assert.Contains(t, client.sent[1].Text, "Sport economy digest")
}

func TestThrottleSleepsAdvertisedDurationAndRetries(t *testing.T) {
	store := &fakeStore{articles: []domain.Article{
		article("rbc.ru", "https://rbc.ru/1", "Breaking"),
	}}
	client := &fakeClient{errs: []error{
		&domain.ThrottleError{RetryAfter: 23 * time.Second},
		nil,
	}}

	d, _, sleeps := newTestDispatcher(t, store, client, testChannel())
	d.Tick(context.Background())

	require.Len(t, client.sent, 2, "post retried after throttle")
	require.Len(t, *sleeps, 1)
	assert.Equal(t, 23*time.Second, (*sleeps)[0])
	assert.Equal(t, client.sent[0], client.sent[1], "identical payload on retry")
}

func TestUnknownThreadFallsBackToDefaultThread(t *testing.T) {
	store := &fakeStore{articles: []domain.Article{
		article("rbc.ru", "https://rbc.ru/1", "Breaking"),
	}}
	client := &fakeClient{errs: []error{domain.ErrUnknownThread, nil}}

	d, _, _ := newTestDispatcher(t, store, client, testChannel())
	d.Tick(context.Background())

	require.Len(t, client.sent, 2)
	assert.Equal(t, 17, client.sent[0].ThreadID)
	assert.Equal(t, 0, client.sent[1].ThreadID, "retry targets the default thread")
}

func TestUnknownThreadFallbackHappensOnce(t *testing.T) {
	store := &fakeStore{articles: []domain.Article{
		article("rbc.ru", "https://rbc.ru/1", "Breaking"),
	}}
	client := &fakeClient{errs: []error{domain.ErrUnknownThread, domain.ErrUnknownThread}}

	d, reg, _ := newTestDispatcher(t, store, client, testChannel())
	d.Tick(context.Background())

	assert.Len(t, client.sent, 2, "no endless fallback loop")

	// The article is dropped but the watermark still advances.
	mark, _ := reg.Watermark("acme::main")
	assert.Equal(t, dispatchStart.Add(time.Minute), mark)
}

func TestScanFailureKeepsWatermark(t *testing.T) {
	store := &fakeStore{err: errors.New("database is locked")}
	client := &fakeClient{}

	d, reg, _ := newTestDispatcher(t, store, client, testChannel())
	before, _ := reg.Watermark("acme::main")

	d.Tick(context.Background())

	assert.Empty(t, client.sent)
	after, _ := reg.Watermark("acme::main")
	assert.Equal(t, before, after, "failed scan must not advance the watermark")
}

func TestChatErrorDropsArticleAndContinues(t *testing.T) {
	store := &fakeStore{articles: []domain.Article{
		article("rbc.ru", "https://rbc.ru/1", "First"),
		article("rbc.ru", "https://rbc.ru/2", "Second"),
	}}
	client := &fakeClient{errs: []error{
		&domain.ChatError{StatusCode: 400, Description: "can't parse entities"},
		nil,
	}}

	d, _, _ := newTestDispatcher(t, store, client, testChannel())
	d.Tick(context.Background())

	require.Len(t, client.sent, 2)
	assert.Contains(t, client.sent[1].Text, "Second", "later articles still delivered")
}

func TestTickProcessesChannelsIndependently(t *testing.T) {
	chA := testChannel()
	chB := testChannel()
	chB.ChannelID = "digest"
	chB.Topics = map[string]domain.TopicRoute{"rbc.ru": {TopicID: 3}}

	store := &fakeStore{articles: []domain.Article{
		article("rbc.ru", "https://rbc.ru/1", "Shared"),
	}}
	client := &fakeClient{}

	d, _, _ := newTestDispatcher(t, store, client, chA, chB)
	d.Tick(context.Background())

	assert.Len(t, client.Sent(), 2, "both channels receive the article")
}
