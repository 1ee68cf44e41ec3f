// Package dispatcher fans newly ingested articles out to recipient
// channels: watermark-driven incremental scans, source scoping, topic
// routing, keyword filtering and rate-limited chat delivery.
package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"rssbus/domain"
	"rssbus/filter"
	"rssbus/registry"
)

// ChatClient is the outbound chat adapter. A thread id of zero targets
// the chat's default thread.
type ChatClient interface {
	SendMessage(ctx context.Context, chatID string, threadID int, text, parseMode string) error
}

// ClientFactory builds a chat client for a bot credential. The
// dispatcher caches one client per token.
type ClientFactory func(botToken string) ChatClient

// ArticleSource is the slice of the store the dispatcher reads.
type ArticleSource interface {
	ArticlesSince(ctx context.Context, cutoff time.Time, limit int) ([]domain.Article, error)
}

type Config struct {
	ScanLimit    int
	PostInterval time.Duration
}

type Dispatcher struct {
	store     ArticleSource
	registry  *registry.Registry
	newClient ClientFactory
	config    Config
	logger    *slog.Logger

	mu       sync.Mutex
	clients  map[string]ChatClient
	limiters map[string]*rate.Limiter

	// now and sleep are swappable for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(store ArticleSource, reg *registry.Registry, newClient ClientFactory, config Config, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:     store,
		registry:  reg,
		newClient: newClient,
		config:    config,
		logger:    logger,
		clients:   make(map[string]ChatClient),
		limiters:  make(map[string]*rate.Limiter),
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// Run executes dispatch ticks until the context is cancelled. Reload
// tokens are honored between ticks only; a failing reload keeps the
// previous recipient set.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration, reloadCh <-chan struct{}, reload func() ([]domain.RecipientChannel, error)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopping")
			return ctx.Err()
		case <-reloadCh:
			channels, err := reload()
			if err != nil {
				d.logger.Error("recipients reload failed, keeping previous configuration", "error", err)
				continue
			}
			d.registry.Rebuild(channels)
			d.logger.Info("recipients reloaded", "channels", d.registry.Len())
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// Tick runs one dispatch pass. Channels are processed concurrently;
// posts within a channel stay strictly serial.
func (d *Dispatcher) Tick(ctx context.Context) {
	channels := d.registry.Channels()
	if len(channels) == 0 {
		d.logger.Warn("no recipient channels configured")
		return
	}

	start := d.now()
	var wg sync.WaitGroup
	var totalSent int64
	var sentMu sync.Mutex

	for _, ch := range channels {
		wg.Add(1)
		go func(ch *domain.RecipientChannel) {
			defer wg.Done()
			sent := d.processChannel(ctx, ch)
			sentMu.Lock()
			totalSent += int64(sent)
			sentMu.Unlock()
		}(ch)
	}
	wg.Wait()

	d.logger.Info("dispatch tick finished",
		"channels", len(channels),
		"sent", totalSent,
		"duration", d.now().Sub(start))
}

func (d *Dispatcher) processChannel(ctx context.Context, ch *domain.RecipientChannel) int {
	key := ch.Key()

	cutoff, ok := d.registry.Watermark(key)
	if !ok {
		return 0
	}

	articles, err := d.store.ArticlesSince(ctx, cutoff, d.config.ScanLimit)
	if err != nil {
		d.logger.Error("article scan failed", "channel", key, "error", err)
		return 0
	}

	// The watermark target is taken before delivery so articles ingested
	// during a slow drain are picked up by the next tick.
	next := d.now()

	sent := 0
	for i := range articles {
		article := &articles[i]

		if !ch.AllowsSource(article.FeedID) {
			continue
		}

		route, routed := resolveRoute(ch, article.FeedID)
		if !routed {
			// Explicit routing required: no unrouted posts.
			d.logger.Debug("no topic route for source, skipping",
				"channel", key, "source", article.FeedID)
			continue
		}

		spec := effectiveFilter(ch, route)
		verdict := filter.Apply(article, spec)
		if !verdict.Include {
			d.logger.Debug("article filtered out",
				"channel", key,
				"source", article.FeedID,
				"title", article.Title,
				"reason", verdict.Reason)
			continue
		}

		if err := d.post(ctx, ch, route.TopicID, article); err != nil {
			if ctx.Err() != nil {
				return sent
			}
			// Delivery failures drop the article rather than block the
			// channel; the watermark still advances.
			d.logger.Error("post failed, dropping article",
				"channel", key,
				"source", article.FeedID,
				"title", article.Title,
				"error", err)
			continue
		}

		sent++
		d.logger.Info("article posted",
			"channel", key,
			"source", article.FeedID,
			"topic", route.TopicID,
			"title", article.Title,
			"matched", verdict.Matched)
	}

	d.registry.AdvanceWatermark(key, next)
	return sent
}

// post delivers one article under the channel's rate limit, obeying
// backend throttles and falling back to the default thread when the
// topic is gone.
func (d *Dispatcher) post(ctx context.Context, ch *domain.RecipientChannel, topicID int, article *domain.Article) error {
	if err := d.limiter(ch.Key()).Wait(ctx); err != nil {
		return err
	}

	client := d.client(ch.BotToken)
	text := FormatArticle(article)

	threadID := topicID
	triedDefaultThread := false

	for {
		err := client.SendMessage(ctx, ch.ChatID, threadID, text, ParseMode)
		if err == nil {
			return nil
		}

		var throttle *domain.ThrottleError
		if errors.As(err, &throttle) {
			d.logger.Warn("chat throttled",
				"channel", ch.Key(),
				"retry_after", throttle.RetryAfter)
			if err := d.sleep(ctx, throttle.RetryAfter); err != nil {
				return err
			}
			continue
		}

		if errors.Is(err, domain.ErrUnknownThread) && !triedDefaultThread {
			d.logger.Warn("topic not found, retrying in default thread",
				"channel", ch.Key(), "topic", threadID)
			threadID = 0
			triedDefaultThread = true
			continue
		}

		return err
	}
}

// resolveRoute finds the topic route for a source id: exact key first,
// then a substring match in either direction to tolerate subdomain/apex
// variation.
func resolveRoute(ch *domain.RecipientChannel, sourceID string) (domain.TopicRoute, bool) {
	if route, ok := ch.Topics[sourceID]; ok {
		return route, true
	}
	for mapped, route := range ch.Topics {
		if mapped != "" && (strings.Contains(mapped, sourceID) || strings.Contains(sourceID, mapped)) {
			return route, true
		}
	}
	return domain.TopicRoute{}, false
}

// effectiveFilter prefers the per-source filter, falls back to the
// channel default, and admits everything when neither exists.
func effectiveFilter(ch *domain.RecipientChannel, route domain.TopicRoute) domain.FilterSpec {
	if route.Filter != nil {
		return *route.Filter
	}
	if ch.Filter != nil {
		return *ch.Filter
	}
	return domain.FilterSpec{Mode: domain.FilterAll}
}

func (d *Dispatcher) limiter(key string) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()

	limiter, ok := d.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(d.config.PostInterval), 1)
		d.limiters[key] = limiter
	}
	return limiter
}

func (d *Dispatcher) client(botToken string) ChatClient {
	d.mu.Lock()
	defer d.mu.Unlock()

	client, ok := d.clients[botToken]
	if !ok {
		client = d.newClient(botToken)
		d.clients[botToken] = client
	}
	return client
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
