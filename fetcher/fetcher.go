// Package fetcher performs a single classified HTTP fetch of a feed.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"rssbus/domain"
)

// minBodyLength is the threshold below which a 2xx response is treated
// as unparseable; real feeds are never this small.
const minBodyLength = 100

// alternateUserAgents rotate in when the governor recommends a
// user-agent swap for a feed that keeps answering 403.
var alternateUserAgents = []string{
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0 Safari/537.36 Edg/123.0",
}

// Options tune a single fetch according to governor recommendations.
type Options struct {
	Proxy       *domain.ProxyConfig
	AlternateUA bool
}

type Fetcher struct {
	client      *http.Client
	dialTimeout time.Duration
	timeout     time.Duration
	userAgent   string
	logger      *slog.Logger
}

func New(timeout, dialTimeout time.Duration, userAgent string, logger *slog.Logger) *Fetcher {
	f := &Fetcher{
		dialTimeout: dialTimeout,
		timeout:     timeout,
		userAgent:   userAgent,
		logger:      logger,
	}
	f.client = &http.Client{
		Transport: f.transport(nil),
		Timeout:   timeout,
	}
	return f
}

func (f *Fetcher) transport(proxy *domain.ProxyConfig) *http.Transport {
	t := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   f.dialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: f.dialTimeout,
	}
	if proxy != nil && proxy.URL != "" {
		proxyURL, err := url.Parse(proxy.URL)
		if err == nil {
			t.Proxy = http.ProxyURL(proxyURL)
		} else {
			f.logger.Warn("invalid proxy URL, fetching direct", "proxy", proxy.URL, "error", err)
		}
	}
	return t
}

// Fetch performs one GET of the feed URL and returns the raw body or a
// classified *domain.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string, opts Options) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, &domain.FetchError{Kind: domain.ErrorNetwork, Message: err.Error()}
	}

	userAgent := f.userAgent
	if opts.AlternateUA {
		userAgent = alternateUserAgents[int(time.Now().UnixNano())%len(alternateUserAgents)]
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/xml, text/xml, */*")

	client := f.client
	if opts.Proxy != nil {
		client = &http.Client{
			Transport: f.transport(opts.Proxy),
			Timeout:   f.timeout,
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &domain.FetchError{Kind: domain.ErrorNotFound, StatusCode: resp.StatusCode, Message: "feed not found"}
	case resp.StatusCode == http.StatusForbidden:
		return nil, &domain.FetchError{Kind: domain.ErrorForbidden, StatusCode: resp.StatusCode, Message: "access denied"}
	case resp.StatusCode >= 400:
		return nil, &domain.FetchError{
			Kind:       domain.ErrorHTTP,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("unexpected status %s", resp.Status),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(err)
	}

	if len(body) < minBodyLength {
		return nil, &domain.FetchError{
			Kind:    domain.ErrorParsing,
			Message: fmt.Sprintf("response too short (%d bytes)", len(body)),
		}
	}

	return body, nil
}

func classifyTransportError(err error) *domain.FetchError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.FetchError{Kind: domain.ErrorTimeout, Message: "request timed out"}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &domain.FetchError{Kind: domain.ErrorTimeout, Message: err.Error()}
	}
	return &domain.FetchError{Kind: domain.ErrorNetwork, Message: err.Error()}
}
