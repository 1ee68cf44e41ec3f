package domain

import (
	"net/url"
	"strings"
	"time"
)

// Feed is a single pollable RSS/Atom source.
type Feed struct {
	ID             string
	URL            string
	Name           string
	Group          string
	Active         bool
	ProxyRequired  bool
	Proxy          *ProxyConfig
	FirstParseDone bool
	LastUpdated    time.Time
}

// ProxyConfig describes an outbound proxy assigned to a feed.
type ProxyConfig struct {
	URL    string `yaml:"url" json:"url"`
	Region string `yaml:"region,omitempty" json:"region,omitempty"`
}

// subdomainOverrides maps well-known feed CDN hosts to their canonical
// source id. Generic hosts fall back to the two-label apex domain.
var subdomainOverrides = map[string]string{
	"static.feed.rbc.ru": "rbc.ru",
	"feeds.bbci.co.uk":   "bbc.co.uk",
	"feeds.reuters.com":  "reuters.com",
}

// SourceIDFromURL derives the stable short source identifier from a feed URL.
// The id doubles as the routing key in recipient configuration.
func SourceIDFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return rawURL
	}

	host := strings.ToLower(parsed.Hostname())
	host = strings.TrimPrefix(host, "www.")

	if mapped, ok := subdomainOverrides[host]; ok {
		return mapped
	}

	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		return strings.Join(parts[len(parts)-2:], ".")
	}
	return host
}
