package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	return dir
}

func TestLoadSources(t *testing.T) {
	dir := writeConfigFile(t, SourcesFileName, `
sources:
  rbc.ru:
    url: https://static.feed.rbc.ru/rbc/logical/footer/news.rss
    name: RBC News
    group: russian_news
    active: true
  bbc.co.uk:
    url: https://feeds.bbci.co.uk/news/world/rss.xml
    active: true
    proxy_required: true
    proxy:
      url: http://proxy.internal:3128
      region: eu
  dormant.example:
    url: https://dormant.example/rss
    active: false
  broken.example:
    active: true
`)

	feeds, err := LoadSources(dir)
	require.NoError(t, err)
	require.Len(t, feeds, 2)

	// Sorted by source id for stable cycle logs.
	assert.Equal(t, "bbc.co.uk", feeds[0].ID)
	assert.Equal(t, "bbc.co.uk", feeds[0].Name)
	assert.Equal(t, "general", feeds[0].Group)
	assert.True(t, feeds[0].ProxyRequired)
	require.NotNil(t, feeds[0].Proxy)
	assert.Equal(t, "http://proxy.internal:3128", feeds[0].Proxy.URL)

	assert.Equal(t, "rbc.ru", feeds[1].ID)
	assert.Equal(t, "RBC News", feeds[1].Name)
	assert.Equal(t, "russian_news", feeds[1].Group)
	assert.False(t, feeds[1].ProxyRequired)
}

func TestLoadSourcesUnknownKeysIgnored(t *testing.T) {
	dir := writeConfigFile(t, SourcesFileName, `
version: 3
sources:
  example.com:
    url: https://example.com/rss
    active: true
    refresh_hint: 300
`)

	feeds, err := LoadSources(dir)
	require.NoError(t, err)
	require.Len(t, feeds, 1)
	assert.Equal(t, "example.com", feeds[0].ID)
}

func TestLoadSourcesErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadSources(t.TempDir())
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		dir := writeConfigFile(t, SourcesFileName, "sources: [not: a map")
		_, err := LoadSources(dir)
		assert.Error(t, err)
	})
}
