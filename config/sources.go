package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"rssbus/domain"
)

// SourcesFileName is the on-disk feed list inside the config dir.
const SourcesFileName = "sources.yaml"

type sourcesFile struct {
	Sources map[string]sourceEntry `yaml:"sources"`
}

type sourceEntry struct {
	URL           string              `yaml:"url"`
	Name          string              `yaml:"name"`
	Group         string              `yaml:"group"`
	Active        bool                `yaml:"active"`
	ProxyRequired bool                `yaml:"proxy_required"`
	Proxy         *domain.ProxyConfig `yaml:"proxy"`
}

// LoadSources reads the sources file and returns the active feeds, ordered
// by source id for stable cycle logs. Inactive entries and entries without
// a URL are dropped. Unknown keys in the file are ignored.
func LoadSources(configDir string) ([]domain.Feed, error) {
	path := filepath.Join(configDir, SourcesFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file %s: %w", path, err)
	}

	var file sourcesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse sources file %s: %w", path, err)
	}

	feeds := make([]domain.Feed, 0, len(file.Sources))
	for id, entry := range file.Sources {
		if !entry.Active || entry.URL == "" {
			continue
		}
		name := entry.Name
		if name == "" {
			name = id
		}
		group := entry.Group
		if group == "" {
			group = "general"
		}
		feeds = append(feeds, domain.Feed{
			ID:            id,
			URL:           entry.URL,
			Name:          name,
			Group:         group,
			Active:        true,
			ProxyRequired: entry.ProxyRequired,
			Proxy:         entry.Proxy,
		})
	}

	sort.Slice(feeds, func(i, j int) bool { return feeds[i].ID < feeds[j].ID })

	return feeds, nil
}
