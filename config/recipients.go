package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"rssbus/domain"
)

// RecipientsFileName is the on-disk recipient list inside the config dir.
const RecipientsFileName = "recipients.yaml"

type recipientsFile struct {
	Tenants map[string]tenantEntry `yaml:"tenants"`
}

type tenantEntry struct {
	Active   bool                    `yaml:"active"`
	Channels map[string]channelEntry `yaml:"channels"`
}

type channelEntry struct {
	BotToken string                `yaml:"bot_token"`
	ChatID   string                `yaml:"chat_id"`
	Sources  []string              `yaml:"sources"`
	Topics   map[string]topicValue `yaml:"topics_mapping"`
	Filter   *domain.FilterSpec    `yaml:"filter_config"`
}

// topicValue accepts both mapping forms: a bare topic id and an object with
// topic_id plus an optional per-source filter.
type topicValue struct {
	TopicID int
	Filter  *domain.FilterSpec
}

func (t *topicValue) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		return value.Decode(&t.TopicID)
	}

	var obj struct {
		TopicID int                `yaml:"topic_id"`
		Filter  *domain.FilterSpec `yaml:"filter_config"`
	}
	if err := value.Decode(&obj); err != nil {
		return err
	}
	t.TopicID = obj.TopicID
	t.Filter = obj.Filter
	return nil
}

// LoadRecipients reads the recipients file and returns one RecipientChannel
// per enabled (tenant, channel) pair. Inactive tenants and channels without
// credentials are skipped. Unknown keys in the file are ignored.
func LoadRecipients(configDir string) ([]domain.RecipientChannel, error) {
	path := filepath.Join(configDir, RecipientsFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read recipients file %s: %w", path, err)
	}

	var file recipientsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse recipients file %s: %w", path, err)
	}

	var channels []domain.RecipientChannel
	for tenantID, tenant := range file.Tenants {
		if !tenant.Active {
			continue
		}
		for channelID, ch := range tenant.Channels {
			if ch.BotToken == "" || ch.ChatID == "" {
				continue
			}
			topics := make(map[string]domain.TopicRoute, len(ch.Topics))
			for sourceID, tv := range ch.Topics {
				topics[sourceID] = domain.TopicRoute{TopicID: tv.TopicID, Filter: tv.Filter}
			}
			channels = append(channels, domain.RecipientChannel{
				TenantID:  tenantID,
				ChannelID: channelID,
				BotToken:  ch.BotToken,
				ChatID:    ch.ChatID,
				Sources:   ch.Sources,
				Topics:    topics,
				Filter:    ch.Filter,
			})
		}
	}

	return channels, nil
}
