package notify

import (
	"fmt"
	"time"
)

// Category groups notifications by the domain that emitted them.
type Category string

const (
	CategoryCaseUpdates    Category = "case_updates"
	CategoryVariableStatus Category = "variable_status"
	CategoryModeration     Category = "moderation"
	CategorySLA            Category = "sla"
)

// Channel is a delivery target for a notification.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelInApp Channel = "in_app"
)

var allCategories = []Category{CategoryCaseUpdates, CategoryVariableStatus, CategoryModeration, CategorySLA}
var allChannels = []Channel{ChannelEmail, ChannelInApp}

// Settings is a user's category x channel toggle matrix.
type Settings map[Category]map[Channel]bool

// DefaultSettings enables every category on every channel.
func DefaultSettings() Settings {
	s := make(Settings, len(allCategories))
	for _, cat := range allCategories {
		s[cat] = make(map[Channel]bool, len(allChannels))
		for _, ch := range allChannels {
			s[cat][ch] = true
		}
	}
	return s
}

// Enabled reports whether the matrix allows a category on a channel.
// Unknown categories or channels are treated as disabled.
func (s Settings) Enabled(cat Category, ch Channel) bool {
	channels, ok := s[cat]
	if !ok {
		return false
	}
	return channels[ch]
}

// Validate rejects matrices that name unknown categories or channels.
func (s Settings) Validate() error {
	for cat, channels := range s {
		if _, ok := DefaultSettings()[cat]; !ok {
			return fmt.Errorf("notify: unknown category %q", cat)
		}
		for ch := range channels {
			if ch != ChannelEmail && ch != ChannelInApp {
				return fmt.Errorf("notify: unknown channel %q", ch)
			}
		}
	}
	return nil
}

// Notification is one delivered message in a user's inbox.
type Notification struct {
	ID        string
	UserID    string
	Category  Category
	Channel   Channel
	Topic     string
	Payload   []byte
	ReadAt    *time.Time
	CreatedAt time.Time
}

// topicCategories maps outbox topics to notification categories. Topics
// absent here are dispatched nowhere but still marked processed.
var topicCategories = map[string]Category{
	"case.created":            CategoryCaseUpdates,
	"case.sla_breached":       CategorySLA,
	"variable.created":        CategoryVariableStatus,
	"variable.status_changed": CategoryVariableStatus,
	"moderation.resolved":     CategoryModeration,
}
