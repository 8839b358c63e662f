package platform

import (
	"context"
	"time"
)

// Attachment is one file attached to an inbound message.
type Attachment struct {
	Filename string
	URL      string
}

// User is a chat-platform member as seen on an inbound message.
type User struct {
	ID    string
	Roles []string
}

// Message is the platform-neutral shape of an inbound chat message. The
// connector for a concrete platform translates its own message type into
// this before dispatching.
type Message struct {
	GuildID     string
	ChannelID   string
	ChannelName string
	MessageID   string
	AuthorID    string
	AuthorIsBot bool
	Text        string

	Attachments    []Attachment
	MentionedRoles []string
	MentionedUsers []User
}

// Interaction is a component press (button) relayed by the connector.
type Interaction struct {
	GuildID     string
	UserID      string
	ChannelID   string
	MessageID   string
	ComponentID string
	IsAdmin     bool
}

// Outbound is a message the dispatcher wants delivered. DeleteAfter asks the
// connector to remove the message once the duration elapses; zero means keep.
type Outbound struct {
	Content     string
	Components  []Component
	DeleteAfter time.Duration
}

// Component is a button attached to an outbound message. The ID round-trips
// through the platform and comes back on the matching Interaction.
type Component struct {
	ID    string
	Label string
}

// Sender delivers outbound messages through the connector. SendDM failures
// are expected (closed DMs) and are ignored by the dispatcher.
type Sender interface {
	SendChannel(ctx context.Context, channelID string, out Outbound) error
	SendDM(ctx context.Context, userID string, out Outbound) error

	// AdminChannel reports the guild's staff channel when the connector can
	// locate one.
	AdminChannel(guildID string) (string, bool)
}
