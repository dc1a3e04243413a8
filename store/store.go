// Package store persists conversation history keyed by chat ID.
package store

import (
	"context"
	"time"

	"github.com/effective-security/billagent/pkg/llms"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/billagent", "store")

// maxStoredMessages bounds the history kept per chat.
const maxStoredMessages = 50

// MessageStore keeps the message history of chats.
type MessageStore interface {
	// Messages returns the stored history of the chat, oldest first.
	Messages(ctx context.Context, chatID string) []llms.Message
	// Add appends a message to the chat history.
	Add(ctx context.Context, chatID string, msg llms.Message) error
	// Reset deletes the chat history and metadata.
	Reset(ctx context.Context, chatID string) error
}

// ChatInfo is the metadata of a chat.
type ChatInfo struct {
	ChatID    string         `json:"chat_id"`
	Title     string         `json:"title"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ChatStore extends MessageStore with chat metadata management.
type ChatStore interface {
	MessageStore

	// UpdateChat creates or updates the chat metadata.
	UpdateChat(ctx context.Context, chatID, title string, metadata map[string]any) error
	// GetChatInfo returns the chat metadata.
	GetChatInfo(ctx context.Context, chatID string) (*ChatInfo, error)
	// ListChats returns the known chat IDs.
	ListChats(ctx context.Context) ([]string, error)
}
