package store

import (
	"context"
	"sync"
	"time"

	"github.com/effective-security/billagent/pkg/llms"
)

type inMemory struct {
	mu      sync.RWMutex
	storage map[string][]llms.Message
	chats   map[string]*ChatInfo
}

// NewMemoryStore returns a non-persistent store.
func NewMemoryStore() ChatStore {
	return &inMemory{}
}

func (m *inMemory) Messages(_ context.Context, chatID string) []llms.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.storage == nil {
		return nil
	}
	return m.storage[chatID]
}

func (m *inMemory) Add(_ context.Context, chatID string, msg llms.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storage == nil {
		// create on first use
		m.storage = make(map[string][]llms.Message)
	}
	history := append(m.storage[chatID], msg)
	if len(history) > maxStoredMessages {
		history = history[len(history)-maxStoredMessages:]
	}
	m.storage[chatID] = history
	m.touch(chatID)
	return nil
}

func (m *inMemory) Reset(_ context.Context, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storage != nil {
		delete(m.storage, chatID)
	}
	if m.chats != nil {
		delete(m.chats, chatID)
	}
	return nil
}

func (m *inMemory) UpdateChat(_ context.Context, chatID, title string, metadata map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	chat := m.touch(chatID)
	if title != "" {
		chat.Title = title
	}
	for k, v := range metadata {
		if chat.Metadata == nil {
			chat.Metadata = make(map[string]any)
		}
		chat.Metadata[k] = v
	}
	return nil
}

func (m *inMemory) GetChatInfo(_ context.Context, chatID string) (*ChatInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.touch(chatID), nil
}

func (m *inMemory) ListChats(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.chats))
	for id := range m.chats {
		ids = append(ids, id)
	}
	return ids, nil
}

// touch returns the chat info, creating it on first use.
// Callers must hold the write lock.
func (m *inMemory) touch(chatID string) *ChatInfo {
	if m.chats == nil {
		m.chats = make(map[string]*ChatInfo)
	}
	chat := m.chats[chatID]
	if chat == nil {
		now := time.Now()
		chat = &ChatInfo{
			ChatID:    chatID,
			Title:     "New Chat",
			CreatedAt: now,
		}
		m.chats[chatID] = chat
	}
	chat.UpdatedAt = time.Now()
	return chat
}
