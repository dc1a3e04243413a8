package store

import (
	"context"
	"encoding/json"
	"path"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/billagent/pkg/llms"
	"github.com/effective-security/xlog"
	"github.com/redis/go-redis/v9"
)

// The redis store implements the ChatStore interface using Redis as the
// backend. The keys namespace is organized as follows:
// - `/<prefix>/chatstore/messages/<chatID>` for chat messages
// - `/<prefix>/chatstore/info/<chatID>` for chat metadata
// - `/<prefix>/chatstore/chats` for the set of known chat IDs

type redisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore returns a Redis-backed chat store.
func NewRedisStore(client *redis.Client, prefix string) ChatStore {
	return &redisStore{
		client: client,
		prefix: prefix,
	}
}

func (m *redisStore) messagesKey(chatID string) string {
	return path.Join(m.prefix, "chatstore", "messages", chatID)
}

func (m *redisStore) chatInfoKey(chatID string) string {
	return path.Join(m.prefix, "chatstore", "info", chatID)
}

func (m *redisStore) chatListKey() string {
	return path.Join(m.prefix, "chatstore", "chats")
}

func (m *redisStore) Messages(ctx context.Context, chatID string) []llms.Message {
	key := m.messagesKey(chatID)
	data, err := m.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		logger.ContextKV(ctx, xlog.ERROR, "reason", "LRange", "chat_id", chatID, "err", err.Error())
		return nil
	}

	var messages []llms.Message
	for _, item := range data {
		var msg llms.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			logger.ContextKV(ctx, xlog.ERROR, "reason", "unmarshal message", "chat_id", chatID, "err", err.Error())
			continue
		}
		messages = append(messages, msg)
	}
	return messages
}

func (m *redisStore) Add(ctx context.Context, chatID string, msg llms.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message")
	}

	key := m.messagesKey(chatID)
	pipe := m.client.Pipeline()
	pipe.RPush(ctx, key, data)
	// Keep only the most recent messages
	pipe.LTrim(ctx, key, -maxStoredMessages, -1)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to store message in Redis")
	}

	// Update the time
	return m.UpdateChat(ctx, chatID, "", nil)
}

func (m *redisStore) Reset(ctx context.Context, chatID string) error {
	pipe := m.client.Pipeline()
	pipe.Del(ctx, m.messagesKey(chatID))
	pipe.Del(ctx, m.chatInfoKey(chatID))
	pipe.SRem(ctx, m.chatListKey(), chatID)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to reset chat in Redis")
	}
	return nil
}

func (m *redisStore) UpdateChat(ctx context.Context, chatID, title string, metadata map[string]any) error {
	chat, isNew, err := m.getChatInfo(ctx, chatID)
	if err != nil {
		return errors.Wrap(err, "failed to get chat info")
	}

	if title != "" {
		chat.Title = title
	}
	if metadata != nil {
		if chat.Metadata == nil {
			chat.Metadata = make(map[string]any)
		}
		for k, v := range metadata {
			chat.Metadata[k] = v
		}
	}
	chat.UpdatedAt = time.Now()

	return m.updateChat(ctx, chat, isNew)
}

func (m *redisStore) updateChat(ctx context.Context, chat *ChatInfo, isNew bool) error {
	chatData, err := json.Marshal(chat)
	if err != nil {
		return errors.Wrap(err, "failed to marshal chat info")
	}

	pipe := m.client.Pipeline()
	pipe.Set(ctx, m.chatInfoKey(chat.ChatID), chatData, 0)
	if isNew {
		pipe.SAdd(ctx, m.chatListKey(), chat.ChatID)
	}
	_, err = pipe.Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to store chat info in Redis")
	}
	return nil
}

func (m *redisStore) GetChatInfo(ctx context.Context, chatID string) (*ChatInfo, error) {
	chat, isNew, err := m.getChatInfo(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if isNew {
		if err := m.updateChat(ctx, chat, true); err != nil {
			return nil, errors.Wrap(err, "failed to initialize new chat info")
		}
	}
	return chat, nil
}

func (m *redisStore) getChatInfo(ctx context.Context, chatID string) (*ChatInfo, bool, error) {
	data, err := m.client.Get(ctx, m.chatInfoKey(chatID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			return nil, false, errors.Wrap(err, "failed to get chat info from Redis")
		}
		now := time.Now()
		return &ChatInfo{
			ChatID:    chatID,
			Title:     "New Chat",
			CreatedAt: now,
			UpdatedAt: now,
		}, true, nil
	}

	chat := &ChatInfo{}
	if err := json.Unmarshal([]byte(data), chat); err != nil {
		return nil, false, errors.Wrap(err, "failed to unmarshal chat info")
	}
	return chat, false, nil
}

func (m *redisStore) ListChats(ctx context.Context) ([]string, error) {
	chatIDs, err := m.client.SMembers(ctx, m.chatListKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to list chats from Redis")
	}
	return chatIDs, nil
}
