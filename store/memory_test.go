package store_test

import (
	"context"
	"testing"

	"github.com/effective-security/billagent/pkg/llms"
	"github.com/effective-security/billagent/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_MemoryStore(t *testing.T) {
	st := store.NewMemoryStore()

	ctx := context.Background()
	chatID := "chat1"
	msg1 := llms.MessageFromTextParts(llms.RoleHuman, "show invoice inv-1")
	msg2 := llms.MessageFromTextParts(llms.RoleAI, "Invoice inv-1 is paid.")

	assert.Empty(t, st.Messages(ctx, chatID))
	require.NoError(t, st.Reset(ctx, chatID))

	require.NoError(t, st.Add(ctx, chatID, msg1))
	require.NoError(t, st.Add(ctx, chatID, msg2))

	messages := st.Messages(ctx, chatID)
	require.Len(t, messages, 2)
	assert.Equal(t, msg1.GetContent(), messages[0].GetContent())
	assert.Equal(t, msg2.GetContent(), messages[1].GetContent())

	// History of other chats is not affected.
	assert.Empty(t, st.Messages(ctx, "chat2"))

	chi, err := st.GetChatInfo(ctx, chatID)
	require.NoError(t, err)
	assert.Equal(t, chatID, chi.ChatID)
	assert.Equal(t, "New Chat", chi.Title)

	require.NoError(t, st.UpdateChat(ctx, chatID, "Invoice lookup", map[string]any{"model": "mistral-large-latest"}))
	chi, err = st.GetChatInfo(ctx, chatID)
	require.NoError(t, err)
	assert.Equal(t, "Invoice lookup", chi.Title)
	assert.Equal(t, "mistral-large-latest", chi.Metadata["model"])

	list, err := st.ListChats(ctx)
	require.NoError(t, err)
	assert.Contains(t, list, chatID)

	require.NoError(t, st.Reset(ctx, chatID))
	assert.Empty(t, st.Messages(ctx, chatID))
	list, err = st.ListChats(ctx)
	require.NoError(t, err)
	assert.NotContains(t, list, chatID)
}

func Test_MemoryStore_Trim(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	for range 60 {
		require.NoError(t, st.Add(ctx, "chat1", llms.MessageFromTextParts(llms.RoleHuman, "hi")))
	}
	assert.Len(t, st.Messages(ctx, "chat1"), 50)
}
