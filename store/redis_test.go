package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/effective-security/billagent/pkg/llms"
	"github.com/effective-security/billagent/store"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	rediscon "github.com/testcontainers/testcontainers-go/modules/redis"
)

func Test_RedisStore(t *testing.T) {
	ctx := context.Background()
	redisContainer, err := rediscon.Run(ctx, "redis:7",
		testcontainers.WithConfigModifier(func(config *container.Config) {
			config.Env = []string{
				"ALLOW_EMPTY_PASSWORD=yes",
			}
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, redisContainer.Terminate(ctx))
	})

	state, err := redisContainer.State(ctx)
	require.NoError(t, err)
	require.True(t, state.Running)

	uri, err := redisContainer.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(uri)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	prefix := fmt.Sprintf("test-%d", time.Now().Unix())
	st := store.NewRedisStore(client, prefix)

	chatID := "chat1"
	assert.Empty(t, st.Messages(ctx, chatID))

	msg1 := llms.MessageFromTextParts(llms.RoleHuman, "show invoice inv-1")
	msg2 := llms.MessageFromToolCalls(llms.RoleAI, llms.ToolCall{
		ID:   "call-1",
		Type: "function",
		FunctionCall: &llms.FunctionCall{
			Name:      "get_invoice",
			Arguments: `{"invoice_id":"inv-1"}`,
		},
	})
	require.NoError(t, st.Add(ctx, chatID, msg1))
	require.NoError(t, st.Add(ctx, chatID, msg2))

	messages := st.Messages(ctx, chatID)
	require.Len(t, messages, 2)
	assert.Equal(t, msg1, messages[0])
	assert.Equal(t, msg2, messages[1])

	require.NoError(t, st.UpdateChat(ctx, chatID, "Invoice lookup", nil))
	chi, err := st.GetChatInfo(ctx, chatID)
	require.NoError(t, err)
	assert.Equal(t, "Invoice lookup", chi.Title)

	list, err := st.ListChats(ctx)
	require.NoError(t, err)
	assert.Contains(t, list, chatID)

	require.NoError(t, st.Reset(ctx, chatID))
	assert.Empty(t, st.Messages(ctx, chatID))
	list, err = st.ListChats(ctx)
	require.NoError(t, err)
	assert.NotContains(t, list, chatID)
}
