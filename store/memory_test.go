package store_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stratumsec/toolgate/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_MemoryStore(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	assert.Empty(t, s.Messages(ctx, "chat1"))

	err := s.Add(ctx, "chat1",
		anthropic.NewUserMessage(anthropic.NewTextBlock("hello")),
		anthropic.NewAssistantMessage(anthropic.NewTextBlock("hi")),
	)
	require.NoError(t, err)

	msgs := s.Messages(ctx, "chat1")
	require.Len(t, msgs, 2)
	assert.Empty(t, s.Messages(ctx, "chat2"))

	// transcripts are isolated per chat
	require.NoError(t, s.Add(ctx, "chat2", anthropic.NewUserMessage(anthropic.NewTextBlock("other"))))
	assert.Len(t, s.Messages(ctx, "chat1"), 2)
	assert.Len(t, s.Messages(ctx, "chat2"), 1)

	require.NoError(t, s.Reset(ctx, "chat1"))
	assert.Empty(t, s.Messages(ctx, "chat1"))
	assert.Len(t, s.Messages(ctx, "chat2"), 1)
}

func Test_MemoryStore_Trim(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	for i := 0; i < store.KeepMessages+10; i++ {
		require.NoError(t, s.Add(ctx, "chat", anthropic.NewUserMessage(anthropic.NewTextBlock(fmt.Sprintf("msg %d", i)))))
	}

	msgs := s.Messages(ctx, "chat")
	assert.Len(t, msgs, store.KeepMessages)
}
