package store

import (
	"context"
	"encoding/json"
	"path"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/redis/go-redis/v9"
)

// The redis store keeps each transcript as a Redis list of JSON encoded
// messages, trimmed to the last KeepMessages entries. Keys are namespaced
// as /<prefix>/chatstore/messages/<chatID>.

type redisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) MessageStore {
	return &redisStore{
		client: client,
		prefix: prefix,
	}
}

func (m *redisStore) messagesKey(chatID string) string {
	return path.Join(m.prefix, "chatstore", "messages", chatID)
}

func (m *redisStore) Messages(ctx context.Context, chatID string) []anthropic.MessageParam {
	data, err := m.client.LRange(ctx, m.messagesKey(chatID), 0, -1).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.ContextKV(ctx, xlog.ERROR, "reason", "LRange", "chat", chatID, "err", err.Error())
		}
		return nil
	}

	var messages []anthropic.MessageParam
	for _, item := range data {
		var msg anthropic.MessageParam
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			logger.ContextKV(ctx, xlog.ERROR, "reason", "unmarshal message", "chat", chatID, "err", err.Error())
			continue
		}
		messages = append(messages, msg)
	}
	return messages
}

func (m *redisStore) Add(ctx context.Context, chatID string, msgs ...anthropic.MessageParam) error {
	if len(msgs) == 0 {
		return nil
	}

	encoded := make([]any, 0, len(msgs))
	for _, msg := range msgs {
		data, err := json.Marshal(msg)
		if err != nil {
			return errors.Wrap(err, "failed to marshal message")
		}
		encoded = append(encoded, data)
	}

	key := m.messagesKey(chatID)
	pipe := m.client.Pipeline()
	pipe.RPush(ctx, key, encoded...)
	pipe.LTrim(ctx, key, -KeepMessages, -1)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to store messages in Redis")
	}
	return nil
}

func (m *redisStore) Reset(ctx context.Context, chatID string) error {
	if err := m.client.Del(ctx, m.messagesKey(chatID)).Err(); err != nil {
		return errors.Wrap(err, "failed to reset chat in Redis")
	}
	return nil
}
