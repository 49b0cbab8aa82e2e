package store

import (
	"context"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
)

type inMemory struct {
	mu      sync.RWMutex
	storage map[string][]anthropic.MessageParam
}

func NewMemoryStore() MessageStore {
	return &inMemory{}
}

func (m *inMemory) Messages(_ context.Context, chatID string) []anthropic.MessageParam {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.storage == nil {
		return nil
	}
	msgs := m.storage[chatID]
	out := make([]anthropic.MessageParam, len(msgs))
	copy(out, msgs)
	return out
}

func (m *inMemory) Add(_ context.Context, chatID string, msgs ...anthropic.MessageParam) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storage == nil {
		// create on first use
		m.storage = make(map[string][]anthropic.MessageParam)
	}
	all := append(m.storage[chatID], msgs...)
	if len(all) > KeepMessages {
		all = all[len(all)-KeepMessages:]
	}
	m.storage[chatID] = all
	return nil
}

func (m *inMemory) Reset(_ context.Context, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storage != nil {
		delete(m.storage, chatID)
	}
	return nil
}
