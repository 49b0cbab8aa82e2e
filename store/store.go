// Package store persists conversation transcripts for the chat runner,
// keyed by chat ID.
package store

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/stratumsec/toolgate", "store")

// KeepMessages bounds the transcript length; older messages are trimmed.
const KeepMessages = 50

type MessageStore interface {
	Messages(ctx context.Context, chatID string) []anthropic.MessageParam
	Add(ctx context.Context, chatID string, msgs ...anthropic.MessageParam) error
	Reset(ctx context.Context, chatID string) error
}
