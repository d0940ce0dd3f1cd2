package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	redrepo "github.com/mbyo2/zambia-match-time/internal/repo/redis"
)

type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(_ context.Context, notice Notice) error {
	s.logger.Info("user_notice",
		zap.Int64("user_id", notice.UserID),
		zap.String("kind", string(notice.Kind)),
		zap.String("message", notice.Message),
		zap.String("required_tier", notice.RequiredTier),
		zap.Duration("retry_after", notice.RetryAfter),
	)
	return nil
}

type InboxStore interface {
	Push(ctx context.Context, userID int64, item redrepo.InboxItem) error
}

// InboxSink keeps recent notices per user so the client can poll them.
type InboxSink struct {
	store InboxStore
}

func NewInboxSink(store InboxStore) *InboxSink {
	return &InboxSink{store: store}
}

func (s *InboxSink) Name() string { return "inbox" }

func (s *InboxSink) Deliver(ctx context.Context, notice Notice) error {
	if s.store == nil {
		return fmt.Errorf("inbox store is nil")
	}
	return s.store.Push(ctx, notice.UserID, redrepo.InboxItem{
		Kind:         string(notice.Kind),
		Message:      notice.Message,
		RequiredTier: notice.RequiredTier,
		RetryAfterS:  int64(notice.RetryAfter.Round(time.Second) / time.Second),
		CreatedAt:    notice.CreatedAt,
	})
}

type TextSender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// TelegramSink messages the user's private chat. Only notices that need the
// user's attention are forwarded; rate limit hits stay in-app.
type TelegramSink struct {
	sender TextSender
}

func NewTelegramSink(sender TextSender) *TelegramSink {
	return &TelegramSink{sender: sender}
}

func (s *TelegramSink) Name() string { return "telegram" }

func (s *TelegramSink) Deliver(ctx context.Context, notice Notice) error {
	if s.sender == nil {
		return fmt.Errorf("telegram sender is nil")
	}
	if notice.Kind != KindQuotaExceeded && notice.Kind != KindUpgradeRequired {
		return nil
	}
	return s.sender.SendText(ctx, notice.UserID, notice.Message)
}
