package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/prosuite/rent-ledger/billing"
)

// LogSender logs outbound messages instead of delivering them. It keeps the
// messages it saw so callers can inspect them.
type LogSender struct {
	logger *zap.Logger

	mu   sync.Mutex
	sent []billing.Message
}

func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg billing.Message) error {
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()

	names := make([]string, len(msg.Attachments))
	for i, a := range msg.Attachments {
		names[i] = a.Filename
	}
	s.logger.Info("email not delivered (log sender)",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Strings("attachments", names))
	return nil
}

// Sent returns a copy of every message passed to Send.
func (s *LogSender) Sent() []billing.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]billing.Message(nil), s.sent...)
}
