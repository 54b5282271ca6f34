package alerting

import (
	"context"
	"fmt"
	"log/slog"

	"rez-ledger/internal/breaker"

	"github.com/go-telegram/bot"
)

// LogNotifier writes alerts to the structured log. Always wired; it is the
// channel of last resort when external delivery is down.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier { return &LogNotifier{log: log} }

func (n *LogNotifier) Name() string { return ChannelLog }

func (n *LogNotifier) Notify(ctx context.Context, e Event) error {
	attrs := []any{"rule", e.Rule, "metric", string(e.Metric), "severity", string(e.Severity), "event_id", e.ID}
	for k, v := range e.Context {
		attrs = append(attrs, k, v)
	}
	switch e.Severity {
	case SeverityCritical:
		n.log.Error(e.Message, attrs...)
	case SeverityWarning:
		n.log.Warn(e.Message, attrs...)
	default:
		n.log.Info(e.Message, attrs...)
	}
	return nil
}

// TelegramNotifier pushes alerts to an operator chat. The send goes through
// a circuit breaker so a telegram outage cannot stall the wallet pipeline.
type TelegramNotifier struct {
	bot    *bot.Bot
	chatID string
	guard  *breaker.Breaker
}

func NewTelegramNotifier(token, chatID string, guard *breaker.Breaker) (*TelegramNotifier, error) {
	if token == "" || chatID == "" {
		return nil, fmt.Errorf("telegram token and chat id are required")
	}
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &TelegramNotifier{bot: b, chatID: chatID, guard: guard}, nil
}

func (n *TelegramNotifier) Name() string { return ChannelTelegram }

func (n *TelegramNotifier) Notify(ctx context.Context, e Event) error {
	text := fmt.Sprintf("[%s] %s\n%s", e.Severity, e.Rule, e.Message)
	for k, v := range e.Context {
		text += fmt.Sprintf("\n%s: %s", k, v)
	}
	return n.guard.Do(ctx, func(ctx context.Context) error {
		_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: n.chatID,
			Text:   text,
		})
		return err
	})
}
