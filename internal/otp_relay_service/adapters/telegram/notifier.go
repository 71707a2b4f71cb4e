package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/aradsms/otp_relay/internal/otp_relay_service/domain"
)

// Notifier renders allocation notifications as chat cards.
type Notifier struct {
	client BotClient
	logger *slog.Logger
}

func NewNotifier(client BotClient, logger *slog.Logger) *Notifier {
	return &Notifier{client: client, logger: logger.With("component", "telegram_notifier")}
}

// Notify sends n to the chat named by n.Destination.
func (t *Notifier) Notify(ctx context.Context, n domain.Notification) error {
	chatID, err := strconv.ParseInt(n.Destination, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", n.Destination, err)
	}

	var messages []tgbotapi.MessageConfig
	switch n.Kind {
	case domain.NotificationOTPReceived:
		card := htmlMessage(chatID, otpCard(n))
		if !n.Broadcast {
			card.ReplyMarkup = otpKeyboard(n.AllocationID)
		}
		messages = append(messages, card, htmlMessage(chatID, otpLine(n.OTP)))
	case domain.NotificationExpired:
		card := htmlMessage(chatID, expiredCard(n))
		card.ReplyMarkup = afterExpiryKeyboard(n.AllocationID)
		messages = append(messages, card)
	case domain.NotificationCancelled:
		card := htmlMessage(chatID, cancelledCard(n))
		card.ReplyMarkup = afterExpiryKeyboard(n.AllocationID)
		messages = append(messages, card)
	default:
		return fmt.Errorf("unsupported notification kind %q", n.Kind)
	}

	// Every message is attempted; a rejected card must not hold back the OTP line.
	var sendErr error
	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			return errors.Join(sendErr, err)
		}
		if _, err := t.client.Send(msg); err != nil {
			sendErr = errors.Join(sendErr, fmt.Errorf("send %s notification to %d: %w", n.Kind, chatID, err))
		}
	}
	if sendErr != nil {
		return sendErr
	}
	t.logger.DebugContext(ctx, "Notification sent", "kind", n.Kind, "destination", n.Destination, "allocation_id", n.AllocationID)
	return nil
}
