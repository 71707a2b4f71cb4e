package telegram

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/aradsms/otp_relay/internal/otp_relay_service/domain"
)

// AllocationAPI is the application surface the bot drives.
type AllocationAPI interface {
	Allocate(ctx context.Context, requesterID, rawRange string) (*domain.Allocation, error)
	Cancel(ctx context.Context, requesterID string, id uuid.UUID) (*domain.Allocation, error)
	Replace(ctx context.Context, requesterID string, id uuid.UUID) (*domain.Allocation, error)
	Get(ctx context.Context, requesterID string, id uuid.UUID) (*domain.Allocation, error)
	History(ctx context.Context, requesterID string) ([]*domain.Allocation, error)
	Active(ctx context.Context, requesterID string) ([]*domain.Allocation, error)
	Latest(ctx context.Context, requesterID string) (*domain.Allocation, error)
}

const updateTimeoutSeconds = 60

// Bot routes chat commands and inline button presses to the allocation service.
type Bot struct {
	client   BotClient
	service  AllocationAPI
	logger   *slog.Logger
	location *time.Location
}

func NewBot(client BotClient, service AllocationAPI, logger *slog.Logger) *Bot {
	return &Bot{
		client:   client,
		service:  service,
		logger:   logger.With("component", "telegram_bot"),
		location: time.UTC,
	}
}

// Run consumes updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = updateTimeoutSeconds
	updates := b.client.GetUpdatesChan(u)
	b.logger.InfoContext(ctx, "Telegram bot receiving updates")

	for {
		select {
		case <-ctx.Done():
			b.client.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate processes one update. Failures are reported to the chat and logged.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		b.handleCallbackQuery(ctx, update.CallbackQuery)
	}
}

func requesterOf(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.Chat == nil {
		return
	}
	chatID := message.Chat.ID
	requester := requesterOf(chatID)

	if !message.IsCommand() {
		b.send(ctx, htmlMessage(chatID, msgUsage))
		return
	}

	switch message.Command() {
	case "start", "help":
		msg := htmlMessage(chatID, msgWelcome)
		msg.ReplyMarkup = mainMenuKeyboard()
		b.send(ctx, msg)
	case "range":
		b.handleRange(ctx, chatID, requester, strings.TrimSpace(message.CommandArguments()))
	case "status":
		alloc, err := b.service.Latest(ctx, requester)
		if err != nil {
			b.replyLookupError(ctx, chatID, err, msgNoAllocation)
			return
		}
		msg := htmlMessage(chatID, allocationCard(alloc))
		msg.ReplyMarkup = keyboardFor(alloc)
		b.send(ctx, msg)
	case "history":
		allocs, err := b.service.History(ctx, requester)
		if err != nil {
			b.replyLookupError(ctx, chatID, err, msgNoAllocation)
			return
		}
		b.send(ctx, htmlMessage(chatID, historyCard(allocs, b.location)))
	case "active":
		allocs, err := b.service.Active(ctx, requester)
		if err != nil {
			b.replyLookupError(ctx, chatID, err, msgNoActive)
			return
		}
		if len(allocs) == 0 {
			b.send(ctx, htmlMessage(chatID, msgNoActive))
			return
		}
		for _, alloc := range allocs {
			msg := htmlMessage(chatID, allocationCard(alloc))
			msg.ReplyMarkup = allocationKeyboard(alloc.ID)
			b.send(ctx, msg)
		}
	default:
		b.send(ctx, htmlMessage(chatID, msgUsage))
	}
}

func (b *Bot) handleRange(ctx context.Context, chatID int64, requester, rawRange string) {
	if rawRange == "" {
		b.send(ctx, htmlMessage(chatID, "Send range: /range 261347435XXX or /range 261347435123"))
		return
	}
	waiting := b.send(ctx, tgbotapi.NewMessage(chatID, msgWaiting))

	alloc, err := b.service.Allocate(ctx, requester, rawRange)
	if err != nil {
		b.logger.WarnContext(ctx, "Allocation failed", "requester_id", requester, "range", rawRange, "error", err)
		b.edit(ctx, chatID, waiting, allocationFailedCard(err), nil)
		return
	}
	kb := allocationKeyboard(alloc.ID)
	b.edit(ctx, chatID, waiting, allocationCard(alloc), &kb)
}

func (b *Bot) handleCallbackQuery(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if query.Message == nil || query.Message.Chat == nil {
		b.answer(ctx, query.ID, "", false)
		return
	}
	chatID := query.Message.Chat.ID
	messageID := query.Message.MessageID
	requester := requesterOf(chatID)

	if query.Data == actionBack {
		b.answer(ctx, query.ID, "", false)
		b.edit(ctx, chatID, messageID, msgBack, nil)
		return
	}

	action, rawID, found := strings.Cut(query.Data, "|")
	id, err := uuid.Parse(rawID)
	if !found || err != nil {
		b.answer(ctx, query.ID, msgStaleButton, true)
		return
	}

	switch action {
	case actionCopy:
		alloc, err := b.service.Get(ctx, requester, id)
		if err != nil {
			b.answer(ctx, query.ID, msgStaleButton, true)
			return
		}
		pretty := domain.FormatPrettyNumber(alloc.PhoneNumber)
		b.answer(ctx, query.ID, pretty, true)
		b.send(ctx, tgbotapi.NewMessage(chatID, "Number (tap & hold to copy):\n"+pretty))
		b.send(ctx, tgbotapi.NewMessage(chatID, msgCopyConfirm))

	case actionCopyOTP:
		alloc, err := b.service.Get(ctx, requester, id)
		if err != nil {
			b.answer(ctx, query.ID, msgStaleButton, true)
			return
		}
		if alloc.OTP == "" {
			b.answer(ctx, query.ID, msgNoOTPYet, true)
			return
		}
		b.answer(ctx, query.ID, alloc.OTP, true)
		b.send(ctx, tgbotapi.NewMessage(chatID, "OTP (tap & hold to copy):\n"+alloc.OTP))
		b.send(ctx, tgbotapi.NewMessage(chatID, msgCopyConfirm))

	case actionChange:
		b.answer(ctx, query.ID, "", false)
		b.edit(ctx, chatID, messageID, msgChanging, nil)
		fresh, err := b.service.Replace(ctx, requester, id)
		if err != nil {
			b.logger.WarnContext(ctx, "Change number failed", "requester_id", requester, "allocation_id", id, "error", err)
			if errors.Is(err, domain.ErrNotFound) {
				b.edit(ctx, chatID, messageID, msgNoAllocation, nil)
				return
			}
			b.edit(ctx, chatID, messageID, allocationFailedCard(err), nil)
			return
		}
		kb := allocationKeyboard(fresh.ID)
		b.edit(ctx, chatID, messageID, allocationCard(fresh), &kb)

	case actionCancel:
		if _, err := b.service.Cancel(ctx, requester, id); err != nil {
			if !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, domain.ErrAllocationTerminal) {
				b.logger.ErrorContext(ctx, "Cancel failed", "requester_id", requester, "allocation_id", id, "error", err)
			}
			b.answer(ctx, query.ID, msgNothingToCancel, true)
			return
		}
		b.answer(ctx, query.ID, msgCancelled, false)

	default:
		b.answer(ctx, query.ID, msgStaleButton, true)
	}
}

func keyboardFor(alloc *domain.Allocation) tgbotapi.InlineKeyboardMarkup {
	switch alloc.Status {
	case domain.StatusSuccess:
		return otpKeyboard(alloc.ID)
	case domain.StatusExpired:
		return afterExpiryKeyboard(alloc.ID)
	}
	return allocationKeyboard(alloc.ID)
}

func (b *Bot) replyLookupError(ctx context.Context, chatID int64, err error, notFoundText string) {
	if errors.Is(err, domain.ErrNotFound) {
		b.send(ctx, htmlMessage(chatID, notFoundText))
		return
	}
	b.logger.ErrorContext(ctx, "Allocation lookup failed", "chat_id", chatID, "error", err)
	b.send(ctx, htmlMessage(chatID, "Something went wrong. Please try again."))
}

// send returns the sent message id, or 0 if sending failed.
func (b *Bot) send(ctx context.Context, c tgbotapi.Chattable) int {
	msg, err := b.client.Send(c)
	if err != nil {
		b.logger.WarnContext(ctx, "Failed to send chat message", "error", err)
		return 0
	}
	return msg.MessageID
}

// edit replaces the text of messageID, or sends a new message when there is nothing to edit.
func (b *Bot) edit(ctx context.Context, chatID int64, messageID int, text string, kb *tgbotapi.InlineKeyboardMarkup) {
	if messageID == 0 {
		msg := htmlMessage(chatID, text)
		if kb != nil {
			msg.ReplyMarkup = *kb
		}
		b.send(ctx, msg)
		return
	}
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeHTML
	edit.ReplyMarkup = kb
	b.send(ctx, edit)
}

func (b *Bot) answer(ctx context.Context, queryID, text string, alert bool) {
	cb := tgbotapi.NewCallback(queryID, text)
	cb.ShowAlert = alert
	if _, err := b.client.Request(cb); err != nil {
		b.logger.DebugContext(ctx, "Failed to answer callback query", "error", err)
	}
}
