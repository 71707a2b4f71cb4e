package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
)

// Callback actions carried in inline button data as "<action>|<allocation id>".
const (
	actionCopy    = "copy"
	actionCopyOTP = "copyotp"
	actionChange  = "change"
	actionCancel  = "cancel"
	actionBack    = "back"
)

var buttonLabels = map[string]string{
	actionCopy:    "📋 Copy Number",
	actionCopyOTP: "📋 Copy OTP",
	actionChange:  "🔁 Change Number",
	actionCancel:  "❌ Cancel",
	actionBack:    "⬅ Back",
}

func callbackData(action string, id uuid.UUID) string {
	return action + "|" + id.String()
}

func button(action string, id uuid.UUID) tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData(buttonLabels[action], callbackData(action, id))
}

func backButton() tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData(buttonLabels[actionBack], actionBack)
}

func allocationKeyboard(id uuid.UUID) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(button(actionCopy, id)),
		tgbotapi.NewInlineKeyboardRow(button(actionChange, id)),
		tgbotapi.NewInlineKeyboardRow(button(actionCancel, id)),
		tgbotapi.NewInlineKeyboardRow(backButton()),
	)
}

func otpKeyboard(id uuid.UUID) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(button(actionCopyOTP, id)),
		tgbotapi.NewInlineKeyboardRow(button(actionChange, id)),
		tgbotapi.NewInlineKeyboardRow(backButton()),
	)
}

func afterExpiryKeyboard(id uuid.UUID) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(button(actionChange, id)),
		tgbotapi.NewInlineKeyboardRow(backButton()),
	)
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("/status"),
			tgbotapi.NewKeyboardButton("/active"),
			tgbotapi.NewKeyboardButton("/history"),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}
