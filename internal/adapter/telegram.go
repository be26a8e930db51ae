package adapter

import (
	"github.com/go-telegram/bot/models"

	"github.com/haldis/strand/internal/adapter/chunk"
)

const (
	// TelegramMessageLimit is Telegram's hard per-message length limit.
	TelegramMessageLimit = 4096

	telegramKeyboardRow = 3
	telegramKeyboardMax = 12

	// telegramMarkdownV2Specials are the characters MarkdownV2 requires
	// escaping outside of code and pre entities.
	telegramMarkdownV2Specials = "_*[]()~`>#+-=|{}.!"
)

// Telegram renders output for the Telegram Bot API with MarkdownV2 parse
// mode and reply-keyboard suggestions.
type Telegram struct{}

// NewTelegram creates a Telegram adapter.
func NewTelegram() *Telegram { return &Telegram{} }

func (a *Telegram) Platform() string { return "telegram" }

func (a *Telegram) FormatMessage(text string) string {
	return a.EscapeMarkdown(text)
}

func (a *Telegram) ChunkLongMessage(text string) []string {
	return chunk.Split(text, TelegramMessageLimit)
}

func (a *Telegram) EscapeMarkdown(text string) string {
	return escapeSet(text, telegramMarkdownV2Specials)
}

// RenderSuggestions builds a one-time reply keyboard with up to 12
// suggestions laid out in rows of 3. Empty input yields a keyboard removal
// so stale suggestions disappear from the client.
func (a *Telegram) RenderSuggestions(suggestions []string) any {
	if len(suggestions) == 0 {
		return &models.ReplyKeyboardRemove{RemoveKeyboard: true}
	}
	if len(suggestions) > telegramKeyboardMax {
		suggestions = suggestions[:telegramKeyboardMax]
	}

	var rows [][]models.KeyboardButton
	for i := 0; i < len(suggestions); i += telegramKeyboardRow {
		end := i + telegramKeyboardRow
		if end > len(suggestions) {
			end = len(suggestions)
		}
		row := make([]models.KeyboardButton, 0, end-i)
		for _, s := range suggestions[i:end] {
			row = append(row, models.KeyboardButton{Text: s})
		}
		rows = append(rows, row)
	}

	return &models.ReplyKeyboardMarkup{
		Keyboard:        rows,
		ResizeKeyboard:  true,
		OneTimeKeyboard: true,
	}
}
