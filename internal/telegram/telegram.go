// Package telegram is the Telegram front end: a long-polling bot that maps
// incoming messages to turn submissions and streams replies back. It is a
// transport shim; all conversation logic lives in the agent runtime.
package telegram

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"github.com/haldis/strand/internal/adapter"
	"github.com/haldis/strand/internal/agent"
	"github.com/haldis/strand/internal/observability"
	"github.com/haldis/strand/pkg/models"
)

// Bot bridges Telegram updates and the agent runtime.
type Bot struct {
	bot     *bot.Bot
	runtime *agent.Runtime
	render  *adapter.Telegram
	logger  *slog.Logger
}

// New creates the bot for the given token.
func New(token string, runtime *agent.Runtime, logger *slog.Logger) (*Bot, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	t := &Bot{
		runtime: runtime,
		render:  adapter.NewTelegram(),
		logger:  logger,
	}

	b, err := bot.New(token, bot.WithDefaultHandler(t.handleUpdate))
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}
	t.bot = b
	return t, nil
}

// Run starts long polling and blocks until ctx is cancelled.
func (t *Bot) Run(ctx context.Context) error {
	t.logger.Info("telegram bot starting")
	t.bot.Start(ctx)
	return nil
}

func (t *Bot) handleUpdate(ctx context.Context, b *bot.Bot, update *tgmodels.Update) {
	if update.Message == nil || update.Message.Text == "" || update.Message.From == nil {
		return
	}
	msg := update.Message

	language := msg.From.LanguageCode
	if language == "" {
		language = "en"
	}
	req := models.TurnRequest{
		ThreadID: fmt.Sprintf("telegram:%d", msg.Chat.ID),
		UserID:   msg.From.ID,
		Platform: models.PlatformTelegram,
		Language: language,
		Text:     msg.Text,
	}

	// Buffer text until suggestions arrive so the reply keyboard can ride on
	// the final chunk. Event order is fixed: text, then suggestions.
	var replyText string
	var suggestions []string
	for ev := range t.runtime.SubmitTurn(ctx, req) {
		switch ev.Type {
		case models.EventTextChunk:
			replyText += ev.Text
		case models.EventSuggestions:
			suggestions = ev.Suggestions
		}
	}
	if replyText == "" {
		return
	}

	chunks := t.render.ChunkLongMessage(t.render.FormatMessage(replyText))
	for i, chunk := range chunks {
		params := &bot.SendMessageParams{
			ChatID:    msg.Chat.ID,
			Text:      chunk,
			ParseMode: tgmodels.ParseModeMarkdown,
		}
		if i == len(chunks)-1 {
			params.ReplyMarkup = t.render.RenderSuggestions(suggestions)
		}
		if _, err := b.SendMessage(ctx, params); err != nil {
			t.logger.Error("failed to send telegram message",
				"chat_id", msg.Chat.ID,
				"error", err)
			return
		}
	}
}
