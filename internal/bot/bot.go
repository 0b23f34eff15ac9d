package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/whatsay/whatsay-bot/internal/conversation"
	"github.com/whatsay/whatsay-bot/internal/credits"
	"github.com/whatsay/whatsay-bot/internal/i18n"
	"github.com/whatsay/whatsay-bot/internal/metrics"
	"github.com/whatsay/whatsay-bot/internal/middleware"
	"github.com/whatsay/whatsay-bot/internal/models"
	"github.com/whatsay/whatsay-bot/internal/session"
	"github.com/whatsay/whatsay-bot/internal/storage"
	"go.uber.org/zap"
)

type Bot struct {
	api           *tgbotapi.BotAPI
	storage       storage.Storage
	ledger        *credits.Ledger
	conversations *conversation.Store
	sessions      *session.Manager
	localizer     *i18n.Localizer
	limiter       middleware.RateLimiter
	buyCreditsURL string
	logger        *zap.Logger
}

func New(token string, store storage.Storage, ledger *credits.Ledger, conversations *conversation.Store, sessions *session.Manager, localizer *i18n.Localizer, limiter middleware.RateLimiter, buyCreditsURL string, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &Bot{
		api:           api,
		storage:       store,
		ledger:        ledger,
		conversations: conversations,
		sessions:      sessions,
		localizer:     localizer,
		limiter:       limiter,
		buyCreditsURL: buyCreditsURL,
		logger:        logger,
	}, nil
}

func (b *Bot) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for update := range updates {
		switch {
		case update.Message != nil:
			go b.handleMessage(update.Message)
		case update.CallbackQuery != nil:
			go b.handleCallback(update.CallbackQuery)
		}
	}

	return nil
}

func (b *Bot) handleMessage(message *tgbotapi.Message) {
	ctx := context.Background()
	metrics.RecordMessageReceived("message")

	user, err := b.ensureUser(ctx, message.From)
	if err != nil {
		b.logger.Error("Failed to ensure user",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID))
		b.sendMessage(message.Chat.ID, b.text("en", i18n.MsgError))
		return
	}

	if message.IsCommand() {
		b.handleCommand(ctx, message, user)
		return
	}

	if message.Text == "" {
		return
	}

	if !b.limiter.Allow(user.ID) {
		b.sendMessage(message.Chat.ID, b.text(user.Language, i18n.MsgRateLimited))
		return
	}

	err = b.sessions.Begin(ctx, user.ID, message.Text)
	switch {
	case errors.Is(err, credits.ErrInsufficientCredits):
		b.sendMessageWithMarkup(message.Chat.ID, b.text(user.Language, i18n.MsgNoCredits), b.buyCreditsKeyboard())
	case errors.Is(err, session.ErrBusy):
		// A generation is already in flight for this user; drop the event
		b.logger.Debug("Dropping message during in-flight generation",
			zap.Int64("user_id", user.ID))
	case err != nil:
		b.logger.Error("Failed to start session",
			zap.Error(err),
			zap.Int64("user_id", user.ID))
		b.sendMessage(message.Chat.ID, b.text(user.Language, i18n.MsgError))
	default:
		b.sendMessageWithMarkup(message.Chat.ID, b.text(user.Language, i18n.MsgChooseTone), toneKeyboard())
	}
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message, user *models.User) {
	switch message.Command() {
	case "start":
		b.sendMessageWithMarkup(message.Chat.ID, b.text(user.Language, i18n.MsgWelcome), b.welcomeKeyboard())
	case "credits":
		text := b.renderCredits(ctx, user)
		b.sendMessageWithMarkup(message.Chat.ID, text, b.buyCreditsKeyboard())
	case "history":
		text, empty := b.renderHistory(ctx, user)
		if empty {
			b.sendMessage(message.Chat.ID, text)
			return
		}
		b.sendMarkdown(message.Chat.ID, text)
	case "new":
		b.sessions.Reset(user.ID)
		b.sendMessage(message.Chat.ID, b.text(user.Language, i18n.MsgNewConversation))
	default:
		b.sendMessage(message.Chat.ID, b.text(user.Language, i18n.MsgUnknownCommand))
	}
}

func (b *Bot) handleCallback(query *tgbotapi.CallbackQuery) {
	ctx := context.Background()
	metrics.RecordMessageReceived("callback")

	// Acknowledge the press so the client stops its spinner
	if _, err := b.api.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
		b.logger.Debug("Failed to answer callback", zap.Error(err))
	}

	user, err := b.ensureUser(ctx, query.From)
	if err != nil {
		b.logger.Error("Failed to ensure user",
			zap.Error(err),
			zap.Int64("user_id", query.From.ID))
		return
	}

	data := query.Data

	// These presses are answered via the callback alone and need no
	// message to edit
	switch {
	case strings.HasPrefix(data, cbCopyPrefix):
		b.answerAlert(query.ID, b.text(user.Language, i18n.MsgCopied))
		return

	case data == cbNewConversation:
		b.sessions.Reset(user.ID)
		b.answerAlert(query.ID, b.text(user.Language, i18n.MsgNewConversation))
		return

	case strings.HasPrefix(data, cbSetLangPrefix):
		b.setInterfaceLanguage(ctx, query, user, strings.TrimPrefix(data, cbSetLangPrefix))
		return
	}

	// Telegram omits the message for buttons older than 48 hours; treat
	// such presses as stale
	if query.Message == nil {
		b.logger.Debug("Dropping callback without message",
			zap.Int64("user_id", user.ID),
			zap.String("data", data))
		return
	}

	chatID := query.Message.Chat.ID
	messageID := query.Message.MessageID

	switch {
	case strings.HasPrefix(data, cbTonePrefix):
		tone := models.Tone(strings.TrimPrefix(data, cbTonePrefix))
		if !b.sessions.SelectTone(user.ID, tone) {
			// Stale or duplicate button press
			return
		}
		b.editMessageWithMarkup(chatID, messageID, b.text(user.Language, i18n.MsgChooseLanguage), languageKeyboard())

	case strings.HasPrefix(data, cbLangPrefix):
		lang := models.ReplyLanguage(strings.TrimPrefix(data, cbLangPrefix))
		if !b.sessions.SelectLanguage(user.ID, lang) {
			return
		}
		b.editMessage(chatID, messageID, b.text(user.Language, i18n.MsgGenerating))
		b.generateAndRender(ctx, user, chatID, messageID)

	case data == cbMoreOptions:
		b.editMessage(chatID, messageID, b.text(user.Language, i18n.MsgGenerating))
		b.generateAndRender(ctx, user, chatID, messageID)

	case data == cbCredits:
		b.editMessageWithMarkup(chatID, messageID, b.renderCredits(ctx, user), b.buyCreditsKeyboard())

	case data == cbHistory:
		text, empty := b.renderHistory(ctx, user)
		if empty {
			b.editMessage(chatID, messageID, text)
			return
		}
		b.editMarkdownWithMarkup(chatID, messageID, text, backKeyboard())

	case data == cbChangeLanguage:
		b.editMessageWithMarkup(chatID, messageID, b.text(user.Language, i18n.MsgChooseInterface), interfaceLanguageKeyboard())

	case data == cbBackToMenu:
		b.editMessageWithMarkup(chatID, messageID, b.text(user.Language, i18n.MsgWelcome), b.welcomeKeyboard())
	}
}

// generateAndRender runs one generation attempt and edits the placeholder
// message with either the three replies or a retry-suggesting error.
func (b *Bot) generateAndRender(ctx context.Context, user *models.User, chatID int64, messageID int) {
	result, err := b.sessions.Generate(ctx, user.ID)
	if err != nil {
		if errors.Is(err, session.ErrBusy) {
			// Duplicate press while generating; the first press will render
			return
		}
		b.logger.Error("Generation failed",
			zap.Error(err),
			zap.Int64("user_id", user.ID))
		b.editMessage(chatID, messageID, b.text(user.Language, i18n.MsgError))
		return
	}

	text := fmt.Sprintf("💬 *%s responses (%s):*\n\n",
		result.Tone.DisplayName(), result.Language.DisplayName())
	for i, reply := range result.Replies {
		text += fmt.Sprintf("%d. _%s_\n\n", i+1, escapeMarkdown(reply))
	}

	b.editMarkdownWithMarkup(chatID, messageID, text, resultKeyboard())
}

func (b *Bot) renderCredits(ctx context.Context, user *models.User) string {
	balance, err := b.ledger.Balance(ctx, user.ID)
	if err != nil {
		b.logger.Error("Failed to get balance",
			zap.Error(err),
			zap.Int64("user_id", user.ID))
		return b.text(user.Language, i18n.MsgError)
	}

	stats, err := b.conversations.Stats(ctx, user.ID)
	if err != nil {
		b.logger.Error("Failed to get user stats",
			zap.Error(err),
			zap.Int64("user_id", user.ID))
		stats = &models.UserStats{}
	}

	daysActive := stats.DaysActive
	if daysActive < 1 {
		daysActive = 1
	}
	avg := float64(stats.TotalUsed) / float64(daysActive)

	return b.text(user.Language, i18n.MsgCreditsStatus, map[string]interface{}{
		"Total":     balance.Total,
		"Free":      balance.Free,
		"Purchased": balance.Purchased,
		"Expiry":    time.Now().Add(credits.SignupExpiry).Format("2006-01-02"),
		"UsedMonth": stats.UsedThisMonth,
		"TotalUsed": stats.TotalUsed,
		"Avg":       fmt.Sprintf("%.1f", avg),
	})
}

func (b *Bot) renderHistory(ctx context.Context, user *models.User) (text string, empty bool) {
	history, err := b.conversations.Recent(ctx, user.ID, 5)
	if err != nil {
		b.logger.Error("Failed to get history",
			zap.Error(err),
			zap.Int64("user_id", user.ID))
		return b.text(user.Language, i18n.MsgError), true
	}
	if len(history) == 0 {
		return b.text(user.Language, i18n.MsgHistoryEmpty), true
	}

	text = "📚 *Recent conversations:*\n\n"
	for i, conv := range history {
		text += fmt.Sprintf("%d. %s\n", i+1, escapeMarkdown(truncate(conv.Message, 50)))
		if len(conv.Replies) > 0 {
			text += fmt.Sprintf("   ↳ %s\n\n", escapeMarkdown(truncate(conv.Replies[0], 50)))
		}
	}
	return text, false
}

func (b *Bot) setInterfaceLanguage(ctx context.Context, query *tgbotapi.CallbackQuery, user *models.User, lang string) {
	if err := b.storage.UpdateUserLanguage(ctx, user.ID, lang); err != nil {
		b.logger.Error("Failed to update user language",
			zap.Error(err),
			zap.Int64("user_id", user.ID),
			zap.String("language", lang))
		b.answerAlert(query.ID, b.text(user.Language, i18n.MsgError))
		return
	}

	name := models.ReplyLanguage(lang).DisplayName()
	b.answerAlert(query.ID, b.text(lang, i18n.MsgLanguageSet, map[string]interface{}{
		"Language": name,
	}))
}

// ensureUser loads the user, creating the account with its one-time signup
// credit grant on first contact.
func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) (*models.User, error) {
	user, err := b.storage.GetUser(ctx, from.ID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	displayName := from.UserName
	if displayName == "" {
		displayName = from.FirstName
	}
	user = &models.User{
		ID:          from.ID,
		DisplayName: displayName,
		Language:    "en",
	}
	if err := b.storage.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	if err := b.ledger.GrantSignup(ctx, user.ID); err != nil {
		return nil, err
	}

	b.logger.Info("New user created",
		zap.Int64("user_id", user.ID),
		zap.String("display_name", displayName))
	return user, nil
}

func (b *Bot) text(lang, messageID string, data ...map[string]interface{}) string {
	var templateData map[string]interface{}
	if len(data) > 0 {
		templateData = data[0]
	}
	return b.localizer.Get(lang, messageID, templateData)
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendMessageWithMarkup(chatID int64, text string, markup tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = markup
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendMarkdown(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) editMessage(chatID int64, messageID int, text string) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if _, err := b.api.Send(edit); err != nil {
		b.logger.Error("Failed to edit message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) editMessageWithMarkup(chatID int64, messageID int, text string, markup tgbotapi.InlineKeyboardMarkup) {
	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, markup)
	if _, err := b.api.Send(edit); err != nil {
		b.logger.Error("Failed to edit message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) editMarkdownWithMarkup(chatID int64, messageID int, text string, markup tgbotapi.InlineKeyboardMarkup) {
	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, markup)
	edit.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(edit); err != nil {
		b.logger.Error("Failed to edit message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) answerAlert(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallbackWithAlert(callbackID, text)); err != nil {
		b.logger.Debug("Failed to answer callback", zap.Error(err))
	}
}

// escapeMarkdown escapes special characters for legacy Markdown parse mode
func escapeMarkdown(text string) string {
	specialChars := []string{"_", "*", "`", "["}
	escaped := text
	for _, char := range specialChars {
		escaped = strings.ReplaceAll(escaped, char, "\\"+char)
	}
	return escaped
}

func truncate(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}
