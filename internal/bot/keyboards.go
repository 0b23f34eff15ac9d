package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/whatsay/whatsay-bot/internal/generator"
	"github.com/whatsay/whatsay-bot/internal/models"
)

// Callback data tags delivered back by Telegram on button presses
const (
	cbTonePrefix      = "tone_"
	cbLangPrefix      = "lang_"
	cbCopyPrefix      = "copy_"
	cbSetLangPrefix   = "set_lang_"
	cbMoreOptions     = "more_options"
	cbNewConversation = "new_conversation"
	cbCredits         = "credits"
	cbHistory         = "history"
	cbChangeLanguage  = "change_language"
	cbBackToMenu      = "back_to_menu"
)

func (b *Bot) welcomeKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💎 Credits", cbCredits),
			tgbotapi.NewInlineKeyboardButtonData("📚 History", cbHistory),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🌍 Language", cbChangeLanguage),
			tgbotapi.NewInlineKeyboardButtonURL("🛒 Buy Credits", b.buyCreditsURL),
		),
	)
}

func toneKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(models.ToneCasual.DisplayName(), cbTonePrefix+string(models.ToneCasual)),
			tgbotapi.NewInlineKeyboardButtonData(models.ToneProfessional.DisplayName(), cbTonePrefix+string(models.ToneProfessional)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(models.ToneFlirty.DisplayName(), cbTonePrefix+string(models.ToneFlirty)),
		),
	)
}

func languageKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(models.LangEnglish.DisplayName(), cbLangPrefix+string(models.LangEnglish)),
			tgbotapi.NewInlineKeyboardButtonData(models.LangDutch.DisplayName(), cbLangPrefix+string(models.LangDutch)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(models.LangSpanish.DisplayName(), cbLangPrefix+string(models.LangSpanish)),
		),
	)
}

func resultKeyboard() tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, generator.ReplyCount+2)
	for i := 1; i <= generator.ReplyCount; i++ {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("📋 %d", i), fmt.Sprintf("%s%d", cbCopyPrefix, i)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🔄 More options", cbMoreOptions),
		tgbotapi.NewInlineKeyboardButtonData("✨ New chat", cbNewConversation),
	))
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("📚 History", cbHistory),
		tgbotapi.NewInlineKeyboardButtonData("💎 Credits", cbCredits),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (b *Bot) buyCreditsKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("🛒 Buy Credits", b.buyCreditsURL),
		),
	)
}

func interfaceLanguageKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🇬🇧 English", cbSetLangPrefix+"en"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🇳🇱 Nederlands", cbSetLangPrefix+"nl"),
		),
	)
}

func backKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("« Back", cbBackToMenu),
		),
	)
}
