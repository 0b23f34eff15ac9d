package i18n

import (
	"encoding/json"
	"fmt"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

// Localizer resolves interface texts by (language, message key) with a
// default-language fallback when a key or language is missing.
type Localizer struct {
	bundle          *i18n.Bundle
	defaultLanguage string
	localizers      map[string]*i18n.Localizer
}

// NewLocalizer loads the per-language message files
func NewLocalizer(dir, defaultLanguage string, languages []string) (*Localizer, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	for _, lang := range languages {
		if _, err := bundle.LoadMessageFile(fmt.Sprintf("%s/%s.json", dir, lang)); err != nil {
			return nil, fmt.Errorf("failed to load language file %s: %w", lang, err)
		}
	}

	localizers := make(map[string]*i18n.Localizer)
	for _, lang := range languages {
		localizers[lang] = i18n.NewLocalizer(bundle, lang, defaultLanguage)
	}

	return &Localizer{
		bundle:          bundle,
		defaultLanguage: defaultLanguage,
		localizers:      localizers,
	}, nil
}

// Get returns the localized message
func (l *Localizer) Get(lang, messageID string, data map[string]interface{}) string {
	localizer, exists := l.localizers[lang]
	if !exists {
		localizer = l.localizers[l.defaultLanguage]
	}

	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil {
		return messageID // Fallback to message ID
	}

	return msg
}

// Message IDs
const (
	MsgWelcome         = "welcome"
	MsgNoCredits       = "no_credits"
	MsgChooseTone      = "choose_tone"
	MsgChooseLanguage  = "choose_language"
	MsgGenerating      = "generating"
	MsgError           = "error"
	MsgCreditsStatus   = "credits_status"
	MsgHistoryEmpty    = "history_empty"
	MsgCopied          = "copied"
	MsgNewConversation = "new_conversation"
	MsgChooseInterface = "choose_interface_language"
	MsgLanguageSet     = "language_set"
	MsgUnknownCommand  = "unknown_command"
	MsgRateLimited     = "rate_limited"
)
