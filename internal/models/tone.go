package models

// Tone is a named behavioral style applied to generated replies
type Tone string

const (
	ToneCasual       Tone = "casual"
	ToneProfessional Tone = "professional"
	ToneFlirty       Tone = "flirty"
)

// Tones lists the selectable tones in display order
var Tones = []Tone{ToneCasual, ToneProfessional, ToneFlirty}

// Valid reports whether t is a known tone
func (t Tone) Valid() bool {
	switch t {
	case ToneCasual, ToneProfessional, ToneFlirty:
		return true
	}
	return false
}

// DisplayName returns the button label for the tone
func (t Tone) DisplayName() string {
	switch t {
	case ToneCasual:
		return "😊 Casual"
	case ToneProfessional:
		return "💼 Professional"
	case ToneFlirty:
		return "😏 Flirty"
	}
	return string(t)
}

// Descriptor returns the behavioral description embedded in prompts
func (t Tone) Descriptor() string {
	switch t {
	case ToneCasual:
		return "friendly and relaxed"
	case ToneProfessional:
		return "polite and respectful"
	case ToneFlirty:
		return "playful and charming"
	}
	return "friendly and relaxed"
}

// ReplyLanguage is the language generated replies are written in
type ReplyLanguage string

const (
	LangEnglish ReplyLanguage = "en"
	LangDutch   ReplyLanguage = "nl"
	LangSpanish ReplyLanguage = "es"
)

// ReplyLanguages lists the selectable reply languages in display order
var ReplyLanguages = []ReplyLanguage{LangEnglish, LangDutch, LangSpanish}

// Valid reports whether l is a known reply language
func (l ReplyLanguage) Valid() bool {
	switch l {
	case LangEnglish, LangDutch, LangSpanish:
		return true
	}
	return false
}

// DisplayName returns the button label for the language
func (l ReplyLanguage) DisplayName() string {
	switch l {
	case LangEnglish:
		return "🇬🇧 English"
	case LangDutch:
		return "🇳🇱 Dutch"
	case LangSpanish:
		return "🇪🇸 Spanish"
	}
	return string(l)
}

// PromptName returns the language name used inside generation prompts
func (l ReplyLanguage) PromptName() string {
	switch l {
	case LangEnglish:
		return "English"
	case LangDutch:
		return "Dutch"
	case LangSpanish:
		return "Spanish"
	}
	return "English"
}
