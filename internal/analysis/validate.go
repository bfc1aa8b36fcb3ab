package analysis

import (
	"strings"
	"unicode/utf8"

	"horse.fit/chatsense/internal/language"
)

// DefaultMinInputLength is the shortest trimmed input, in runes, worth analyzing.
const DefaultMinInputLength = 2

// Validate checks a request before any cache or provider is touched.
func (r Request) Validate(minLength int) error {
	if minLength <= 0 {
		minLength = DefaultMinInputLength
	}
	if !r.Operation.Valid() {
		return NewInvalidInput("operation", "unsupported operation "+string(r.Operation))
	}
	text := strings.TrimSpace(r.InputText)
	if text == "" {
		return NewInvalidInput("input_text", "text is required")
	}
	if utf8.RuneCountInString(text) < minLength {
		return NewInvalidInput("input_text", "text is shorter than the minimum length")
	}
	if r.Operation == OperationTranslate && language.NormalizeCode(r.TargetLanguage) == "" {
		return NewInvalidInput("target_language", "target language is required")
	}
	return nil
}

// IsIdentityTranslation reports whether a translation request asks for the
// language the text is already in.
func (r Request) IsIdentityTranslation() bool {
	if r.Operation != OperationTranslate {
		return false
	}
	source := language.NormalizeCode(r.SourceLanguage)
	return source != "" && source == language.NormalizeCode(r.TargetLanguage)
}

// IdentityResult is the answer for a translation into the source language.
func IdentityResult(r Request) Result {
	lang := language.NormalizeCode(r.TargetLanguage)
	return Result{
		RequestID: r.ID,
		Operation: OperationTranslate,
		Translation: &TranslationPayload{
			Text:           r.InputText,
			SourceLanguage: lang,
			TargetLanguage: lang,
		},
		Confidence: 1.0,
		ProviderID: ProviderNone,
		Warnings:   []string{},
	}
}
