package language

import "sort"

// Label pairs the English name of a language with its native name.
type Label struct {
	Code    string `json:"code"`
	English string `json:"label"`
	Native  string `json:"native,omitempty"`
}

var labels = map[string]Label{
	"ar": {Code: "ar", English: "Arabic", Native: "العربية"},
	"de": {Code: "de", English: "German", Native: "Deutsch"},
	"en": {Code: "en", English: "English", Native: "English"},
	"es": {Code: "es", English: "Spanish", Native: "Español"},
	"fr": {Code: "fr", English: "French", Native: "Français"},
	"hi": {Code: "hi", English: "Hindi", Native: "हिन्दी"},
	"it": {Code: "it", English: "Italian", Native: "Italiano"},
	"ja": {Code: "ja", English: "Japanese", Native: "日本語"},
	"ko": {Code: "ko", English: "Korean", Native: "한국어"},
	"pt": {Code: "pt", English: "Portuguese", Native: "Português"},
	"ru": {Code: "ru", English: "Russian", Native: "Русский"},
	"zh": {Code: "zh", English: "Chinese", Native: "中文"},
}

// LookupLabel returns the display label for code. Unknown codes fall back to
// the upper-cased code.
func LookupLabel(code string) (Label, bool) {
	normalized := NormalizeCode(code)
	if label, ok := labels[normalized]; ok {
		return label, true
	}
	if normalized == "" {
		return Label{}, false
	}
	return Label{Code: normalized, English: normalized}, false
}

// EnglishName is the English display name used in provider prompts.
func EnglishName(code string) string {
	label, _ := LookupLabel(code)
	if label.English == "" {
		return "English"
	}
	return label.English
}

// SupportedCodes lists the languages the chat client offers, sorted.
func SupportedCodes() []string {
	codes := make([]string, 0, len(labels))
	for code := range labels {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
