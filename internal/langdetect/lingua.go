// Package langdetect guesses the language of chat text when the caller did
// not say what it is.
package langdetect

import (
	"strings"
	"sync"
	"unicode"

	lingua "github.com/pemistahl/lingua-go"

	"horse.fit/chatsense/internal/language"
)

// MinLetters is the shortest sample, counted in letters, that is worth
// running through the detector.
const MinLetters = 6

// Detector returns an ISO 639-1 code and a confidence in [0, 1]. An empty
// code means the language could not be determined.
type Detector interface {
	Detect(text string) (string, float64)
}

// Lingua detects among the languages the chat client supports.
type Lingua struct {
	once     sync.Once
	detector lingua.LanguageDetector
}

func NewLingua() *Lingua {
	return &Lingua{}
}

func (l *Lingua) Detect(text string) (string, float64) {
	sample := strings.TrimSpace(text)
	if countLetters(sample) < MinLetters {
		return "", 0
	}

	values := l.get().ComputeLanguageConfidenceValues(sample)
	if len(values) == 0 || values[0].Value() <= 0 {
		return "", 0
	}
	code := strings.ToLower(values[0].Language().IsoCode639_1().String())
	if len(code) != 2 {
		return "", 0
	}
	return code, values[0].Value()
}

func (l *Lingua) get() lingua.LanguageDetector {
	l.once.Do(func() {
		supported := make(map[string]struct{}, len(language.SupportedCodes()))
		for _, code := range language.SupportedCodes() {
			supported[code] = struct{}{}
		}
		langs := make([]lingua.Language, 0, len(supported))
		for _, lang := range lingua.AllLanguages() {
			if _, ok := supported[strings.ToLower(lang.IsoCode639_1().String())]; ok {
				langs = append(langs, lang)
			}
		}
		l.detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(langs...).
			WithPreloadedLanguageModels().
			Build()
	})
	return l.detector
}

// DetectISO6391 runs the shared detector and drops the confidence.
func DetectISO6391(text string) string {
	code, _ := shared.Detect(text)
	return code
}

var shared = NewLingua()

func countLetters(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}
