package provider

import (
	"strings"
	"unicode/utf8"

	"github.com/arbovm/levenshtein"
)

// Translation confidence constants for backends that do not report one.
const (
	untranslatedConfidence = 0.3
	baseConfidence         = 0.7
	maxHeuristicConfidence = 0.9
	libreConfidence        = 0.8
	azureDefaultConfidence = 0.9
	llmConfidence          = 0.75

	nearIdenticalSimilarity = 0.9
)

// TranslationConfidence scores a translation by comparing it with its input.
// Output that is empty scores 0. Output that is identical or nearly identical
// to the input most likely went untranslated and scores low. Otherwise the
// score grows with how close the output length is to the input length.
func TranslationConfidence(input, output string) float64 {
	in := strings.TrimSpace(input)
	out := strings.TrimSpace(output)
	if out == "" {
		return 0
	}
	if strings.EqualFold(in, out) || Similarity(in, out) >= nearIdenticalSimilarity {
		return untranslatedConfidence
	}
	inLen := utf8.RuneCountInString(in)
	outLen := utf8.RuneCountInString(out)
	ratio := float64(min(inLen, outLen)) / float64(max(inLen, outLen, 1))
	return min(maxHeuristicConfidence, baseConfidence+ratio*0.2)
}

// Similarity is 1 minus the normalized Levenshtein distance of the
// case-folded strings.
func Similarity(a, b string) float64 {
	a = strings.ToLower(a)
	b = strings.ToLower(b)
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.Distance(a, b))/float64(longest)
}
