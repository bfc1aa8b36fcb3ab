package cache

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"

	"horse.fit/chatsense/internal/analysis"
	"horse.fit/chatsense/internal/language"
)

// KeyPrefix namespaces analysis entries inside a shared KV store.
const KeyPrefix = "analysis:"

// Key derives the cache key for a request. Provider identity is deliberately
// absent: any provider's answer to the same question is interchangeable.
func Key(operation analysis.Operation, text, sourceLanguage, targetLanguage string) string {
	h, _ := blake2b.New256(nil)
	for _, part := range []string{
		string(operation),
		NormalizeText(text),
		language.NormalizeCode(sourceLanguage),
		language.NormalizeCode(targetLanguage),
	} {
		_, _ = h.Write([]byte(part))
		_, _ = h.Write([]byte{0})
	}
	return KeyPrefix + hex.EncodeToString(h.Sum(nil))
}

// KeyFor is Key applied to a request.
func KeyFor(r analysis.Request) string {
	target := r.TargetLanguage
	if r.Operation == analysis.OperationEmotion {
		target = ""
	}
	return Key(r.Operation, r.InputText, r.SourceLanguage, target)
}

// NormalizeText lowercases, trims and collapses internal whitespace.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
