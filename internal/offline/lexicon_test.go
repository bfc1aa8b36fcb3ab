package offline

import (
	"testing"

	"horse.fit/chatsense/internal/analysis"
)

func TestScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		text     string
		lang     string
		dominant analysis.Emotion
		sarcasm  bool
		language string
	}{
		{name: "english anger", text: "I am so angry right now", lang: "en", dominant: analysis.EmotionAnger, language: "en"},
		{name: "spanish sadness detected", text: "Estoy muy triste hoy", dominant: analysis.EmotionSadness, language: "es"},
		{name: "german fear", text: "Ich habe Angst", lang: "de", dominant: analysis.EmotionFear, language: "de"},
		{name: "emoji only", text: "ok 😭😭", lang: "ja", dominant: analysis.EmotionSadness, language: "ja"},
		{name: "praise then negation", text: "Génial, ça ne marche pas", lang: "fr", dominant: analysis.EmotionJoy, sarcasm: true, language: "fr"},
		{name: "praise trailing off", text: "Great, another meeting...", lang: "en", dominant: analysis.EmotionJoy, sarcasm: true, language: "en"},
	}
	for _, tc := range tests {
		s := Score(tc.text, tc.lang)
		dist := analysis.NormalizeDistribution(s.Raw)
		if got := analysis.DominantEmotion(dist); got != tc.dominant {
			t.Fatalf("%s: dominant %s, want %s (raw=%v)", tc.name, got, tc.dominant, s.Raw)
		}
		if s.Sarcasm != tc.sarcasm {
			t.Fatalf("%s: sarcasm %t, want %t", tc.name, s.Sarcasm, tc.sarcasm)
		}
		if s.Language != tc.language {
			t.Fatalf("%s: language %q, want %q", tc.name, s.Language, tc.language)
		}
	}
}

func TestIntensifierBoost(t *testing.T) {
	t.Parallel()

	plain := Score("I am happy but worried", "en")
	boosted := Score("I am really happy but worried", "en")
	if plain.Raw[analysis.EmotionJoy] != 1 || boosted.Raw[analysis.EmotionJoy] != intensifierBoost {
		t.Fatalf("unexpected joy weights: plain=%v boosted=%v", plain.Raw, boosted.Raw)
	}
}

func TestTokenize(t *testing.T) {
	t.Parallel()

	got := tokenize("Super!! ❤️ Très-content")
	want := []string{"super", "❤", "très", "content"}
	if len(got) != len(want) {
		t.Fatalf("tokenize = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tokenize = %q, want %q", got, want)
		}
	}
}
