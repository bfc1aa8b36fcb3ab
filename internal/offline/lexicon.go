package offline

import (
	"strings"
	"unicode"

	"horse.fit/chatsense/internal/analysis"
	"horse.fit/chatsense/internal/language"
)

const intensifierBoost = 1.5

type table struct {
	words        map[string]analysis.Emotion
	intensifiers map[string]struct{}
	negations    map[string]struct{}
	praise       map[string]struct{}
	thanks       map[string]struct{}
	much         map[string]struct{}
}

func newTable(emotions map[analysis.Emotion][]string, intensifiers, negations, praise, thanks, much []string) table {
	t := table{
		words:        make(map[string]analysis.Emotion),
		intensifiers: set(intensifiers),
		negations:    set(negations),
		praise:       set(praise),
		thanks:       set(thanks),
		much:         set(much),
	}
	for emotion, words := range emotions {
		for _, w := range words {
			t.words[w] = emotion
		}
	}
	return t
}

// tableOrder fixes the tie-break when the language is unknown.
var tableOrder = []string{"fr", "en", "es", "de"}

var tables = map[string]table{
	"fr": newTable(map[analysis.Emotion][]string{
		analysis.EmotionJoy:          {"heureux", "heureuse", "joyeux", "joyeuse", "content", "contente", "génial", "géniale", "super", "fantastique", "merveilleux", "excellent", "parfait", "ravi", "ravie", "adore"},
		analysis.EmotionSadness:      {"triste", "déprimé", "déprimée", "mal", "difficile", "dur", "peine", "chagrin", "seul", "seule"},
		analysis.EmotionAnger:        {"énervé", "énervée", "furieux", "furieuse", "colère", "agacé", "agacée", "irrité", "rage", "déteste", "marre"},
		analysis.EmotionFear:         {"peur", "anxieux", "anxieuse", "inquiet", "inquiète", "stress", "stressé", "angoisse", "nerveux", "effrayé"},
		analysis.EmotionSurprise:     {"surpris", "surprise", "étonné", "étonnée", "wow", "incroyable", "choqué", "choquée"},
		analysis.EmotionDisgust:      {"dégoûtant", "dégoûté", "beurk", "immonde"},
		analysis.EmotionTrust:        {"confiance", "merci", "fiable", "sûr"},
		analysis.EmotionAnticipation: {"hâte", "impatient", "impatiente", "bientôt"},
	},
		[]string{"très", "trop", "vraiment", "extrêmement", "incroyablement", "tellement", "profondément", "complètement", "totalement"},
		[]string{"pas", "jamais", "rien"},
		[]string{"évidemment", "clairement", "parfait", "génial", "super", "fantastique"},
		[]string{"merci"},
		[]string{"beaucoup"},
	),
	"en": newTable(map[analysis.Emotion][]string{
		analysis.EmotionJoy:          {"happy", "glad", "great", "awesome", "wonderful", "excellent", "perfect", "love", "delighted", "fantastic", "amazing"},
		analysis.EmotionSadness:      {"sad", "depressed", "unhappy", "lonely", "miserable", "heartbroken", "hurt"},
		analysis.EmotionAnger:        {"angry", "furious", "annoyed", "irritated", "mad", "hate", "rage"},
		analysis.EmotionFear:         {"afraid", "scared", "anxious", "worried", "nervous", "stressed", "terrified"},
		analysis.EmotionSurprise:     {"surprised", "shocked", "astonished", "wow", "unbelievable"},
		analysis.EmotionDisgust:      {"disgusting", "disgusted", "gross", "yuck"},
		analysis.EmotionTrust:        {"trust", "thanks", "thank", "reliable"},
		analysis.EmotionAnticipation: {"excited", "soon", "waiting", "eager"},
	},
		[]string{"very", "so", "really", "extremely", "incredibly", "totally", "completely"},
		[]string{"not", "never", "nothing"},
		[]string{"obviously", "clearly", "perfect", "great", "awesome", "fantastic"},
		[]string{"thanks", "thank"},
		[]string{"much", "lot"},
	),
	"es": newTable(map[analysis.Emotion][]string{
		analysis.EmotionJoy:          {"feliz", "contento", "contenta", "genial", "fantástico", "maravilloso", "excelente", "perfecto", "encanta"},
		analysis.EmotionSadness:      {"triste", "deprimido", "deprimida", "solo", "sola", "pena"},
		analysis.EmotionAnger:        {"enojado", "enojada", "furioso", "furiosa", "enfadado", "odio", "rabia"},
		analysis.EmotionFear:         {"miedo", "asustado", "asustada", "ansioso", "preocupado", "nervioso"},
		analysis.EmotionSurprise:     {"sorprendido", "sorprendida", "increíble", "guau"},
		analysis.EmotionDisgust:      {"asco", "asqueroso", "repugnante"},
		analysis.EmotionTrust:        {"gracias", "confianza", "confío"},
		analysis.EmotionAnticipation: {"ganas", "pronto", "ansias"},
	},
		[]string{"muy", "tan", "realmente", "súper", "totalmente"},
		[]string{"no", "nunca", "nada"},
		[]string{"claro", "obviamente", "genial", "perfecto"},
		[]string{"gracias"},
		[]string{"mucho", "muchas"},
	),
	"de": newTable(map[analysis.Emotion][]string{
		analysis.EmotionJoy:          {"glücklich", "froh", "toll", "super", "wunderbar", "fantastisch", "perfekt", "freue", "liebe"},
		analysis.EmotionSadness:      {"traurig", "deprimiert", "einsam", "unglücklich"},
		analysis.EmotionAnger:        {"wütend", "sauer", "verärgert", "hasse", "ärgerlich"},
		analysis.EmotionFear:         {"angst", "ängstlich", "besorgt", "nervös", "gestresst"},
		analysis.EmotionSurprise:     {"überrascht", "erstaunt", "unglaublich", "wow"},
		analysis.EmotionDisgust:      {"eklig", "widerlich", "ekelhaft"},
		analysis.EmotionTrust:        {"danke", "vertraue", "zuverlässig"},
		analysis.EmotionAnticipation: {"bald", "gespannt", "vorfreude"},
	},
		[]string{"sehr", "so", "wirklich", "total", "extrem", "echt"},
		[]string{"nicht", "nie", "nichts", "kein"},
		[]string{"natürlich", "klar", "toll", "super", "perfekt"},
		[]string{"danke"},
		[]string{"vielen", "sehr"},
	),
}

var emoji = map[string]analysis.Emotion{
	"😊": analysis.EmotionJoy,
	"😄": analysis.EmotionJoy,
	"😁": analysis.EmotionJoy,
	"🎉": analysis.EmotionJoy,
	"❤": analysis.EmotionJoy,
	"😍": analysis.EmotionJoy,
	"😢": analysis.EmotionSadness,
	"😭": analysis.EmotionSadness,
	"💔": analysis.EmotionSadness,
	"😠": analysis.EmotionAnger,
	"😡": analysis.EmotionAnger,
	"🤬": analysis.EmotionAnger,
	"😰": analysis.EmotionFear,
	"😱": analysis.EmotionFear,
	"😲": analysis.EmotionSurprise,
	"😮": analysis.EmotionSurprise,
	"🤢": analysis.EmotionDisgust,
	"🤝": analysis.EmotionTrust,
}

// Scores is the outcome of a lexicon pass.
type Scores struct {
	Raw      map[analysis.Emotion]float64
	Matches  int
	Language string
	Sarcasm  bool
	// Known is false when the text's language has no table.
	Known bool
}

// Score runs the lexicon over text. With an empty lang every table is tried
// and the one with the most weight wins; ties go to tableOrder.
func Score(text, lang string) Scores {
	tokens := tokenize(text)
	lang = language.NormalizeCode(lang)

	if lang == "" {
		best := Scores{Known: true}
		for _, code := range tableOrder {
			s := scoreWith(tokens, text, code, tables[code])
			if total(s.Raw) > total(best.Raw) {
				best = s
			}
		}
		if best.Matches == 0 {
			best = scoreEmoji(tokens)
			best.Known = true
		}
		return best
	}

	t, ok := tables[lang]
	if !ok {
		s := scoreEmoji(tokens)
		s.Language = lang
		s.Known = s.Matches > 0
		return s
	}
	return scoreWith(tokens, text, lang, t)
}

func scoreWith(tokens []string, text, lang string, t table) Scores {
	s := scoreEmoji(tokens)
	s.Language = lang
	s.Known = true
	for i, tok := range tokens {
		emotion, ok := t.words[tok]
		if !ok {
			continue
		}
		weight := 1.0
		if i > 0 {
			if _, boost := t.intensifiers[tokens[i-1]]; boost {
				weight *= intensifierBoost
			}
		}
		s.Raw[emotion] += weight
		s.Matches++
	}
	s.Sarcasm = sarcastic(tokens, text, t)
	return s
}

func scoreEmoji(tokens []string) Scores {
	s := Scores{Raw: map[analysis.Emotion]float64{}}
	for _, tok := range tokens {
		if emotion, ok := emoji[tok]; ok {
			s.Raw[emotion]++
			s.Matches++
		}
	}
	return s
}

// sarcastic flags the few patterns that usually invert a message's surface
// sentiment: praise followed by a negation, praise trailing off into an
// ellipsis, and exaggerated thanks.
func sarcastic(tokens []string, text string, t table) bool {
	praiseAt := -1
	thanksAt := -1
	for i, tok := range tokens {
		if _, ok := t.praise[tok]; ok && praiseAt < 0 {
			praiseAt = i
		}
		if _, ok := t.negations[tok]; ok && praiseAt >= 0 && i > praiseAt {
			return true
		}
		if _, ok := t.thanks[tok]; ok && thanksAt < 0 {
			thanksAt = i
		}
		if _, ok := t.much[tok]; ok && thanksAt >= 0 && i > thanksAt && strings.Contains(text, "!!") {
			return true
		}
	}
	return praiseAt >= 0 && (strings.Contains(text, "...") || strings.Contains(text, "…"))
}

// tokenize lowercases text and splits it into words and single emoji.
func tokenize(text string) []string {
	var (
		tokens []string
		word   strings.Builder
	)
	flush := func() {
		if word.Len() > 0 {
			tokens = append(tokens, word.String())
			word.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			word.WriteRune(r)
		case r == '\uFE0F' || r == '\u200D':
			// emoji presentation selectors and joiners carry no meaning here
		case unicode.Is(unicode.So, r):
			flush()
			tokens = append(tokens, string(r))
		default:
			flush()
		}
	}
	flush()
	return tokens
}

func total(raw map[analysis.Emotion]float64) float64 {
	sum := 0.0
	for _, v := range raw {
		sum += v
	}
	return sum
}

func set(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}
