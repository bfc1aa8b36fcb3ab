package analysis

import (
	"math"
	"sort"
)

// Emotion is one of the basic emotion labels.
type Emotion string

const (
	EmotionJoy          Emotion = "joy"
	EmotionSadness      Emotion = "sadness"
	EmotionAnger        Emotion = "anger"
	EmotionFear         Emotion = "fear"
	EmotionSurprise     Emotion = "surprise"
	EmotionDisgust      Emotion = "disgust"
	EmotionTrust        Emotion = "trust"
	EmotionAnticipation Emotion = "anticipation"
	EmotionNeutral      Emotion = "neutral"
)

// BasicEmotions lists the labels providers may report, in display order.
var BasicEmotions = []Emotion{
	EmotionJoy,
	EmotionSadness,
	EmotionAnger,
	EmotionFear,
	EmotionSurprise,
	EmotionDisgust,
	EmotionTrust,
	EmotionAnticipation,
}

func (e Emotion) Valid() bool {
	for _, known := range BasicEmotions {
		if e == known {
			return true
		}
	}
	return false
}

var positiveEmotions = map[Emotion]struct{}{
	EmotionJoy:          {},
	EmotionTrust:        {},
	EmotionSurprise:     {},
	EmotionAnticipation: {},
}

var negativeEmotions = map[Emotion]struct{}{
	EmotionSadness: {},
	EmotionAnger:   {},
	EmotionFear:    {},
	EmotionDisgust: {},
}

// NormalizeDistribution drops unknown labels and negative scores and scales the
// rest so they sum to 1. An all-zero input comes back empty.
func NormalizeDistribution(raw map[Emotion]float64) map[Emotion]float64 {
	total := 0.0
	for emotion, score := range raw {
		if !emotion.Valid() || score <= 0 || math.IsNaN(score) {
			continue
		}
		total += score
	}
	out := make(map[Emotion]float64, len(raw))
	if total == 0 {
		return out
	}
	for emotion, score := range raw {
		if !emotion.Valid() || score <= 0 || math.IsNaN(score) {
			continue
		}
		out[emotion] = min(score/total, 1)
	}
	return out
}

// DominantEmotion returns the highest-scoring label. Ties break by the order
// of BasicEmotions so the answer is stable. Empty distributions are neutral.
func DominantEmotion(dist map[Emotion]float64) Emotion {
	best := EmotionNeutral
	bestScore := 0.0
	for _, emotion := range BasicEmotions {
		if score := dist[emotion]; score > bestScore {
			best = emotion
			bestScore = score
		}
	}
	return best
}

// Intensity is the largest single score in the distribution.
func Intensity(dist map[Emotion]float64) float64 {
	peak := 0.0
	for _, score := range dist {
		peak = max(peak, score)
	}
	return peak
}

// SentimentFromDistribution derives polarity by comparing positive and
// negative mass.
func SentimentFromDistribution(dist map[Emotion]float64) Sentiment {
	positive, negative := 0.0, 0.0
	for emotion, score := range dist {
		if _, ok := positiveEmotions[emotion]; ok {
			positive += score
		}
		if _, ok := negativeEmotions[emotion]; ok {
			negative += score
		}
	}
	total := positive + negative
	if total == 0 {
		return Sentiment{Polarity: PolarityNeutral}
	}
	score := (positive - negative) / total
	switch {
	case score > 0.1:
		return Sentiment{Polarity: PolarityPositive, Score: score}
	case score < -0.1:
		return Sentiment{Polarity: PolarityNegative, Score: score}
	default:
		return Sentiment{Polarity: PolarityNeutral, Score: score}
	}
}

// NewEmotionPayload normalizes raw scores and fills in the derived fields.
func NewEmotionPayload(raw map[Emotion]float64) *EmotionPayload {
	dist := NormalizeDistribution(raw)
	return &EmotionPayload{
		Distribution: dist,
		Dominant:     DominantEmotion(dist),
		Intensity:    Intensity(dist),
		Sentiment:    SentimentFromDistribution(dist),
	}
}

// RankedEmotions returns labels sorted by descending score.
func RankedEmotions(dist map[Emotion]float64) []Emotion {
	labels := make([]Emotion, 0, len(dist))
	for emotion := range dist {
		labels = append(labels, emotion)
	}
	sort.SliceStable(labels, func(i, j int) bool {
		if dist[labels[i]] == dist[labels[j]] {
			return labels[i] < labels[j]
		}
		return dist[labels[i]] > dist[labels[j]]
	})
	return labels
}
