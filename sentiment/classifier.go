// Package sentiment scores news headlines into a [0,1] shipment risk score.
package sentiment

import (
	"context"
	"math"
	"strings"
	"unicode/utf8"
)

// Labels returned by a classifier.
const (
	LabelPositive = "positive"
	LabelNegative = "negative"
	LabelNeutral  = "neutral"
)

// NeutralScore is the risk assigned to neutral or unrecognized labels.
const NeutralScore = 0.5

// Prediction is a classifier's verdict for one text.
type Prediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"score"`
}

// Classifier labels a piece of text. Implementations must be safe for
// concurrent use.
type Classifier interface {
	Classify(ctx context.Context, text string) (Prediction, error)
	Name() string
}

// RiskScore maps a prediction onto the risk scale, where negative news is
// risky: negative yields the confidence, positive yields 1-confidence and
// anything else yields exactly 0.5. Confidence is clamped to [0,1]; a NaN
// confidence is treated as neutral.
func RiskScore(p Prediction) float64 {
	if math.IsNaN(p.Confidence) {
		return NeutralScore
	}
	c := min(max(p.Confidence, 0), 1)
	switch strings.ToLower(p.Label) {
	case LabelNegative:
		return c
	case LabelPositive:
		return 1 - c
	default:
		return NeutralScore
	}
}

// Truncate returns the first n characters of s.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
