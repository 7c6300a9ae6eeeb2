package sentiment

import (
	"context"
	"strings"
	"unicode"

	"supply-chain-risk/metrics"
)

var (
	negativeTerms = []string{
		"crisis", "strike", "strikes", "shortage", "shortages", "delay", "delays", "war", "attack",
		"collapse", "recession", "layoffs", "bankruptcy", "lawsuit", "sanctions", "tariff", "tariffs",
		"disruption", "shutdown", "plunge", "plunges", "falls", "loss", "losses", "fraud", "hack",
		"flood", "hurricane", "earthquake", "protest", "protests", "slump", "inflation", "fears",
		"warns", "crash", "blockade", "embargo", "outage", "cuts", "fire", "conflict", "decline",
	}
	positiveTerms = []string{
		"growth", "gains", "gain", "record", "rally", "rallies", "surge", "surges", "profit",
		"profits", "boost", "boosts", "recovery", "deal", "agreement", "expands", "expansion",
		"rise", "rises", "soars", "strong", "beats", "upgrade", "hiring", "peace", "breakthrough",
		"improves", "success", "wins", "approval", "optimism", "rebound",
	}
)

// LexiconClassifier is an offline word-list classifier for financial news.
// It lets the pipeline run without a model server; its labels are coarse.
type LexiconClassifier struct {
	negative map[string]struct{}
	positive map[string]struct{}
}

// NewLexiconClassifier builds the classifier from the built-in word lists.
func NewLexiconClassifier() *LexiconClassifier {
	return &LexiconClassifier{negative: toSet(negativeTerms), positive: toSet(positiveTerms)}
}

func toSet(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// Name implements Classifier.
func (c *LexiconClassifier) Name() string { return "lexicon" }

// Classify implements Classifier. Confidence grows with the margin between
// negative and positive hits and saturates at 0.95.
func (c *LexiconClassifier) Classify(_ context.Context, text string) (Prediction, error) {
	var neg, pos int
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	}) {
		if _, ok := c.negative[w]; ok {
			neg++
		}
		if _, ok := c.positive[w]; ok {
			pos++
		}
	}
	metrics.ClassifierCalls.WithLabelValues(c.Name(), "ok").Inc()

	margin := neg - pos
	switch {
	case margin > 0:
		return Prediction{Label: LabelNegative, Confidence: confidence(margin)}, nil
	case margin < 0:
		return Prediction{Label: LabelPositive, Confidence: confidence(-margin)}, nil
	default:
		return Prediction{Label: LabelNeutral, Confidence: 0.9}, nil
	}
}

func confidence(margin int) float64 {
	return min(0.6+0.15*float64(margin-1), 0.95)
}
