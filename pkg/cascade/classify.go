package cascade

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/polisight/backend/pkg/ai"
)

// Classification is the output of a Classifier.
type Classification struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// Classifier maps a user message to an intent.
type Classifier interface {
	Classify(ctx context.Context, text string) (Classification, error)
}

// keywords per intent, as lowercase words or phrases. Entries are matched
// on word boundaries.
var keywords = map[Intent][]string{
	AnalysisRequest: {
		"analyze", "analyse", "analysis", "bias", "biased", "slant", "sentiment", "tone",
		"fact check", "fact-check", "accurate", "accuracy", "hate speech", "toxic", "toxicity",
	},
	RelationshipQuery: {
		"relationship", "relationships", "connected", "connection", "connections", "related",
		"relate", "link", "linked", "ties", "tied", "between", "work with", "worked with",
	},
	LegislationQuery: {
		"bill", "bills", "act", "acts", "law", "laws", "legislation", "resolution", "amendment",
		"statute", "passed", "sponsored", "sponsor",
	},
	PoliticianQuery: {
		"senator", "representative", "rep", "congressman", "congresswoman", "governor", "mayor",
		"president", "minister", "politician", "official", "lawmaker", "who is", "tell me about",
	},
}

// priority breaks ties between intents with the same number of hits.
var priority = []Intent{AnalysisRequest, RelationshipQuery, LegislationQuery, PoliticianQuery}

// KeywordClassifier classifies by counting intent keywords. The intent with
// the most hits wins; confidence is its share of all hits. A message
// without hits is a general query.
type KeywordClassifier struct{}

func (KeywordClassifier) Classify(ctx context.Context, text string) (Classification, error) {
	if err := ctx.Err(); err != nil {
		return Classification{}, err
	}

	normalized := normalize(text)
	total := 0
	best, bestHits := GeneralQuery, 0
	for _, intent := range priority {
		hits := 0
		for _, kw := range keywords[intent] {
			hits += strings.Count(normalized, " "+kw+" ")
		}
		total += hits
		if hits > bestHits {
			best, bestHits = intent, hits
		}
	}
	if total == 0 {
		return Classification{Intent: GeneralQuery, Confidence: 1}, nil
	}
	return Classification{Intent: best, Confidence: float64(bestHits) / float64(total)}, nil
}

// normalize lowercases text, replaces punctuation except hyphens with
// spaces and pads the result with single spaces.
func normalize(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return " " + strings.Join(strings.Fields(b.String()), " ") + " "
}

// LLMClassifier asks a model for the intent and its confidence.
type LLMClassifier struct {
	client ai.GraphAIClient
	model  string
}

// NewLLMClassifier creates an LLMClassifier. An empty model uses the
// client's default.
func NewLLMClassifier(client ai.GraphAIClient, model string) *LLMClassifier {
	return &LLMClassifier{client: client, model: model}
}

func (c *LLMClassifier) Classify(ctx context.Context, text string) (Classification, error) {
	var out struct {
		Intent     string  `json:"intent"`
		Confidence float64 `json:"confidence"`
	}

	var opts []ai.GenerateOption
	if c.model != "" {
		opts = append(opts, ai.WithModel(c.model))
	}
	opts = append(opts, ai.WithTemperature(0))

	prompt := fmt.Sprintf(ai.IntentClassificationPrompt, text)
	if err := c.client.GenerateCompletionWithFormat(ctx, "intent", "Intent of a user message", prompt, &out, opts...); err != nil {
		return Classification{}, fmt.Errorf("failed to classify intent: %w", err)
	}

	intent, ok := ParseIntent(strings.ToLower(strings.TrimSpace(out.Intent)))
	if !ok {
		return Classification{Intent: GeneralQuery, Confidence: 0}, nil
	}
	return Classification{Intent: intent, Confidence: min(1, max(0, out.Confidence))}, nil
}
