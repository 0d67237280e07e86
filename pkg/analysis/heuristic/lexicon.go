package heuristic

import (
	"math"
	"regexp"
	"strings"
	"unicode"

	"github.com/polisight/backend/pkg/analysis/model"
	"github.com/polisight/backend/pkg/analysis/text"
)

var (
	leftTerms = []string{
		"progressive", "social justice", "climate justice", "climate crisis", "universal healthcare",
		"medicare for all", "workers' rights", "workers rights", "living wage", "gun control", "wealth tax",
		"income inequality", "systemic racism", "reproductive rights", "green new deal", "corporate greed",
	}
	rightTerms = []string{
		"tax cuts", "border security", "illegal aliens", "free market", "traditional values", "second amendment",
		"deregulation", "small government", "law and order", "pro-life", "big government", "job creators",
		"religious liberty", "radical left", "government overreach", "fiscal responsibility",
	}
)

// perspectiveWeights scale left and right evidence: each scorer is more
// sensitive to slant away from its own perspective.
var perspectiveWeights = map[string][2]float64{
	"progressive":  {1.0, 1.25},
	"conservative": {1.25, 1.0},
	"centrist":     {1.0, 1.0},
}

// scoreBias rates the strength of the slant on [0, 1] and its direction.
func scoreBias(s, perspective string) model.BiasScore {
	lean := slant(s, perspective)
	switch {
	case lean < 0:
		return model.BiasScore{Score: -lean, Direction: "left"}
	case lean > 0:
		return model.BiasScore{Score: lean, Direction: "right"}
	default:
		return model.BiasScore{Direction: "center"}
	}
}

// slant returns a signed lean on [-1, 1], negative for left-leaning text.
func slant(s, perspective string) float64 {
	norm := normalize(s)
	weights, ok := perspectiveWeights[perspective]
	if !ok {
		weights = perspectiveWeights["centrist"]
	}

	left := float64(countPhrases(norm, leftTerms)) * weights[0]
	right := float64(countPhrases(norm, rightTerms)) * weights[1]
	total := left + right
	if total == 0 {
		return 0
	}
	// a single term is weak evidence
	intensity := math.Min(1, total/3)
	return (right - left) / total * intensity
}

var (
	positiveWords = set("support", "supports", "praised", "praise", "success", "successful", "benefit", "benefits",
		"improve", "improved", "protect", "protects", "strong", "historic", "welcome", "welcomed", "good", "great",
		"bipartisan", "agreement", "progress", "win", "hope", "secure", "fair")
	negativeWords = set("oppose", "opposes", "criticized", "criticism", "failure", "failed", "harm", "harmful",
		"corrupt", "corruption", "scandal", "crisis", "disaster", "attack", "attacked", "bad", "worst", "weak",
		"dangerous", "threat", "reckless", "chaos", "lies", "fraud", "broken")
	negations = set("not", "no", "never", "neither", "nor", "without", "hardly")
)

func scoreSentiment(s string) model.Sentiment {
	words := tokenize(s)
	var pos, neg float64
	for i, w := range words {
		sign := 0.0
		if _, ok := positiveWords[w]; ok {
			sign = 1
		} else if _, ok := negativeWords[w]; ok {
			sign = -1
		}
		if sign == 0 {
			continue
		}
		if negated(words, i) {
			sign = -sign
		}
		if sign > 0 {
			pos++
		} else {
			neg++
		}
	}

	polarity := 0.0
	if pos+neg > 0 {
		polarity = (pos - neg) / (pos + neg) * math.Min(1, (pos+neg)/2)
	}
	label := "neutral"
	switch {
	case polarity > 0.1:
		label = "positive"
	case polarity < -0.1:
		label = "negative"
	}
	return model.Sentiment{Label: label, Polarity: polarity}
}

func negated(words []string, i int) bool {
	for j := i - 1; j >= 0 && j >= i-2; j-- {
		if _, ok := negations[words[j]]; ok {
			return true
		}
	}
	return false
}

var (
	statistic  = regexp.MustCompile(`\d+(?:\.\d+)?\s?(?:%|percent\b)|\b\d{1,3}(?:,\d{3})+\b|\b(?:doubled|tripled|halved)\b`)
	absolutes  = []string{"always", "never", "everyone", "no one", "nobody", "every single", "100%", "worst ever", "best ever", "in history", "unprecedented"}
	attributed = []string{"according to", "reported by", "data from", "study", "survey", "census", "estimates"}
)

// checkFacts flags sentences that carry unattributed statistics or
// absolute claims.
func checkFacts(s string) model.FactCheck {
	sentences := text.Sentences(s)
	claims := []string{}
	for _, sentence := range sentences {
		lower := strings.ToLower(sentence.Text)
		if containsAny(lower, attributed) {
			continue
		}
		if statistic.MatchString(lower) || containsAny(lower, absolutes) {
			claims = append(claims, sentence.Text)
		}
	}

	accuracy := 1.0
	if len(sentences) > 0 {
		accuracy -= 0.6 * float64(len(claims)) / float64(len(sentences))
	}
	return model.FactCheck{FactualAccuracy: accuracy, FlaggedClaims: claims}
}

var (
	dehumanizing = []string{"vermin", "subhuman", "parasites", "infestation", "cockroaches", "animals", "savages", "plague"}
	violent      = []string{"should be killed", "should be shot", "wipe them out", "eliminate them", "hang them", "deserve to die", "exterminate"}
	insults      = []string{"idiot", "moron", "stupid", "scum", "traitor", "clown", "pathetic", "disgusting"}
)

func detectHateSpeech(s string) model.HateSpeech {
	norm := normalize(s)
	d := countPhrases(norm, dehumanizing)
	v := countPhrases(norm, violent)
	i := countPhrases(norm, insults)

	out := model.HateSpeech{Categories: []string{}, Severity: "none"}
	if d > 0 {
		out.Categories = append(out.Categories, "dehumanization")
	}
	if v > 0 {
		out.Categories = append(out.Categories, "violence")
	}
	if i > 0 {
		out.Categories = append(out.Categories, "insult")
	}
	out.HasHateSpeech = d > 0 || v > 0

	switch {
	case v > 0:
		out.Severity = "high"
	case d > 0:
		out.Severity = "medium"
	case i > 0:
		out.Severity = "low"
	}
	out.Toxicity = math.Min(1, 0.2*float64(i)+0.4*float64(d)+0.6*float64(v))
	return out
}

func set(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\'' && r != '-'
	})
}

// normalize lowercases s and pads it so that phrases can be matched on word
// boundaries with a surrounding space.
func normalize(s string) string {
	return " " + strings.Join(tokenize(s), " ") + " "
}

func countPhrases(norm string, phrases []string) int {
	n := 0
	for _, p := range phrases {
		n += strings.Count(norm, " "+p+" ")
	}
	return n
}
