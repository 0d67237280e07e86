// Package cascade answers conversation messages by classifying their
// intent, running the analysis stages mapped to that intent and
// synthesizing a reply from the results.
package cascade

import (
	"fmt"
	"slices"

	"github.com/polisight/backend/pkg/analysis"
)

// Intent is the classified purpose of a user message.
type Intent string

const (
	PoliticianQuery   Intent = "politician-query"
	LegislationQuery  Intent = "legislation-query"
	RelationshipQuery Intent = "relationship-query"
	AnalysisRequest   Intent = "analysis-request"
	GeneralQuery      Intent = "general-query"
)

// Intents lists every intent a classifier may return.
var Intents = []Intent{PoliticianQuery, LegislationQuery, RelationshipQuery, AnalysisRequest, GeneralQuery}

// ParseIntent maps a raw classifier label to an Intent.
func ParseIntent(raw string) (Intent, bool) {
	i := Intent(raw)
	return i, slices.Contains(Intents, i)
}

// Path is the ordered list of stages run for an intent.
type Path []analysis.StageName

// DefaultPaths returns the stage sequence of every intent.
func DefaultPaths() map[Intent]Path {
	return map[Intent]Path{
		PoliticianQuery:   {analysis.EntityExtraction, analysis.PoliticianProfiling, analysis.RelationshipInference},
		LegislationQuery:  {analysis.EntityExtraction, analysis.RelationshipExtraction, analysis.FactCheck},
		RelationshipQuery: {analysis.EntityExtraction, analysis.RelationshipExtraction, analysis.RelationshipInference},
		AnalysisRequest:   {analysis.BiasAnalysis, analysis.SentimentAnalysis, analysis.FactCheck, analysis.HateSpeechDetection},
		GeneralQuery:      {analysis.EntityExtraction},
	}
}

// PathTable maps intents to paths. It is immutable once built.
type PathTable struct {
	paths map[Intent]Path
}

// NewPathTable validates paths against the catalogue: every intent needs a
// non-empty path made of registered stages.
func NewPathTable(paths map[Intent]Path, catalogue *analysis.Catalogue) (*PathTable, error) {
	t := &PathTable{paths: make(map[Intent]Path, len(Intents))}
	for _, intent := range Intents {
		path, ok := paths[intent]
		if !ok || len(path) == 0 {
			return nil, fmt.Errorf("no cascade path for intent %s", intent)
		}
		for _, name := range path {
			if _, ok := catalogue.Get(name); !ok {
				return nil, fmt.Errorf("cascade path for %s references unknown stage %q", intent, name)
			}
		}
		t.paths[intent] = slices.Clone(path)
	}
	for intent := range paths {
		if _, ok := ParseIntent(string(intent)); !ok {
			return nil, fmt.Errorf("cascade path for unknown intent %q", intent)
		}
	}
	return t, nil
}

// Lookup returns the path of intent. Unknown intents use the general-query
// path.
func (t *PathTable) Lookup(intent Intent) Path {
	path, ok := t.paths[intent]
	if !ok {
		path = t.paths[GeneralQuery]
	}
	return slices.Clone(path)
}
