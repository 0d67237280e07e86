package analysis

import (
	"github.com/polisight/backend/pkg/analysis/model"
	"github.com/polisight/backend/pkg/graphstore"
	"github.com/polisight/backend/pkg/schema"
)

// NewDefaultCatalogue registers all eight stages backed by m and store.
//
// Example:
//
//	cat, err := analysis.NewDefaultCatalogue(heuristic.New(), client, schema.Default())
//	runner := analysis.NewRunner(cat, 30*time.Second)
func NewDefaultCatalogue(m model.Model, store graphstore.Store, registry *schema.Registry) (*Catalogue, error) {
	return NewCatalogue(
		NewEntityStage(m),
		NewRelationshipStage(m, registry),
		NewBiasStage(m),
		NewSentimentStage(m),
		NewFactCheckStage(m),
		NewHateSpeechStage(m),
		NewProfileStage(store),
		NewInferenceStage(store),
	)
}
