// Package analysis implements the political analysis stages shared by the
// document pipeline and the conversation cascade.
//
// A Stage reads from a per-run Context and returns a Result; it never
// mutates the Context or calls another stage. The Runner records results and
// failures in the Context so that one failing stage does not abort a run.
package analysis

import (
	"github.com/polisight/backend/pkg/graphstore"
	"github.com/polisight/backend/pkg/schema"
)

// StageName identifies an analysis stage.
type StageName string

const (
	EntityExtraction       StageName = "entity-extraction"
	RelationshipExtraction StageName = "relationship-extraction"
	BiasAnalysis           StageName = "bias-analysis"
	SentimentAnalysis      StageName = "sentiment-analysis"
	FactCheck              StageName = "fact-check"
	HateSpeechDetection    StageName = "hate-speech-detection"
	PoliticianProfiling    StageName = "politician-profiling"
	RelationshipInference  StageName = "relationship-inference"
)

// DocumentStages are the stages run during the analyzing phase of a
// document, in order.
var DocumentStages = []StageName{
	EntityExtraction,
	RelationshipExtraction,
	BiasAnalysis,
	SentimentAnalysis,
	FactCheck,
	HateSpeechDetection,
}

// Key names a piece of Context a stage reads or writes.
type Key string

const (
	KeyText          Key = "text"
	KeyEntities      Key = "entities"
	KeyRelationships Key = "relationships"
	KeyBias          Key = "bias"
	KeySentiment     Key = "sentiment"
	KeyFactCheck     Key = "fact_check"
	KeyHateSpeech    Key = "hate_speech"
	KeyProfiles      Key = "profiles"
	KeyInferences    Key = "inferences"
	KeyGraph         Key = "graph"
)

// Label is an entity category.
type Label string

const (
	LabelPerson         Label = "PERSON"
	LabelLegislation    Label = "LEGISLATION"
	LabelOrganization   Label = "ORGANIZATION"
	LabelGovernmentBody Label = "GOVERNMENT_BODY"
	LabelLocation       Label = "LOCATION"
	LabelEvent          Label = "EVENT"
)

var labelNodeTypes = map[Label]string{
	LabelPerson:         schema.Person,
	LabelLegislation:    schema.Legislation,
	LabelOrganization:   schema.Organization,
	LabelGovernmentBody: schema.GovernmentBody,
	LabelLocation:       schema.Location,
	LabelEvent:          schema.Event,
}

// NodeType returns the graph node type entities of this label are stored as.
func (l Label) NodeType() (string, bool) {
	t, ok := labelNodeTypes[l]
	return t, ok
}

// Span is a byte range [Start, End) in the analysed text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Entity is a named entity found in the text.
type Entity struct {
	Text  string `json:"text"`
	Label Label  `json:"label"`
	Span  Span   `json:"span"`
}

// Relationship is an extracted relationship between two entities, named by
// their text. Predicate is a relationship type of the schema.
type Relationship struct {
	Source      string  `json:"source"`
	SourceLabel Label   `json:"source_label"`
	Target      string  `json:"target"`
	TargetLabel Label   `json:"target_label"`
	Predicate   string  `json:"predicate"`
	Confidence  float64 `json:"confidence"`
}

// Context is the state of one analysis run, either a document or a
// conversation turn. It is owned by a single goroutine.
type Context struct {
	// Origin is the document id or the conversation intent.
	Origin string
	Text   string
	// Seed holds entities known before the run started.
	Seed []Entity
	// Nodes maps entities to the graph nodes they were persisted as, keyed
	// by NodeKey.
	Nodes map[string]graphstore.NodeRef

	Results      map[StageName]Result
	Errors       map[StageName]error
	CurrentStage StageName
}

// NewContext creates an empty context for text.
func NewContext(origin, text string) *Context {
	return &Context{
		Origin:  origin,
		Text:    text,
		Nodes:   make(map[string]graphstore.NodeRef),
		Results: make(map[StageName]Result),
		Errors:  make(map[StageName]error),
	}
}

// Entities returns the extracted entities followed by seed entities that
// were not extracted again.
func (c *Context) Entities() []Entity {
	res, ok := ResultOf[EntityResult](c, EntityExtraction)
	if !ok {
		return c.Seed
	}
	if len(c.Seed) == 0 {
		return res.Entities
	}

	merged := make([]Entity, 0, len(res.Entities)+len(c.Seed))
	seen := make(map[string]struct{}, cap(merged))
	for _, group := range [][]Entity{res.Entities, c.Seed} {
		for _, e := range group {
			if _, ok := seen[NodeKey(e)]; ok {
				continue
			}
			seen[NodeKey(e)] = struct{}{}
			merged = append(merged, e)
		}
	}
	return merged
}

// Relationships returns the extracted relationships, if any.
func (c *Context) Relationships() []Relationship {
	if res, ok := ResultOf[RelationshipResult](c, RelationshipExtraction); ok {
		return res.Relationships
	}
	return nil
}

// NodeKey is the key of an entity in Context.Nodes.
func NodeKey(e Entity) string {
	return string(e.Label) + ":" + e.Text
}

// SetNode records the node an entity was persisted as.
func (c *Context) SetNode(e Entity, ref graphstore.NodeRef) {
	if c.Nodes == nil {
		c.Nodes = make(map[string]graphstore.NodeRef)
	}
	c.Nodes[NodeKey(e)] = ref
}

// Node returns the node an entity was persisted as during this run.
func (c *Context) Node(e Entity) (graphstore.NodeRef, bool) {
	ref, ok := c.Nodes[NodeKey(e)]
	return ref, ok
}

// ResultOf returns the result of the named stage if it succeeded with a
// result of type T.
func ResultOf[T Result](c *Context, name StageName) (T, bool) {
	var zero T
	if c == nil || c.Results == nil {
		return zero, false
	}
	r, ok := c.Results[name]
	if !ok {
		return zero, false
	}
	t, ok := r.(T)
	return t, ok
}
