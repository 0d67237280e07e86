package analysis

// Result is the output of a stage. The set of implementations is closed:
// one concrete type per stage.
type Result interface {
	Stage() StageName
	sealed()
}

type EntityResult struct {
	Entities []Entity `json:"entities"`
}

type RelationshipResult struct {
	Relationships []Relationship `json:"relationships"`
}

// BiasResult aggregates the scores of independent scorers. Score is the
// mean slant strength on [0, 1] and Variance its population variance.
// Direction comes from the scorers' leans weighted by their scores.
type BiasResult struct {
	Score     float64            `json:"score"`
	Variance  float64            `json:"variance"`
	Direction string             `json:"direction"`
	Scorers   map[string]float64 `json:"scorers"`
}

type SentimentResult struct {
	Label    string  `json:"label"`
	Polarity float64 `json:"polarity"`
}

type FactCheckResult struct {
	FactualAccuracy float64  `json:"factual_accuracy"`
	FlaggedClaims   []string `json:"flagged_claims"`
}

type HateSpeechResult struct {
	HasHateSpeech bool     `json:"has_hate_speech"`
	Categories    []string `json:"categories"`
	Severity      string   `json:"severity"`
	Toxicity      float64  `json:"toxicity"`
}

// Profile summarizes a person's graph footprint. Found is false when the
// person is not in the graph; the counts are then zero.
type Profile struct {
	Name         string   `json:"name"`
	NodeID       string   `json:"node_id,omitempty"`
	Found        bool     `json:"found"`
	Sponsored    int      `json:"sponsored"`
	Votes        int      `json:"votes"`
	Affiliations int      `json:"affiliations"`
	Memberships  []string `json:"memberships"`
}

type ProfileResult struct {
	Profiles []Profile `json:"profiles"`
}

// Inference is a RELATED_TO relationship proposed and written by the
// inference stage.
type Inference struct {
	Source          string  `json:"source"`
	Target          string  `json:"target"`
	RelationshipID  string  `json:"relationship_id"`
	SharedNeighbors int     `json:"shared_neighbors"`
	Confidence      float64 `json:"confidence"`
}

type InferenceResult struct {
	Inferences []Inference `json:"inferences"`
}

func (EntityResult) Stage() StageName       { return EntityExtraction }
func (RelationshipResult) Stage() StageName { return RelationshipExtraction }
func (BiasResult) Stage() StageName         { return BiasAnalysis }
func (SentimentResult) Stage() StageName    { return SentimentAnalysis }
func (FactCheckResult) Stage() StageName    { return FactCheck }
func (HateSpeechResult) Stage() StageName   { return HateSpeechDetection }
func (ProfileResult) Stage() StageName      { return PoliticianProfiling }
func (InferenceResult) Stage() StageName    { return RelationshipInference }

func (EntityResult) sealed()       {}
func (RelationshipResult) sealed() {}
func (BiasResult) sealed()         {}
func (SentimentResult) sealed()    {}
func (FactCheckResult) sealed()    {}
func (HateSpeechResult) sealed()   {}
func (ProfileResult) sealed()      {}
func (InferenceResult) sealed()    {}
