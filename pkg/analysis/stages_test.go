package analysis_test

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/polisight/backend/pkg/analysis"
	"github.com/polisight/backend/pkg/analysis/heuristic"
	"github.com/polisight/backend/pkg/analysis/model"
	"github.com/polisight/backend/pkg/graphstore"
	"github.com/polisight/backend/pkg/schema"

	"github.com/google/go-cmp/cmp"
)

const sponsorText = "Senator Jane Smith sponsored the Privacy Act."

func TestEntityStage(t *testing.T) {
	m := &scriptedModel{outputs: map[string]any{
		model.KindEntities: model.Entities{Entities: []model.Entity{
			{Text: "Privacy Act", Label: "legislation"},
			{Text: "Jane  Smith", Label: "PERSON"},
			{Text: "Jane Smith", Label: "PERSON"},
			{Text: "Bob Jones", Label: "PERSON"},
			{Text: "Senator", Label: "TITLE"},
		}},
	}}

	res, err := analysis.NewEntityStage(m).Run(context.Background(), analysis.NewContext("doc1", sponsorText))
	if err != nil {
		t.Fatal(err)
	}

	want := []analysis.Entity{
		{Text: "Jane Smith", Label: analysis.LabelPerson, Span: analysis.Span{Start: 8, End: 18}},
		{Text: "Privacy Act", Label: analysis.LabelLegislation, Span: analysis.Span{Start: 33, End: 44}},
	}
	if diff := cmp.Diff(want, res.(analysis.EntityResult).Entities); diff != "" {
		t.Fatalf("entities mismatch (-want +got):\n%s", diff)
	}
}

func TestParseLabel(t *testing.T) {
	tests := []struct {
		raw  string
		want analysis.Label
		ok   bool
	}{
		{"person", analysis.LabelPerson, true},
		{" government body ", analysis.LabelGovernmentBody, true},
		{"GOVERNMENT_BODY", analysis.LabelGovernmentBody, true},
		{"date", "DATE", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := analysis.ParseLabel(tt.raw)
			if got != tt.want || ok != tt.ok {
				t.Errorf("ParseLabel(%q) = %q, %v, want %q, %v", tt.raw, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func withEntities(text string, entities ...analysis.Entity) *analysis.Context {
	actx := analysis.NewContext("doc1", text)
	actx.Results[analysis.EntityExtraction] = analysis.EntityResult{Entities: entities}
	return actx
}

var (
	jane    = analysis.Entity{Text: "Jane Smith", Label: analysis.LabelPerson, Span: analysis.Span{Start: 8, End: 18}}
	privacy = analysis.Entity{Text: "Privacy Act", Label: analysis.LabelLegislation, Span: analysis.Span{Start: 33, End: 44}}
)

func TestRelationshipStage(t *testing.T) {
	m := &scriptedModel{outputs: map[string]any{
		model.KindRelationships: model.Relationships{Relationships: []model.Relationship{
			{Source: "Privacy Act", Target: "jane smith", Predicate: "sponsors", Confidence: 1.4},
			{Source: "Jane Smith", Target: "Privacy Act", Predicate: "SPONSORS", Confidence: 0.5},
			{Source: "Jane Smith", Target: "Privacy Act", Predicate: "RELATED_TO", Confidence: 0.5},
			{Source: "Jane Smith", Target: "Privacy Act", Predicate: "MEMBER_OF", Confidence: 0.5},
			{Source: "Jane Smith", Target: "Nobody", Predicate: "SPONSORS", Confidence: 0.5},
		}},
	}}
	stage := analysis.NewRelationshipStage(m, nil)

	res, err := stage.Run(context.Background(), withEntities(sponsorText, jane, privacy))
	if err != nil {
		t.Fatal(err)
	}
	want := []analysis.Relationship{{
		Source:      "Jane Smith",
		SourceLabel: analysis.LabelPerson,
		Target:      "Privacy Act",
		TargetLabel: analysis.LabelLegislation,
		Predicate:   schema.Sponsors,
		Confidence:  1,
	}}
	if diff := cmp.Diff(want, res.(analysis.RelationshipResult).Relationships); diff != "" {
		t.Fatalf("relationships mismatch (-want +got):\n%s", diff)
	}

	res, err = stage.Run(context.Background(), withEntities(sponsorText, jane))
	if err != nil {
		t.Fatal(err)
	}
	if got := res.(analysis.RelationshipResult).Relationships; len(got) != 0 {
		t.Fatalf("single entity produced relationships: %v", got)
	}
}

func TestBiasStage(t *testing.T) {
	unavailable := errors.New("scorer unavailable")

	tests := []struct {
		name      string
		outputs   map[string]any
		errs      map[string]error
		wantScore float64
		wantVar   float64
		wantDir   string
		wantErr   bool
	}{
		{
			name: "all scorers agree",
			outputs: map[string]any{
				model.KindBias: model.BiasScore{Score: 0.4, Direction: "right"},
			},
			wantScore: 0.4,
			wantDir:   "right",
		},
		{
			name: "clamped and averaged",
			outputs: map[string]any{
				model.KindBias + "/progressive":  model.BiasScore{Score: 2, Direction: "left"},
				model.KindBias + "/conservative": model.BiasScore{Score: 0, Direction: "center"},
				model.KindBias + "/centrist":     model.BiasScore{Score: 0.5, Direction: "Left"},
			},
			wantScore: 0.5,
			wantVar:   (0.25 + 0.25 + 0) / 3,
			wantDir:   "left",
		},
		{
			name: "negative score clamped to zero",
			outputs: map[string]any{
				model.KindBias: model.BiasScore{Score: -0.7, Direction: "left"},
			},
			wantScore: 0,
			wantDir:   "center",
		},
		{
			name: "opposing leans cancel",
			outputs: map[string]any{
				model.KindBias + "/progressive":  model.BiasScore{Score: 0.6, Direction: "right"},
				model.KindBias + "/conservative": model.BiasScore{Score: 0.6, Direction: "left"},
				model.KindBias + "/centrist":     model.BiasScore{Score: 0.6, Direction: "center"},
			},
			wantScore: 0.6,
			wantDir:   "center",
		},
		{
			name: "failed scorer left out",
			outputs: map[string]any{
				model.KindBias + "/conservative": model.BiasScore{Score: 0.1, Direction: "right"},
				model.KindBias + "/centrist":     model.BiasScore{Score: 0.1, Direction: "left"},
			},
			errs:      map[string]error{model.KindBias + "/progressive": unavailable},
			wantScore: 0.1,
			wantVar:   0,
			wantDir:   "center",
		},
		{
			name:    "all scorers fail",
			errs:    map[string]error{model.KindBias: unavailable},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stage := analysis.NewBiasStage(&scriptedModel{outputs: tt.outputs, errs: tt.errs})
			res, err := stage.Run(context.Background(), analysis.NewContext("doc1", "text"))
			if tt.wantErr {
				if !errors.Is(err, unavailable) {
					t.Fatalf("Run() error = %v, want %v", err, unavailable)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			bias := res.(analysis.BiasResult)
			if bias.Score < 0 || bias.Score > 1 {
				t.Errorf("score = %v, outside [0, 1]", bias.Score)
			}
			if math.Abs(bias.Score-tt.wantScore) > 1e-9 || math.Abs(bias.Variance-tt.wantVar) > 1e-9 {
				t.Errorf("score = %v variance = %v, want %v and %v", bias.Score, bias.Variance, tt.wantScore, tt.wantVar)
			}
			if bias.Direction != tt.wantDir {
				t.Errorf("direction = %q, want %q", bias.Direction, tt.wantDir)
			}
		})
	}
}

func TestBiasStageHeuristicRange(t *testing.T) {
	tests := []struct {
		text    string
		wantDir string
	}{
		{"We need universal healthcare, a living wage, gun control and a wealth tax now.", "left"},
		{"Tax cuts, border security and small government will restore law and order.", "right"},
		{"The committee met on Tuesday to review the schedule.", "center"},
	}
	for _, tt := range tests {
		t.Run(tt.wantDir, func(t *testing.T) {
			res, err := analysis.NewBiasStage(heuristic.New()).Run(context.Background(), analysis.NewContext("doc1", tt.text))
			if err != nil {
				t.Fatal(err)
			}
			bias := res.(analysis.BiasResult)
			if bias.Score < 0 || bias.Score > 1 {
				t.Errorf("score = %v, outside [0, 1]", bias.Score)
			}
			for perspective, score := range bias.Scorers {
				if score < 0 || score > 1 {
					t.Errorf("scorer %s = %v, outside [0, 1]", perspective, score)
				}
			}
			if bias.Direction != tt.wantDir {
				t.Errorf("direction = %q, want %q", bias.Direction, tt.wantDir)
			}
		})
	}
}

func TestScoreStagesNormalize(t *testing.T) {
	m := &scriptedModel{outputs: map[string]any{
		model.KindSentiment:  model.Sentiment{Label: "Upbeat", Polarity: -3},
		model.KindFactCheck:  model.FactCheck{FactualAccuracy: 1.2, FlaggedClaims: []string{" ", "crime doubled"}},
		model.KindHateSpeech: model.HateSpeech{HasHateSpeech: true, Categories: []string{" Slur "}, Severity: "extreme", Toxicity: -1},
	}}
	actx := analysis.NewContext("doc1", "text")
	ctx := context.Background()

	res, err := analysis.NewSentimentStage(m).Run(ctx, actx)
	if err != nil {
		t.Fatal(err)
	}
	if want := (analysis.SentimentResult{Label: "negative", Polarity: -1}); res != want {
		t.Errorf("sentiment = %+v, want %+v", res, want)
	}

	res, err = analysis.NewFactCheckStage(m).Run(ctx, actx)
	if err != nil {
		t.Fatal(err)
	}
	if want := (analysis.FactCheckResult{FactualAccuracy: 1, FlaggedClaims: []string{"crime doubled"}}); !reflect.DeepEqual(res, want) {
		t.Errorf("fact check = %+v, want %+v", res, want)
	}

	res, err = analysis.NewHateSpeechStage(m).Run(ctx, actx)
	if err != nil {
		t.Fatal(err)
	}
	want := analysis.HateSpeechResult{HasHateSpeech: true, Categories: []string{"slur"}, Severity: "medium", Toxicity: 0}
	if !reflect.DeepEqual(res, want) {
		t.Errorf("hate speech = %+v, want %+v", res, want)
	}
}

// seedGraph stores Jane and John as members of the Senate; Jane sponsors
// the Privacy Act and John voted on it.
func seedGraph(t *testing.T, store graphstore.Store) map[string]graphstore.NodeRef {
	t.Helper()
	ctx := context.Background()
	refs := map[string]graphstore.NodeRef{}

	nodes := []struct{ key, nodeType, name string }{
		{"jane", schema.Person, "Jane Smith"},
		{"john", schema.Person, "John Doe"},
		{"privacy", schema.Legislation, "Privacy Act"},
		{"senate", schema.GovernmentBody, "Senate"},
	}
	for _, n := range nodes {
		ref, err := store.CreateNode(ctx, n.nodeType, map[string]any{"name": n.name})
		if err != nil {
			t.Fatal(err)
		}
		refs[n.key] = ref
	}

	rels := []struct{ relType, from, to string }{
		{schema.Sponsors, "jane", "privacy"},
		{schema.VotedOn, "john", "privacy"},
		{schema.MemberOf, "jane", "senate"},
		{schema.MemberOf, "john", "senate"},
	}
	for _, r := range rels {
		attrs := map[string]any{}
		if r.relType == schema.VotedOn {
			attrs["position"] = "yea"
		}
		if _, err := store.CreateRelationship(ctx, r.relType, refs[r.from], refs[r.to], attrs); err != nil {
			t.Fatal(err)
		}
	}
	return refs
}

func TestProfileStage(t *testing.T) {
	store, _ := newStore(t)
	refs := seedGraph(t, store)

	bob := analysis.Entity{Text: "Bob Jones", Label: analysis.LabelPerson}
	actx := withEntities("Jane Smith and Bob Jones met. Jane Smith left.", jane, bob, jane, privacy)

	res, err := analysis.NewProfileStage(store).Run(context.Background(), actx)
	if err != nil {
		t.Fatal(err)
	}
	want := []analysis.Profile{
		{Name: "Jane Smith", NodeID: refs["jane"].ID, Found: true, Sponsored: 1, Memberships: []string{"Senate"}},
		{Name: "Bob Jones", Memberships: []string{}},
	}
	if diff := cmp.Diff(want, res.(analysis.ProfileResult).Profiles); diff != "" {
		t.Fatalf("profiles mismatch (-want +got):\n%s", diff)
	}
}

func TestInferenceStage(t *testing.T) {
	store, backend := newStore(t)
	refs := seedGraph(t, store)

	text := "Jane Smith praised John Doe. The Senate adjourned."
	john := analysis.Entity{Text: "John Doe", Label: analysis.LabelPerson, Span: analysis.Span{Start: 19, End: 27}}
	janeHere := analysis.Entity{Text: "Jane Smith", Label: analysis.LabelPerson, Span: analysis.Span{Start: 0, End: 10}}
	senate := analysis.Entity{Text: "Senate", Label: analysis.LabelGovernmentBody, Span: analysis.Span{Start: 33, End: 39}}
	stage := analysis.NewInferenceStage(store)

	res, err := stage.Run(context.Background(), withEntities(text, janeHere, john, senate))
	if err != nil {
		t.Fatal(err)
	}
	inferences := res.(analysis.InferenceResult).Inferences
	if len(inferences) != 1 {
		t.Fatalf("got %d inferences, want 1: %+v", len(inferences), inferences)
	}
	got := inferences[0]
	if got.Source != "Jane Smith" || got.Target != "John Doe" || got.SharedNeighbors != 2 {
		t.Fatalf("unexpected inference %+v", got)
	}
	if math.Abs(got.Confidence-2.0/3.0) > 1e-9 {
		t.Fatalf("confidence = %v, want 2/3", got.Confidence)
	}

	related := backend.Relationships(schema.RelatedTo)
	if len(related) != 1 || related[0].From != refs["jane"].ID || related[0].Attrs["inferred"] != true {
		t.Fatalf("unexpected stored relationships %+v", related)
	}

	// the pair is now directly connected
	res, err = stage.Run(context.Background(), withEntities(text, janeHere, john, senate))
	if err != nil {
		t.Fatal(err)
	}
	if n := len(res.(analysis.InferenceResult).Inferences); n != 0 {
		t.Fatalf("second run inferred %d relationships", n)
	}
}

func TestInferenceConfidence(t *testing.T) {
	tests := []struct {
		shared int
		want   float64
	}{
		{1, 1.0 / 3},
		{3, 1},
		{7, 1},
	}
	for _, tt := range tests {
		if got := analysis.InferenceConfidence(tt.shared); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("InferenceConfidence(%d) = %v, want %v", tt.shared, got, tt.want)
		}
	}
}

func TestContextEntitiesMergesSeed(t *testing.T) {
	actx := withEntities(sponsorText, jane)
	actx.Seed = []analysis.Entity{{Text: "Jane Smith", Label: analysis.LabelPerson}, privacy}

	want := []analysis.Entity{jane, privacy}
	if diff := cmp.Diff(want, actx.Entities()); diff != "" {
		t.Fatalf("entities mismatch (-want +got):\n%s", diff)
	}
}
