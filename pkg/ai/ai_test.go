package ai

import (
	"reflect"
	"testing"
)

func TestApplyOptions(t *testing.T) {
	got := ApplyOptions(GenerateOptions{Model: "base", Temperature: 0.3},
		WithModel("override"),
		WithSystemPrompts("a", "b"),
		WithTemperature(0),
		WithThinking("low"),
	)
	want := GenerateOptions{
		Model:         "override",
		SystemPrompts: []string{"a", "b"},
		Temperature:   0,
		Thinking:      "low",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ApplyOptions() = %+v, want %+v", got, want)
	}
}

func TestModelMetricsAdd(t *testing.T) {
	var m ModelMetrics
	m.Add(ModelMetrics{InputTokens: 10, OutputTokens: 5, TotalTokens: 15, DurationMs: 500})
	m.Add(ModelMetrics{InputTokens: 2, OutputTokens: 3, TotalTokens: 5, DurationMs: 500})

	if m.TotalTokens != 20 || m.Requests != 2 || m.DurationMs != 1000 {
		t.Fatalf("unexpected totals %+v", m)
	}
	if m.TokenPerSecond != 20 {
		t.Fatalf("TokenPerSecond = %v, want 20", m.TokenPerSecond)
	}
}
