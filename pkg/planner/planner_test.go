package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/roundtable/pkg/llm"
)

func TestPlan_BuiltinPresetSkipsLLM(t *testing.T) {
	stub := llm.NewStub() // no scripted responses; any call would error
	p := NewPlanner(stub)

	result, err := p.Plan(context.Background(), Request{
		Title: "Q3 Roadmap", DocumentType: "prd", NumParticipants: 4, Preset: PresetPRD, PrimaryModel: "gpt-4o",
	})
	require.NoError(t, err)
	assert.Len(t, result.Participants, 4)
	assert.Equal(t, 0, stub.CallCount())
	assert.False(t, result.UsedFallback)
	for _, r := range result.Participants {
		assert.Equal(t, "gpt-4o", r.ModelID)
	}
}

func TestPlan_PresetTruncatesToFewerParticipants(t *testing.T) {
	stub := llm.NewStub()
	p := NewPlanner(stub)

	result, err := p.Plan(context.Background(), Request{
		Title: "API Change", DocumentType: "code-review", NumParticipants: 2, Preset: PresetCodeReview, PrimaryModel: "gpt-4o",
	})
	require.NoError(t, err)
	assert.Len(t, result.Participants, 2)
}

func TestPlan_PresetExtendsBeyondTemplateLengthWithDeduplicatedNames(t *testing.T) {
	stub := llm.NewStub()
	p := NewPlanner(stub)

	result, err := p.Plan(context.Background(), Request{
		Title: "API Change", DocumentType: "code-review", NumParticipants: 6, Preset: PresetCodeReview, PrimaryModel: "gpt-4o",
	})
	require.NoError(t, err)
	require.Len(t, result.Participants, 6)

	seen := make(map[string]bool)
	for _, r := range result.Participants {
		assert.False(t, seen[r.Name], "duplicate participant name %q", r.Name)
		seen[r.Name] = true
	}
}

func TestPlan_LLMDrivenPath(t *testing.T) {
	stub := llm.NewStub(llm.StubResponse{
		Content: `{"participants":[
			{"name":"Reviewer One","role":"reviewer","expertise":"clarity","perspective":"readability","system_prompt":"Review for clarity."},
			{"name":"Reviewer Two","role":"reviewer","expertise":"feasibility","perspective":"practicality","system_prompt":"Review for feasibility."}
		],"moderator_focus":"balance clarity and feasibility","convergence_criteria_hint":"stop when no high issues remain"}`,
	})
	p := NewPlanner(stub)

	result, err := p.Plan(context.Background(), Request{
		Title: "New Feature Spec", DocumentType: "document", NumParticipants: 2, PrimaryModel: "gpt-4o",
	})
	require.NoError(t, err)
	require.Len(t, result.Participants, 2)
	assert.Equal(t, "Reviewer One", result.Participants[0].Name)
	assert.Equal(t, "balance clarity and feasibility", result.ModeratorFocus)
	assert.False(t, result.UsedFallback)
}

func TestPlan_LLMFailureFallsBackToGenericTemplate(t *testing.T) {
	stub := llm.NewStub(llm.StubResponse{Content: "not json"})
	p := NewPlanner(stub)

	result, err := p.Plan(context.Background(), Request{
		Title: "Untitled", DocumentType: "document", NumParticipants: 3, PrimaryModel: "gpt-4o",
	})
	require.NoError(t, err, "planner failure must not propagate as an error")
	assert.True(t, result.UsedFallback)
	assert.Len(t, result.Participants, 3)
}

func TestPlan_LLMEmptyParticipantsFallsBack(t *testing.T) {
	stub := llm.NewStub(llm.StubResponse{Content: `{"participants":[],"moderator_focus":"x"}`})
	p := NewPlanner(stub)

	result, err := p.Plan(context.Background(), Request{Title: "x", DocumentType: "document", NumParticipants: 3, PrimaryModel: "gpt-4o"})
	require.NoError(t, err)
	assert.True(t, result.UsedFallback)
}

func TestAssignModels_Uniform(t *testing.T) {
	stub := llm.NewStub()
	p := NewPlanner(stub)
	result, err := p.Plan(context.Background(), Request{
		Title: "x", DocumentType: "document", NumParticipants: 3, Preset: PresetPRD,
		ModelStrategy: ModelStrategyUniform, PrimaryModel: "gpt-4o",
	})
	require.NoError(t, err)
	for _, r := range result.Participants {
		assert.Equal(t, "gpt-4o", r.ModelID)
	}
}

func TestAssignModels_DiverseRoundRobins(t *testing.T) {
	stub := llm.NewStub()
	p := NewPlanner(stub)
	result, err := p.Plan(context.Background(), Request{
		Title: "x", DocumentType: "document", NumParticipants: 4, Preset: PresetPRD,
		ModelStrategy: ModelStrategyDiverse, ModelPool: []string{"model-a", "model-b"}, PrimaryModel: "gpt-4o",
	})
	require.NoError(t, err)
	require.Len(t, result.Participants, 4)
	assert.Equal(t, "model-a", result.Participants[0].ModelID)
	assert.Equal(t, "model-b", result.Participants[1].ModelID)
	assert.Equal(t, "model-a", result.Participants[2].ModelID)
	assert.Equal(t, "model-b", result.Participants[3].ModelID)
}

func TestAssignModels_DiverseFallsBackToSingleElementPool(t *testing.T) {
	stub := llm.NewStub()
	p := NewPlanner(stub)
	result, err := p.Plan(context.Background(), Request{
		Title: "x", DocumentType: "document", NumParticipants: 3, Preset: PresetPRD,
		ModelStrategy: ModelStrategyDiverse, PrimaryModel: "gpt-4o",
	})
	require.NoError(t, err)
	for _, r := range result.Participants {
		assert.Equal(t, "gpt-4o", r.ModelID)
	}
}
