package moderator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/roundtable/pkg/llm"
	"github.com/codeready-toolchain/roundtable/pkg/models"
)

func testDoc(content string) models.DocumentVersion {
	return models.NewDocumentVersion(1, "Design Doc", "prd", content, time.Now(), 0)
}

func TestAgent_Run_ReturnsRevisedContent(t *testing.T) {
	stub := llm.NewStub(llm.StubResponse{Content: `{"content":"a revised document"}`})
	agent := NewAgent(stub)

	reviews := []models.Review{{
		ReviewerName: "Alice",
		Issues: []models.Issue{{Category: "clarity", Description: "unclear", Severity: models.SeverityHigh, ReviewerName: "Alice"}},
	}}

	content, tokens, err := agent.Run(context.Background(), testDoc("original"), reviews, "focus on brevity", "ship an MVP")
	require.NoError(t, err)
	assert.Equal(t, "a revised document", content)
	assert.Equal(t, 20, tokens.Total)
}

func TestAgent_Run_EmptyContentIsError(t *testing.T) {
	stub := llm.NewStub(llm.StubResponse{Content: `{"content":""}`})
	agent := NewAgent(stub)

	_, _, err := agent.Run(context.Background(), testDoc("original"), nil, "", "")
	require.Error(t, err)
}

func TestAgent_Run_MalformedJSONIsError(t *testing.T) {
	stub := llm.NewStub(llm.StubResponse{Content: "not json"})
	agent := NewAgent(stub)

	_, _, err := agent.Run(context.Background(), testDoc("original"), nil, "", "")
	require.Error(t, err)
}

func TestAgent_Run_LLMErrorPropagates(t *testing.T) {
	boom := errors.New("service unavailable")
	stub := llm.NewStub(llm.StubResponse{Err: boom})
	agent := NewAgent(stub)

	_, _, err := agent.Run(context.Background(), testDoc("original"), nil, "", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestAgent_Run_PromptIncludesReviewsAndDocument(t *testing.T) {
	stub := llm.NewStub(llm.StubResponse{Content: `{"content":"revised"}`})
	agent := NewAgent(stub)

	reviews := []models.Review{{
		ReviewerName:      "Bob",
		OverallAssessment: "needs work",
		Issues:            []models.Issue{{Category: "scope", Description: "missing section", Severity: models.SeverityMedium, SuggestedFix: "add a section", ReviewerName: "Bob"}},
	}}

	_, _, err := agent.Run(context.Background(), testDoc("hello world"), reviews, "tighten scope", "")
	require.NoError(t, err)

	reqs := stub.Requests()
	require.Len(t, reqs, 1)
	prompt := reqs[0].Messages[0].Content
	assert.Contains(t, prompt, "hello world")
	assert.Contains(t, prompt, "Bob")
	assert.Contains(t, prompt, "missing section")
	assert.Contains(t, prompt, "tighten scope")
}
