// Package moderator implements the Moderator Agent: a single LLM call that
// synthesizes a round of reviews into a new document version.
package moderator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/codeready-toolchain/roundtable/pkg/llm"
	"github.com/codeready-toolchain/roundtable/pkg/models"
)

// policyPrompt is the non-negotiable resolution policy embedded in every
// moderator call, verbatim regardless of document type or focus.
const policyPrompt = `You are the moderator synthesizing reviewer feedback into a revised document.
Policy (non-negotiable):
- You MUST resolve every High-severity issue.
- You SHOULD resolve Medium issues when doing so materially improves clarity or feasibility.
- You MAY ignore Low issues.
- You MUST preserve the document's overall purpose and any section explicitly declared in-scope.
- You MUST NOT invent facts outside what the document and reviews contain; where information is
  missing, insert a placeholder section that explicitly calls out the gap rather than fabricating content.
Return a JSON object with a single field "content" holding the complete revised document text.`

type moderatorSchema struct {
	Content string `json:"content"`
}

var jsonSchema = llm.GenerateSchema[moderatorSchema]()

// Agent runs moderator calls against an llm.Client.
type Agent struct {
	Client llm.Client
}

// NewAgent builds a moderator Agent backed by client.
func NewAgent(client llm.Client) *Agent {
	return &Agent{Client: client}
}

// Run synthesizes reviews against doc into a new document body. focus and
// goal are optional prose hints forwarded into the prompt. It returns the
// new content and the tokens consumed.
func (a *Agent) Run(ctx context.Context, doc models.DocumentVersion, reviews []models.Review, focus, goal string) (string, models.TokenCounts, error) {
	req := llm.Request{
		SystemPrompt: policyPrompt,
		Messages:     []llm.ConversationMessage{{Role: llm.RoleUser, Content: buildUserPrompt(doc, reviews, focus, goal)}},
		SchemaName:   "moderator_output",
		Schema:       jsonSchema,
	}

	resp, err := a.Client.Complete(ctx, req)
	if err != nil {
		return "", models.TokenCounts{}, fmt.Errorf("moderator: %w", err)
	}

	parsed, err := parseModeratorOutput(resp.Content)
	if err != nil {
		return "", models.TokenCounts{}, fmt.Errorf("moderator: %w", err)
	}

	tokens := models.TokenCounts{Prompt: resp.PromptTokens, Completion: resp.CompletionTokens, Total: resp.PromptTokens + resp.CompletionTokens}
	return parsed, tokens, nil
}

func buildUserPrompt(doc models.DocumentVersion, reviews []models.Review, focus, goal string) string {
	var b strings.Builder
	if goal != "" {
		b.WriteString("Document goal: ")
		b.WriteString(goal)
		b.WriteString("\n\n")
	}
	if focus != "" {
		b.WriteString("Moderator focus: ")
		b.WriteString(focus)
		b.WriteString("\n\n")
	}

	b.WriteString("=== CURRENT DOCUMENT (version ")
	fmt.Fprintf(&b, "%d", doc.Version)
	b.WriteString(") ===\n")
	b.WriteString(doc.Content)
	b.WriteString("\n=== END DOCUMENT ===\n\n")

	b.WriteString("=== REVIEWS ===\n")
	for _, r := range reviews {
		fmt.Fprintf(&b, "Reviewer: %s\nOverall assessment: %s\n", r.ReviewerName, r.OverallAssessment)
		for _, issue := range r.Issues {
			fmt.Fprintf(&b, "- [%s] %s: %s", issue.Severity, issue.Category, issue.Description)
			if issue.SuggestedFix != "" {
				fmt.Fprintf(&b, " (suggested fix: %s)", issue.SuggestedFix)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("=== END REVIEWS ===\n")

	return b.String()
}

func parseModeratorOutput(content string) (string, error) {
	var parsed moderatorSchema
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return "", fmt.Errorf("unmarshal moderator output: %w", err)
	}
	if parsed.Content == "" {
		return "", fmt.Errorf("moderator output has empty content")
	}
	return parsed.Content, nil
}
