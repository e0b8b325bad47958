// Package review implements the Reviewer Agent: given a document version and
// a role-spec, it produces a structured Review.
package review

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/codeready-toolchain/roundtable/pkg/llm"
	"github.com/codeready-toolchain/roundtable/pkg/models"
	"github.com/codeready-toolchain/roundtable/pkg/rterrors"
)

// reviewSchema is the JSON shape the model must return, reflected into a
// JSON Schema via llm.GenerateSchema for structured-output enforcement.
type reviewSchema struct {
	Issues []struct {
		Category     string `json:"category"`
		Description  string `json:"description"`
		Severity     string `json:"severity"`
		SuggestedFix string `json:"suggested_fix,omitempty"`
	} `json:"issues"`
	OverallAssessment string `json:"overall_assessment"`
}

var jsonSchema = llm.GenerateSchema[reviewSchema]()

// Agent runs reviewer calls against an llm.Client.
type Agent struct {
	Client llm.Client
	// OnSalvage, if set, is invoked synchronously whenever a salvage retry
	// succeeds, so a caller (the session driver) can emit a visible warning
	// without this package depending on the event bus.
	OnSalvage func(reviewerName string)
}

// NewAgent builds a reviewer Agent backed by client.
func NewAgent(client llm.Client) *Agent {
	return &Agent{Client: client}
}

// Run produces a Review for role against doc. On the underlying call's
// first parse failure it attempts exactly one salvage round (asking the
// model to reformat its own prior answer as valid JSON) before returning
// rterrors.ErrMalformedReview. The raw malformed text is included in the
// returned error's RawOutput so the caller can persist it for debugging.
func (a *Agent) Run(ctx context.Context, doc models.DocumentVersion, role models.RoleSpec) (*models.Review, error) {
	userPrompt := buildUserPrompt(doc)

	req := llm.Request{
		SystemPrompt: role.SystemPrompt,
		Messages:     []llm.ConversationMessage{{Role: llm.RoleUser, Content: userPrompt}},
		SchemaName:   "review",
		Schema:       jsonSchema,
		Model:        role.ModelID,
	}

	resp, err := a.Client.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("reviewer %q: %w", role.Name, err)
	}

	review, parseErr := parseReview(resp.Content, role.Name, resp)
	if parseErr == nil {
		return review, nil
	}

	slog.WarnContext(ctx, "reviewer response failed to parse, attempting salvage",
		"reviewer", role.Name, "error", parseErr)

	salvageReq := llm.Request{
		SystemPrompt: role.SystemPrompt,
		Messages: []llm.ConversationMessage{
			{Role: llm.RoleUser, Content: userPrompt},
			{Role: llm.RoleAssistant, Content: resp.Content},
			{Role: llm.RoleUser, Content: "Your previous reply was not valid JSON matching the requested schema. Reformat your prior answer as a single valid JSON object matching the schema, with no surrounding prose."},
		},
		SchemaName: "review",
		Schema:     jsonSchema,
		Model:      role.ModelID,
	}

	salvageResp, salvageCallErr := a.Client.Complete(ctx, salvageReq)
	if salvageCallErr != nil {
		return nil, &MalformedReviewError{Reviewer: role.Name, RawOutput: resp.Content, Cause: salvageCallErr}
	}

	salvaged, salvageParseErr := parseReview(salvageResp.Content, role.Name, salvageResp)
	if salvageParseErr != nil {
		return nil, &MalformedReviewError{Reviewer: role.Name, RawOutput: salvageResp.Content, Cause: salvageParseErr}
	}

	salvaged.Tokens.Add(tokenCounts(resp))
	slog.WarnContext(ctx, "reviewer response salvaged on retry", "reviewer", role.Name)
	if a.OnSalvage != nil {
		a.OnSalvage(role.Name)
	}
	return salvaged, nil
}

// MalformedReviewError wraps rterrors.ErrMalformedReview with the raw text
// that failed to parse, preserved for debugging persistence.
type MalformedReviewError struct {
	Reviewer  string
	RawOutput string
	Cause     error
}

func (e *MalformedReviewError) Error() string {
	return fmt.Sprintf("reviewer %q: malformed review after salvage attempt: %v", e.Reviewer, e.Cause)
}

func (e *MalformedReviewError) Unwrap() error { return rterrors.ErrMalformedReview }

func buildUserPrompt(doc models.DocumentVersion) string {
	var b strings.Builder
	b.WriteString("Review the following document and return a JSON object with fields ")
	b.WriteString(`"issues" (a list of {category, description, severity, suggested_fix?}) and "overall_assessment" (a string). `)
	b.WriteString("Severity must be one of: high, medium, low (case-insensitive).\n\n")
	b.WriteString("=== DOCUMENT START ===\n")
	b.WriteString(doc.Content)
	b.WriteString("\n=== DOCUMENT END ===\n")
	return b.String()
}

func parseReview(content string, reviewerName string, resp *llm.Response) (*models.Review, error) {
	var parsed reviewSchema
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal review: %w", err)
	}

	review := &models.Review{
		ReviewerName:      reviewerName,
		OverallAssessment: parsed.OverallAssessment,
		Timestamp:         time.Now(),
		Tokens: models.TokenCounts{
			Prompt:     resp.PromptTokens,
			Completion: resp.CompletionTokens,
			Total:      resp.PromptTokens + resp.CompletionTokens,
		},
	}
	for _, i := range parsed.Issues {
		sev, err := models.ParseSeverity(i.Severity)
		if err != nil {
			return nil, fmt.Errorf("issue %q: %w", i.Description, err)
		}
		review.Issues = append(review.Issues, models.Issue{
			Category:     i.Category,
			Description:  i.Description,
			Severity:     sev,
			SuggestedFix: i.SuggestedFix,
			ReviewerName: reviewerName,
		})
	}

	if err := review.Validate(); err != nil {
		return nil, err
	}
	return review, nil
}

func tokenCounts(r *llm.Response) models.TokenCounts {
	return models.TokenCounts{Prompt: r.PromptTokens, Completion: r.CompletionTokens, Total: r.PromptTokens + r.CompletionTokens}
}
