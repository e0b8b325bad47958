// Package planner implements the Meta-Planner: given a session's framing
// (title, goal, document type, participant count), it produces a reviewer
// panel of role-specs plus a moderator focus directive.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/codeready-toolchain/roundtable/pkg/llm"
	"github.com/codeready-toolchain/roundtable/pkg/models"
)

// ModelStrategy controls how models are assigned across participants.
type ModelStrategy string

const (
	ModelStrategyUniform ModelStrategy = "uniform"
	ModelStrategyDiverse ModelStrategy = "diverse"
)

// Request is the Meta-Planner's input.
type Request struct {
	Title            string
	DocumentType     string
	Goal             string
	NumParticipants  int
	Preset           Preset
	ParticipantStyle string
	ModelStrategy    ModelStrategy
	// ModelPool is the round-robin pool used when ModelStrategy is diverse.
	// Falls back to a single-element pool containing PrimaryModel if empty.
	ModelPool    []string
	PrimaryModel string
}

// Result is the Meta-Planner's output.
type Result struct {
	Participants            []models.RoleSpec
	ModeratorFocus           string
	ConvergenceCriteriaHint  string
	// UsedFallback is true when the LLM-driven path failed and the
	// built-in generic template was substituted; callers should record a
	// session-level warning when this is set, per spec §4.4.
	UsedFallback bool
	// Tokens is zero for preset and fallback paths, which never call the LLM.
	Tokens models.TokenCounts
}

type planSchema struct {
	Participants []struct {
		Name         string `json:"name"`
		Role         string `json:"role"`
		Expertise    string `json:"expertise"`
		Perspective  string `json:"perspective"`
		SystemPrompt string `json:"system_prompt"`
	} `json:"participants"`
	ModeratorFocus          string `json:"moderator_focus"`
	ConvergenceCriteriaHint string `json:"convergence_criteria_hint"`
}

var jsonSchema = llm.GenerateSchema[planSchema]()

// Planner runs planning calls against an llm.Client.
type Planner struct {
	Client llm.Client
}

// NewPlanner builds a Planner backed by client.
func NewPlanner(client llm.Client) *Planner {
	return &Planner{Client: client}
}

// Plan produces a Result for req. If req.Preset names a built-in template,
// the LLM is never called. Otherwise the LLM is called once; on any
// parse/validation failure the built-in three-participant fallback template
// is substituted and Result.UsedFallback is set — this path does not fail
// the session (spec §4.4 Failure).
func (p *Planner) Plan(ctx context.Context, req Request) (*Result, error) {
	n := req.NumParticipants
	if n <= 0 {
		n = 3
	}

	if req.Preset != "" && req.Preset != PresetNone {
		if template, ok := templateFor(req.Preset, n); ok {
			result := &Result{
				Participants:            assignModels(template, req),
				ModeratorFocus:          defaultModeratorFocus(req),
				ConvergenceCriteriaHint: "stop once no participant raises a high-severity issue",
			}
			return result, nil
		}
	}

	result, err := p.planWithLLM(ctx, req, n)
	if err != nil {
		slog.WarnContext(ctx, "meta-planner falling back to generic template", "error", err)
		return &Result{
			Participants:            assignModels(resize(fallbackTemplate, n), req),
			ModeratorFocus:          defaultModeratorFocus(req),
			ConvergenceCriteriaHint: "stop once no participant raises a high-severity issue",
			UsedFallback:            true,
		}, nil
	}
	return result, nil
}

func (p *Planner) planWithLLM(ctx context.Context, req Request, n int) (*Result, error) {
	resp, err := p.Client.Complete(ctx, llm.Request{
		SystemPrompt: metaPlannerSystemPrompt,
		Messages:     []llm.ConversationMessage{{Role: llm.RoleUser, Content: buildMetaPrompt(req, n)}},
		SchemaName:   "roundtable_plan",
		Schema:       jsonSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("meta-planner llm call: %w", err)
	}

	var parsed planSchema
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
		return nil, fmt.Errorf("meta-planner unmarshal: %w", err)
	}
	if len(parsed.Participants) == 0 {
		return nil, fmt.Errorf("meta-planner returned zero participants")
	}

	roles := make([]models.RoleSpec, 0, len(parsed.Participants))
	for _, part := range parsed.Participants {
		if part.Name == "" || part.SystemPrompt == "" {
			return nil, fmt.Errorf("meta-planner returned a participant with empty name or system_prompt")
		}
		roles = append(roles, models.RoleSpec{
			Name:         part.Name,
			Role:         part.Role,
			Expertise:    part.Expertise,
			Perspective:  part.Perspective,
			SystemPrompt: part.SystemPrompt,
		})
	}
	roles = resize(roles, n)

	return &Result{
		Participants:            assignModels(roles, req),
		ModeratorFocus:          firstNonEmpty(parsed.ModeratorFocus, defaultModeratorFocus(req)),
		ConvergenceCriteriaHint: parsed.ConvergenceCriteriaHint,
		Tokens:                  models.TokenCounts{Prompt: resp.PromptTokens, Completion: resp.CompletionTokens, Total: resp.PromptTokens + resp.CompletionTokens},
	}, nil
}

const metaPlannerSystemPrompt = `You design a panel of document reviewers. Given a document's title, type, and
optional goal, produce exactly the requested number of reviewer role-specs, each with a distinct,
non-overlapping area of expertise tailored to the document's goal and type. Also produce a moderator
focus directive: prose guidance for whoever synthesizes the reviewers' feedback into a revision.`

func buildMetaPrompt(req Request, n int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Design a panel of exactly %d reviewers for a %q document titled %q.\n", n, req.DocumentType, req.Title)
	if req.Goal != "" {
		fmt.Fprintf(&b, "Goal: %s\n", req.Goal)
	}
	if req.ParticipantStyle != "" {
		fmt.Fprintf(&b, "Participant style hint: %s\n", req.ParticipantStyle)
	}
	b.WriteString("Each reviewer must have a distinct expertise and perspective; do not produce overlapping roles.\n")
	return b.String()
}

func defaultModeratorFocus(req Request) string {
	if req.Goal != "" {
		return fmt.Sprintf("Resolve reviewer feedback while keeping the document aligned with its goal: %s", req.Goal)
	}
	return "Resolve reviewer feedback while preserving the document's stated purpose"
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// assignModels applies req's model_strategy: uniform assigns PrimaryModel
// to every participant; diverse round-robins over ModelPool (falling back
// to a single-element pool of PrimaryModel) so adjacent participants don't
// share a model when the pool is large enough.
func assignModels(roles []models.RoleSpec, req Request) []models.RoleSpec {
	if req.ModelStrategy != ModelStrategyDiverse {
		for i := range roles {
			roles[i].ModelID = req.PrimaryModel
		}
		return roles
	}

	pool := req.ModelPool
	if len(pool) == 0 {
		pool = []string{req.PrimaryModel}
	}
	for i := range roles {
		roles[i].ModelID = pool[i%len(pool)]
	}
	return roles
}

// deduplicateNames suffixes "A", "B", ... onto any repeated participant
// name so the returned set is unique, per spec §4.4.
func deduplicateNames(roles []models.RoleSpec) []models.RoleSpec {
	seen := make(map[string]int)
	for i := range roles {
		name := roles[i].Name
		count := seen[name]
		seen[name] = count + 1
		if count > 0 {
			roles[i].Name = fmt.Sprintf("%s %s", name, suffixLetter(count-1))
		}
	}
	return roles
}

func suffixLetter(n int) string {
	return string(rune('A' + n%26))
}
