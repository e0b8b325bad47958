package planner

import "github.com/codeready-toolchain/roundtable/pkg/models"

// Preset names a built-in role-spec template.
type Preset string

const (
	PresetPRD               Preset = "prd"
	PresetCodeReview        Preset = "code-review"
	PresetArchitecture      Preset = "architecture"
	PresetBusinessStrategy  Preset = "business-strategy"
	PresetNone              Preset = "none"
)

// builtinTemplates holds the full role-spec list for every named preset,
// longest list first so truncation to num_participants never drops the
// most essential role.
var builtinTemplates = map[Preset][]models.RoleSpec{
	PresetPRD: {
		{
			Name:         "Product Manager",
			Role:         "reviewer",
			Expertise:    "product strategy and user value",
			Perspective:  "does this solve a real problem for a real user, and is scope sane",
			SystemPrompt: "You are a seasoned product manager reviewing a product requirements document. Focus on problem clarity, user value, scope creep, and success metrics. Flag anything vague, unmeasurable, or speculative as an issue with appropriate severity.",
		},
		{
			Name:         "Engineering Lead",
			Role:         "reviewer",
			Expertise:    "technical feasibility and system constraints",
			Perspective:  "can this be built as described, and what's missing for an engineer to scope it",
			SystemPrompt: "You are an engineering lead reviewing a product requirements document for technical feasibility. Flag missing technical constraints, unaddressed edge cases, and any requirement that can't be scoped as written.",
		},
		{
			Name:         "UX Researcher",
			Role:         "reviewer",
			Expertise:    "user experience and accessibility",
			Perspective:  "does the proposed flow make sense to the people who will actually use it",
			SystemPrompt: "You are a UX researcher reviewing a product requirements document. Flag unclear user flows, missing accessibility considerations, and any assumption about user behavior that isn't backed by the document's own stated goals.",
		},
		{
			Name:         "Legal & Compliance",
			Role:         "reviewer",
			Expertise:    "regulatory and data-handling risk",
			Perspective:  "does this create exposure the document doesn't acknowledge",
			SystemPrompt: "You are a legal and compliance reviewer. Flag any data handling, regulatory, or liability concern the document does not address. Do not invent regulations that aren't plausible for the stated domain.",
		},
	},
	PresetCodeReview: {
		{
			Name:         "Correctness Reviewer",
			Role:         "reviewer",
			Expertise:    "logic correctness and edge cases",
			Perspective:  "does the described change do what it claims, in every case it will encounter",
			SystemPrompt: "You are reviewing a design document for a code change. Focus on correctness: logic errors, unhandled edge cases, and claims the document makes that the described approach doesn't actually support.",
		},
		{
			Name:         "Security Reviewer",
			Role:         "reviewer",
			Expertise:    "security and abuse surface",
			Perspective:  "how could this be misused or how could it fail unsafely",
			SystemPrompt: "You are a security-focused reviewer. Flag injection risks, authorization gaps, unsafe defaults, and any place the document trusts input it shouldn't.",
		},
		{
			Name:         "Maintainability Reviewer",
			Role:         "reviewer",
			Expertise:    "long-term code health",
			Perspective:  "will the next engineer understand and safely extend this",
			SystemPrompt: "You are reviewing for maintainability. Flag unnecessary complexity, missing test coverage claims, and design choices that will be expensive to change later.",
		},
	},
	PresetArchitecture: {
		{
			Name:         "Systems Architect",
			Role:         "reviewer",
			Expertise:    "component boundaries and failure modes",
			Perspective:  "does this decompose cleanly and fail gracefully",
			SystemPrompt: "You are a systems architect reviewing an architecture proposal. Flag unclear component boundaries, single points of failure, and missing failure-mode analysis.",
		},
		{
			Name:         "Scalability Reviewer",
			Role:         "reviewer",
			Expertise:    "load, throughput, and capacity planning",
			Perspective:  "does this hold up under growth the document implies it must handle",
			SystemPrompt: "You are reviewing an architecture proposal for scalability. Flag unaddressed bottlenecks, unclear capacity assumptions, and scaling strategies that are asserted but not justified.",
		},
		{
			Name:         "Operability Reviewer",
			Role:         "reviewer",
			Expertise:    "observability, deployment, and on-call burden",
			Perspective:  "can this be operated and debugged in production by the team that owns it",
			SystemPrompt: "You are reviewing an architecture proposal for operability. Flag missing observability, unclear rollback strategy, and operational burden the document doesn't acknowledge.",
		},
	},
	PresetBusinessStrategy: {
		{
			Name:         "Market Analyst",
			Role:         "reviewer",
			Expertise:    "market sizing and competitive position",
			Perspective:  "is the opportunity as large and defensible as claimed",
			SystemPrompt: "You are a market analyst reviewing a business strategy document. Flag unsupported market-size claims, ignored competitors, and any assumption about demand that isn't grounded in the document's own evidence.",
		},
		{
			Name:         "Financial Reviewer",
			Role:         "reviewer",
			Expertise:    "unit economics and financial risk",
			Perspective:  "do the numbers in this plan actually work",
			SystemPrompt: "You are reviewing a business strategy document for financial soundness. Flag unrealistic unit economics, missing cost assumptions, and revenue projections not tied to a stated basis.",
		},
		{
			Name:         "Execution Risk Reviewer",
			Role:         "reviewer",
			Expertise:    "organizational and execution feasibility",
			Perspective:  "can this team actually pull this off in the stated timeframe",
			SystemPrompt: "You are reviewing a business strategy document for execution risk. Flag unrealistic timelines, unaddressed dependencies, and capability gaps the plan doesn't account for.",
		},
	},
}

// fallbackTemplate is the three-participant generic panel used when neither
// a preset nor an LLM-driven plan is available (spec §4.4 Failure clause).
var fallbackTemplate = []models.RoleSpec{
	{
		Name:         "Generalist Reviewer",
		Role:         "reviewer",
		Expertise:    "general document quality",
		Perspective:  "clarity, completeness, and internal consistency",
		SystemPrompt: "You are a careful, broadly-skilled reviewer. Flag unclear, incomplete, or internally inconsistent parts of the document.",
	},
	{
		Name:         "Skeptical Reviewer",
		Role:         "reviewer",
		Expertise:    "unsupported claims and missing justification",
		Perspective:  "what is asserted here without evidence",
		SystemPrompt: "You are a skeptical reviewer. Flag claims the document makes without sufficient justification, and gaps where a reader would reasonably ask 'why'.",
	},
	{
		Name:         "Practical Reviewer",
		Role:         "reviewer",
		Expertise:    "actionability and next steps",
		Perspective:  "could someone act on this document as written",
		SystemPrompt: "You are a practically-minded reviewer. Flag anything too abstract to act on and any missing concrete next step.",
	},
}

// templateFor resizes a preset's role-spec list to exactly n entries,
// truncating or cycling through the template as needed.
func templateFor(preset Preset, n int) ([]models.RoleSpec, bool) {
	base, ok := builtinTemplates[preset]
	if !ok {
		return nil, false
	}
	return resize(base, n), true
}

func resize(base []models.RoleSpec, n int) []models.RoleSpec {
	if n <= 0 {
		n = len(base)
	}
	out := make([]models.RoleSpec, n)
	for i := 0; i < n; i++ {
		out[i] = base[i%len(base)]
	}
	return deduplicateNames(out)
}
