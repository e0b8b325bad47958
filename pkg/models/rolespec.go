package models

// RoleSpec is a reviewer's identity and behavior, immutable for the life of
// a session. Also referred to as a Participant.
type RoleSpec struct {
	Name        string `json:"name"`
	Role        string `json:"role"`
	Expertise   string `json:"expertise"`
	Perspective string `json:"perspective"`
	// SystemPrompt is the full directive text the LLM receives verbatim.
	SystemPrompt string `json:"system_prompt"`
	// ModelID overrides the session's primary model for this participant, if set.
	ModelID string `json:"model_id,omitempty"`
}
