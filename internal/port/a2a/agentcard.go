package a2a

// SkillReview is the skill ID peers use to request a manuscript review.
const SkillReview = "manuscript-review"

// BuildAgentCard returns the service's AgentCard.
func BuildAgentCard(baseURL, version string) AgentCard {
	return AgentCard{
		Name:        "Redline",
		Description: "Manuscript review service running a fixed pipeline of analysis agents",
		URL:         baseURL,
		Version:     version,
		Skills: []Skill{
			{
				ID:          SkillReview,
				Name:        "Manuscript Review",
				Description: "Review a structured document for clarity, rigor, and adversarial weaknesses; returns anchored findings",
				InputModes:  []string{"text"},
				OutputModes: []string{"text"},
			},
		},
		Capabilities: struct {
			Streaming bool `json:"streaming"`
		}{Streaming: true},
	}
}
