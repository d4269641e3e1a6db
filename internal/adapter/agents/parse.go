package agents

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/redlinehq/redline/internal/domain/agent"
	"github.com/redlinehq/redline/internal/domain/finding"
	"github.com/redlinehq/redline/internal/port/analyzer"
)

// wireAnchor is the anchor shape agents are prompted to emit.
type wireAnchor struct {
	ParagraphID string `json:"paragraph_id"`
	SentenceID  string `json:"sentence_id,omitempty"`
	StartChar   *int   `json:"start_char,omitempty"`
	EndChar     *int   `json:"end_char,omitempty"`
	QuotedText  string `json:"quoted_text"`
}

// wireEdit is the proposed edit shape.
type wireEdit struct {
	OriginalText  string `json:"original_text"`
	SuggestedText string `json:"suggested_text"`
	Rationale     string `json:"rationale,omitempty"`
}

// wireFinding is one finding as emitted by a reviewer model.
type wireFinding struct {
	Category     string       `json:"category"`
	Severity     string       `json:"severity"`
	Confidence   float64      `json:"confidence"`
	Summary      string       `json:"summary"`
	Detail       string       `json:"detail,omitempty"`
	Anchors      []wireAnchor `json:"anchors"`
	ProposedEdit *wireEdit    `json:"proposed_edit,omitempty"`
	Votes        int          `json:"votes,omitempty"`
}

type findingsEnvelope struct {
	Findings []wireFinding `json:"findings"`
}

// stripFences removes a markdown code fence if the model wrapped its JSON
// in one despite the response format.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// parseFindings decodes a findings envelope into domain findings owned by
// the given agent. Track and Dimensions stay unset; the orchestrator stamps
// them at acceptance.
func parseFindings(agentID agent.ID, content string) ([]finding.Finding, error) {
	var env findingsEnvelope
	if err := json.Unmarshal([]byte(stripFences(content)), &env); err != nil {
		return nil, fmt.Errorf("parse %s response: %w", agentID, err)
	}

	out := make([]finding.Finding, 0, len(env.Findings))
	for _, wf := range env.Findings {
		out = append(out, toDomain(agentID, wf))
	}
	return out, nil
}

func toDomain(agentID agent.ID, wf wireFinding) finding.Finding {
	f := finding.Finding{
		ID:         uuid.NewString(),
		AgentID:    agentID,
		Category:   finding.Category(wf.Category),
		Severity:   finding.Severity(wf.Severity),
		Confidence: wf.Confidence,
		Summary:    wf.Summary,
		Detail:     wf.Detail,
	}
	for _, wa := range wf.Anchors {
		f.Anchors = append(f.Anchors, finding.Anchor{
			ParagraphID: wa.ParagraphID,
			SentenceID:  wa.SentenceID,
			StartChar:   wa.StartChar,
			EndChar:     wa.EndChar,
			QuotedText:  wa.QuotedText,
		})
	}
	if wf.ProposedEdit != nil {
		f.ProposedEdit = &finding.ProposedEdit{
			OriginalText:  wf.ProposedEdit.OriginalText,
			SuggestedText: wf.ProposedEdit.SuggestedText,
			Rationale:     wf.ProposedEdit.Rationale,
		}
	}
	if wf.Votes > 0 {
		f.Metadata = map[string]string{"votes": fmt.Sprintf("%d", wf.Votes)}
	}
	return f
}

// wireSnapshot is the briefing agent's output shape.
type wireSnapshot struct {
	Thesis      string   `json:"thesis"`
	KeyClaims   []string `json:"key_claims"`
	Terminology []string `json:"terminology"`
	Audience    string   `json:"audience"`
	Notes       string   `json:"notes"`
}

// parseSnapshot decodes the briefing agent's context extraction.
func parseSnapshot(content string) (*analyzer.Snapshot, error) {
	var ws wireSnapshot
	if err := json.Unmarshal([]byte(stripFences(content)), &ws); err != nil {
		return nil, fmt.Errorf("parse briefing response: %w", err)
	}
	return &analyzer.Snapshot{
		Thesis:      ws.Thesis,
		KeyClaims:   ws.KeyClaims,
		Terminology: ws.Terminology,
		Audience:    ws.Audience,
		Notes:       ws.Notes,
	}, nil
}
