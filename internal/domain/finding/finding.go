// Package finding defines review findings, their text anchors, and the
// derivation tables that map reviewer identities to tracks and categories
// to dimensions.
package finding

import (
	"fmt"

	"github.com/redlinehq/redline/internal/domain/agent"
	"github.com/redlinehq/redline/internal/domain/document"
)

// Severity orders findings by how much they matter. Rank 0 is most severe.
type Severity string

const (
	SeverityCritical   Severity = "critical"
	SeverityMajor      Severity = "major"
	SeverityMinor      Severity = "minor"
	SeveritySuggestion Severity = "suggestion"
)

// Rank returns the sort rank of the severity, 0 being most severe.
// Unknown severities rank last; they are rejected at acceptance anyway.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityMajor:
		return 1
	case SeverityMinor:
		return 2
	case SeveritySuggestion:
		return 3
	}
	return 4
}

// Known reports whether s is a recognized severity.
func (s Severity) Known() bool { return s.Rank() < 4 }

// Track groups findings by the kind of reviewer that produced them.
type Track string

const (
	TrackReader      Track = "A" // reader experience
	TrackMethodology Track = "B" // methodology and rigor
	TrackAdversarial Track = "C" // adversarial critique
)

// Category is the closed vocabulary of finding kinds agents may emit.
type Category string

const (
	CategoryClaritySentence        Category = "clarity_sentence"
	CategoryClarityParagraph       Category = "clarity_paragraph"
	CategoryClarityFlow            Category = "clarity_flow"
	CategoryRigorMethodology       Category = "rigor_methodology"
	CategoryRigorLogic             Category = "rigor_logic"
	CategoryRigorEvidence          Category = "rigor_evidence"
	CategoryRigorStatistics        Category = "rigor_statistics"
	CategoryAdversarialWeakness    Category = "adversarial_weakness"
	CategoryAdversarialGap         Category = "adversarial_gap"
	CategoryAdversarialAlternative Category = "adversarial_alternative"
	CategoryDomainUnsupported      Category = "domain_unsupported"
	CategoryDomainContradiction    Category = "domain_contradiction"
)

// Dimension is a facet of manuscript quality a finding speaks to.
type Dimension string

const (
	DimReadability     Dimension = "readability"
	DimStructure       Dimension = "structure"
	DimCoherence       Dimension = "coherence"
	DimMethodology     Dimension = "methodology"
	DimLogic           Dimension = "logic"
	DimEvidence        Dimension = "evidence"
	DimStatistics      Dimension = "statistics"
	DimArgument        Dimension = "argument"
	DimCompleteness    Dimension = "completeness"
	DimCounterevidence Dimension = "counterevidence"
)

// Anchor ties a finding to a specific place in the document. An anchor
// without a char range covers its whole paragraph. Ranges are half-open
// byte offsets into the paragraph text.
type Anchor struct {
	ParagraphID string `json:"paragraph_id"`
	SentenceID  string `json:"sentence_id,omitempty"`
	StartChar   *int   `json:"start_char,omitempty"`
	EndChar     *int   `json:"end_char,omitempty"`
	QuotedText  string `json:"quoted_text"`
}

// Ranged reports whether the anchor carries an explicit char range.
func (a Anchor) Ranged() bool { return a.StartChar != nil && a.EndChar != nil }

// Validate resolves the anchor against the document: the paragraph must
// exist, the quoted text must appear literally in it, and any char range
// must lie inside the paragraph text.
func (a Anchor) Validate(doc *document.DocObj) error {
	p, ok := doc.ParagraphByID(a.ParagraphID)
	if !ok {
		return fmt.Errorf("anchor paragraph %q not in document", a.ParagraphID)
	}
	if a.QuotedText == "" {
		return fmt.Errorf("anchor in paragraph %q has no quoted text", a.ParagraphID)
	}
	if !p.Contains(a.QuotedText) {
		return fmt.Errorf("anchor quote not found in paragraph %q", a.ParagraphID)
	}
	if a.SentenceID != "" {
		if _, ok := p.SentenceByID(a.SentenceID); !ok {
			return fmt.Errorf("anchor sentence %q not in paragraph %q", a.SentenceID, a.ParagraphID)
		}
	}
	if (a.StartChar == nil) != (a.EndChar == nil) {
		return fmt.Errorf("anchor in paragraph %q has a half-specified char range", a.ParagraphID)
	}
	if a.Ranged() {
		start, end := *a.StartChar, *a.EndChar
		if start < 0 || end <= start || end > len(p.Text) {
			return fmt.Errorf("anchor range [%d,%d) outside paragraph %q", start, end, a.ParagraphID)
		}
	}
	return nil
}

// ProposedEdit is a concrete rewrite suggestion attached to a finding by
// the revision agent.
type ProposedEdit struct {
	OriginalText  string `json:"original_text"`
	SuggestedText string `json:"suggested_text"`
	Rationale     string `json:"rationale,omitempty"`
}

// Finding is one issue a reviewer raised against the document. Track and
// Dimensions are never supplied by agents; the orchestrator stamps them
// from the derivation tables when the finding is accepted.
type Finding struct {
	ID           string            `json:"id"`
	AgentID      agent.ID          `json:"agent_id"`
	Category     Category          `json:"category"`
	Severity     Severity          `json:"severity"`
	Confidence   float64           `json:"confidence"`
	Track        Track             `json:"track,omitempty"`
	Dimensions   []Dimension       `json:"dimensions,omitempty"`
	Summary      string            `json:"summary"`
	Detail       string            `json:"detail,omitempty"`
	Anchors      []Anchor          `json:"anchors"`
	ProposedEdit *ProposedEdit     `json:"proposed_edit,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// ViolationError marks a finding that broke the agent contract. It
// invalidates the individual finding only, never the invocation.
type ViolationError struct {
	AgentID agent.ID
	Reason  string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("agent %s contract violation: %s", e.AgentID, e.Reason)
}

// Validate checks the finding against the agent contract and the document
// it claims to anchor to. A nil return means the finding is acceptable.
func (f *Finding) Validate(doc *document.DocObj) error {
	if !f.AgentID.Known() {
		return &ViolationError{AgentID: f.AgentID, Reason: fmt.Sprintf("unknown agent id %q", f.AgentID)}
	}
	if _, ok := dimensionsByCategory[f.Category]; !ok {
		return &ViolationError{AgentID: f.AgentID, Reason: fmt.Sprintf("unknown category %q", f.Category)}
	}
	if !f.Severity.Known() {
		return &ViolationError{AgentID: f.AgentID, Reason: fmt.Sprintf("unknown severity %q", f.Severity)}
	}
	if f.Confidence < 0 || f.Confidence > 1 {
		return &ViolationError{AgentID: f.AgentID, Reason: fmt.Sprintf("confidence %v outside [0,1]", f.Confidence)}
	}
	if f.Summary == "" {
		return &ViolationError{AgentID: f.AgentID, Reason: "empty summary"}
	}
	if len(f.Anchors) == 0 {
		return &ViolationError{AgentID: f.AgentID, Reason: "finding has no anchors"}
	}
	for _, a := range f.Anchors {
		if err := a.Validate(doc); err != nil {
			return &ViolationError{AgentID: f.AgentID, Reason: err.Error()}
		}
	}
	return nil
}

// Stamp derives and sets Track and Dimensions from the identity and
// category tables. Call after Validate; both lookups are total over the
// validated vocabulary.
func (f *Finding) Stamp() {
	f.Track = TrackOf(f.AgentID)
	f.Dimensions = DimensionsOf(f.Category)
}
