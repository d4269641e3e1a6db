package agents

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redlinehq/redline/internal/domain/document"
	"github.com/redlinehq/redline/internal/domain/finding"
	"github.com/redlinehq/redline/internal/domain/review"
	"github.com/redlinehq/redline/internal/port/analyzer"
)

// renderDocument flattens a document into prompt text. Every paragraph is
// prefixed with its ID so anchors can cite it exactly.
func renderDocument(doc *document.DocObj) string {
	var b strings.Builder
	if doc.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n\n", doc.Title)
	}

	byID := make(map[string]*document.Paragraph, len(doc.Paragraphs))
	for i := range doc.Paragraphs {
		byID[doc.Paragraphs[i].ID] = &doc.Paragraphs[i]
	}

	if len(doc.Sections) > 0 {
		covered := make(map[string]bool)
		for _, sec := range doc.Sections {
			if sec.Heading != "" {
				fmt.Fprintf(&b, "## %s\n\n", sec.Heading)
			}
			for _, pid := range sec.ParagraphIDs {
				if p, ok := byID[pid]; ok {
					fmt.Fprintf(&b, "[%s] %s\n\n", p.ID, p.Text)
					covered[pid] = true
				}
			}
		}
		// Paragraphs outside any section still need to be visible.
		for i := range doc.Paragraphs {
			if !covered[doc.Paragraphs[i].ID] {
				fmt.Fprintf(&b, "[%s] %s\n\n", doc.Paragraphs[i].ID, doc.Paragraphs[i].Text)
			}
		}
		return b.String()
	}

	for i := range doc.Paragraphs {
		fmt.Fprintf(&b, "[%s] %s\n\n", doc.Paragraphs[i].ID, doc.Paragraphs[i].Text)
	}
	return b.String()
}

// renderSnapshot formats the briefing context block, or a placeholder when
// the snapshot is not available yet.
func renderSnapshot(s *analyzer.Snapshot) string {
	if s == nil {
		return "(no briefing context available)"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Thesis: %s\n", s.Thesis)
	if len(s.KeyClaims) > 0 {
		b.WriteString("Key claims:\n")
		for _, c := range s.KeyClaims {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	}
	if len(s.Terminology) > 0 {
		fmt.Fprintf(&b, "Terminology: %s\n", strings.Join(s.Terminology, ", "))
	}
	if s.Audience != "" {
		fmt.Fprintf(&b, "Audience: %s\n", s.Audience)
	}
	if s.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", s.Notes)
	}
	return b.String()
}

// promptFinding is the compact form prior findings take inside prompts.
type promptFinding struct {
	Index       int    `json:"index"`
	ID          string `json:"id"`
	Category    string `json:"category"`
	Severity    string `json:"severity"`
	Summary     string `json:"summary"`
	Detail      string `json:"detail,omitempty"`
	ParagraphID string `json:"paragraph_id,omitempty"`
	QuotedText  string `json:"quoted_text,omitempty"`
}

// renderFindings serializes findings for inclusion in a prompt, indexed so
// the model can reference them back.
func renderFindings(fs []finding.Finding) string {
	out := make([]promptFinding, 0, len(fs))
	for i, f := range fs {
		pf := promptFinding{
			Index:    i,
			ID:       f.ID,
			Category: string(f.Category),
			Severity: string(f.Severity),
			Summary:  f.Summary,
			Detail:   f.Detail,
		}
		if len(f.Anchors) > 0 {
			pf.ParagraphID = f.Anchors[0].ParagraphID
			pf.QuotedText = f.Anchors[0].QuotedText
		}
		out = append(out, pf)
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(data)
}

// filterByCategory returns the findings whose category has the given prefix.
func filterByCategory(fs []finding.Finding, prefix string) []finding.Finding {
	var out []finding.Finding
	for _, f := range fs {
		if strings.HasPrefix(string(f.Category), prefix) {
			out = append(out, f)
		}
	}
	return out
}

// steeringBlock renders the optional reviewer guidance from the request
// config: the caller's steering memo and focus dimensions.
func steeringBlock(cfg review.Config) string {
	if cfg.Steering == "" && len(cfg.Focus) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\nReviewer guidance:\n")
	if cfg.Steering != "" {
		fmt.Fprintf(&b, "%s\n", cfg.Steering)
	}
	if len(cfg.Focus) > 0 {
		dims := make([]string, len(cfg.Focus))
		for i, d := range cfg.Focus {
			dims[i] = string(d)
		}
		fmt.Fprintf(&b, "Give extra attention to: %s\n", strings.Join(dims, ", "))
	}
	return b.String()
}
