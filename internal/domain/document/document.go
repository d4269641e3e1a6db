// Package document defines the parsed manuscript model reviews operate on.
// Documents are immutable once submitted; every anchor in a finding resolves
// against this structure.
package document

import (
	"fmt"
	"strings"

	"github.com/redlinehq/redline/internal/domain"
)

// Sentence is a single sentence span inside a paragraph. Start and End are
// rune-agnostic byte offsets into the paragraph text, half-open.
type Sentence struct {
	ID    string `json:"id"`
	Index int    `json:"index"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Paragraph is the unit findings anchor to. Index is the document-order
// position used for result ordering.
type Paragraph struct {
	ID        string     `json:"id"`
	Index     int        `json:"index"`
	Text      string     `json:"text"`
	Sentences []Sentence `json:"sentences,omitempty"`
}

// Section groups paragraphs under a heading. Sections are presentational;
// anchors never reference them directly.
type Section struct {
	ID           string   `json:"id"`
	Heading      string   `json:"heading,omitempty"`
	ParagraphIDs []string `json:"paragraph_ids,omitempty"`
}

// DocObj is a fully parsed document submitted for review.
type DocObj struct {
	ID         string      `json:"id"`
	Title      string      `json:"title,omitempty"`
	Sections   []Section   `json:"sections,omitempty"`
	Paragraphs []Paragraph `json:"paragraphs"`
}

// Normalize assigns document-order indexes to paragraphs and sentences.
// Submitted documents may omit them; everything downstream assumes they
// match slice position.
func (d *DocObj) Normalize() {
	for i := range d.Paragraphs {
		d.Paragraphs[i].Index = i
		for j := range d.Paragraphs[i].Sentences {
			d.Paragraphs[i].Sentences[j].Index = j
		}
	}
}

// Validate checks structural integrity: a non-empty ID, at least one
// paragraph, unique paragraph and sentence IDs, and sentence spans that lie
// inside their paragraph text.
func (d *DocObj) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: document id is required", domain.ErrValidation)
	}
	if len(d.Paragraphs) == 0 {
		return fmt.Errorf("%w: document has no paragraphs", domain.ErrValidation)
	}
	seen := make(map[string]struct{}, len(d.Paragraphs))
	for i := range d.Paragraphs {
		p := &d.Paragraphs[i]
		if p.ID == "" {
			return fmt.Errorf("%w: paragraph %d has no id", domain.ErrValidation, i)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("%w: duplicate paragraph id %q", domain.ErrValidation, p.ID)
		}
		seen[p.ID] = struct{}{}
		if strings.TrimSpace(p.Text) == "" {
			return fmt.Errorf("%w: paragraph %q is empty", domain.ErrValidation, p.ID)
		}
		sids := make(map[string]struct{}, len(p.Sentences))
		for _, s := range p.Sentences {
			if s.ID == "" {
				return fmt.Errorf("%w: paragraph %q has a sentence without id", domain.ErrValidation, p.ID)
			}
			if _, dup := sids[s.ID]; dup {
				return fmt.Errorf("%w: duplicate sentence id %q in paragraph %q", domain.ErrValidation, s.ID, p.ID)
			}
			sids[s.ID] = struct{}{}
			if s.Start < 0 || s.End <= s.Start || s.End > len(p.Text) {
				return fmt.Errorf("%w: sentence %q span [%d,%d) outside paragraph %q", domain.ErrValidation, s.ID, s.Start, s.End, p.ID)
			}
		}
	}
	return nil
}

// Clone returns a deep copy. Stores hand out clones so no caller can
// mutate a submitted document.
func (d *DocObj) Clone() *DocObj {
	out := *d
	out.Sections = make([]Section, len(d.Sections))
	for i, s := range d.Sections {
		out.Sections[i] = s
		out.Sections[i].ParagraphIDs = append([]string(nil), s.ParagraphIDs...)
	}
	out.Paragraphs = make([]Paragraph, len(d.Paragraphs))
	for i, p := range d.Paragraphs {
		out.Paragraphs[i] = p
		out.Paragraphs[i].Sentences = append([]Sentence(nil), p.Sentences...)
	}
	return &out
}

// ParagraphByID returns the paragraph with the given ID.
func (d *DocObj) ParagraphByID(id string) (*Paragraph, bool) {
	for i := range d.Paragraphs {
		if d.Paragraphs[i].ID == id {
			return &d.Paragraphs[i], true
		}
	}
	return nil, false
}

// SentenceByID returns the sentence with the given ID inside the paragraph.
func (p *Paragraph) SentenceByID(id string) (*Sentence, bool) {
	for i := range p.Sentences {
		if p.Sentences[i].ID == id {
			return &p.Sentences[i], true
		}
	}
	return nil, false
}

// SentenceText returns the text covered by the sentence span.
func (p *Paragraph) SentenceText(s Sentence) string {
	if s.Start < 0 || s.End > len(p.Text) || s.Start >= s.End {
		return ""
	}
	return p.Text[s.Start:s.End]
}

// Contains reports whether the quoted text appears literally in the paragraph.
func (p *Paragraph) Contains(quoted string) bool {
	return quoted != "" && strings.Contains(p.Text, quoted)
}
