package synthesis

import (
	"github.com/redlinehq/redline/internal/domain/agent"
	"github.com/redlinehq/redline/internal/domain/document"
	"github.com/redlinehq/redline/internal/domain/finding"
	"github.com/redlinehq/redline/internal/domain/review"
)

// buildSummary computes the aggregate counts over the surviving findings.
// Coverage counts distinct document paragraphs referenced by any anchor.
func buildSummary(doc *document.DocObj, fs []finding.Finding, rollup agent.Rollup) review.Summary {
	s := review.Summary{
		Total:          len(fs),
		BySeverity:     make(map[finding.Severity]int),
		ByTrack:        make(map[finding.Track]int),
		ByDimension:    make(map[finding.Dimension]int),
		ParagraphTotal: len(doc.Paragraphs),
		Metrics:        rollup,
	}

	valid := make(map[string]struct{}, len(doc.Paragraphs))
	for i := range doc.Paragraphs {
		valid[doc.Paragraphs[i].ID] = struct{}{}
	}

	covered := make(map[string]struct{})
	for _, f := range fs {
		s.BySeverity[f.Severity]++
		s.ByTrack[f.Track]++
		for _, d := range f.Dimensions {
			s.ByDimension[d]++
		}
		for _, a := range f.Anchors {
			if _, ok := valid[a.ParagraphID]; ok {
				covered[a.ParagraphID] = struct{}{}
			}
		}
	}
	s.ParagraphsWithFindings = len(covered)
	return s
}
