package finding_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/redlinehq/redline/internal/domain/agent"
	"github.com/redlinehq/redline/internal/domain/document"
	"github.com/redlinehq/redline/internal/domain/finding"
)

func anchorDoc() *document.DocObj {
	return &document.DocObj{
		ID: "doc-1",
		Paragraphs: []document.Paragraph{
			{
				ID:   "p1",
				Text: "The method relies on convenience sampling throughout.",
				Sentences: []document.Sentence{
					{ID: "s1", Start: 0, End: 53},
				},
			},
		},
	}
}

func validFinding() finding.Finding {
	return finding.Finding{
		ID:         "f1",
		AgentID:    agent.RigorFind,
		Category:   finding.CategoryRigorMethodology,
		Severity:   finding.SeverityMajor,
		Confidence: 0.9,
		Summary:    "Sampling method is not defended",
		Anchors: []finding.Anchor{
			{ParagraphID: "p1", QuotedText: "convenience sampling"},
		},
	}
}

func intp(v int) *int { return &v }

func TestSeverityRank_Order(t *testing.T) {
	order := []finding.Severity{
		finding.SeverityCritical,
		finding.SeverityMajor,
		finding.SeverityMinor,
		finding.SeveritySuggestion,
	}
	for i, s := range order {
		if s.Rank() != i {
			t.Errorf("%s rank = %d, want %d", s, s.Rank(), i)
		}
		if !s.Known() {
			t.Errorf("%s should be known", s)
		}
	}
	if finding.Severity("fatal").Known() {
		t.Error("unknown severity must not be known")
	}
}

func TestAnchorValidate_WholeParagraph(t *testing.T) {
	a := finding.Anchor{ParagraphID: "p1", QuotedText: "convenience sampling"}
	if err := a.Validate(anchorDoc()); err != nil {
		t.Fatalf("expected valid, got: %v", err)
	}
	if a.Ranged() {
		t.Error("anchor without range must not report ranged")
	}
}

func TestAnchorValidate_Ranged(t *testing.T) {
	a := finding.Anchor{
		ParagraphID: "p1",
		SentenceID:  "s1",
		StartChar:   intp(21),
		EndChar:     intp(41),
		QuotedText:  "convenience sampling",
	}
	if err := a.Validate(anchorDoc()); err != nil {
		t.Fatalf("expected valid, got: %v", err)
	}
	if !a.Ranged() {
		t.Error("anchor with both offsets must report ranged")
	}
}

func TestAnchorValidate_UnknownParagraph(t *testing.T) {
	a := finding.Anchor{ParagraphID: "p9", QuotedText: "x"}
	if err := a.Validate(anchorDoc()); err == nil {
		t.Fatal("expected error for unknown paragraph")
	}
}

func TestAnchorValidate_EmptyQuote(t *testing.T) {
	a := finding.Anchor{ParagraphID: "p1"}
	if err := a.Validate(anchorDoc()); err == nil {
		t.Fatal("expected error for empty quote")
	}
}

func TestAnchorValidate_QuoteNotInParagraph(t *testing.T) {
	a := finding.Anchor{ParagraphID: "p1", QuotedText: "stratified sampling"}
	if err := a.Validate(anchorDoc()); err == nil {
		t.Fatal("expected error for quote absent from paragraph")
	}
}

func TestAnchorValidate_UnknownSentence(t *testing.T) {
	a := finding.Anchor{ParagraphID: "p1", SentenceID: "s9", QuotedText: "method"}
	if err := a.Validate(anchorDoc()); err == nil {
		t.Fatal("expected error for unknown sentence")
	}
}

func TestAnchorValidate_HalfRange(t *testing.T) {
	a := finding.Anchor{ParagraphID: "p1", StartChar: intp(0), QuotedText: "method"}
	if err := a.Validate(anchorDoc()); err == nil {
		t.Fatal("expected error for half-specified range")
	}
}

func TestAnchorValidate_RangeOutsideParagraph(t *testing.T) {
	for _, tc := range []struct {
		name       string
		start, end int
	}{
		{"negative start", -1, 5},
		{"empty range", 5, 5},
		{"end past text", 0, 500},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := finding.Anchor{
				ParagraphID: "p1",
				StartChar:   intp(tc.start),
				EndChar:     intp(tc.end),
				QuotedText:  "method",
			}
			if err := a.Validate(anchorDoc()); err == nil {
				t.Fatalf("expected error for range [%d,%d)", tc.start, tc.end)
			}
		})
	}
}

func TestFindingValidate_Valid(t *testing.T) {
	f := validFinding()
	if err := f.Validate(anchorDoc()); err != nil {
		t.Fatalf("expected valid, got: %v", err)
	}
}

func TestFindingValidate_ContractViolations(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*finding.Finding)
		reason string
	}{
		{"unknown agent", func(f *finding.Finding) { f.AgentID = "ghostwriter" }, "unknown agent"},
		{"unknown category", func(f *finding.Finding) { f.Category = "vibes" }, "unknown category"},
		{"unknown severity", func(f *finding.Finding) { f.Severity = "fatal" }, "unknown severity"},
		{"confidence below zero", func(f *finding.Finding) { f.Confidence = -0.1 }, "confidence"},
		{"confidence above one", func(f *finding.Finding) { f.Confidence = 1.5 }, "confidence"},
		{"empty summary", func(f *finding.Finding) { f.Summary = "" }, "empty summary"},
		{"no anchors", func(f *finding.Finding) { f.Anchors = nil }, "no anchors"},
		{"bad anchor", func(f *finding.Finding) { f.Anchors[0].ParagraphID = "p9" }, "not in document"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := validFinding()
			tc.mutate(&f)

			err := f.Validate(anchorDoc())
			if err == nil {
				t.Fatal("expected contract violation")
			}
			var v *finding.ViolationError
			if !errors.As(err, &v) {
				t.Fatalf("expected ViolationError, got %T: %v", err, err)
			}
			if !strings.Contains(v.Reason, tc.reason) {
				t.Errorf("reason %q does not mention %q", v.Reason, tc.reason)
			}
		})
	}
}

func TestStamp_DerivesTrackAndDimensions(t *testing.T) {
	f := validFinding()
	f.Stamp()

	if f.Track != finding.TrackMethodology {
		t.Errorf("track = %s, want %s", f.Track, finding.TrackMethodology)
	}
	if len(f.Dimensions) != 1 || f.Dimensions[0] != finding.DimMethodology {
		t.Errorf("dimensions = %v, want [methodology]", f.Dimensions)
	}
}
