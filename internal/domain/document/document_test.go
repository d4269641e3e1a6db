package document_test

import (
	"errors"
	"testing"

	"github.com/redlinehq/redline/internal/domain"
	"github.com/redlinehq/redline/internal/domain/document"
)

func sampleDoc() *document.DocObj {
	return &document.DocObj{
		ID:    "doc-1",
		Title: "On Sampling",
		Paragraphs: []document.Paragraph{
			{
				ID:   "p1",
				Text: "First sentence here. Second sentence there.",
				Sentences: []document.Sentence{
					{ID: "s1", Start: 0, End: 20},
					{ID: "s2", Start: 21, End: 43},
				},
			},
			{ID: "p2", Text: "A second paragraph."},
		},
	}
}

func TestDocValidate_Valid(t *testing.T) {
	if err := sampleDoc().Validate(); err != nil {
		t.Fatalf("expected valid, got: %v", err)
	}
}

func TestDocValidate_MissingID(t *testing.T) {
	d := sampleDoc()
	d.ID = ""
	err := d.Validate()
	if err == nil {
		t.Fatal("expected error for missing id")
	}
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got: %v", err)
	}
}

func TestDocValidate_NoParagraphs(t *testing.T) {
	d := &document.DocObj{ID: "doc-1"}
	if err := d.Validate(); err == nil {
		t.Fatal("expected error for empty document")
	}
}

func TestDocValidate_EmptyParagraphText(t *testing.T) {
	d := sampleDoc()
	d.Paragraphs[1].Text = "   "
	if err := d.Validate(); err == nil {
		t.Fatal("expected error for blank paragraph")
	}
}

func TestDocValidate_DuplicateParagraphID(t *testing.T) {
	d := sampleDoc()
	d.Paragraphs[1].ID = "p1"
	if err := d.Validate(); err == nil {
		t.Fatal("expected error for duplicate paragraph id")
	}
}

func TestDocValidate_SentenceWithoutID(t *testing.T) {
	d := sampleDoc()
	d.Paragraphs[0].Sentences[0].ID = ""
	if err := d.Validate(); err == nil {
		t.Fatal("expected error for sentence without id")
	}
}

func TestDocValidate_DuplicateSentenceID(t *testing.T) {
	d := sampleDoc()
	d.Paragraphs[0].Sentences[1].ID = "s1"
	if err := d.Validate(); err == nil {
		t.Fatal("expected error for duplicate sentence id")
	}
}

func TestDocValidate_SentenceSpanOutsideText(t *testing.T) {
	d := sampleDoc()
	d.Paragraphs[0].Sentences[1].End = 500
	if err := d.Validate(); err == nil {
		t.Fatal("expected error for span past end of paragraph")
	}
}

func TestDocValidate_SentenceSpanInverted(t *testing.T) {
	d := sampleDoc()
	d.Paragraphs[0].Sentences[0].Start = 20
	d.Paragraphs[0].Sentences[0].End = 20
	if err := d.Validate(); err == nil {
		t.Fatal("expected error for empty span")
	}
}

func TestNormalize_AssignsIndexes(t *testing.T) {
	d := sampleDoc()
	d.Paragraphs[0].Index = 99
	d.Paragraphs[0].Sentences[1].Index = 99
	d.Normalize()

	for i, p := range d.Paragraphs {
		if p.Index != i {
			t.Errorf("paragraph %q index = %d, want %d", p.ID, p.Index, i)
		}
	}
	if got := d.Paragraphs[0].Sentences[1].Index; got != 1 {
		t.Errorf("sentence index = %d, want 1", got)
	}
}

func TestParagraphByID(t *testing.T) {
	d := sampleDoc()

	p, ok := d.ParagraphByID("p2")
	if !ok {
		t.Fatal("expected to find p2")
	}
	if p.Text != "A second paragraph." {
		t.Errorf("wrong paragraph: %q", p.Text)
	}

	if _, ok := d.ParagraphByID("nope"); ok {
		t.Error("expected miss for unknown id")
	}
}

func TestSentenceByID(t *testing.T) {
	d := sampleDoc()
	p := &d.Paragraphs[0]

	if _, ok := p.SentenceByID("s2"); !ok {
		t.Error("expected to find s2")
	}
	if _, ok := p.SentenceByID("s9"); ok {
		t.Error("expected miss for unknown sentence")
	}
}

func TestSentenceText(t *testing.T) {
	d := sampleDoc()
	p := &d.Paragraphs[0]

	if got := p.SentenceText(p.Sentences[0]); got != "First sentence here." {
		t.Errorf("sentence text = %q", got)
	}
	if got := p.SentenceText(document.Sentence{Start: 10, End: 5}); got != "" {
		t.Errorf("inverted span should yield empty, got %q", got)
	}
}

func TestContains(t *testing.T) {
	p := document.Paragraph{Text: "the quick brown fox"}

	if !p.Contains("quick brown") {
		t.Error("expected literal substring to match")
	}
	if p.Contains("slow brown") {
		t.Error("expected non-substring to miss")
	}
	if p.Contains("") {
		t.Error("empty quote must never match")
	}
}

func TestClone_Independent(t *testing.T) {
	d := sampleDoc()
	d.Sections = []document.Section{{ID: "sec-1", ParagraphIDs: []string{"p1", "p2"}}}

	cp := d.Clone()
	cp.Paragraphs[0].Text = "mutated"
	cp.Paragraphs[0].Sentences[0].End = 7
	cp.Sections[0].ParagraphIDs[0] = "px"

	if d.Paragraphs[0].Text != "First sentence here. Second sentence there." {
		t.Error("clone mutation leaked into original paragraph text")
	}
	if d.Paragraphs[0].Sentences[0].End != 20 {
		t.Error("clone mutation leaked into original sentences")
	}
	if d.Sections[0].ParagraphIDs[0] != "p1" {
		t.Error("clone mutation leaked into original sections")
	}
}
