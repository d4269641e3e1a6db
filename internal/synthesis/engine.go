// Package synthesis turns the raw multi-agent finding set into the final
// deduplicated, ranked review result. The engine is a pure function over
// its inputs: no agent calls, no clock, and the same input always produces
// the same output.
package synthesis

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/redlinehq/redline/internal/domain/agent"
	"github.com/redlinehq/redline/internal/domain/document"
	"github.com/redlinehq/redline/internal/domain/finding"
	"github.com/redlinehq/redline/internal/domain/review"
)

// Engine applies the merge policy. Methodology findings are individually
// consequential and never deduplicated; reader-experience findings may be
// superseded by an adversarial finding covering the same text.
type Engine struct {
	log *slog.Logger
}

// New creates an engine.
func New(log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{log: log}
}

// entry pairs a finding with its arrival position and cached sort keys.
// Position comes from the finding's first anchor.
type entry struct {
	f       finding.Finding
	arrival int
	parIdx  int
	start   int
}

// Synthesize merges, orders, and summarizes findings accumulated in arrival
// order. The input slice is never modified; merged survivors are fresh
// copies. An error means nothing could be produced at all, which the caller
// treats as fatal; everything recoverable degrades inside.
func (e *Engine) Synthesize(doc *document.DocObj, raw []finding.Finding, rollup agent.Rollup) ([]finding.Finding, review.Summary, error) {
	if doc == nil || len(doc.Paragraphs) == 0 {
		return nil, review.Summary{}, fmt.Errorf("synthesize: document unavailable")
	}

	parIdx := make(map[string]int, len(doc.Paragraphs))
	for i := range doc.Paragraphs {
		parIdx[doc.Paragraphs[i].ID] = i
	}

	var kept []entry  // methodology track, exempt from dedup
	var dedup []entry // reader and adversarial tracks
	for i, f := range raw {
		if len(f.Anchors) == 0 {
			e.log.Warn("dropping finding without anchors", "finding_id", f.ID, "agent", f.AgentID)
			continue
		}
		en := entry{f: f, arrival: i}
		en.parIdx, en.start = anchorPosition(f.Anchors[0], parIdx, len(doc.Paragraphs))
		if f.Track == finding.TrackMethodology {
			kept = append(kept, en)
			continue
		}
		dedup = append(dedup, en)
	}

	kept = append(kept, e.resolve(dedup)...)

	sort.Slice(kept, func(i, j int) bool {
		a, b := kept[i], kept[j]
		if ra, rb := a.f.Severity.Rank(), b.f.Severity.Rank(); ra != rb {
			return ra < rb
		}
		if a.parIdx != b.parIdx {
			return a.parIdx < b.parIdx
		}
		if a.start != b.start {
			return a.start < b.start
		}
		return a.arrival < b.arrival
	})

	out := make([]finding.Finding, len(kept))
	for i := range kept {
		out[i] = kept[i].f
	}
	return out, buildSummary(doc, out, rollup), nil
}

// resolve groups overlapping findings into connected components and keeps
// one survivor per group.
func (e *Engine) resolve(entries []entry) []entry {
	if len(entries) == 0 {
		return nil
	}

	parent := make([]int, len(entries))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}

	for i := 0; i < len(entries); i++ {
		for j := i + 1; j < len(entries); j++ {
			if overlaps(entries[i].f, entries[j].f) {
				parent[find(j)] = find(i)
			}
		}
	}

	groups := make(map[int][]entry, len(entries))
	var order []int
	for i := range entries {
		r := find(i)
		if _, seen := groups[r]; !seen {
			order = append(order, r)
		}
		groups[r] = append(groups[r], entries[i])
	}

	out := make([]entry, 0, len(order))
	for _, r := range order {
		out = append(out, e.resolveGroup(groups[r]))
	}
	return out
}

// resolveGroup picks the survivor of one overlap group. Groups are in
// arrival order, so a strict confidence comparison keeps the earliest
// arrival on ties.
func (e *Engine) resolveGroup(group []entry) entry {
	if len(group) == 1 {
		return group[0]
	}

	tracks := make(map[finding.Track]bool, 2)
	for _, en := range group {
		tracks[en.f.Track] = true
	}
	crossTrack := tracks[finding.TrackAdversarial] && len(tracks) > 1

	pool := group
	if crossTrack {
		pool = nil
		for _, en := range group {
			if en.f.Track == finding.TrackAdversarial {
				pool = append(pool, en)
			}
		}
	}

	best := pool[0]
	for _, en := range pool[1:] {
		if en.f.Confidence > best.f.Confidence {
			best = en
		}
	}

	if !crossTrack {
		for _, en := range group {
			if en.f.ID != best.f.ID {
				e.log.Debug("finding superseded", "dropped", en.f.ID, "kept", best.f.ID)
			}
		}
		return best
	}

	// The adversarial survivor absorbs the rest of the group: dimensions
	// become the union and the replaced ids land in metadata.
	merged := best.f
	dims := append([]finding.Dimension(nil), merged.Dimensions...)
	have := make(map[finding.Dimension]bool, len(dims))
	for _, d := range dims {
		have[d] = true
	}
	absorbed := make([]string, 0, len(group)-1)
	for _, en := range group {
		if en.f.ID == best.f.ID {
			continue
		}
		absorbed = append(absorbed, en.f.ID)
		for _, d := range en.f.Dimensions {
			if !have[d] {
				have[d] = true
				dims = append(dims, d)
			}
		}
		e.log.Debug("finding absorbed", "dropped", en.f.ID, "kept", best.f.ID)
	}
	merged.Dimensions = dims

	md := make(map[string]string, len(merged.Metadata)+1)
	for k, v := range merged.Metadata {
		md[k] = v
	}
	md["absorbed"] = strings.Join(absorbed, ",")
	merged.Metadata = md

	best.f = merged
	return best
}

// overlaps reports whether any anchor pair of the two findings covers the
// same text. An anchor without a char range covers its whole paragraph.
func overlaps(a, b finding.Finding) bool {
	for _, aa := range a.Anchors {
		for _, ba := range b.Anchors {
			if aa.ParagraphID != ba.ParagraphID {
				continue
			}
			if !aa.Ranged() || !ba.Ranged() {
				return true
			}
			if *aa.StartChar < *ba.EndChar && *ba.StartChar < *aa.EndChar {
				return true
			}
		}
	}
	return false
}

// anchorPosition resolves an anchor to its (paragraph index, start char)
// sort key. Rangeless anchors sort before ranged ones in the same
// paragraph; unknown paragraphs sort last.
func anchorPosition(a finding.Anchor, parIdx map[string]int, total int) (int, int) {
	idx, ok := parIdx[a.ParagraphID]
	if !ok {
		idx = total
	}
	start := -1
	if a.Ranged() {
		start = *a.StartChar
	}
	return idx, start
}
