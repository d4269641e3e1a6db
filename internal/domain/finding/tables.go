package finding

import "github.com/redlinehq/redline/internal/domain/agent"

// trackByAgent is total over the closed identity set. Briefing rarely emits
// findings, but when it does they are reader-experience observations.
var trackByAgent = map[agent.ID]Track{
	agent.Briefing:       TrackReader,
	agent.Clarity:        TrackReader,
	agent.Domain:         TrackMethodology,
	agent.RigorFind:      TrackMethodology,
	agent.RigorRewrite:   TrackMethodology,
	agent.Adversary:      TrackAdversarial,
	agent.AdversaryPanel: TrackAdversarial,
}

var dimensionsByCategory = map[Category][]Dimension{
	CategoryClaritySentence:        {DimReadability},
	CategoryClarityParagraph:       {DimReadability, DimStructure},
	CategoryClarityFlow:            {DimStructure, DimCoherence},
	CategoryRigorMethodology:       {DimMethodology},
	CategoryRigorLogic:             {DimLogic},
	CategoryRigorEvidence:          {DimEvidence},
	CategoryRigorStatistics:        {DimStatistics, DimMethodology},
	CategoryAdversarialWeakness:    {DimArgument},
	CategoryAdversarialGap:         {DimArgument, DimCompleteness},
	CategoryAdversarialAlternative: {DimArgument, DimCounterevidence},
	CategoryDomainUnsupported:      {DimEvidence},
	CategoryDomainContradiction:    {DimEvidence, DimCounterevidence},
}

// TrackOf returns the track for an agent identity. The mapping is a pure
// lookup; unknown identities fall back to the reader track but are rejected
// by validation before this matters.
func TrackOf(id agent.ID) Track {
	if t, ok := trackByAgent[id]; ok {
		return t
	}
	return TrackReader
}

// DimensionsOf returns a copy of the dimension set for a category. Every
// known category maps to at least one dimension.
func DimensionsOf(c Category) []Dimension {
	dims, ok := dimensionsByCategory[c]
	if !ok {
		return nil
	}
	out := make([]Dimension, len(dims))
	copy(out, dims)
	return out
}

// Categories returns the closed category vocabulary.
func Categories() []Category {
	out := make([]Category, 0, len(dimensionsByCategory))
	for c := range dimensionsByCategory {
		out = append(out, c)
	}
	return out
}

// KnownDimension reports whether d appears in any category's dimension set.
func KnownDimension(d Dimension) bool {
	for _, dims := range dimensionsByCategory {
		for _, have := range dims {
			if have == d {
				return true
			}
		}
	}
	return false
}
