// Package validate selects the final clip set from scored segments.
//
// Scoring hands back overlapping windows over the same transcript, often
// saying nearly the same thing. Validation walks the segments best first
// and applies two cuts in order: drop anything whose time range touches an
// already-kept clip, then drop anything whose wording nearly duplicates a
// kept clip. Walking in score order means the better clip always wins.
package validate

import (
	"github.com/clipforge/clipforge/internal/segment"
	"github.com/clipforge/clipforge/pkg/types"
)

// DefaultSimilarityThreshold is the Jaccard similarity at or above which a
// segment counts as a duplicate.
const DefaultSimilarityThreshold = 0.7

// Validator filters scored segments into a disjoint, deduplicated clip list.
type Validator struct {
	// SimilarityThreshold is the Jaccard cutoff. Zero falls back to 0.7.
	SimilarityThreshold float64
}

// New returns a Validator with default settings.
func New() Validator {
	return Validator{SimilarityThreshold: DefaultSimilarityThreshold}
}

// Validate returns the surviving clips, best first. The input slice is not
// modified. Any two survivors are time-disjoint and their texts stay below
// the similarity threshold; a pair exactly at the threshold does not
// survive together.
func (v Validator) Validate(scored []types.ScoredSegment) []types.ScoredSegment {
	threshold := v.SimilarityThreshold
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	if len(scored) == 0 {
		return nil
	}

	ranked := make([]types.ScoredSegment, len(scored))
	copy(ranked, scored)
	types.SortByScore(ranked)

	// Stage one: overlap removal.
	disjoint := make([]types.ScoredSegment, 0, len(ranked))
	for _, s := range ranked {
		if !overlapsAny(disjoint, s) {
			disjoint = append(disjoint, s)
		}
	}

	// Stage two: semantic dedup over the survivors.
	kept := make([]types.ScoredSegment, 0, len(disjoint))
	tokenSets := make([]map[string]struct{}, 0, len(disjoint))
	for _, s := range disjoint {
		ts := tokenSet(s.Text)
		if similarToAny(tokenSets, ts, threshold) {
			continue
		}
		kept = append(kept, s)
		tokenSets = append(tokenSets, ts)
	}
	return kept
}

func overlapsAny(kept []types.ScoredSegment, s types.ScoredSegment) bool {
	for _, k := range kept {
		if s.Start < k.End && k.Start < s.End {
			return true
		}
	}
	return false
}

func similarToAny(kept []map[string]struct{}, ts map[string]struct{}, threshold float64) bool {
	for _, k := range kept {
		if Jaccard(k, ts) >= threshold {
			return true
		}
	}
	return false
}

// tokenSet builds the comparison set for a text using the same word
// splitting as the segment features.
func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range segment.Tokenize(text) {
		set[tok] = struct{}{}
	}
	return set
}

// Jaccard is |a ∩ b| / |a ∪ b|. Two empty sets count as identical: clips
// with no words carry no signal worth keeping twice.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for tok := range small {
		if _, ok := large[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
