package segment

import (
	"sort"
	"strings"

	"github.com/clipforge/clipforge/pkg/types"
)

// DefaultPrefilterCount is how many candidates survive the pre-filter when
// the config does not say otherwise.
const DefaultPrefilterCount = 20

// Heuristic score terms. Each is capped so no single signal dominates.
const (
	sweetSpotBonus = 3.0 // duration in [20,60] s
	inBandBonus    = 1.5 // duration in [15,75] s

	keywordWeight = 0.5
	keywordCap    = 3.0

	terminatorWeight = 0.8 // per terminator per 10 s
	terminatorCap    = 2.0

	pauseWeight = 2.0
	pauseCap    = 2.0
)

// Prefilter returns at most n candidates ordered by descending heuristic
// score, ties broken by earlier start. The input slice is not modified;
// the result is a subset of it. n <= 0 selects the default of 20.
func Prefilter(candidates []types.Candidate, n int) []types.Candidate {
	if n <= 0 {
		n = DefaultPrefilterCount
	}
	if len(candidates) == 0 {
		return nil
	}

	type ranked struct {
		c     types.Candidate
		score float64
	}
	rs := make([]ranked, len(candidates))
	for i, c := range candidates {
		rs[i] = ranked{c: c, score: HeuristicScore(c)}
	}

	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].score != rs[j].score {
			return rs[i].score > rs[j].score
		}
		if rs[i].c.Start != rs[j].c.Start {
			return rs[i].c.Start < rs[j].c.Start
		}
		return rs[i].c.End < rs[j].c.End
	})

	if n > len(rs) {
		n = len(rs)
	}
	out := make([]types.Candidate, n)
	for i := range out {
		out[i] = rs[i].c
	}
	return out
}

// HeuristicScore is the cheap local ranking used by the pre-filter.
// Exported so the run summary can report why a candidate made the cut.
func HeuristicScore(c types.Candidate) float64 {
	score := 0.0

	switch d := c.Duration(); {
	case d >= 20 && d <= 60:
		score += sweetSpotBonus
	case d >= 15 && d <= 75:
		score += inBandBonus
	}

	score += capped(float64(c.KeywordHits)*keywordWeight, keywordCap)

	if d := c.Duration(); d > 0 {
		perTen := float64(countTerminators(c.Text)) / (d / 10)
		score += capped(perTen*terminatorWeight, terminatorCap)
	}

	score += capped(c.PauseDensity*pauseWeight, pauseCap)

	return score
}

func capped(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	return v
}

// countTerminators counts sentence-ending punctuation.
func countTerminators(text string) int {
	return strings.Count(text, ".") + strings.Count(text, "!") + strings.Count(text, "?")
}
