// Package segment turns a transcript into clip candidates and narrows them
// to the few worth spending model tokens on.
//
// Two strategies feed one pool: sentence windows (every run of consecutive
// transcript segments whose duration fits the clip band) and pause windows
// (spans between long speech gaps). The pool is deduplicated, annotated with
// cheap features, and handed to [Prefilter] which keeps the top N by a local
// heuristic score. Everything here is pure: same transcript and config in,
// same candidates out.
package segment

import (
	"sort"
	"strings"

	"github.com/clipforge/clipforge/pkg/types"
)

// Default clip duration band and pause boundary, in seconds.
const (
	DefaultMinDuration    = 10.0
	DefaultMaxDuration    = 75.0
	DefaultPauseThreshold = 1.5
)

// featureGap is the minimum internal silence counted toward pause density.
const featureGap = 0.5

// Builder produces clip candidates from a transcript.
type Builder struct {
	// MinDuration and MaxDuration bound candidate length in seconds.
	// Zero values fall back to the defaults (10 s and 75 s).
	MinDuration float64
	MaxDuration float64

	// PauseThreshold is the inter-sentence gap in seconds that splits
	// pause windows. Zero falls back to 1.5 s.
	PauseThreshold float64
}

// NewBuilder returns a Builder with default settings.
func NewBuilder() Builder {
	return Builder{
		MinDuration:    DefaultMinDuration,
		MaxDuration:    DefaultMaxDuration,
		PauseThreshold: DefaultPauseThreshold,
	}
}

func (b Builder) normalized() Builder {
	if b.MinDuration <= 0 {
		b.MinDuration = DefaultMinDuration
	}
	if b.MaxDuration <= 0 {
		b.MaxDuration = DefaultMaxDuration
	}
	if b.PauseThreshold <= 0 {
		b.PauseThreshold = DefaultPauseThreshold
	}
	return b
}

// Build returns all in-band candidates for the transcript, sorted by
// (start, end). Identical time ranges from the two strategies collapse to
// one candidate; the sentence variant wins the label.
func (b Builder) Build(t *types.Transcript) []types.Candidate {
	b = b.normalized()
	if t == nil || len(t.Segments) == 0 {
		return nil
	}

	pool := b.sentenceWindows(t.Segments)
	seen := make(map[[2]float64]struct{}, len(pool))
	for _, c := range pool {
		seen[[2]float64{c.Start, c.End}] = struct{}{}
	}
	for _, c := range b.pauseWindows(t.Segments) {
		key := [2]float64{c.Start, c.End}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		pool = append(pool, c)
	}

	sort.Slice(pool, func(i, j int) bool {
		if pool[i].Start != pool[j].Start {
			return pool[i].Start < pool[j].Start
		}
		return pool[i].End < pool[j].End
	})
	return pool
}

// sentenceWindows emits every window of consecutive segments whose duration
// lies within the band. Growth from a given start stops once the window
// exceeds the upper bound, so each start index yields at most a short run
// of candidates.
func (b Builder) sentenceWindows(segs []types.TranscriptSegment) []types.Candidate {
	var out []types.Candidate
	for i := range segs {
		for j := i; j < len(segs); j++ {
			d := segs[j].End - segs[i].Start
			if d > b.MaxDuration {
				break
			}
			if d >= b.MinDuration {
				out = append(out, b.candidate(segs[i:j+1], types.SourceSentence))
			}
		}
	}
	return out
}

// pauseWindows splits the transcript at gaps longer than PauseThreshold and
// keeps the in-band spans. Unlike sentence windows these do not overlap.
func (b Builder) pauseWindows(segs []types.TranscriptSegment) []types.Candidate {
	var out []types.Candidate
	spanStart := 0
	flush := func(end int) {
		span := segs[spanStart:end]
		if len(span) == 0 {
			return
		}
		d := span[len(span)-1].End - span[0].Start
		if d >= b.MinDuration && d <= b.MaxDuration {
			out = append(out, b.candidate(span, types.SourcePause))
		}
	}
	for i := 1; i < len(segs); i++ {
		if segs[i].Start-segs[i-1].End > b.PauseThreshold {
			flush(i)
			spanStart = i
		}
	}
	flush(len(segs))
	return out
}

// candidate assembles one candidate with its build-time features.
func (b Builder) candidate(span []types.TranscriptSegment, src types.CandidateSource) types.Candidate {
	start := span[0].Start
	end := span[len(span)-1].End

	texts := make([]string, 0, len(span))
	for _, s := range span {
		if t := strings.TrimSpace(s.Text); t != "" {
			texts = append(texts, t)
		}
	}
	text := strings.Join(texts, " ")

	gaps := 0
	for i := 1; i < len(span); i++ {
		if span[i].Start-span[i-1].End >= featureGap {
			gaps++
		}
	}
	density := 0.0
	if d := end - start; d > 0 {
		density = float64(gaps) / (d / 10)
	}

	return types.Candidate{
		Start:         start,
		End:           end,
		Text:          text,
		Source:        src,
		SentenceCount: len(span),
		PauseDensity:  density,
		KeywordHits:   countKeywords(text),
	}
}

// Tokenize lower-cases text and splits it into words, dropping punctuation.
// The keyword counter and the validator's similarity measure both use it, so
// their notions of "word" stay in sync.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !isWordRune(r)
	})
}

func isWordRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '\'': // keep contractions whole
		return true
	}
	return false
}
