// Package types defines the shared data model used across all clipforge packages.
//
// These types form the lingua franca between providers, the segmentation and
// scoring stages, and the orchestrator. They are intentionally minimal: each
// package defines its own domain types, but cross-cutting data structures live
// here to avoid circular imports.
package types

import (
	"sort"
	"strings"
	"time"
)

// WordTiming holds per-word timestamps from transcribers that support them.
type WordTiming struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// TranscriptSegment is a single timed unit of transcribed speech. Transcribers
// emit roughly sentence-sized segments; the segment builder treats each one as
// a sentence unit.
type TranscriptSegment struct {
	// ID is the zero-based position of the segment within its transcript.
	ID int `json:"id"`

	// Start and End are offsets from the beginning of the audio, in seconds.
	Start float64 `json:"start"`
	End   float64 `json:"end"`

	// Text is the transcribed speech for this time range.
	Text string `json:"text"`

	// Words contains per-word detail when the transcriber provides it.
	// Nil for providers without word-level output.
	Words []WordTiming `json:"words,omitempty"`
}

// Duration returns the segment length in seconds.
func (s TranscriptSegment) Duration() float64 {
	return s.End - s.Start
}

// Transcript is the full speech-to-text result for one audio file.
// Segments are ordered by start time and do not overlap.
type Transcript struct {
	// AudioPath is the file the transcript was produced from.
	AudioPath string `json:"audio_path"`

	// Language is the detected or requested language code ("en", "de", ...).
	// Empty when the provider does not report it.
	Language string `json:"language,omitempty"`

	// Duration is the total audio length in seconds, when known.
	Duration float64 `json:"duration,omitempty"`

	Segments []TranscriptSegment `json:"segments"`
}

// Text joins all segment texts with single spaces.
func (t *Transcript) Text() string {
	parts := make([]string, 0, len(t.Segments))
	for _, seg := range t.Segments {
		if s := strings.TrimSpace(seg.Text); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// CandidateSource records which segmentation strategy produced a candidate.
type CandidateSource string

const (
	// SourceSentence marks candidates built from sentence windows.
	SourceSentence CandidateSource = "sentence"

	// SourcePause marks candidates built from pause-delimited spans.
	SourcePause CandidateSource = "pause"
)

// Candidate is a clip-sized window over the transcript, produced by the
// segment builder and narrowed by the heuristic pre-filter before scoring.
// Start/End are seconds from the beginning of the source video.
type Candidate struct {
	Start  float64         `json:"start"`
	End    float64         `json:"end"`
	Text   string          `json:"text"`
	Source CandidateSource `json:"source"`

	// SentenceCount is the number of transcript segments the window spans.
	SentenceCount int `json:"sentence_count"`

	// PauseDensity is the number of internal speech gaps per 10 seconds.
	PauseDensity float64 `json:"pause_density"`

	// KeywordHits counts matches against the emotional-keyword lexicon.
	KeywordHits int `json:"keyword_hits"`
}

// Duration returns the candidate length in seconds.
func (c Candidate) Duration() float64 {
	return c.End - c.Start
}

// Verdict is the model's overall judgement of a candidate clip.
type Verdict string

const (
	VerdictViral Verdict = "viral"
	VerdictMaybe Verdict = "maybe"
	VerdictSkip  Verdict = "skip"
)

// IsValid reports whether v is one of the three canonical verdicts.
func (v Verdict) IsValid() bool {
	switch v {
	case VerdictViral, VerdictMaybe, VerdictSkip:
		return true
	}
	return false
}

// ScoreReport is the structured judgement for one candidate. The six axis
// scores are on a 0–10 scale, FinalScore on 0–100. Fields the model returns
// beyond this shape are preserved in Extra so downstream tooling can read
// them back verbatim.
type ScoreReport struct {
	Hook         float64 `json:"hook_score"`
	Retention    float64 `json:"retention_score"`
	Emotion      float64 `json:"emotion_score"`
	Relatability float64 `json:"relatability_score"`
	Completion   float64 `json:"completion_score"`
	PlatformFit  float64 `json:"platform_fit_score"`

	FinalScore float64 `json:"final_score"`
	Verdict    Verdict `json:"verdict"`

	Strengths  []string `json:"strengths,omitempty"`
	Weaknesses []string `json:"key_weaknesses,omitempty"`

	// OpeningHook quotes the first moments of the clip as the model saw them.
	OpeningHook     string `json:"opening_hook,omitempty"`
	PrimaryEmotion  string `json:"primary_emotion,omitempty"`
	OptimalPlatform string `json:"optimal_platform,omitempty"`

	// Extra holds response fields outside the documented shape, verbatim.
	Extra map[string]any `json:"extra,omitempty"`
}

// Weights applied when the model omits final_score. Hook dominates because
// the first seconds decide whether a short-form viewer stays.
const (
	WeightHook         = 0.35
	WeightRetention    = 0.25
	WeightEmotion      = 0.20
	WeightCompletion   = 0.10
	WeightPlatformFit  = 0.05
	WeightRelatability = 0.05
)

// WeightedFinalScore computes the 0–100 composite from the six axis scores.
func (r ScoreReport) WeightedFinalScore() float64 {
	return 10 * (WeightHook*r.Hook +
		WeightRetention*r.Retention +
		WeightEmotion*r.Emotion +
		WeightCompletion*r.Completion +
		WeightPlatformFit*r.PlatformFit +
		WeightRelatability*r.Relatability)
}

// FallbackReport is the report attached to a candidate when no usable model
// judgement exists. All scores are zero and the verdict is skip; reason
// becomes the single entry in Weaknesses.
func FallbackReport(reason string) ScoreReport {
	return ScoreReport{
		Verdict:    VerdictSkip,
		Weaknesses: []string{reason},
	}
}

// ScoredSegment pairs a candidate with its score report.
type ScoredSegment struct {
	Candidate
	Report ScoreReport `json:"report"`
}

// SortByScore orders segments by FinalScore descending; ties break by
// earlier start, then earlier end, so equal inputs always produce equal
// output order.
func SortByScore(segs []ScoredSegment) {
	sort.SliceStable(segs, func(i, j int) bool {
		a, b := segs[i], segs[j]
		if a.Report.FinalScore != b.Report.FinalScore {
			return a.Report.FinalScore > b.Report.FinalScore
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.End < b.End
	})
}

// Stage identifies a pipeline stage. The values double as the checkpoint
// last_stage enum, so they are part of the on-disk contract.
type Stage string

const (
	StageAudio        Stage = "audio"
	StageTranscript   Stage = "transcript"
	StageSegmentation Stage = "segmentation"
	StageScoring      Stage = "scoring"
	StageValidation   Stage = "validation" // never checkpointed
)

// RunStats summarises one pipeline run for logs and the CLI summary.
type RunStats struct {
	Requests         int `json:"requests"`
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`

	Candidates int `json:"candidates"`
	Scored     int `json:"scored"`
	Validated  int `json:"validated"`

	// CacheHits lists stages satisfied from the checkpoint store.
	CacheHits []Stage `json:"cache_hits,omitempty"`

	// Spilled is true when scoring stopped early on a long rate-limit
	// cooldown and wrote a spill record.
	Spilled bool `json:"spilled,omitempty"`

	StageDurations map[Stage]time.Duration `json:"-"`
}
