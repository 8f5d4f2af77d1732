package score

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/clipforge/clipforge/pkg/types"
)

// scoreField maps one report axis to the keys models use for it.
type scoreField struct {
	canonical string // documented key, e.g. "hook_score"
	short     string // bare name some models prefer, e.g. "hook"
	assign    func(*types.ScoreReport, float64)
}

var scoreFields = []scoreField{
	{"hook_score", "hook", func(r *types.ScoreReport, v float64) { r.Hook = v }},
	{"retention_score", "retention", func(r *types.ScoreReport, v float64) { r.Retention = v }},
	{"emotion_score", "emotion", func(r *types.ScoreReport, v float64) { r.Emotion = v }},
	{"relatability_score", "relatability", func(r *types.ScoreReport, v float64) { r.Relatability = v }},
	{"completion_score", "completion", func(r *types.ScoreReport, v float64) { r.Completion = v }},
	{"platform_fit_score", "platform_fit", func(r *types.ScoreReport, v float64) { r.PlatformFit = v }},
}

// documented lists every key the parser consumes; everything else lands in
// Extra.
var documented = map[string]struct{}{
	"id": {}, "scores": {},
	"hook_score": {}, "retention_score": {}, "emotion_score": {},
	"relatability_score": {}, "completion_score": {}, "platform_fit_score": {},
	"final_score": {}, "verdict": {},
	"strengths": {}, "key_weaknesses": {}, "weaknesses": {},
	"opening_hook": {}, "primary_emotion": {}, "optimal_platform": {},
}

// ParseReport converts one result object into a ScoreReport. Models drift
// from the requested shape in predictable ways, so each score is resolved
// by duck typing: the documented key, then the same keys nested under
// "scores", then a case-and-underscore-insensitive alias, then zero. A
// missing final_score is recomputed from the axis weights; an out-of-family
// verdict is normalized by edit distance, or "skip" when hopeless.
func ParseReport(obj map[string]any) types.ScoreReport {
	var r types.ScoreReport

	var nested map[string]any
	if n, ok := obj["scores"].(map[string]any); ok {
		nested = n
	}

	for _, f := range scoreFields {
		if v, ok := lookupScore(obj, nested, f.canonical, f.short); ok {
			f.assign(&r, v)
		}
	}

	if v, ok := lookupScore(obj, nested, "final_score", "final"); ok {
		r.FinalScore = v
	} else {
		r.FinalScore = r.WeightedFinalScore()
	}

	r.Verdict = normalizeVerdict(stringAt(obj, "verdict"))

	r.Strengths = stringsAt(obj, "strengths")
	r.Weaknesses = stringsAt(obj, "key_weaknesses")
	if r.Weaknesses == nil {
		r.Weaknesses = stringsAt(obj, "weaknesses")
	}

	r.OpeningHook = stringAt(obj, "opening_hook")
	r.PrimaryEmotion = stringAt(obj, "primary_emotion")
	r.OptimalPlatform = stringAt(obj, "optimal_platform")

	for k, v := range obj {
		if _, known := documented[k]; known {
			continue
		}
		if _, aliased := aliasConsumed[normalizeKey(k)]; aliased {
			continue
		}
		if r.Extra == nil {
			r.Extra = make(map[string]any)
		}
		r.Extra[k] = v
	}
	return r
}

// aliasConsumed holds normalized forms of keys the alias pass may consume,
// so they stay out of Extra.
var aliasConsumed = func() map[string]struct{} {
	m := make(map[string]struct{})
	for _, f := range scoreFields {
		m[normalizeKey(f.canonical)] = struct{}{}
		m[normalizeKey(f.short)] = struct{}{}
	}
	m[normalizeKey("final_score")] = struct{}{}
	m[normalizeKey("final")] = struct{}{}
	return m
}()

// lookupScore resolves one numeric field: direct key, nested "scores"
// object, then normalized alias at either level.
func lookupScore(obj, nested map[string]any, canonical, short string) (float64, bool) {
	if v, ok := asFloat(obj[canonical]); ok {
		return v, true
	}
	if nested != nil {
		if v, ok := asFloat(nested[canonical]); ok {
			return v, true
		}
		if v, ok := asFloat(nested[short]); ok {
			return v, true
		}
	}
	wantCanon, wantShort := normalizeKey(canonical), normalizeKey(short)
	for _, m := range []map[string]any{obj, nested} {
		for k, raw := range m {
			norm := normalizeKey(k)
			if norm != wantCanon && norm != wantShort {
				continue
			}
			if v, ok := asFloat(raw); ok {
				return v, true
			}
		}
	}
	return 0, false
}

// normalizeKey lowers a key and strips underscores, spaces, and dashes.
func normalizeKey(k string) string {
	k = strings.ToLower(k)
	return strings.Map(func(r rune) rune {
		switch r {
		case '_', ' ', '-':
			return -1
		}
		return r
	}, k)
}

// asFloat coerces the numeric shapes JSON decoding can produce, plus
// numeric strings, which some models emit for scores.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func stringAt(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return strings.TrimSpace(s)
}

func stringsAt(obj map[string]any, key string) []string {
	raw, ok := obj[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// maxVerdictDistance is how many edits away a verdict may be and still be
// recognised ("virall", "mayby").
const maxVerdictDistance = 2

var canonicalVerdicts = []types.Verdict{
	types.VerdictViral, types.VerdictMaybe, types.VerdictSkip,
}

// normalizeVerdict maps free-form verdict text onto the canonical three.
// Unrecognisable input is a skip; a model that cannot even name its verdict
// does not get the benefit of the doubt.
func normalizeVerdict(raw string) types.Verdict {
	v := types.Verdict(strings.ToLower(strings.TrimSpace(raw)))
	if v.IsValid() {
		return v
	}
	if v == "" {
		return types.VerdictSkip
	}
	best := types.VerdictSkip
	bestDist := maxVerdictDistance + 1
	for _, c := range canonicalVerdicts {
		if d := matchr.Levenshtein(string(v), string(c)); d < bestDist {
			best, bestDist = c, d
		}
	}
	if bestDist <= maxVerdictDistance {
		return best
	}
	return types.VerdictSkip
}

// BatchResult is one entry of a parsed batch response.
type BatchResult struct {
	// ID is the integer id echoed by the model, when present.
	ID int

	// HasID distinguishes id 0 from a missing id.
	HasID bool

	Report types.ScoreReport
}

// ParseBatch extracts and decodes a batch scoring response. The expected
// shape is {"results": [{...}, ...]}; a top-level object missing "results"
// yields an empty slice, which the engine turns into fallback reports.
func ParseBatch(raw string) ([]BatchResult, error) {
	payload, ok := ExtractJSON(raw)
	if !ok {
		return nil, fmt.Errorf("score: no JSON object in response")
	}

	var top map[string]any
	if err := json.Unmarshal([]byte(payload), &top); err != nil {
		return nil, fmt.Errorf("score: decode response: %w", err)
	}

	rawResults, ok := top["results"].([]any)
	if !ok {
		return nil, nil
	}

	out := make([]BatchResult, 0, len(rawResults))
	for _, rr := range rawResults {
		obj, ok := rr.(map[string]any)
		if !ok {
			continue
		}
		res := BatchResult{Report: ParseReport(obj)}
		if id, ok := asFloat(obj["id"]); ok {
			res.ID = int(id)
			res.HasID = true
		}
		out = append(out, res)
	}
	return out, nil
}
