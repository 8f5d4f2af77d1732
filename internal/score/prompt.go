package score

import (
	"fmt"
	"strings"
)

// systemInstruction pins the model to machine-readable output. Everything
// about the task itself lives in the user prompt so operators can override
// it without losing the output contract.
const systemInstruction = `You are a short-form video clip analyst. ` +
	`Respond with exactly one JSON object and nothing else: no markdown fences, ` +
	`no commentary before or after. The object must have a "results" array with ` +
	`one entry per segment, each carrying the integer "id" it was given.`

// DefaultPromptTemplate is the built-in scoring instruction used when the
// config does not supply one.
const DefaultPromptTemplate = `Rate each transcript segment below for its potential ` +
	`as a standalone short-form video clip (TikTok, Reels, Shorts).

For every segment return one object in the "results" array:
  {"id": <segment id>,
   "hook_score": 0-10, "retention_score": 0-10, "emotion_score": 0-10,
   "relatability_score": 0-10, "completion_score": 0-10, "platform_fit_score": 0-10,
   "final_score": 0-100,
   "verdict": "viral" | "maybe" | "skip",
   "strengths": [...], "key_weaknesses": [...],
   "opening_hook": "<first words a viewer hears>",
   "primary_emotion": "<one word>",
   "optimal_platform": "tiktok" | "reels" | "shorts"}

Judge each segment on its own. A clip must make sense without the rest of
the video.`

// BuildBatchPrompt renders the user payload for one batch. Each candidate
// gets the integer id its response entry must echo; ids are positions
// within the batch, so positional fallback agrees with id matching when
// models echo faithfully.
func BuildBatchPrompt(template string, batch []promptSegment) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(template))
	sb.WriteString("\n\nSegments:\n")
	for _, s := range batch {
		fmt.Fprintf(&sb, "\n[id=%d] duration=%.1fs\n%s\n", s.ID, s.Duration, strings.TrimSpace(s.Text))
	}
	return sb.String()
}

// promptSegment is the slice of a candidate the prompt needs.
type promptSegment struct {
	ID       int
	Duration float64
	Text     string
}
