package segment

// emotionalLexicon is the fixed set of intensity words the builder and
// pre-filter count. Matching is exact on lower-cased, punctuation-stripped
// tokens; no stemming. The list skews toward words that open or close a
// strong claim, which is what short-form hooks are made of.
var emotionalLexicon = map[string]struct{}{
	"never":        {},
	"always":       {},
	"nobody":       {},
	"everybody":    {},
	"everyone":     {},
	"shocked":      {},
	"shocking":     {},
	"secret":       {},
	"truth":        {},
	"lie":          {},
	"lied":         {},
	"lying":        {},
	"wrong":        {},
	"right":        {},
	"mistake":      {},
	"mistakes":     {},
	"regret":       {},
	"hate":         {},
	"hated":        {},
	"love":         {},
	"loved":        {},
	"fear":         {},
	"afraid":       {},
	"terrified":    {},
	"amazing":      {},
	"incredible":   {},
	"unbelievable": {},
	"insane":       {},
	"crazy":        {},
	"worst":        {},
	"best":         {},
	"biggest":      {},
	"huge":         {},
	"massive":      {},
	"failed":       {},
	"failure":      {},
	"success":      {},
	"ruined":       {},
	"destroyed":    {},
	"broke":        {},
	"broken":       {},
	"warning":      {},
	"danger":       {},
	"problem":      {},
	"impossible":   {},
}

// countKeywords returns the number of lexicon tokens in text.
func countKeywords(text string) int {
	hits := 0
	for _, tok := range Tokenize(text) {
		if _, ok := emotionalLexicon[tok]; ok {
			hits++
		}
	}
	return hits
}
