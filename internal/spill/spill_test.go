package spill

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/clipforge/clipforge/pkg/types"
)

func TestWriteRecord(t *testing.T) {
	w := NewWriter(filepath.Join(t.TempDir(), "spills"))

	scored := []types.ScoredSegment{
		{
			Candidate: types.Candidate{Start: 0, End: 30, Text: "scored bit"},
			Report:    types.ScoreReport{FinalScore: 75, Verdict: types.VerdictViral},
		},
	}
	remaining := []types.Candidate{
		{Start: 40, End: 70, Text: "never scored"},
	}

	path, err := w.Write(scored, remaining, ReasonRateLimit)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if rec.Reason != "rate_limit_exceeded" {
		t.Errorf("Reason = %q, want rate_limit_exceeded", rec.Reason)
	}
	if age := time.Now().Unix() - rec.Timestamp; age < 0 || age > 60 {
		t.Errorf("Timestamp = %d, want recent Unix seconds", rec.Timestamp)
	}
	if len(rec.ScoredSegments) != 1 || rec.ScoredSegments[0].Text != "scored bit" {
		t.Errorf("ScoredSegments = %+v", rec.ScoredSegments)
	}
	if len(rec.RemainingSegments) != 1 || rec.RemainingSegments[0].Text != "never scored" {
		t.Errorf("RemainingSegments = %+v", rec.RemainingSegments)
	}
}

func TestWriteFilenameShape(t *testing.T) {
	w := NewWriter(t.TempDir())
	path, err := w.Write(nil, nil, ReasonRateLimit)
	if err != nil {
		t.Fatal(err)
	}
	re := regexp.MustCompile(`^spill_\d+_[0-9a-f-]{36}\.json$`)
	if base := filepath.Base(path); !re.MatchString(base) {
		t.Errorf("filename %q does not match spill_<unix>_<uuid>.json", base)
	}
}

func TestWriteUniqueNames(t *testing.T) {
	w := NewWriter(t.TempDir())
	seen := make(map[string]struct{})
	for i := 0; i < 5; i++ {
		path, err := w.Write(nil, nil, ReasonRateLimit)
		if err != nil {
			t.Fatal(err)
		}
		if _, dup := seen[path]; dup {
			t.Fatalf("duplicate spill path %q", path)
		}
		seen[path] = struct{}{}
	}
}

func TestWriteEmptyListsStayArrays(t *testing.T) {
	// Tooling reads these records; null vs [] matters to some parsers.
	w := NewWriter(t.TempDir())
	path, err := w.Write(nil, nil, ReasonRateLimit)
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	if string(raw["scored_segments"]) == "null" {
		t.Error("scored_segments serialized as null, want []")
	}
	if string(raw["remaining_segments"]) == "null" {
		t.Error("remaining_segments serialized as null, want []")
	}
}
