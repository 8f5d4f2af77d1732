package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/clipforge/clipforge/internal/checkpoint"
	"github.com/clipforge/clipforge/internal/score"
	"github.com/clipforge/clipforge/internal/source"
	stmock "github.com/clipforge/clipforge/pkg/provider/transcribe/mock"
	"github.com/clipforge/clipforge/pkg/types"
)

// fakeExtractor stands in for ffmpeg. It writes a placeholder WAV so the
// checkpoint's artifact-existence checks hold on later runs.
type fakeExtractor struct {
	calls int
	err   error
}

func (f *fakeExtractor) Extract(_ context.Context, _, audioPath string) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	if err := os.MkdirAll(filepath.Dir(audioPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(audioPath, []byte("RIFF fake wav"), 0o644)
}

// fakeScorer returns a scripted outcome, or a deterministic default that
// scores candidates 90, 80, 70, ... in input order.
type fakeScorer struct {
	calls   int
	gotLens []int
	outcome *score.Outcome
	err     error
}

func (f *fakeScorer) Score(_ context.Context, cands []types.Candidate) (*score.Outcome, error) {
	f.calls++
	f.gotLens = append(f.gotLens, len(cands))
	if f.err != nil {
		return nil, f.err
	}
	if f.outcome != nil {
		return f.outcome, nil
	}
	segs := make([]types.ScoredSegment, 0, len(cands))
	for i, c := range cands {
		segs = append(segs, types.ScoredSegment{
			Candidate: c,
			Report: types.ScoreReport{
				FinalScore: float64(90 - 10*i),
				Verdict:    types.VerdictMaybe,
			},
		})
	}
	types.SortByScore(segs)
	return &score.Outcome{
		Segments: segs,
		Stats:    score.Stats{Requests: 1, PromptTokens: 120, CompletionTokens: 60},
	}, nil
}

type eventLog struct {
	events []Event
}

func (l *eventLog) sink(ev Event) { l.events = append(l.events, ev) }

// testTranscript yields six sentence-window candidates over [0,36] with
// mostly disjoint vocabularies, so validation keeps exactly three clips.
func testTranscript() *types.Transcript {
	return &types.Transcript{
		AudioPath: "audio.wav",
		Language:  "en",
		Duration:  36,
		Segments: []types.TranscriptSegment{
			{ID: 0, Start: 0, End: 12, Text: "The launch was a complete disaster."},
			{ID: 1, Start: 12, End: 24, Text: "Nobody saw the numbers coming."},
			{ID: 2, Start: 24, End: 36, Text: "We fixed it in a weekend."},
		},
	}
}

// rig bundles a pipeline with its fakes so tests can re-create fresh fakes
// over the same cache directory and video between runs.
type rig struct {
	video       string
	extractor   *fakeExtractor
	transcriber *stmock.Transcriber
	scorer      *fakeScorer
	events      *eventLog
	store       *checkpoint.Store
	pipe        *Pipeline
}

func newRig(t *testing.T, cacheDir, video string) *rig {
	t.Helper()
	r := &rig{
		video:       video,
		extractor:   &fakeExtractor{},
		transcriber: &stmock.Transcriber{Transcript: testTranscript()},
		scorer:      &fakeScorer{},
		events:      &eventLog{},
		store:       checkpoint.NewStore(cacheDir),
	}
	var err error
	r.pipe, err = New(Options{
		Store:       r.store,
		Extractor:   r.extractor,
		Transcriber: r.transcriber,
		Scorer:      r.scorer,
		Events:      r.events.sink,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func writeVideo(t *testing.T, dir string, size int) string {
	t.Helper()
	path := filepath.Join(dir, "talk.mp4")
	if err := os.WriteFile(path, bytes.Repeat([]byte{0xAB}, size), 0o644); err != nil {
		t.Fatalf("write video: %v", err)
	}
	return path
}

func resolveSource(t *testing.T, video string) source.Source {
	t.Helper()
	src, err := source.Resolve(video)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return src
}

func TestRunFreshExecutesAllStages(t *testing.T) {
	cache := t.TempDir()
	video := writeVideo(t, t.TempDir(), 4096)
	r := newRig(t, cache, video)

	res, err := r.pipe.Run(context.Background(), video)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if r.extractor.calls != 1 || r.transcriber.CallCount() != 1 || r.scorer.calls != 1 {
		t.Errorf("calls extractor/transcriber/scorer = %d/%d/%d, want 1/1/1",
			r.extractor.calls, r.transcriber.CallCount(), r.scorer.calls)
	}
	if len(res.Stats.CacheHits) != 0 {
		t.Errorf("cache hits = %v, want none on a fresh run", res.Stats.CacheHits)
	}
	if res.Stats.Candidates != 6 {
		t.Errorf("candidates = %d, want 6", res.Stats.Candidates)
	}
	if res.Stats.Scored != 6 {
		t.Errorf("scored = %d, want 6", res.Stats.Scored)
	}
	if len(res.Clips) != 3 {
		t.Fatalf("clips = %d, want 3 after overlap removal", len(res.Clips))
	}
	if res.Stats.Validated != 3 {
		t.Errorf("validated = %d, want 3", res.Stats.Validated)
	}
	if res.Clips[0].Report.FinalScore != 90 {
		t.Errorf("top clip score = %v, want 90", res.Clips[0].Report.FinalScore)
	}
	if got := len(res.Stats.StageDurations); got != 5 {
		t.Errorf("stage durations = %d entries, want 5", got)
	}

	// Checkpoint reflects the full run.
	state, err := r.store.Load(resolveSource(t, video))
	if err != nil || state == nil {
		t.Fatalf("Load after run: state=%v err=%v", state, err)
	}
	if state.LastStage != types.StageScoring {
		t.Errorf("last stage = %q, want scoring", state.LastStage)
	}
	if !state.HasCompleted(types.StageScoring) {
		t.Error("scoring not marked complete with intact artifacts")
	}
	if state.Scoring.HighQualityCount != 3 {
		// Scores 90, 80, 70 reach the threshold; 60, 50, 40 do not.
		t.Errorf("high quality count = %d, want 3", state.Scoring.HighQualityCount)
	}
	if _, err := os.Stat(state.Transcription.TranscriptPath); err != nil {
		t.Errorf("transcript artifact missing: %v", err)
	}
}

func TestRunSecondRunFullyCached(t *testing.T) {
	cache := t.TempDir()
	video := writeVideo(t, t.TempDir(), 4096)

	first := newRig(t, cache, video)
	res1, err := first.pipe.Run(context.Background(), video)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}

	second := newRig(t, cache, video)
	res2, err := second.pipe.Run(context.Background(), video)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}

	if second.extractor.calls != 0 || second.transcriber.CallCount() != 0 || second.scorer.calls != 0 {
		t.Errorf("second run calls extractor/transcriber/scorer = %d/%d/%d, want 0/0/0",
			second.extractor.calls, second.transcriber.CallCount(), second.scorer.calls)
	}

	wantHits := []types.Stage{types.StageAudio, types.StageTranscript, types.StageSegmentation, types.StageScoring}
	if len(res2.Stats.CacheHits) != len(wantHits) {
		t.Fatalf("cache hits = %v, want %v", res2.Stats.CacheHits, wantHits)
	}
	for i, st := range wantHits {
		if res2.Stats.CacheHits[i] != st {
			t.Errorf("cache hit [%d] = %q, want %q", i, res2.Stats.CacheHits[i], st)
		}
	}

	// Idempotence: the cached rerun yields the same validated clip set.
	if len(res2.Clips) != len(res1.Clips) {
		t.Fatalf("clips = %d, want %d", len(res2.Clips), len(res1.Clips))
	}
	for i := range res1.Clips {
		a, b := res1.Clips[i], res2.Clips[i]
		if a.Start != b.Start || a.End != b.End || a.Report.FinalScore != b.Report.FinalScore {
			t.Errorf("clip %d differs between runs: %+v vs %+v", i, a, b)
		}
	}
}

func TestRunMissingTranscriptArtifactRerunsDownstream(t *testing.T) {
	cache := t.TempDir()
	video := writeVideo(t, t.TempDir(), 4096)

	first := newRig(t, cache, video)
	if _, err := first.pipe.Run(context.Background(), video); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	state, err := first.store.Load(resolveSource(t, video))
	if err != nil || state == nil {
		t.Fatalf("Load: state=%v err=%v", state, err)
	}
	if err := os.Remove(state.Transcription.TranscriptPath); err != nil {
		t.Fatalf("remove transcript artifact: %v", err)
	}

	second := newRig(t, cache, video)
	res, err := second.pipe.Run(context.Background(), video)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}

	if second.extractor.calls != 0 {
		t.Errorf("extractor calls = %d, want 0 (audio still cached)", second.extractor.calls)
	}
	if second.transcriber.CallCount() != 1 {
		t.Errorf("transcriber calls = %d, want 1 (artifact vanished)", second.transcriber.CallCount())
	}
	if second.scorer.calls != 1 {
		t.Errorf("scorer calls = %d, want 1 (downstream of the broken stage)", second.scorer.calls)
	}
	if len(res.Stats.CacheHits) != 1 || res.Stats.CacheHits[0] != types.StageAudio {
		t.Errorf("cache hits = %v, want [audio]", res.Stats.CacheHits)
	}
}

func TestRunSpilledScoringWritesNoScoringCheckpoint(t *testing.T) {
	cache := t.TempDir()
	video := writeVideo(t, t.TempDir(), 4096)

	partial := []types.ScoredSegment{
		{
			Candidate: types.Candidate{Start: 0, End: 30, Text: "Partial but scored."},
			Report:    types.ScoreReport{FinalScore: 77, Verdict: types.VerdictMaybe},
		},
	}

	first := newRig(t, cache, video)
	first.scorer.outcome = &score.Outcome{
		Segments: partial,
		Spilled:  true,
		Stats:    score.Stats{Requests: 2},
	}

	res, err := first.pipe.Run(context.Background(), video)
	if err != nil {
		t.Fatalf("Run with spill must not error, got: %v", err)
	}
	if !res.Stats.Spilled {
		t.Error("Stats.Spilled = false, want true")
	}
	if len(res.Clips) != 1 {
		t.Errorf("clips = %d, want validation over the partial list", len(res.Clips))
	}

	state, err := first.store.Load(resolveSource(t, video))
	if err != nil || state == nil {
		t.Fatalf("Load: state=%v err=%v", state, err)
	}
	if state.LastStage != types.StageSegmentation {
		t.Errorf("last stage = %q, want segmentation (spilled scoring is not checkpointed)", state.LastStage)
	}
	if state.Scoring != nil {
		t.Error("scoring payload present, want none after a spill")
	}

	// The next run redoes scoring from the cached candidates.
	second := newRig(t, cache, video)
	if _, err := second.pipe.Run(context.Background(), video); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if second.scorer.calls != 1 {
		t.Errorf("second run scorer calls = %d, want 1", second.scorer.calls)
	}
	if second.transcriber.CallCount() != 0 {
		t.Errorf("second run transcriber calls = %d, want 0", second.transcriber.CallCount())
	}
}

func TestRunStageFailureKeepsEarlierCheckpoints(t *testing.T) {
	cache := t.TempDir()
	video := writeVideo(t, t.TempDir(), 4096)

	broken := newRig(t, cache, video)
	broken.transcriber.Err = errors.New("whisper server unreachable")

	_, err := broken.pipe.Run(context.Background(), video)
	if err == nil {
		t.Fatal("Run with failing transcriber returned nil error")
	}
	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("err = %T, want *StageError", err)
	}
	if stageErr.Stage != types.StageTranscript {
		t.Errorf("failed stage = %q, want transcript", stageErr.Stage)
	}

	// Audio completed and stays cached for the retry.
	state, lerr := broken.store.Load(resolveSource(t, video))
	if lerr != nil || state == nil {
		t.Fatalf("Load: state=%v err=%v", state, lerr)
	}
	if !state.HasCompleted(types.StageAudio) {
		t.Error("audio checkpoint lost after downstream failure")
	}

	retry := newRig(t, cache, video)
	res, err := retry.pipe.Run(context.Background(), video)
	if err != nil {
		t.Fatalf("retry Run: %v", err)
	}
	if retry.extractor.calls != 0 {
		t.Errorf("retry extractor calls = %d, want 0", retry.extractor.calls)
	}
	if len(res.Stats.CacheHits) != 1 || res.Stats.CacheHits[0] != types.StageAudio {
		t.Errorf("retry cache hits = %v, want [audio]", res.Stats.CacheHits)
	}
}

func TestRunCancelledBeforeStart(t *testing.T) {
	cache := t.TempDir()
	video := writeVideo(t, t.TempDir(), 4096)
	r := newRig(t, cache, video)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.pipe.Run(ctx, video)
	if err == nil {
		t.Fatal("Run with cancelled context returned nil error")
	}
	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("err = %T, want *StageError", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled in chain", err)
	}

	// Nothing ran, nothing checkpointed.
	if state, _ := r.store.Load(resolveSource(t, video)); state != nil {
		t.Errorf("state = %+v, want none after immediate cancellation", state)
	}
}

func TestRunEventsInStageOrder(t *testing.T) {
	cache := t.TempDir()
	video := writeVideo(t, t.TempDir(), 4096)
	r := newRig(t, cache, video)

	if _, err := r.pipe.Run(context.Background(), video); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []struct {
		stage  types.Stage
		status EventStatus
	}{
		{types.StageAudio, EventStarted},
		{types.StageAudio, EventCompleted},
		{types.StageTranscript, EventStarted},
		{types.StageTranscript, EventCompleted},
		{types.StageSegmentation, EventStarted},
		{types.StageSegmentation, EventCompleted},
		{types.StageScoring, EventStarted},
		{types.StageScoring, EventCompleted},
		{types.StageValidation, EventStarted},
		{types.StageValidation, EventCompleted},
	}
	if len(r.events.events) != len(want) {
		t.Fatalf("events = %d, want %d: %+v", len(r.events.events), len(want), r.events.events)
	}
	for i, w := range want {
		ev := r.events.events[i]
		if ev.Stage != w.stage || ev.Status != w.status {
			t.Errorf("event[%d] = %s/%s, want %s/%s", i, ev.Stage, ev.Status, w.stage, w.status)
		}
	}
}

func TestRunCachedStagesEmitSkippedEvents(t *testing.T) {
	cache := t.TempDir()
	video := writeVideo(t, t.TempDir(), 4096)

	first := newRig(t, cache, video)
	if _, err := first.pipe.Run(context.Background(), video); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	second := newRig(t, cache, video)
	if _, err := second.pipe.Run(context.Background(), video); err != nil {
		t.Fatalf("second Run: %v", err)
	}

	skipped := 0
	for _, ev := range second.events.events {
		if ev.Status == EventSkipped {
			skipped++
		}
	}
	if skipped != 4 {
		t.Errorf("skipped events = %d, want 4", skipped)
	}
	last := second.events.events[len(second.events.events)-1]
	if last.Stage != types.StageValidation || last.Status != EventCompleted {
		t.Errorf("last event = %s/%s, want validation/completed", last.Stage, last.Status)
	}
}

func TestRunNoCandidatesYieldsEmptyClips(t *testing.T) {
	cache := t.TempDir()
	video := writeVideo(t, t.TempDir(), 4096)
	r := newRig(t, cache, video)
	r.transcriber.Transcript = &types.Transcript{
		Segments: []types.TranscriptSegment{
			{ID: 0, Start: 0, End: 3, Text: "Too short to clip."},
		},
	}

	res, err := r.pipe.Run(context.Background(), video)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Stats.Candidates != 0 {
		t.Errorf("candidates = %d, want 0", res.Stats.Candidates)
	}
	if len(r.scorer.gotLens) != 1 || r.scorer.gotLens[0] != 0 {
		t.Errorf("scorer received %v, want a single empty list", r.scorer.gotLens)
	}
	if len(res.Clips) != 0 {
		t.Errorf("clips = %d, want 0", len(res.Clips))
	}
}

func TestRunChangedVideoStartsFresh(t *testing.T) {
	cache := t.TempDir()
	dir := t.TempDir()
	video := writeVideo(t, dir, 4096)

	first := newRig(t, cache, video)
	if _, err := first.pipe.Run(context.Background(), video); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	// Same path, different size: a different fingerprint, so no cache applies.
	if err := os.WriteFile(video, bytes.Repeat([]byte{0xCD}, 8192), 0o644); err != nil {
		t.Fatalf("rewrite video: %v", err)
	}

	second := newRig(t, cache, video)
	res, err := second.pipe.Run(context.Background(), video)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if second.extractor.calls != 1 {
		t.Errorf("extractor calls = %d, want 1 for the changed video", second.extractor.calls)
	}
	if len(res.Stats.CacheHits) != 0 {
		t.Errorf("cache hits = %v, want none", res.Stats.CacheHits)
	}
}

func TestClearCacheRemovesStateAndArtifacts(t *testing.T) {
	cache := t.TempDir()
	video := writeVideo(t, t.TempDir(), 4096)

	r := newRig(t, cache, video)
	if _, err := r.pipe.Run(context.Background(), video); err != nil {
		t.Fatalf("Run: %v", err)
	}

	src := resolveSource(t, video)
	if err := r.pipe.ClearCache(video); err != nil {
		t.Fatalf("ClearCache: %v", err)
	}
	if state, _ := r.store.Load(src); state != nil {
		t.Error("state survives ClearCache")
	}
	if _, err := os.Stat(r.store.ArtifactDir(src)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("artifact dir stat err = %v, want not-exist", err)
	}

	// Clearing twice is fine.
	if err := r.pipe.ClearCache(video); err != nil {
		t.Errorf("second ClearCache: %v", err)
	}

	rerun := newRig(t, cache, video)
	if _, err := rerun.pipe.Run(context.Background(), video); err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if rerun.extractor.calls != 1 {
		t.Errorf("extractor calls after clear = %d, want 1", rerun.extractor.calls)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	store := checkpoint.NewStore(t.TempDir())
	ext := &fakeExtractor{}
	tr := &stmock.Transcriber{}
	sc := &fakeScorer{}

	tests := []struct {
		name string
		opts Options
	}{
		{"missing store", Options{Extractor: ext, Transcriber: tr, Scorer: sc}},
		{"missing extractor", Options{Store: store, Transcriber: tr, Scorer: sc}},
		{"missing transcriber", Options{Store: store, Extractor: ext, Scorer: sc}},
		{"missing scorer", Options{Store: store, Extractor: ext, Transcriber: tr}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.opts); err == nil {
				t.Error("New accepted incomplete options")
			}
		})
	}
}

func TestRunUnresolvableSource(t *testing.T) {
	r := newRig(t, t.TempDir(), filepath.Join(t.TempDir(), "absent.mp4"))

	_, err := r.pipe.Run(context.Background(), r.video)
	if err == nil {
		t.Fatal("Run on a missing file returned nil error")
	}
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		t.Errorf("err = %v, want a plain configuration error, not a stage error", err)
	}
}
