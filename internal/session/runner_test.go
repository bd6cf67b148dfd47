package session_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/spachava753/trialkit/internal/clock"
	"github.com/spachava753/trialkit/internal/models"
	"github.com/spachava753/trialkit/internal/render"
	"github.com/spachava753/trialkit/internal/session"
	"github.com/spachava753/trialkit/internal/trial"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var epoch = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func ms(n int) *time.Duration {
	d := time.Duration(n) * time.Millisecond
	return &d
}

type press struct {
	token string
	rt    time.Duration
}

// scriptedSource answers each Listen call with the next scripted press. A nil
// entry leaves the trial without a response.
type scriptedSource struct {
	clk    clock.Clock
	mu     sync.Mutex
	script []*press
}

type nopRegistration struct{}

func (nopRegistration) Cancel() {}

func (s *scriptedSource) Listen(set models.ResponseSet, fn func(string, time.Time)) (trial.Registration, error) {
	s.mu.Lock()
	var p *press
	if len(s.script) > 0 {
		p, s.script = s.script[0], s.script[1:]
	}
	s.mu.Unlock()

	if p != nil {
		at := s.clk.Now().Add(p.rt)
		go fn(p.token, at)
	}
	return nopRegistration{}, nil
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func waitPending(t *testing.T, clk *clock.Manual, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for clk.Pending() < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d pending timers", n)
		}
		time.Sleep(time.Millisecond)
	}
}

func textTrial(source string, choices models.ResponseSet, duration *time.Duration) models.TrialConfig {
	return models.TrialConfig{
		Plugin:              models.PluginHTMLKeyboard,
		Stimulus:            models.Stimulus{Kind: models.StimulusText, Source: source},
		Choices:             choices,
		TrialDuration:       duration,
		RespondingEndsTrial: true,
	}
}

type runOutcome struct {
	result *models.SessionResult
	err    error
}

func TestRunnerSession(t *testing.T) {
	clk := clock.NewManual(epoch)
	source := &scriptedSource{clk: clk, script: []*press{{token: "f", rt: 300 * time.Millisecond}, nil}}
	recorded := make(chan models.TrialResult, 8)

	cfg := models.SessionConfig{
		Name:        ptr("pilot"),
		OutputDir:   t.TempDir(),
		Participant: "P01",
	}
	trials := []models.TrialConfig{
		textTrial("A", models.AcceptTokens("f", "j"), ms(1000)),
		textTrial("B", models.AcceptNone(), ms(500)),
		textTrial("", models.AcceptAll(), ms(1000)),
		textTrial("C", models.AcceptTokens("f", "j"), ms(1000)),
	}

	runner := session.NewRunner(cfg, trials, session.Deps{
		Renderer: render.NewTerminal(io.Discard, render.DefaultCanvas(), 80, 24),
		Input:    source,
		Clock:    clk,
		NewID:    sequentialIDs(),
		OnResult: func(r models.TrialResult) { recorded <- r },
	})

	done := make(chan runOutcome, 1)
	go func() {
		sr, err := runner.Run(context.Background())
		done <- runOutcome{sr, err}
	}()

	// Trial 0 is answered by the scripted press.
	<-recorded

	// Trial 1 accepts no keys and ends at its deadline.
	waitPending(t, clk, 1)
	clk.Advance(500 * time.Millisecond)
	<-recorded

	// Trial 2 fails to start; trial 3 times out.
	<-recorded
	waitPending(t, clk, 1)
	clk.Advance(time.Second)
	<-recorded

	out := <-done
	if out.err != nil {
		t.Fatalf("Run failed: %v", out.err)
	}
	sr := out.result

	gotOutcomes := make([]models.Outcome, 0, len(sr.Results))
	for _, r := range sr.Results {
		gotOutcomes = append(gotOutcomes, r.Outcome)
	}
	wantOutcomes := []models.Outcome{
		models.OutcomeResponded,
		models.OutcomeTimedOut,
		models.OutcomeFailed,
		models.OutcomeTimedOut,
	}
	if diff := cmp.Diff(wantOutcomes, gotOutcomes); diff != "" {
		t.Errorf("outcomes mismatch (-want +got):\n%s", diff)
	}

	if sr.SessionID != "id-1" {
		t.Errorf("expected session id id-1, got %s", sr.SessionID)
	}
	if sr.TotalTrials != 4 || sr.RespondedTrials != 1 || sr.TimedOutTrials != 2 || sr.FailedTrials != 1 {
		t.Errorf("unexpected totals: %+v", sr)
	}
	if sr.MeanRTMS != 300 {
		t.Errorf("expected mean rt 300ms, got %f", sr.MeanRTMS)
	}
	if sr.Cancelled || sr.SkippedTrials != 0 {
		t.Errorf("expected uncancelled session, got cancelled=%v skipped=%d", sr.Cancelled, sr.SkippedTrials)
	}

	first := sr.Results[0]
	if first.Response == nil || first.Response.Token != "f" || first.Elapsed != 300*time.Millisecond {
		t.Errorf("unexpected first result: %+v", first)
	}
	if sr.Results[1].Elapsed != 500*time.Millisecond {
		t.Errorf("expected timeout at 500ms, got %v", sr.Results[1].Elapsed)
	}
	failed := sr.Results[2]
	if failed.Error == nil || failed.Error.Type != models.ErrStimulusMissing {
		t.Errorf("expected stimulus_missing error, got %+v", failed.Error)
	}

	summary := sr.Plugins[models.PluginHTMLKeyboard]
	if summary.TotalTrials != 4 || summary.RespondedTrials != 1 || summary.MeanRTMS != 300 {
		t.Errorf("unexpected plugin summary: %+v", summary)
	}

	sessionDir := filepath.Join(cfg.OutputDir, "pilot")
	for _, name := range []string{"config.json", "session.json", "results.csv", "trials/0/result.json", "trials/2/error.txt"} {
		if _, err := os.Stat(filepath.Join(sessionDir, name)); err != nil {
			t.Errorf("expected %s: %v", name, err)
		}
	}

	data, err := os.ReadFile(filepath.Join(sessionDir, "trials", "0", "result.json"))
	if err != nil {
		t.Fatal(err)
	}
	var rec map[string]any
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("result.json: %v", err)
	}
	if rec["rt_ms"] != float64(300) || rec["outcome"] != "responded" || rec["trial_id"] != "id-2" {
		t.Errorf("unexpected result.json: %v", rec)
	}

	f, err := os.Open(filepath.Join(sessionDir, "results.csv"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("reading results.csv: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("expected header and 4 rows, got %d", len(rows))
	}
	if rows[1][5] != "f" || rows[1][6] != "300" {
		t.Errorf("unexpected first csv row: %v", rows[1])
	}
	if rows[2][6] != "" || rows[2][7] != "500" {
		t.Errorf("unexpected second csv row: %v", rows[2])
	}
}

func TestRunnerCancel(t *testing.T) {
	clk := clock.NewManual(epoch)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := models.SessionConfig{Name: ptr("cancelled"), OutputDir: t.TempDir()}
	trials := []models.TrialConfig{
		textTrial("A", models.AcceptAll(), ms(1000)),
		textTrial("B", models.AcceptAll(), ms(1000)),
		textTrial("C", models.AcceptAll(), ms(1000)),
	}

	runner := session.NewRunner(cfg, trials, session.Deps{
		Renderer: render.NewTerminal(io.Discard, nil, 80, 24),
		Input:    &scriptedSource{clk: clk},
		Clock:    clk,
		NewID:    sequentialIDs(),
	})

	done := make(chan runOutcome, 1)
	go func() {
		sr, err := runner.Run(ctx)
		done <- runOutcome{sr, err}
	}()

	waitPending(t, clk, 1)
	cancel()

	out := <-done
	if out.err != nil {
		t.Fatalf("Run failed: %v", out.err)
	}
	sr := out.result
	if !sr.Cancelled {
		t.Error("expected cancelled session")
	}
	if sr.AbortedTrials != 1 || sr.SkippedTrials != 2 || sr.TotalTrials != 1 {
		t.Errorf("unexpected totals: aborted=%d skipped=%d total=%d", sr.AbortedTrials, sr.SkippedTrials, sr.TotalTrials)
	}
	if clk.Pending() != 0 {
		t.Errorf("expected aborted trial to release its timer, %d pending", clk.Pending())
	}
}

func TestRunnerRefusesExistingDir(t *testing.T) {
	out := t.TempDir()
	if err := os.MkdirAll(filepath.Join(out, "taken"), 0755); err != nil {
		t.Fatal(err)
	}

	cfg := models.SessionConfig{Name: ptr("taken"), OutputDir: out}
	runner := session.NewRunner(cfg, []models.TrialConfig{textTrial("A", models.AcceptNone(), ms(10))}, session.Deps{
		Renderer: render.NewTerminal(io.Discard, nil, 80, 24),
	})

	if _, err := runner.Run(context.Background()); err == nil {
		t.Fatal("expected error for existing session directory")
	}
}

type failingLoader struct{}

func (failingLoader) Preload(context.Context, string, []models.TrialConfig) error {
	return &models.ConfigurationError{Type: models.ErrStimulusMissing, Field: "stimulus.source", Reason: "missing"}
}

func TestRunnerPreloadFailure(t *testing.T) {
	out := t.TempDir()
	cfg := models.SessionConfig{Name: ptr("s"), OutputDir: out}
	runner := session.NewRunner(cfg, []models.TrialConfig{textTrial("A", models.AcceptNone(), ms(10))}, session.Deps{
		Renderer: render.NewTerminal(io.Discard, nil, 80, 24),
		Loader:   failingLoader{},
	})

	if _, err := runner.Run(context.Background()); !trial.IsConfigurationError(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(out, "s")); !os.IsNotExist(err) {
		t.Errorf("session directory should not be created when preload fails")
	}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRunnerLogsResultWriteFailure(t *testing.T) {
	clk := clock.NewManual(epoch)
	var logs lockedBuffer

	cfg := models.SessionConfig{Name: ptr("blocked"), OutputDir: t.TempDir()}
	runner := session.NewRunner(cfg, []models.TrialConfig{textTrial("A", models.AcceptNone(), ms(100))}, session.Deps{
		Renderer: render.NewTerminal(io.Discard, nil, 80, 24),
		Clock:    clk,
		NewID:    sequentialIDs(),
		Logger:   slog.New(slog.NewTextHandler(&logs, nil)),
	})

	done := make(chan runOutcome, 1)
	go func() {
		sr, err := runner.Run(context.Background())
		done <- runOutcome{sr, err}
	}()

	waitPending(t, clk, 1)
	// A directory where result.json should go makes the write fail.
	blocker := filepath.Join(cfg.OutputDir, "blocked", "trials", "0", "result.json")
	if err := os.MkdirAll(blocker, 0755); err != nil {
		t.Fatal(err)
	}
	clk.Advance(100 * time.Millisecond)

	out := <-done
	if out.err != nil {
		t.Fatalf("Run failed: %v", out.err)
	}
	if out.result.TimedOutTrials != 1 {
		t.Errorf("expected the trial to still be counted, got %+v", out.result)
	}
	if !strings.Contains(logs.String(), "writing trial result") {
		t.Errorf("expected write failure to be logged, got:\n%s", logs.String())
	}
}
