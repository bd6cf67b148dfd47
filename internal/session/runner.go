// Package session runs a timeline of trials in order and writes their results.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spachava753/trialkit/internal/clock"
	"github.com/spachava753/trialkit/internal/models"
	"github.com/spachava753/trialkit/internal/trial"
)

// Preloader prepares stimuli before the first trial starts.
type Preloader interface {
	Preload(ctx context.Context, dir string, trials []models.TrialConfig) error
}

// Deps are the collaborators a Runner drives its trials with.
type Deps struct {
	Renderer trial.Renderer
	Input    trial.ResponseSource
	Clock    clock.Clock
	Loader   Preloader
	Logger   *slog.Logger
	// NewID generates session and trial IDs. Defaults to uuid.NewString.
	NewID func() string
	// OnResult, if set, is called after each trial result has been written.
	OnResult func(models.TrialResult)
}

// Runner executes a session's trials strictly one after another.
type Runner struct {
	cfg        models.SessionConfig
	trials     []models.TrialConfig
	deps       Deps
	controller *trial.Controller
	logger     *slog.Logger

	mu       sync.Mutex
	results  []models.TrialResult
	trialDir string
}

// NewRunner creates a runner for the expanded trial list of cfg.
func NewRunner(cfg models.SessionConfig, trials []models.TrialConfig, deps Deps) *Runner {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}

	r := &Runner{
		cfg:    cfg,
		trials: trials,
		deps:   deps,
		logger: deps.Logger,
	}
	r.controller = trial.NewController(deps.Renderer, deps.Clock, deps.Input, trial.SinkFunc(r.record), deps.Logger)
	return r
}

// Run executes every trial and writes the session directory. Cancelling ctx
// aborts the running trial and skips the rest; the partial session is still
// written.
func (r *Runner) Run(ctx context.Context) (*models.SessionResult, error) {
	startTime := time.Now()
	sessionID := r.deps.NewID()

	sessionName := startTime.Format("2006-01-02__15-04-05")
	if r.cfg.Participant != "" {
		sessionName = r.cfg.Participant + "__" + sessionName
	}
	if r.cfg.Name != nil {
		sessionName = *r.cfg.Name
	}
	sessionDir := filepath.Join(r.cfg.OutputDir, sessionName)

	if _, err := os.Stat(sessionDir); err == nil {
		return nil, fmt.Errorf("session directory already exists: %s (will not overwrite existing results)", sessionDir)
	}

	trials := make([]models.TrialConfig, len(r.trials))
	copy(trials, r.trials)
	for i := range trials {
		trials[i].Index = i
		if trials[i].ID == "" {
			trials[i].ID = r.deps.NewID()
		}
	}

	if r.deps.Loader != nil {
		if err := r.deps.Loader.Preload(ctx, r.cfg.StimuliDir, trials); err != nil {
			return nil, fmt.Errorf("preloading stimuli: %w", err)
		}
	}

	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		return nil, fmt.Errorf("creating session directory: %w", err)
	}
	r.mu.Lock()
	r.trialDir = filepath.Join(sessionDir, "trials")
	r.results = r.results[:0]
	r.mu.Unlock()

	if err := writeJSON(filepath.Join(sessionDir, "config.json"), r.cfg); err != nil {
		r.logger.Error("writing session config", "error", err)
	}

	logger := r.logger.With("session_id", sessionID)
	logger.Info("session started", "dir", sessionDir, "trials", len(trials))

	skipped := r.runSequential(ctx, trials)

	results := r.Results()
	sr := aggregateResults(sessionID, sessionName, r.cfg.Participant, results, startTime)
	sr.Revision = r.cfg.Revision
	sr.SkippedTrials = skipped
	if skipped > 0 || ctx.Err() != nil {
		sr.Cancelled = true
	}

	if err := writeEventLog(filepath.Join(sessionDir, "results.csv"), results); err != nil {
		return sr, fmt.Errorf("writing results.csv: %w", err)
	}
	if err := writeJSON(filepath.Join(sessionDir, "session.json"), sr); err != nil {
		return sr, fmt.Errorf("writing session.json: %w", err)
	}

	logger.Info("session finished",
		"responded", sr.RespondedTrials,
		"timed_out", sr.TimedOutTrials,
		"failed", sr.FailedTrials,
		"skipped", sr.SkippedTrials)
	return sr, nil
}

// runSequential starts each trial after the previous one has finalized.
// It returns the number of trials that never started.
func (r *Runner) runSequential(ctx context.Context, trials []models.TrialConfig) int {
	for i, tc := range trials {
		if ctx.Err() != nil {
			return len(trials) - i
		}

		h, err := r.controller.Start(tc)
		if err != nil {
			r.logger.Warn("trial failed to start", "trial_id", tc.ID, "index", tc.Index, "error", err)
			r.record(failedResult(tc, err))
			continue
		}

		select {
		case <-h.Done():
		case <-ctx.Done():
			h.Abort()
			<-h.Done()
		}
	}
	return 0
}

// record is the trial sink. It runs on whichever goroutine finalized the trial.
func (r *Runner) record(result models.TrialResult) {
	r.mu.Lock()
	r.results = append(r.results, result)
	dir := filepath.Join(r.trialDir, strconv.Itoa(result.Index))
	r.mu.Unlock()

	if err := os.MkdirAll(dir, 0755); err != nil {
		r.logger.Error("creating trial directory", "dir", dir, "error", err)
	} else {
		if err := writeJSON(filepath.Join(dir, "result.json"), result); err != nil {
			r.logger.Error("writing trial result", "trial_id", result.TrialID, "index", result.Index, "error", err)
		}
		if result.Error != nil {
			if err := os.WriteFile(filepath.Join(dir, "error.txt"), []byte(result.Error.Message), 0644); err != nil {
				r.logger.Error("writing trial error", "trial_id", result.TrialID, "index", result.Index, "error", err)
			}
		}
	}

	if r.deps.OnResult != nil {
		r.deps.OnResult(result)
	}
}

// Results returns the results recorded so far, in completion order.
func (r *Runner) Results() []models.TrialResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.TrialResult, len(r.results))
	copy(out, r.results)
	return out
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, data, 0644)
}

func failedResult(tc models.TrialConfig, err error) models.TrialResult {
	errType := models.ErrInternalError
	var cfgErr *models.ConfigurationError
	if errors.As(err, &cfgErr) {
		errType = cfgErr.Type
	}
	now := time.Now()
	return models.TrialResult{
		TrialID:   tc.ID,
		Index:     tc.Index,
		Plugin:    tc.Plugin,
		Stimulus:  tc.Stimulus.Label(),
		Outcome:   models.OutcomeFailed,
		Error:     &models.TrialError{Type: errType, Message: err.Error()},
		StartedAt: now,
		EndedAt:   now,
	}
}

func aggregateResults(sessionID, sessionName, participant string, results []models.TrialResult, startTime time.Time) *models.SessionResult {
	sr := &models.SessionResult{
		SessionID:   sessionID,
		SessionName: sessionName,
		Participant: participant,
		TotalTrials: len(results),
		StartedAt:   startTime,
		EndedAt:     time.Now(),
		Plugins:     make(map[models.Plugin]models.PluginSummary),
		Results:     results,
	}
	sr.TotalDurationSec = sr.EndedAt.Sub(sr.StartedAt).Seconds()

	var totalRT time.Duration
	var rtCount int

	pluginData := make(map[models.Plugin]struct {
		total     int
		responded int
		timedOut  int
		rts       []time.Duration
	})

	for _, res := range results {
		pd := pluginData[res.Plugin]
		pd.total++

		switch res.Outcome {
		case models.OutcomeResponded:
			sr.RespondedTrials++
			pd.responded++
		case models.OutcomeTimedOut:
			sr.TimedOutTrials++
			pd.timedOut++
		case models.OutcomeAborted:
			sr.AbortedTrials++
		case models.OutcomeFailed:
			sr.FailedTrials++
		}

		if rt := res.RT(); rt != nil {
			pd.rts = append(pd.rts, *rt)
			totalRT += *rt
			rtCount++
		}

		pluginData[res.Plugin] = pd
	}

	if rtCount > 0 {
		sr.MeanRTMS = msFloat(totalRT) / float64(rtCount)
	}

	for plugin, pd := range pluginData {
		var meanRT float64
		if len(pd.rts) > 0 {
			var sum time.Duration
			for _, rt := range pd.rts {
				sum += rt
			}
			meanRT = msFloat(sum) / float64(len(pd.rts))
		}
		sr.Plugins[plugin] = models.PluginSummary{
			TotalTrials:     pd.total,
			RespondedTrials: pd.responded,
			TimedOutTrials:  pd.timedOut,
			MeanRTMS:        meanRT,
		}
	}

	return sr
}

func msFloat(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
