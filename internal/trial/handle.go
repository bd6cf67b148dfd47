package trial

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/spachava753/trialkit/internal/clock"
	"github.com/spachava753/trialkit/internal/models"
)

// errDuplicateFinalization is returned by finalize when the trial already ended.
// Callers drop it.
var errDuplicateFinalization = errors.New("trial: already finalized")

// Handle is a running trial. It owns the trial's timers and listener
// registration until the trial is finalized.
type Handle struct {
	cfg      models.TrialConfig
	renderer Renderer
	clock    clock.Clock
	sink     Sink
	logger   *slog.Logger

	// mu guards everything below. Timer and input callbacks arrive on
	// their own goroutines.
	mu           sync.Mutex
	state        models.TrialState
	startedAt    time.Time
	wallStart    time.Time
	visibility   clock.Timer
	deadline     clock.Timer
	registration Registration
	hidden       bool
	response     *models.ResponseEvent
	result       models.TrialResult
	done         chan struct{}
}

// ID returns the trial ID.
func (h *Handle) ID() string { return h.cfg.ID }

// State returns the current lifecycle state.
func (h *Handle) State() models.TrialState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Done is closed after the result has been recorded to the sink.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Result returns the trial result once the trial has finished.
func (h *Handle) Result() (models.TrialResult, bool) {
	select {
	case <-h.done:
		return h.result, true
	default:
		return models.TrialResult{}, false
	}
}

// Wait blocks until the trial finishes or ctx is done.
func (h *Handle) Wait(ctx context.Context) (models.TrialResult, error) {
	select {
	case <-h.done:
		return h.result, nil
	case <-ctx.Done():
		return models.TrialResult{}, ctx.Err()
	}
}

// Abort ends the trial without a response. It has no effect on a finished trial.
func (h *Handle) Abort() {
	_ = h.finalize(models.OutcomeAborted)
}

func (h *Handle) onResponse(token string, at time.Time) {
	h.mu.Lock()
	if h.state == models.StateFinalized {
		h.mu.Unlock()
		return
	}
	if h.response != nil {
		h.mu.Unlock()
		h.logger.Debug("ignoring response after the first", "token", token)
		return
	}

	// A key read before the trial started belongs to the previous screen.
	if at.Before(h.startedAt) {
		h.mu.Unlock()
		h.logger.Debug("ignoring response from before trial start", "token", token)
		return
	}
	ts := at.Sub(h.startedAt)
	h.response = &models.ResponseEvent{Token: token, Timestamp: ts}
	h.logger.Debug("response recorded", "token", token, "rt_ms", ts.Milliseconds())

	if !h.cfg.RespondingEndsTrial {
		h.mu.Unlock()
		return
	}
	res, err := h.closeLocked(models.OutcomeResponded, ts)
	h.mu.Unlock()
	if err == nil {
		h.emit(res)
	}
}

func (h *Handle) onVisibilityElapsed() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == models.StateFinalized || h.hidden {
		return
	}
	h.hidden = true
	h.renderer.Hide(h.cfg.Stimulus)
	h.logger.Debug("stimulus hidden")
}

func (h *Handle) onDeadline() {
	_ = h.finalize(models.OutcomeTimedOut)
}

// finalize is the single exit of a trial. The first call releases every timer
// and the listener, then records the result; later calls return
// errDuplicateFinalization.
func (h *Handle) finalize(outcome models.Outcome) error {
	h.mu.Lock()
	res, err := h.closeLocked(outcome, h.clock.Now().Sub(h.startedAt))
	h.mu.Unlock()
	if err != nil {
		return err
	}
	h.emit(res)
	return nil
}

// closeLocked moves the trial to Finalized and releases its resources. h.mu must be held.
func (h *Handle) closeLocked(outcome models.Outcome, elapsed time.Duration) (models.TrialResult, error) {
	if h.state == models.StateFinalized {
		return models.TrialResult{}, errDuplicateFinalization
	}
	h.state = models.StateFinalized

	if h.visibility != nil {
		h.visibility.Stop()
	}
	if h.deadline != nil {
		h.deadline.Stop()
	}
	if h.registration != nil {
		h.registration.Cancel()
	}

	if elapsed < 0 {
		elapsed = 0
	}
	// A stored response still counts when the deadline ends the trial.
	if outcome == models.OutcomeTimedOut && h.response != nil {
		outcome = models.OutcomeResponded
	}
	h.result = models.TrialResult{
		TrialID:   h.cfg.ID,
		Index:     h.cfg.Index,
		Plugin:    h.cfg.Plugin,
		Stimulus:  h.cfg.Stimulus.Label(),
		Response:  h.response,
		Elapsed:   elapsed,
		Outcome:   outcome,
		StartedAt: h.wallStart,
		EndedAt:   h.wallStart.Add(elapsed),
	}
	return h.result, nil
}

// emit runs once per trial, after the gate in closeLocked has been passed.
func (h *Handle) emit(res models.TrialResult) {
	h.renderer.Clear()
	h.sink.Record(res)
	h.logger.Debug("trial finalized",
		"outcome", res.Outcome,
		"elapsed_ms", res.Elapsed.Milliseconds())
	close(h.done)
}
