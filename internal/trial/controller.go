// Package trial runs the lifecycle of a single keyboard-response trial:
// present a stimulus, optionally hide it, wait for a response or a timeout,
// and report exactly one result.
package trial

import (
	"errors"
	"log/slog"
	"time"

	"github.com/spachava753/trialkit/internal/clock"
	"github.com/spachava753/trialkit/internal/models"
)

// Renderer draws stimuli. It is opaque to the timing logic.
type Renderer interface {
	// Show presents the stimulus with the prompt below it.
	Show(stim models.Stimulus, prompt string) error
	// Hide removes the stimulus but keeps the prompt.
	Hide(stim models.Stimulus)
	// Clear empties the display at the end of a trial.
	Clear()
}

// Registration is an active response listener. Cancel is idempotent.
type Registration interface {
	Cancel()
}

// ResponseSource delivers participant inputs matching a response set.
type ResponseSource interface {
	Listen(set models.ResponseSet, fn func(token string, at time.Time)) (Registration, error)
}

// Sink receives finalized trial results.
type Sink interface {
	Record(result models.TrialResult)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(models.TrialResult)

func (f SinkFunc) Record(result models.TrialResult) { f(result) }

// Controller starts trials against a fixed set of collaborators.
type Controller struct {
	renderer Renderer
	clock    clock.Clock
	input    ResponseSource
	sink     Sink
	logger   *slog.Logger
}

// NewController creates a controller. A nil clock uses clock.Real and a nil
// logger uses slog.Default.
func NewController(renderer Renderer, clk clock.Clock, input ResponseSource, sink Sink, logger *slog.Logger) *Controller {
	if clk == nil {
		clk = clock.Real
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		renderer: renderer,
		clock:    clk,
		input:    input,
		sink:     sink,
		logger:   logger,
	}
}

// Start validates cfg, presents the stimulus and arms the trial's timers and
// response listener. It never blocks; the result is delivered to the sink and
// through the returned handle.
func (c *Controller) Start(cfg models.TrialConfig) (*Handle, error) {
	if err := c.validate(cfg); err != nil {
		return nil, err
	}

	logger := c.logger.With("trial_id", cfg.ID, "index", cfg.Index, "plugin", cfg.Plugin)
	if cfg.TrialDuration == nil && !cfg.RespondingEndsTrial {
		logger.Warn("trial has no duration and responses do not end it; it ends only on abort")
	}

	h := &Handle{
		cfg:      cfg,
		renderer: c.renderer,
		clock:    c.clock,
		sink:     c.sink,
		logger:   logger,
		state:    models.StatePresenting,
		done:     make(chan struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := c.renderer.Show(cfg.Stimulus, cfg.Prompt); err != nil {
		return nil, &models.ConfigurationError{
			Type:   models.ErrRenderFailed,
			Field:  "stimulus",
			Reason: "render target rejected the stimulus",
			Err:    err,
		}
	}
	h.startedAt = c.clock.Now()
	h.wallStart = time.Now()

	if cfg.Choices.Mode != models.ResponseNone {
		reg, err := c.input.Listen(cfg.Choices, h.onResponse)
		if err != nil {
			c.renderer.Clear()
			return nil, &models.ConfigurationError{
				Type:   models.ErrInputFailed,
				Field:  "choices",
				Reason: "registering response listener",
				Err:    err,
			}
		}
		h.registration = reg
		h.state = models.StateAwaitingResponse
	}

	if cfg.StimulusDuration != nil {
		h.visibility = c.clock.AfterFunc(*cfg.StimulusDuration, h.onVisibilityElapsed)
	}
	if cfg.TrialDuration != nil {
		h.deadline = c.clock.AfterFunc(*cfg.TrialDuration, h.onDeadline)
	}

	logger.Debug("trial started",
		"stimulus", cfg.Stimulus.Label(),
		"choices", cfg.Choices.String(),
		"state", h.state.String())
	return h, nil
}

func (c *Controller) validate(cfg models.TrialConfig) error {
	if c.renderer == nil {
		return &models.ConfigurationError{Type: models.ErrStimulusMissing, Field: "renderer", Reason: "no render target"}
	}
	if c.sink == nil {
		return models.NewConfigurationError("sink", "no trial sink")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Choices.Mode != models.ResponseNone && c.input == nil {
		return &models.ConfigurationError{Type: models.ErrInputFailed, Field: "input", Reason: "no response source"}
	}
	return nil
}

// IsConfigurationError reports whether err is a *models.ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *models.ConfigurationError
	return errors.As(err, &cfgErr)
}
