package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Plugin names the presentation plugin a trial is modelled on.
type Plugin string

const (
	PluginHTMLKeyboard   Plugin = "html-keyboard-response"
	PluginImageKeyboard  Plugin = "image-keyboard-response"
	PluginCanvasKeyboard Plugin = "canvas-keyboard-response"
)

// Valid reports whether p is a known plugin.
func (p Plugin) Valid() bool {
	switch p {
	case PluginHTMLKeyboard, PluginImageKeyboard, PluginCanvasKeyboard:
		return true
	}
	return false
}

// StimulusKind identifies how a stimulus is rendered.
type StimulusKind string

const (
	StimulusText   StimulusKind = "text"
	StimulusHTML   StimulusKind = "html"
	StimulusImage  StimulusKind = "image"
	StimulusCanvas StimulusKind = "canvas"
)

// Stimulus is the content presented during a trial. It is opaque to the
// lifecycle controller and only interpreted by renderers.
type Stimulus struct {
	Kind   StimulusKind `toml:"kind" yaml:"kind" json:"kind"`
	Source string       `toml:"source" yaml:"source" json:"source"` // text body, image path or canvas drawing name
	Width  int          `toml:"width,omitempty" yaml:"width,omitempty" json:"width,omitempty"`
	Height int          `toml:"height,omitempty" yaml:"height,omitempty" json:"height,omitempty"`
}

// Label returns a short identifier for logs and result records.
func (s Stimulus) Label() string {
	return string(s.Kind) + ":" + s.Source
}

// TrialConfig is the fully resolved configuration of a single trial.
type TrialConfig struct {
	ID                  string
	Index               int
	Plugin              Plugin
	Stimulus            Stimulus
	Prompt              string
	Choices             ResponseSet
	StimulusDuration    *time.Duration // nil: visible until the trial ends
	TrialDuration       *time.Duration // nil: no timeout
	RespondingEndsTrial bool
}

// Validate checks the configuration on its own, without any collaborators.
// It returns a *ConfigurationError.
func (c TrialConfig) Validate() error {
	if c.Stimulus.Source == "" {
		return &ConfigurationError{Type: ErrStimulusMissing, Field: "stimulus", Reason: "stimulus is empty"}
	}
	if c.StimulusDuration != nil && *c.StimulusDuration < 0 {
		return NewConfigurationError("stimulus_duration", fmt.Sprintf("negative duration %v", *c.StimulusDuration))
	}
	if c.TrialDuration != nil && *c.TrialDuration < 0 {
		return NewConfigurationError("trial_duration", fmt.Sprintf("negative duration %v", *c.TrialDuration))
	}

	switch c.Choices.Mode {
	case ResponseNone:
		if c.TrialDuration == nil {
			return NewConfigurationError("trial_duration", "required when choices is "+NoKeys)
		}
	case ResponseAll:
	case ResponseSetOf:
		if len(c.Choices.Tokens) == 0 {
			return NewConfigurationError("choices", "empty response set")
		}
	default:
		return NewConfigurationError("choices", fmt.Sprintf("unknown mode %q", c.Choices.Mode))
	}
	return nil
}

// TrialState is a lifecycle state of a running trial.
type TrialState int

const (
	StatePresenting TrialState = iota
	StateAwaitingResponse
	StateFinalized
)

func (s TrialState) String() string {
	switch s {
	case StatePresenting:
		return "presenting"
	case StateAwaitingResponse:
		return "awaiting_response"
	case StateFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// Outcome describes how a trial ended.
type Outcome string

const (
	OutcomeResponded Outcome = "responded"
	OutcomeTimedOut  Outcome = "timed_out"
	OutcomeAborted   Outcome = "aborted"
	OutcomeFailed    Outcome = "failed"
)

// ResponseEvent is a single accepted participant input.
type ResponseEvent struct {
	Token     string        `json:"token"`
	Timestamp time.Duration `json:"-"` // since trial start
}

// TrialResult contains the outcome of one finalized trial.
type TrialResult struct {
	TrialID   string         `json:"trial_id"`
	Index     int            `json:"index"`
	Plugin    Plugin         `json:"plugin"`
	Stimulus  string         `json:"stimulus"`
	Response  *ResponseEvent `json:"response"`
	Elapsed   time.Duration  `json:"-"`
	Outcome   Outcome        `json:"outcome"`
	Error     *TrialError    `json:"error"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   time.Time      `json:"ended_at"`
}

// TrialError records why a trial could not run.
type TrialError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
}

// RT returns the response latency, or nil when the trial ended without one.
func (r TrialResult) RT() *time.Duration {
	if r.Response == nil {
		return nil
	}
	rt := r.Response.Timestamp
	return &rt
}

// MarshalJSON adds millisecond fields for rt and elapsed time.
func (r TrialResult) MarshalJSON() ([]byte, error) {
	type plain TrialResult
	var rtMS *int64
	if rt := r.RT(); rt != nil {
		ms := rt.Milliseconds()
		rtMS = &ms
	}
	return json.Marshal(struct {
		plain
		RTMS      *int64 `json:"rt_ms"`
		ElapsedMS int64  `json:"elapsed_ms"`
	}{
		plain:     plain(r),
		RTMS:      rtMS,
		ElapsedMS: r.Elapsed.Milliseconds(),
	})
}
