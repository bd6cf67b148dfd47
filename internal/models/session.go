package models

import "time"

// SessionConfig represents the parsed session.yaml configuration.
type SessionConfig struct {
	Name        *string         `yaml:"name,omitempty" json:"name,omitempty"`
	OutputDir   string          `yaml:"output_dir" json:"output_dir"`
	Participant string          `yaml:"participant,omitempty" json:"participant,omitempty"`
	LogLevel    string          `yaml:"log_level,omitempty" json:"log_level,omitempty"`
	LogFile     string          `yaml:"log_file,omitempty" json:"log_file,omitempty"`
	StimuliDir  string          `yaml:"stimuli_dir,omitempty" json:"stimuli_dir,omitempty"`
	InputMode   InputMode       `yaml:"input_mode" json:"input_mode"`
	Trigger     *TriggerConfig  `yaml:"trigger,omitempty" json:"trigger,omitempty"`
	Defaults    TrialDefaults   `yaml:"defaults,omitempty" json:"defaults,omitempty"`
	Timeline    []TimelineEntry `yaml:"timeline" json:"timeline"`

	// Revision is the git commit of the session directory, when it is a repository.
	Revision *string `yaml:"-" json:"revision,omitempty"`
}

// InputMode selects how keyboard input is read.
type InputMode string

const (
	InputRaw  InputMode = "raw"
	InputLine InputMode = "line"
)

// TriggerConfig configures an optional DLP-IO8-G TTL trigger box.
type TriggerConfig struct {
	Device string                  `yaml:"device" json:"device"`
	Baud   int                     `yaml:"baud,omitempty" json:"baud,omitempty"`
	Lines  map[StimulusKind]string `yaml:"lines,omitempty" json:"lines,omitempty"`
}

// TrialDefaults are applied to every trial file that leaves the field unset.
type TrialDefaults struct {
	Prompt              *string      `yaml:"prompt,omitempty" json:"prompt,omitempty"`
	Choices             *ResponseSet `yaml:"choices,omitempty" json:"-"`
	CaseSensitive       *bool        `yaml:"case_sensitive,omitempty" json:"case_sensitive,omitempty"`
	StimulusDuration    *string      `yaml:"stimulus_duration,omitempty" json:"stimulus_duration,omitempty"`
	TrialDuration       *string      `yaml:"trial_duration,omitempty" json:"trial_duration,omitempty"`
	RespondingEndsTrial *bool        `yaml:"response_ends_trial,omitempty" json:"response_ends_trial,omitempty"`
}

// TimelineEntry references a trial definition file, or a block directory whose
// .toml files run in name order.
type TimelineEntry struct {
	Trial       string `yaml:"trial,omitempty" json:"trial,omitempty"`
	Block       string `yaml:"block,omitempty" json:"block,omitempty"`
	Repetitions int    `yaml:"repetitions,omitempty" json:"repetitions,omitempty"`
}

// SessionResult contains aggregate metrics across all trials of a session.
type SessionResult struct {
	SessionID        string                   `json:"session_id"`
	SessionName      string                   `json:"session_name"`
	Participant      string                   `json:"participant,omitempty"`
	Revision         *string                  `json:"revision,omitempty"`
	Cancelled        bool                     `json:"cancelled"`
	TotalTrials      int                      `json:"total_trials"`
	RespondedTrials  int                      `json:"responded_trials"`
	TimedOutTrials   int                      `json:"timed_out_trials"`
	AbortedTrials    int                      `json:"aborted_trials"`
	FailedTrials     int                      `json:"failed_trials"`
	SkippedTrials    int                      `json:"skipped_trials"`
	MeanRTMS         float64                  `json:"mean_rt_ms"`
	TotalDurationSec float64                  `json:"total_duration_sec"`
	StartedAt        time.Time                `json:"started_at"`
	EndedAt          time.Time                `json:"ended_at"`
	Plugins          map[Plugin]PluginSummary `json:"plugins"`
	Results          []TrialResult            `json:"results"`
}

// PluginSummary aggregates results for one plugin.
type PluginSummary struct {
	TotalTrials     int     `json:"total_trials"`
	RespondedTrials int     `json:"responded_trials"`
	TimedOutTrials  int     `json:"timed_out_trials"`
	MeanRTMS        float64 `json:"mean_rt_ms"`
}
