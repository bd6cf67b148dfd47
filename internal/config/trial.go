package config

import (
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/spachava753/trialkit/internal/models"
	"github.com/spachava753/trialkit/internal/util"
)

// TrialFile is the on-disk form of a trial definition.
type TrialFile struct {
	Plugin              models.Plugin      `toml:"plugin"`
	Prompt              string             `toml:"prompt"`
	Choices             models.ResponseSet `toml:"choices"`
	CaseSensitive       bool               `toml:"case_sensitive"`
	StimulusDuration    any                `toml:"stimulus_duration"`
	TrialDuration       any                `toml:"trial_duration"`
	RespondingEndsTrial bool               `toml:"response_ends_trial"`
	Stimulus            models.Stimulus    `toml:"stimulus"`
}

// DefaultTrialFile returns a TrialFile with default values.
func DefaultTrialFile() TrialFile {
	return TrialFile{
		Plugin:              models.PluginHTMLKeyboard,
		Choices:             models.AcceptAll(),
		RespondingEndsTrial: true,
	}
}

// LoadTrialConfig loads and parses a trial .toml file from fsys. Session defaults
// fill only the keys the file leaves undefined.
func LoadTrialConfig(fsys fs.FS, name string, defaults models.TrialDefaults) (models.TrialConfig, error) {
	tf := DefaultTrialFile()

	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return models.TrialConfig{}, fmt.Errorf("reading %s: %w", name, err)
	}

	md, err := toml.Decode(string(data), &tf)
	if err != nil {
		return models.TrialConfig{}, fmt.Errorf("parsing %s: %w", name, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return models.TrialConfig{}, fmt.Errorf("parsing %s: unknown keys %v", name, undecoded)
	}

	if !md.IsDefined("prompt") && defaults.Prompt != nil {
		tf.Prompt = *defaults.Prompt
	}
	if !md.IsDefined("choices") && defaults.Choices != nil {
		tf.Choices = *defaults.Choices
	}
	if !md.IsDefined("case_sensitive") && defaults.CaseSensitive != nil {
		tf.CaseSensitive = *defaults.CaseSensitive
	}
	if !md.IsDefined("response_ends_trial") && defaults.RespondingEndsTrial != nil {
		tf.RespondingEndsTrial = *defaults.RespondingEndsTrial
	}
	if !md.IsDefined("stimulus_duration") && defaults.StimulusDuration != nil {
		tf.StimulusDuration = *defaults.StimulusDuration
	}
	if !md.IsDefined("trial_duration") && defaults.TrialDuration != nil {
		tf.TrialDuration = *defaults.TrialDuration
	}

	cfg, err := tf.resolve()
	if err != nil {
		return models.TrialConfig{}, fmt.Errorf("%s: %w", name, err)
	}
	return cfg, nil
}

func (tf TrialFile) resolve() (models.TrialConfig, error) {
	if !tf.Plugin.Valid() {
		return models.TrialConfig{}, fmt.Errorf("plugin: unknown plugin %q", tf.Plugin)
	}

	stim := tf.Stimulus
	if stim.Kind == "" {
		stim.Kind = defaultKind(tf.Plugin)
	}
	switch tf.Plugin {
	case models.PluginImageKeyboard:
		if stim.Kind != models.StimulusImage {
			return models.TrialConfig{}, fmt.Errorf("stimulus.kind: %s requires an image stimulus", tf.Plugin)
		}
	case models.PluginCanvasKeyboard:
		if stim.Kind != models.StimulusCanvas {
			return models.TrialConfig{}, fmt.Errorf("stimulus.kind: %s requires a canvas stimulus", tf.Plugin)
		}
	}
	if stim.Source == "" {
		return models.TrialConfig{}, fmt.Errorf("stimulus.source: required")
	}

	stimDur, err := util.ParseMillis(tf.StimulusDuration)
	if err != nil {
		return models.TrialConfig{}, fmt.Errorf("stimulus_duration: %w", err)
	}
	trialDur, err := util.ParseMillis(tf.TrialDuration)
	if err != nil {
		return models.TrialConfig{}, fmt.Errorf("trial_duration: %w", err)
	}

	choices := tf.Choices
	choices.CaseSensitive = tf.CaseSensitive

	cfg := models.TrialConfig{
		Plugin:              tf.Plugin,
		Stimulus:            stim,
		Prompt:              tf.Prompt,
		Choices:             choices,
		StimulusDuration:    stimDur,
		TrialDuration:       trialDur,
		RespondingEndsTrial: tf.RespondingEndsTrial,
	}
	if err := cfg.Validate(); err != nil {
		return models.TrialConfig{}, err
	}
	return cfg, nil
}

func defaultKind(p models.Plugin) models.StimulusKind {
	switch p {
	case models.PluginImageKeyboard:
		return models.StimulusImage
	case models.PluginCanvasKeyboard:
		return models.StimulusCanvas
	default:
		return models.StimulusHTML
	}
}

// LoadTimeline loads every trial file referenced by cfg, expanding repetitions
// in timeline order. Paths are relative to fsys.
func LoadTimeline(fsys fs.FS, cfg models.SessionConfig) ([]models.TrialConfig, error) {
	cache := make(map[string]models.TrialConfig)
	load := func(name string) (models.TrialConfig, error) {
		if tc, ok := cache[name]; ok {
			return tc, nil
		}
		tc, err := LoadTrialConfig(fsys, name, cfg.Defaults)
		if err != nil {
			return tc, err
		}
		cache[name] = tc
		return tc, nil
	}

	var trials []models.TrialConfig
	for i, entry := range cfg.Timeline {
		var names []string
		if entry.Block != "" {
			dir, err := cleanPath(entry.Block)
			if err != nil {
				return nil, fmt.Errorf("timeline[%d]: %w", i, err)
			}
			names, err = blockFiles(fsys, dir)
			if err != nil {
				return nil, fmt.Errorf("timeline[%d]: %w", i, err)
			}
		} else {
			name, err := cleanPath(entry.Trial)
			if err != nil {
				return nil, fmt.Errorf("timeline[%d]: %w", i, err)
			}
			names = []string{name}
		}

		block := make([]models.TrialConfig, 0, len(names))
		for _, name := range names {
			tc, err := load(name)
			if err != nil {
				return nil, fmt.Errorf("timeline[%d]: %w", i, err)
			}
			block = append(block, tc)
		}

		reps := entry.Repetitions
		if reps <= 0 {
			reps = 1
		}
		for range reps {
			for _, tc := range block {
				tc.Index = len(trials)
				trials = append(trials, tc)
			}
		}
	}

	return trials, nil
}

func cleanPath(p string) (string, error) {
	name := path.Clean(filepath.ToSlash(strings.TrimPrefix(p, "./")))
	if !fs.ValidPath(name) {
		return "", fmt.Errorf("invalid path %q", p)
	}
	return name, nil
}

// blockFiles lists the .toml files directly inside dir, in name order.
func blockFiles(fsys fs.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading block directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".toml" {
			continue
		}
		names = append(names, path.Join(dir, entry.Name()))
	}

	if len(names) == 0 {
		return nil, fmt.Errorf("no trial files found in block %s", dir)
	}
	return names, nil
}
