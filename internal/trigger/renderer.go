package trigger

import (
	"log/slog"
	"sync"

	"github.com/spachava753/trialkit/internal/models"
	"github.com/spachava753/trialkit/internal/trial"
)

// Lines is the subset of DLP used by Renderer.
type Lines interface {
	Set(lines string) error
	Unset(lines string) error
}

// DefaultLines assigns one TTL line per stimulus kind.
var DefaultLines = map[models.StimulusKind]string{
	models.StimulusImage:  "1",
	models.StimulusText:   "3",
	models.StimulusHTML:   "3",
	models.StimulusCanvas: "4",
}

// Renderer wraps a trial renderer and raises a TTL line while a stimulus is visible.
type Renderer struct {
	next  trial.Renderer
	box   Lines
	lines map[models.StimulusKind]string

	mu     sync.Mutex
	active string
}

// NewRenderer decorates next. A nil lines map uses DefaultLines.
func NewRenderer(next trial.Renderer, box Lines, lines map[models.StimulusKind]string) *Renderer {
	if len(lines) == 0 {
		lines = DefaultLines
	}
	return &Renderer{next: next, box: box, lines: lines}
}

func (r *Renderer) Show(stim models.Stimulus, prompt string) error {
	if err := r.next.Show(stim, prompt); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if line, ok := r.lines[stim.Kind]; ok {
		if err := r.box.Set(line); err != nil {
			slog.Warn("stimulus onset trigger failed", "line", line, "error", err)
		} else {
			r.active = line
		}
	}
	return nil
}

func (r *Renderer) Hide(stim models.Stimulus) {
	r.next.Hide(stim)
	r.release()
}

func (r *Renderer) Clear() {
	r.next.Clear()
	r.release()
}

func (r *Renderer) release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == "" {
		return
	}
	if err := r.box.Unset(r.active); err != nil {
		slog.Warn("stimulus offset trigger failed", "line", r.active, "error", err)
	}
	r.active = ""
}
