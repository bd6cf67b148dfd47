// Package render draws trial stimuli to a terminal.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spachava753/trialkit/internal/models"
)

// ErrNoTarget is returned when the renderer has nowhere to draw.
var ErrNoTarget = errors.New("render: no display target")

const clearScreen = "\x1b[2J\x1b[H"

// Terminal renders stimuli as text on an ANSI terminal.
type Terminal struct {
	mu      sync.Mutex
	out     io.Writer
	canvas  *Canvas
	width   int
	height  int
	prompt  string
	visible bool
}

// NewTerminal creates a terminal renderer. A nil canvas registry uses DefaultCanvas.
func NewTerminal(out io.Writer, canvas *Canvas, width, height int) *Terminal {
	if canvas == nil {
		canvas = DefaultCanvas()
	}
	if width <= 0 {
		width = 40
	}
	if height <= 0 {
		height = 11
	}
	return &Terminal{out: out, canvas: canvas, width: width, height: height}
}

// Show clears the screen and draws the stimulus followed by the prompt.
func (t *Terminal) Show(stim models.Stimulus, prompt string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.out == nil {
		return ErrNoTarget
	}

	var b strings.Builder
	b.WriteString(clearScreen)
	if err := t.drawStimulus(&b, stim); err != nil {
		return err
	}
	if prompt != "" {
		b.WriteString("\n")
		b.WriteString(prompt)
		b.WriteString("\n")
	}
	if _, err := io.WriteString(t.out, b.String()); err != nil {
		return fmt.Errorf("writing stimulus: %w", err)
	}
	t.prompt = prompt
	t.visible = true
	return nil
}

// Hide clears the stimulus and redraws only the prompt.
func (t *Terminal) Hide(models.Stimulus) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.out == nil || !t.visible {
		return
	}
	t.visible = false
	out := clearScreen
	if t.prompt != "" {
		out += "\n" + t.prompt + "\n"
	}
	io.WriteString(t.out, out)
}

// Clear empties the screen.
func (t *Terminal) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.out == nil {
		return
	}
	t.visible = false
	t.prompt = ""
	io.WriteString(t.out, clearScreen)
}

func (t *Terminal) drawStimulus(b *strings.Builder, stim models.Stimulus) error {
	switch stim.Kind {
	case models.StimulusText, models.StimulusHTML, "":
		b.WriteString(stim.Source)
		b.WriteString("\n")
	case models.StimulusImage:
		if stim.Width > 0 && stim.Height > 0 {
			fmt.Fprintf(b, "[image %s %dx%d]\n", stim.Source, stim.Width, stim.Height)
		} else {
			fmt.Fprintf(b, "[image %s]\n", stim.Source)
		}
	case models.StimulusCanvas:
		if err := t.canvas.Draw(b, stim.Source, t.width, t.height); err != nil {
			return err
		}
	default:
		return fmt.Errorf("render: unsupported stimulus kind %q", stim.Kind)
	}
	return nil
}

// CRLF wraps w so that every "\n" is written as "\r\n". A terminal in raw
// mode no longer translates line feeds on output.
func CRLF(w io.Writer) io.Writer {
	return crlfWriter{w}
}

type crlfWriter struct {
	w io.Writer
}

func (c crlfWriter) Write(p []byte) (int, error) {
	if _, err := c.w.Write(bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))); err != nil {
		return 0, err
	}
	return len(p), nil
}
