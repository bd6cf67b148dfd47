package render_test

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/spachava753/trialkit/internal/models"
	"github.com/spachava753/trialkit/internal/render"
)

func TestTerminalShowHideClear(t *testing.T) {
	var buf bytes.Buffer
	term := render.NewTerminal(&buf, nil, 0, 0)

	stim := models.Stimulus{Kind: models.StimulusText, Source: "BLUE"}
	if err := term.Show(stim, "Press f or j"); err != nil {
		t.Fatalf("Show failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "BLUE") {
		t.Errorf("expected stimulus in output, got %q", out)
	}
	if strings.Index(out, "BLUE") > strings.Index(out, "Press f or j") {
		t.Errorf("expected prompt below stimulus, got %q", out)
	}

	buf.Reset()
	term.Hide(stim)
	out = buf.String()
	if strings.Contains(out, "BLUE") {
		t.Errorf("hidden stimulus still drawn: %q", out)
	}
	if !strings.Contains(out, "Press f or j") {
		t.Errorf("expected prompt kept after hide, got %q", out)
	}

	buf.Reset()
	term.Hide(stim)
	if buf.Len() != 0 {
		t.Errorf("second Hide should not redraw, got %q", buf.String())
	}

	term.Clear()
	if strings.Contains(buf.String(), "Press") {
		t.Errorf("Clear should not redraw the prompt, got %q", buf.String())
	}
}

func TestTerminalImagePlaceholder(t *testing.T) {
	var buf bytes.Buffer
	term := render.NewTerminal(&buf, nil, 0, 0)

	err := term.Show(models.Stimulus{Kind: models.StimulusImage, Source: "face.png", Width: 64, Height: 32}, "")
	if err != nil {
		t.Fatalf("Show failed: %v", err)
	}
	if !strings.Contains(buf.String(), "[image face.png 64x32]") {
		t.Errorf("unexpected image placeholder: %q", buf.String())
	}
}

func TestTerminalCanvas(t *testing.T) {
	var buf bytes.Buffer
	canvas := render.DefaultCanvas()
	canvas.Register("dot", func(w io.Writer, width, height int) error {
		_, err := io.WriteString(w, "o\n")
		return err
	})
	term := render.NewTerminal(&buf, canvas, 11, 5)

	if err := term.Show(models.Stimulus{Kind: models.StimulusCanvas, Source: "dot"}, ""); err != nil {
		t.Fatalf("Show failed: %v", err)
	}
	if !strings.Contains(buf.String(), "o\n") {
		t.Errorf("custom drawer output missing: %q", buf.String())
	}

	err := term.Show(models.Stimulus{Kind: models.StimulusCanvas, Source: "missing"}, "")
	if err == nil {
		t.Error("expected error for unknown drawing")
	}
}

func TestTerminalNoTarget(t *testing.T) {
	term := render.NewTerminal(nil, nil, 0, 0)
	err := term.Show(models.Stimulus{Kind: models.StimulusText, Source: "x"}, "")
	if !errors.Is(err, render.ErrNoTarget) {
		t.Errorf("expected ErrNoTarget, got %v", err)
	}
	term.Hide(models.Stimulus{})
	term.Clear()
}

func TestDrawFixation(t *testing.T) {
	var buf bytes.Buffer
	if err := render.DrawFixation(&buf, 9, 5); err != nil {
		t.Fatalf("DrawFixation failed: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected 5 rows, got %d", len(lines))
	}
	if lines[2] != "  -----  " {
		t.Errorf("unexpected centre row %q", lines[2])
	}
	if lines[1][4] != '|' || lines[3][4] != '|' {
		t.Errorf("expected vertical bar in column 4, got %q / %q", lines[1], lines[3])
	}
	if lines[0] != strings.Repeat(" ", 9) {
		t.Errorf("expected blank first row, got %q", lines[0])
	}
}

func TestCanvasNames(t *testing.T) {
	names := render.DefaultCanvas().Names()
	if len(names) != 2 || names[0] != "blank" || names[1] != "fixation" {
		t.Errorf("unexpected built-in drawers: %v", names)
	}
}

func TestCRLF(t *testing.T) {
	var buf bytes.Buffer
	w := render.CRLF(&buf)
	n, err := io.WriteString(w, "a\nb\n")
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if n != 4 {
		t.Errorf("expected 4 bytes reported, got %d", n)
	}
	if buf.String() != "a\r\nb\r\n" {
		t.Errorf("unexpected output %q", buf.String())
	}
}
