// Package stimulus preloads trial stimuli before a session starts so that a
// missing or unreadable file fails the session up front rather than mid-run.
package stimulus

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/spachava753/trialkit/internal/models"
)

// DefaultConcurrency bounds parallel image decodes.
const DefaultConcurrency = 4

// Canvas reports which canvas drawings are available.
type Canvas interface {
	Has(name string) bool
}

// Info describes a preloaded image.
type Info struct {
	Path   string
	Format string
	Width  int
	Height int
}

// Loader decodes image headers and caches them by resolved path.
type Loader struct {
	Concurrency int
	Canvas      Canvas

	mu    sync.Mutex
	cache map[string]Info
}

// NewLoader creates a Loader. canvas may be nil to skip drawing checks.
func NewLoader(canvas Canvas) *Loader {
	return &Loader{
		Concurrency: DefaultConcurrency,
		Canvas:      canvas,
		cache:       make(map[string]Info),
	}
}

// Preload resolves image sources against dir, reads their dimensions and
// writes the resolved path and size back into trials. Canvas stimuli are
// checked against the canvas registry. Each distinct file is decoded once.
func (l *Loader) Preload(ctx context.Context, dir string, trials []models.TrialConfig) error {
	paths := make(map[string]struct{})
	for i := range trials {
		stim := &trials[i].Stimulus
		switch stim.Kind {
		case models.StimulusImage:
			paths[l.resolve(dir, stim.Source)] = struct{}{}
		case models.StimulusCanvas:
			if l.Canvas != nil && !l.Canvas.Has(stim.Source) {
				return &models.ConfigurationError{
					Type:   models.ErrStimulusMissing,
					Field:  "stimulus.source",
					Reason: fmt.Sprintf("trial %d: unknown canvas drawing %q", trials[i].Index, stim.Source),
				}
			}
		}
	}

	slog.Debug("preloading stimuli", "images", len(paths), "trials", len(trials))

	g, ctx := errgroup.WithContext(ctx)
	limit := l.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	g.SetLimit(limit)

	for p := range paths {
		if _, ok := l.Lookup(p); ok {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			info, err := decode(p)
			if err != nil {
				return err
			}
			l.mu.Lock()
			l.cache[p] = info
			l.mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	for i := range trials {
		stim := &trials[i].Stimulus
		if stim.Kind != models.StimulusImage {
			continue
		}
		info, _ := l.Lookup(l.resolve(dir, stim.Source))
		stim.Source = info.Path
		if stim.Width == 0 && stim.Height == 0 {
			stim.Width, stim.Height = info.Width, info.Height
		}
	}
	return nil
}

// Lookup returns cached information for a resolved path.
func (l *Loader) Lookup(path string) (Info, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	info, ok := l.cache[path]
	return info, ok
}

func (l *Loader) resolve(dir, source string) string {
	if filepath.IsAbs(source) || dir == "" {
		return filepath.Clean(source)
	}
	return filepath.Join(dir, source)
}

func decode(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, &models.ConfigurationError{
			Type:   models.ErrStimulusMissing,
			Field:  "stimulus.source",
			Reason: "opening image",
			Err:    err,
		}
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return Info{}, &models.ConfigurationError{
			Type:   models.ErrStimulusLoadFailed,
			Field:  "stimulus.source",
			Reason: fmt.Sprintf("decoding %s", path),
			Err:    err,
		}
	}

	slog.Debug("decoded image", "path", path, "format", format, "width", cfg.Width, "height", cfg.Height)
	return Info{Path: path, Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}
