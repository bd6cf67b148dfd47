package render

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// Drawer paints a named canvas stimulus into a width x height character grid.
type Drawer func(w io.Writer, width, height int) error

// Canvas is a registry of named drawers for canvas stimuli.
type Canvas struct {
	mu      sync.RWMutex
	drawers map[string]Drawer
}

// NewCanvas returns an empty registry.
func NewCanvas() *Canvas {
	return &Canvas{drawers: make(map[string]Drawer)}
}

// DefaultCanvas returns a registry with the built-in fixation and blank drawers.
func DefaultCanvas() *Canvas {
	c := NewCanvas()
	c.Register("fixation", DrawFixation)
	c.Register("blank", DrawBlank)
	return c
}

// Register adds or replaces a drawer.
func (c *Canvas) Register(name string, d Drawer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drawers[name] = d
}

// Has reports whether a drawer is registered under name.
func (c *Canvas) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.drawers[name]
	return ok
}

// Names returns the registered drawer names in sorted order.
func (c *Canvas) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.drawers))
	for n := range c.drawers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Draw runs the drawer registered under name.
func (c *Canvas) Draw(w io.Writer, name string, width, height int) error {
	c.mu.RLock()
	d, ok := c.drawers[name]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("render: unknown canvas drawing %q", name)
	}
	return d(w, width, height)
}

// DrawFixation draws a centred fixation cross.
func DrawFixation(w io.Writer, width, height int) error {
	mx, my := width/2, height/2
	var b strings.Builder
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			switch {
			case y == my && x >= mx-2 && x <= mx+2:
				b.WriteByte('-')
			case x == mx && y >= my-1 && y <= my+1:
				b.WriteByte('|')
			default:
				b.WriteByte(' ')
			}
		}
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// DrawBlank draws an empty grid.
func DrawBlank(w io.Writer, width, height int) error {
	_, err := io.WriteString(w, strings.Repeat(strings.Repeat(" ", width)+"\n", height))
	return err
}
