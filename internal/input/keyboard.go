// Package input turns a terminal byte stream into response tokens and delivers
// them to trial listeners.
package input

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/spachava753/trialkit/internal/clock"
	"github.com/spachava753/trialkit/internal/models"
	"github.com/spachava753/trialkit/internal/trial"
)

// ErrClosed is returned by Listen after the input stream has ended.
var ErrClosed = errors.New("input: keyboard closed")

// Keyboard reads tokens from a reader and dispatches each one to every active
// registration whose response set accepts it.
type Keyboard struct {
	r     io.Reader
	mode  models.InputMode
	clock clock.Clock

	// OnInterrupt is called for Ctrl-C in raw mode instead of dispatching it.
	OnInterrupt func()

	mu     sync.Mutex
	nextID int
	regs   map[int]*registration
	closed bool
}

type registration struct {
	kb   *Keyboard
	id   int
	set  models.ResponseSet
	fn   func(string, time.Time)
	once sync.Once
}

func (r *registration) Cancel() {
	r.once.Do(func() {
		r.kb.mu.Lock()
		delete(r.kb.regs, r.id)
		r.kb.mu.Unlock()
	})
}

// NewKeyboard creates a keyboard reading from r. A nil clock uses clock.Real.
func NewKeyboard(r io.Reader, mode models.InputMode, clk clock.Clock) *Keyboard {
	if clk == nil {
		clk = clock.Real
	}
	if mode == "" {
		mode = models.InputLine
	}
	return &Keyboard{
		r:     r,
		mode:  mode,
		clock: clk,
		regs:  make(map[int]*registration),
	}
}

// Listen registers fn for tokens accepted by set.
func (k *Keyboard) Listen(set models.ResponseSet, fn func(token string, at time.Time)) (trial.Registration, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return nil, ErrClosed
	}
	k.nextID++
	reg := &registration{kb: k, id: k.nextID, set: normalizeSet(set), fn: fn}
	k.regs[reg.id] = reg
	return reg, nil
}

// Active returns the number of live registrations.
func (k *Keyboard) Active() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.regs)
}

// Run pumps input until the reader is exhausted or ctx is done. Cancelling ctx
// does not interrupt a blocked read; the goroutine exits on the next input or EOF.
func (k *Keyboard) Run(ctx context.Context) error {
	defer func() {
		k.mu.Lock()
		k.closed = true
		k.mu.Unlock()
	}()

	if k.mode == models.InputRaw {
		return k.runRaw(ctx)
	}
	return k.runLines(ctx)
}

func (k *Keyboard) runLines(ctx context.Context) error {
	sc := bufio.NewScanner(k.r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		at := k.clock.Now()
		token := strings.TrimSpace(sc.Text())
		if token == "" {
			continue
		}
		k.Dispatch(token, at)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	return nil
}

func (k *Keyboard) runRaw(ctx context.Context) error {
	br := bufio.NewReader(k.r)
	for {
		r, size, err := br.ReadRune()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		at := k.clock.Now()

		if r == utf8.RuneError && size == 1 {
			slog.Debug("input ignored: invalid UTF-8 byte")
			continue
		}
		if r == ctrlC {
			if k.OnInterrupt != nil {
				k.OnInterrupt()
			}
			continue
		}

		var token string
		if r < utf8.RuneSelf {
			token = KeyName(byte(r))
		} else {
			token = string(r)
		}
		// Arrow keys arrive as ESC [ A..D when already buffered.
		if r == 0x1b && br.Buffered() >= 2 {
			if next, _ := br.Peek(2); next[0] == '[' {
				if name, ok := arrowKeys[next[1]]; ok {
					br.Discard(2)
					token = name
				}
			}
		}
		k.Dispatch(token, at)
	}
}

// Dispatch delivers a token observed at the given time. Callbacks run without
// the keyboard lock held so they may cancel their registration.
func (k *Keyboard) Dispatch(token string, at time.Time) {
	k.mu.Lock()
	var targets []*registration
	for _, reg := range k.regs {
		if reg.set.Accepts(token) {
			targets = append(targets, reg)
		}
	}
	k.mu.Unlock()

	if len(targets) == 0 {
		slog.Debug("input ignored", "token", token)
		return
	}
	for _, reg := range targets {
		reg.fn(token, at)
	}
}

func normalizeSet(set models.ResponseSet) models.ResponseSet {
	if set.Mode != models.ResponseSetOf {
		return set
	}
	out := set
	out.Tokens = make([]string, len(set.Tokens))
	for i, t := range set.Tokens {
		out.Tokens[i] = NormalizeToken(t)
	}
	return out
}
