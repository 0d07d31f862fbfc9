package chat

import (
	"sync"
	"time"
)

// DefaultRevealInterval is the delay between two revealed characters
const DefaultRevealInterval = 20 * time.Millisecond

// Revealer progressively reveals an already complete reply one character at
// a time. It only ever touches its own display buffer.
type Revealer struct {
	interval time.Duration
	onStep   func(buffer string, typing bool)

	mu     sync.Mutex
	target []rune
	pos    int
	typing bool
	gen    uint64
	stop   chan struct{}
}

// NewRevealer creates a revealer ticking at interval. onStep, if set, is
// called after every advance with the current buffer.
func NewRevealer(interval time.Duration, onStep func(buffer string, typing bool)) *Revealer {
	if interval <= 0 {
		interval = DefaultRevealInterval
	}
	return &Revealer{interval: interval, onStep: onStep}
}

// Interval returns the tick interval
func (r *Revealer) Interval() time.Duration {
	return r.interval
}

// must hold r.mu
func (r *Revealer) loadLocked(text string) {
	r.cancelLocked()
	r.target = []rune(text)
	r.pos = 0
	r.typing = len(r.target) > 0
}

// Start loads text and schedules one Step per interval until the whole text
// is revealed or Stop is called.
func (r *Revealer) Start(text string) {
	r.mu.Lock()
	r.loadLocked(text)
	if !r.typing {
		r.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	r.stop = stop
	gen := r.gen
	r.mu.Unlock()

	go r.run(gen, stop)
}

func (r *Revealer) run(gen uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !r.step(gen) {
				return
			}
		}
	}
}

// Step reveals one more character and reports whether the reveal is still in
// progress afterwards.
func (r *Revealer) Step() bool {
	r.mu.Lock()
	gen := r.gen
	r.mu.Unlock()
	return r.step(gen)
}

func (r *Revealer) step(gen uint64) bool {
	r.mu.Lock()
	if gen != r.gen || !r.typing {
		r.mu.Unlock()
		return false
	}
	r.pos++
	if r.pos >= len(r.target) {
		r.pos = len(r.target)
		r.typing = false
	}
	buffer := string(r.target[:r.pos])
	typing := r.typing
	r.mu.Unlock()

	if r.onStep != nil {
		r.onStep(buffer, typing)
	}
	return typing
}

// Stop cancels the running reveal; the display falls back to the stored text.
func (r *Revealer) Stop() {
	r.mu.Lock()
	r.cancelLocked()
	r.typing = false
	r.mu.Unlock()
}

// must hold r.mu
func (r *Revealer) cancelLocked() {
	r.gen++
	if r.stop != nil {
		close(r.stop)
		r.stop = nil
	}
}

// Typing reports whether a reveal is in progress
func (r *Revealer) Typing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.typing
}

// Buffer returns the currently revealed prefix
func (r *Revealer) Buffer() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return string(r.target[:r.pos])
}

// Snapshot returns the buffer and whether it should replace the stored text
func (r *Revealer) Snapshot() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.typing {
		return "", false
	}
	return string(r.target[:r.pos]), true
}
