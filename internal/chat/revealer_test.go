package chat

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// load resets the buffer for text without scheduling ticks, so tests can
// drive Step by hand
func (r *Revealer) load(text string) {
	r.mu.Lock()
	r.loadLocked(text)
	r.mu.Unlock()
}

func TestRevealerStepsRuneByRune(t *testing.T) {
	text := "Amélie ✨"
	r := NewRevealer(time.Hour, nil)
	assert.False(t, r.Typing())

	r.load(text)
	assert.True(t, r.Typing())
	assert.Equal(t, "", r.Buffer())

	runes := []rune(text)
	fullSeen := 0
	for i := 1; i <= len(runes); i++ {
		more := r.Step()
		assert.Equal(t, string(runes[:i]), r.Buffer())
		if r.Buffer() == text {
			fullSeen++
		}
		assert.Equal(t, i < len(runes), more)
		assert.Equal(t, i < len(runes), r.Typing())
	}
	assert.Equal(t, 1, fullSeen)

	assert.False(t, r.Step())
	assert.Equal(t, text, r.Buffer())
}

func TestRevealerEmptyText(t *testing.T) {
	r := NewRevealer(0, nil)
	assert.Equal(t, DefaultRevealInterval, r.Interval())

	r.Start("")
	assert.False(t, r.Typing())
	_, ok := r.Snapshot()
	assert.False(t, ok)
}

func TestRevealerStartTicks(t *testing.T) {
	var mu sync.Mutex
	var buffers []string
	r := NewRevealer(time.Millisecond, func(buffer string, typing bool) {
		mu.Lock()
		buffers = append(buffers, buffer)
		mu.Unlock()
	})

	r.Start("hey")
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(buffers) == 3
	}, time.Second, time.Millisecond)
	assert.False(t, r.Typing())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"h", "he", "hey"}, buffers)
}

func TestRevealerRestartCancelsPrevious(t *testing.T) {
	r := NewRevealer(time.Hour, nil)
	r.load("first")
	r.Step()
	r.Step()

	r.load("second")
	assert.Equal(t, "", r.Buffer())
	assert.True(t, r.Step())
	assert.Equal(t, "s", r.Buffer())
}

func TestRevealerStop(t *testing.T) {
	r := NewRevealer(time.Hour, nil)
	r.Start("stop me")
	r.Step()
	r.Stop()

	assert.False(t, r.Typing())
	assert.False(t, r.Step())
	_, ok := r.Snapshot()
	assert.False(t, ok)
}
