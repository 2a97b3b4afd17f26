package assistant

import "sync"

// DefaultContextLines is the window size used when none is configured.
const DefaultContextLines = 10

// ContextWindow holds the last N transcript lines in insertion order.
// Snapshot returns a copy, so readers never observe a later Append.
type ContextWindow struct {
	mu    sync.Mutex
	lines []string
	max   int
}

// NewContextWindow returns an empty window keeping n lines. A non-positive n
// selects [DefaultContextLines].
func NewContextWindow(n int) *ContextWindow {
	if n <= 0 {
		n = DefaultContextLines
	}
	return &ContextWindow{lines: make([]string, 0, n), max: n}
}

// Append adds line, evicting the oldest line once the window is full.
func (w *ContextWindow) Append(line string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.lines) == w.max {
		copy(w.lines, w.lines[1:])
		w.lines = w.lines[:w.max-1]
	}
	w.lines = append(w.lines, line)
}

// Snapshot returns the current lines, oldest first.
func (w *ContextWindow) Snapshot() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.lines))
	copy(out, w.lines)
	return out
}

// Len returns the number of lines held.
func (w *ContextWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.lines)
}

// Cap returns the window size.
func (w *ContextWindow) Cap() int { return w.max }

// Reset empties the window.
func (w *ContextWindow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lines = w.lines[:0]
}
