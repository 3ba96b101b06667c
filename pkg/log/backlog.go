package log

import (
	"fmt"
	"io"
	"sync"
)

// DefaultBacklogSize is the number of log lines a [Backlog] keeps by default.
const DefaultBacklogSize = 100

// Backlog holds log output back while the terminal UI owns the screen.
//
// It keeps the most recent lines, where a line is one Write call as made by
// an [slog.Handler], and counts the lines it had to drop.
type Backlog struct {
	lines   [][]byte
	size    int
	dropped int
	mu      sync.Mutex
}

// NewBacklog creates a [Backlog] keeping up to size lines. A size below one
// uses [DefaultBacklogSize].
func NewBacklog(size int) *Backlog {
	if size < 1 {
		size = DefaultBacklogSize
	}

	return &Backlog{size: size}
}

// Write implements [io.Writer]. p is copied.
func (b *Backlog) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	line := make([]byte, len(p))
	copy(line, p)

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.lines) == b.size {
		b.lines[0] = nil
		b.lines = b.lines[1:]
		b.dropped++
	}

	b.lines = append(b.lines, line)

	return len(p), nil
}

// Len returns the number of held lines.
func (b *Backlog) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.lines)
}

// Dropped returns the number of lines discarded to make room for newer ones.
func (b *Backlog) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.dropped
}

// Flush writes the held lines to w, oldest first, preceded by a notice if
// lines were dropped, and empties the backlog.
func (b *Backlog) Flush(w io.Writer) error {
	b.mu.Lock()
	lines, dropped := b.lines, b.dropped
	b.lines, b.dropped = nil, 0
	b.mu.Unlock()

	if dropped > 0 {
		_, err := fmt.Fprintf(w, "... %d earlier log lines dropped\n", dropped)
		if err != nil {
			return fmt.Errorf("write notice: %w", err)
		}
	}

	for _, line := range lines {
		_, err := w.Write(line)
		if err != nil {
			return fmt.Errorf("write log line: %w", err)
		}
	}

	return nil
}
