package task

import (
	"context"
	"sync"
)

// LogBuffer collects the lines of one run. It has a single writer and any
// number of readers. Lines are only ever appended, so every read observes a
// prefix of the final log.
type LogBuffer struct {
	mu     sync.RWMutex
	lines  []string
	closed bool
	// changed is closed and replaced on every append, and closed for good
	// by Close.
	changed chan struct{}
}

// NewLogBuffer returns an empty, open buffer.
func NewLogBuffer() *LogBuffer {
	return &LogBuffer{
		lines:   []string{},
		changed: make(chan struct{}),
	}
}

// Append adds a line. Lines appended after Close are dropped.
func (b *LogBuffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.lines = append(b.lines, line)
	close(b.changed)
	b.changed = make(chan struct{})
}

// Close freezes the buffer and wakes all waiters. It is safe to call more
// than once.
func (b *LogBuffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.changed)
}

// Snapshot returns a copy of the lines appended so far.
func (b *LogBuffer) Snapshot() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string{}, b.lines...)
}

// Len returns the number of lines appended so far.
func (b *LogBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.lines)
}

// Wait blocks until lines beyond index from exist, the buffer is closed, or
// ctx is done. It returns the new lines and whether the buffer is closed
// with nothing further to read.
func (b *LogBuffer) Wait(ctx context.Context, from int) ([]string, bool, error) {
	if from < 0 {
		from = 0
	}
	for {
		b.mu.RLock()
		if len(b.lines) > from {
			lines := append([]string{}, b.lines[from:]...)
			b.mu.RUnlock()
			return lines, false, nil
		}
		if b.closed {
			b.mu.RUnlock()
			return nil, true, nil
		}
		changed := b.changed
		b.mu.RUnlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
}

var _ LogSink = (*LogBuffer)(nil)
