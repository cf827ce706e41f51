package docker

import (
	"bytes"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/mumahendras3/packer-server/internal/task"
)

// maxLineBytes caps a single log line; longer output is split.
const maxLineBytes = 64 * 1024

// lineWriter turns a byte stream into log lines for a task.LogSink. Writes
// from stdout and stderr share one writer so lines keep their order.
type lineWriter struct {
	mu   sync.Mutex
	sink task.LogSink
	buf  bytes.Buffer
}

func newLineWriter(sink task.LogSink) *lineWriter {
	return &lineWriter{sink: sink}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		data := w.buf.Bytes()
		i := bytes.IndexByte(data, '\n')
		switch {
		case i >= 0 && i <= maxLineBytes:
			w.emit(string(data[:i]))
			w.buf.Next(i + 1)
		case len(data) > maxLineBytes:
			n := splitPoint(data)
			w.emit(string(data[:n]))
			w.buf.Next(n)
		default:
			return len(p), nil
		}
	}
}

// Flush emits a trailing partial line.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
}

// emit sends one line to the sink. Invalid UTF-8 and NUL bytes become
// U+FFFD so every line can be stored as text.
func (w *lineWriter) emit(line string) {
	line = strings.TrimSuffix(line, "\r")
	line = strings.ToValidUTF8(line, "\uFFFD")
	w.sink.Append(strings.ReplaceAll(line, "\x00", "\uFFFD"))
}

// splitPoint returns where to cut an overlong line: at maxLineBytes, moved
// back to the start of a UTF-8 sequence. data is longer than maxLineBytes.
func splitPoint(data []byte) int {
	for n := maxLineBytes; n > maxLineBytes-utf8.UTFMax; n-- {
		if utf8.RuneStart(data[n]) {
			return n
		}
	}
	return maxLineBytes
}
