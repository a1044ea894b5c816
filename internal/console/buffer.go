package console

import (
	"bytes"
	"sync"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// outputBuffer accumulates interleaved stdout and stderr. Writes may come from
// several goroutines.
type outputBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *outputBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *outputBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

// String returns the captured output as valid UTF-8. Ill-formed sequences are
// replaced with U+FFFD; nothing else is altered.
func (b *outputBuffer) String() string {
	b.mu.Lock()
	raw := b.buf.String()
	b.mu.Unlock()
	return sanitize(raw)
}

func sanitize(s string) string {
	out, _, err := transform.String(runes.ReplaceIllFormed(), s)
	if err != nil {
		return s
	}
	return out
}
