// Package logs provides per-deployment log sinks. A handler collects the
// output of deploy and undeploy operations so UI collaborators can render it
// after the fact.
package logs

import (
	"strings"
	"sync"
	"time"
)

// DefaultMaxBytes is the retained-output cap applied when a handler is
// created with no explicit limit.
const DefaultMaxBytes = 256 * 1024

// Entry is one captured log line.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Line      string    `json:"line"`
}

// Handler is an append-only, size-bounded log sink keyed by deployment name.
// It is safe for concurrent use; operation goroutines write while readers
// snapshot.
type Handler struct {
	mu       sync.Mutex
	name     string
	maxBytes int
	size     int
	entries  []Entry
	partial  strings.Builder
}

// NewHandler creates a handler for the named deployment.
func NewHandler(name string) *Handler {
	return &Handler{
		name:     name,
		maxBytes: DefaultMaxBytes,
	}
}

// NewHandlerWithLimit creates a handler retaining at most maxBytes of output.
func NewHandlerWithLimit(name string, maxBytes int) *Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Handler{
		name:     name,
		maxBytes: maxBytes,
	}
}

// Name returns the deployment name this handler is associated with.
func (h *Handler) Name() string {
	return h.name
}

// Append records one log line, trimming oldest entries past the size limit.
func (h *Handler) Append(line string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.appendLocked(line)
}

func (h *Handler) appendLocked(line string) {
	h.entries = append(h.entries, Entry{Timestamp: time.Now(), Line: line})
	h.size += len(line)
	for h.size > h.maxBytes && len(h.entries) > 1 {
		h.size -= len(h.entries[0].Line)
		h.entries = h.entries[1:]
	}
}

// Write implements io.Writer so command output can be streamed directly into
// the handler. Input is split on newlines; an unterminated tail is buffered
// until the next write completes the line.
func (h *Handler) Write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, b := range p {
		if b == '\n' {
			h.appendLocked(h.partial.String())
			h.partial.Reset()
			continue
		}
		h.partial.WriteByte(b)
	}
	return len(p), nil
}

// Flush appends any buffered partial line.
func (h *Handler) Flush() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.partial.Len() > 0 {
		h.appendLocked(h.partial.String())
		h.partial.Reset()
	}
}

// Entries returns a copy of the retained log entries.
func (h *Handler) Entries() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Entry{}, h.entries...)
}

// Contents returns the retained output joined with newlines.
func (h *Handler) Contents() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var sb strings.Builder
	for i, e := range h.entries {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(e.Line)
	}
	return sb.String()
}
