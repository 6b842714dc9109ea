package noteapi

import (
	"io"

	"github.com/Silent-Watcher/note-app-api/internal/audit"
)

// Audit types re-exported from internal/audit so consumers wire sinks
// without importing internal packages.
type (
	AuditEvent = audit.Event
	AuditSink  = audit.Sink
	NoOpSink   = audit.NoOpSink
)

// NewChannelSink returns a sink backed by a buffered channel, mainly for
// tests and in-process consumers.
func NewChannelSink(buffer int) *audit.ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink writing one JSON event per line.
func NewJSONWriterSink(w io.Writer) *audit.JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}
