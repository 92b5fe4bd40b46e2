package authcore

import (
	"io"

	"github.com/MrEthical07/authcore/internal/audit"
)

// AuditEvent is the structured event emitted for every engine operation.
type AuditEvent = audit.Event

// AuditSink receives audit events from the engine's async dispatcher.
// Implementations must tolerate concurrent calls; slow sinks never block
// engine operations.
type AuditSink = audit.Sink

// NoOpSink discards audit events.
type NoOpSink = audit.NoOpSink

// ChannelSink buffers audit events in a channel for the caller to consume.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes one JSON-encoded event per line.
type JSONWriterSink = audit.JSONWriterSink

// NewChannelSink returns a ChannelSink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink wraps w in a line-oriented JSON sink.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}
