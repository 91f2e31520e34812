package common

// StatusSink receives human readable diagnostics from ports, parsers and
// devices. Implementations must be safe for concurrent use.
type StatusSink interface {
	StatusMessage(t MsgType, source string, format string, args ...any)
}

// NopSink drops every message.
type NopSink struct{}

func (NopSink) StatusMessage(MsgType, string, string, ...any) {}
