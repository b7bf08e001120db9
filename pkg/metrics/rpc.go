package metrics

import "time"

// Directions used as label values.
const (
	DirectionRecv = "recv"
	DirectionSend = "send"
)

// Dial outcomes.
const (
	DialSuccess   = "success"
	DialFailure   = "failure"
	DialThrottled = "throttled"
)

// RPCMetrics observes Perforce RPC connections.
//
// Implementations must be safe for concurrent use. Pass nil (or the result
// of NewNoopRPCMetrics) where metrics are not wanted.
type RPCMetrics interface {
	// RecordPacket counts one packet and its payload size.
	RecordPacket(direction string, size int)

	// RecordBytes adds raw stream bytes, before packet framing.
	RecordBytes(direction string, n int)

	// ObserveLargestRecv reports the connection's largest single read so far.
	ObserveLargestRecv(n int64)

	// RecordTuningWarning counts a socket option that could not be applied.
	RecordTuningWarning(option string)

	// RecordDial records one connection attempt.
	RecordDial(result string, duration time.Duration)

	// SetActiveConnections updates the open connection gauge.
	SetActiveConnections(count int64)

	// SetAuthCount publishes the login reference count of an auth prefix.
	SetAuthCount(prefix string, count int64)
}

// NewNoopRPCMetrics returns an RPCMetrics that discards everything.
func NewNoopRPCMetrics() RPCMetrics {
	return noopRPCMetrics{}
}

// OrNoop returns m, or the no-op implementation when m is nil.
func OrNoop(m RPCMetrics) RPCMetrics {
	if m == nil {
		return noopRPCMetrics{}
	}
	return m
}

type noopRPCMetrics struct{}

func (noopRPCMetrics) RecordPacket(direction string, size int)          {}
func (noopRPCMetrics) RecordBytes(direction string, n int)              {}
func (noopRPCMetrics) ObserveLargestRecv(n int64)                       {}
func (noopRPCMetrics) RecordTuningWarning(option string)                {}
func (noopRPCMetrics) RecordDial(result string, duration time.Duration) {}
func (noopRPCMetrics) SetActiveConnections(count int64)                 {}
func (noopRPCMetrics) SetAuthCount(prefix string, count int64)          {}
