package transport

import "sync/atomic"

// StreamStats accumulates traffic counters for one connection. It is shared
// by pointer between the connection and every reader or writer wrapping it.
type StreamStats struct {
	largestRecv       atomic.Int64
	largestSend       atomic.Int64
	totalBytesRecv    atomic.Int64
	totalBytesSent    atomic.Int64
	streamRecvs       atomic.Int64
	streamSends       atomic.Int64
	packetsRecv       atomic.Int64
	packetsSent       atomic.Int64
	largestPacketRecv atomic.Int64
	largestPacketSent atomic.Int64
	incompleteReads   atomic.Int64
}

// StreamStatsSnapshot is a point-in-time copy of StreamStats.
type StreamStatsSnapshot struct {
	LargestRecv       int64
	LargestSend       int64
	TotalBytesRecv    int64
	TotalBytesSent    int64
	StreamRecvs       int64
	StreamSends       int64
	PacketsRecv       int64
	PacketsSent       int64
	LargestPacketRecv int64
	LargestPacketSent int64
	IncompleteReads   int64
}

func raiseMax(v *atomic.Int64, n int64) {
	for {
		current := v.Load()
		if n <= current || v.CompareAndSwap(current, n) {
			return
		}
	}
}

// RecordRecv accounts for one read of n bytes.
func (s *StreamStats) RecordRecv(n int) {
	s.streamRecvs.Add(1)
	s.totalBytesRecv.Add(int64(n))
	raiseMax(&s.largestRecv, int64(n))
}

// RecordSend accounts for one write of n bytes.
func (s *StreamStats) RecordSend(n int) {
	s.streamSends.Add(1)
	s.totalBytesSent.Add(int64(n))
	raiseMax(&s.largestSend, int64(n))
}

// RecordPacketRecv accounts for one decoded packet with a payload of size bytes.
func (s *StreamStats) RecordPacketRecv(size int) {
	s.packetsRecv.Add(1)
	raiseMax(&s.largestPacketRecv, int64(size))
}

// RecordPacketSent accounts for one encoded packet.
func (s *StreamStats) RecordPacketSent(size int) {
	s.packetsSent.Add(1)
	raiseMax(&s.largestPacketSent, int64(size))
}

// RecordIncompleteRead counts a read that returned fewer bytes than asked.
func (s *StreamStats) RecordIncompleteRead() {
	s.incompleteReads.Add(1)
}

// LargestRecv is the high-water mark of single read sizes.
func (s *StreamStats) LargestRecv() int64 {
	return s.largestRecv.Load()
}

// Snapshot copies every counter.
func (s *StreamStats) Snapshot() StreamStatsSnapshot {
	return StreamStatsSnapshot{
		LargestRecv:       s.largestRecv.Load(),
		LargestSend:       s.largestSend.Load(),
		TotalBytesRecv:    s.totalBytesRecv.Load(),
		TotalBytesSent:    s.totalBytesSent.Load(),
		StreamRecvs:       s.streamRecvs.Load(),
		StreamSends:       s.streamSends.Load(),
		PacketsRecv:       s.packetsRecv.Load(),
		PacketsSent:       s.packetsSent.Load(),
		LargestPacketRecv: s.largestPacketRecv.Load(),
		LargestPacketSent: s.largestPacketSent.Load(),
		IncompleteReads:   s.incompleteReads.Load(),
	}
}
