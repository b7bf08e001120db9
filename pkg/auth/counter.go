// Package auth keeps per-server login reference counts.
//
// Several connections to the same server as the same user share one login
// ticket; the session layer increments the count on login and decrements it
// on logout, and only logs out of the server when the count drops to zero.
package auth

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/groboclown/p4ic4idea-sub032/pkg/metrics"
)

// Counter maps auth prefixes to reference counts. The zero value is ready
// to use and safe for concurrent use without external locking.
//
// The empty prefix stands for "no prefix": it is never stored and always
// counts 0.
type Counter struct {
	counts  sync.Map // string -> *atomic.Int64
	metrics metrics.RPCMetrics
}

// NewCounter returns a Counter that publishes counts to m (nil for none).
func NewCounter(m metrics.RPCMetrics) *Counter {
	return &Counter{metrics: m}
}

func (c *Counter) publish(prefix string, count int64) {
	if c.metrics != nil {
		c.metrics.SetAuthCount(prefix, count)
	}
}

// IncrementAndGet adds one to prefix, creating the entry on first use, and
// returns the new count.
func (c *Counter) IncrementAndGet(prefix string) int64 {
	if prefix == "" {
		return 0
	}

	v, ok := c.counts.Load(prefix)
	if !ok {
		v, _ = c.counts.LoadOrStore(prefix, new(atomic.Int64))
	}
	count := v.(*atomic.Int64).Add(1)
	c.publish(prefix, count)
	return count
}

// DecrementAndGet subtracts one from prefix and returns the new count.
// Unknown prefixes are left absent and report 0. Decrementing below zero
// is a caller bug; the value is returned as computed.
func (c *Counter) DecrementAndGet(prefix string) int64 {
	if prefix == "" {
		return 0
	}

	v, ok := c.counts.Load(prefix)
	if !ok {
		return 0
	}
	count := v.(*atomic.Int64).Add(-1)
	c.publish(prefix, count)
	return count
}

// Count returns the current count for prefix, 0 when unknown.
func (c *Counter) Count(prefix string) int64 {
	if prefix == "" {
		return 0
	}
	v, ok := c.counts.Load(prefix)
	if !ok {
		return 0
	}
	return v.(*atomic.Int64).Load()
}

// Clear removes every entry.
func (c *Counter) Clear() {
	c.counts.Range(func(key, _ any) bool {
		c.counts.Delete(key)
		c.publish(key.(string), 0)
		return true
	})
}

// Prefixes returns the known prefixes in sorted order.
func (c *Counter) Prefixes() []string {
	var prefixes []string
	c.counts.Range(func(key, _ any) bool {
		prefixes = append(prefixes, key.(string))
		return true
	})
	sort.Strings(prefixes)
	return prefixes
}

// Prefix builds the key under which logins to serverID as user are
// counted. Either part empty yields the empty prefix.
func Prefix(serverID, user string) string {
	if serverID == "" || user == "" {
		return ""
	}
	return serverID + "/" + user
}
