package auth

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncrementDecrement(t *testing.T) {
	var c Counter
	prefix := Prefix("perforce:1666", "bruno")

	assert.Equal(t, int64(1), c.IncrementAndGet(prefix))
	assert.Equal(t, int64(2), c.IncrementAndGet(prefix))
	assert.Equal(t, int64(2), c.Count(prefix))
	assert.Equal(t, int64(1), c.DecrementAndGet(prefix))
	assert.Equal(t, int64(0), c.DecrementAndGet(prefix))
	assert.Equal(t, []string{prefix}, c.Prefixes(), "entries are never removed automatically")
}

func TestUnknownPrefix(t *testing.T) {
	var c Counter

	assert.Equal(t, int64(0), c.DecrementAndGet("nobody"))
	assert.Equal(t, int64(0), c.Count("nobody"))
	assert.Empty(t, c.Prefixes(), "decrement must not create an entry")
}

func TestEmptyPrefix(t *testing.T) {
	var c Counter

	assert.Equal(t, int64(0), c.IncrementAndGet(""))
	assert.Equal(t, int64(0), c.DecrementAndGet(""))
	assert.Equal(t, int64(0), c.Count(""))
	assert.Empty(t, c.Prefixes())

	assert.Equal(t, "", Prefix("", "user"))
	assert.Equal(t, "", Prefix("server", ""))
}

func TestClear(t *testing.T) {
	var c Counter
	c.IncrementAndGet("a/x")
	c.IncrementAndGet("b/y")
	require.Len(t, c.Prefixes(), 2)

	c.Clear()
	assert.Empty(t, c.Prefixes())
	assert.Equal(t, int64(0), c.Count("a/x"))
	assert.Equal(t, int64(1), c.IncrementAndGet("a/x"))
}

func TestConcurrentIncrements(t *testing.T) {
	const (
		goroutines = 32
		perG       = 500
	)

	var c Counter
	prefix := Prefix("ssl:perforce:1666", "build")

	var wg sync.WaitGroup
	start := make(chan struct{})
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for i := 0; i < perG; i++ {
				c.IncrementAndGet(prefix)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(goroutines*perG), c.Count(prefix))
}

func TestConcurrentMixed(t *testing.T) {
	var c Counter
	prefix := "p4:1666/dev"
	c.IncrementAndGet(prefix)

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				c.IncrementAndGet(prefix)
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				c.DecrementAndGet(prefix)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), c.Count(prefix))
}

type gaugeSpy struct {
	mu     sync.Mutex
	values map[string]int64
}

func (g *gaugeSpy) RecordPacket(string, int)             {}
func (g *gaugeSpy) RecordBytes(string, int)              {}
func (g *gaugeSpy) ObserveLargestRecv(int64)             {}
func (g *gaugeSpy) RecordTuningWarning(string)           {}
func (g *gaugeSpy) RecordDial(string, time.Duration)     {}
func (g *gaugeSpy) SetActiveConnections(int64)           {}
func (g *gaugeSpy) SetAuthCount(prefix string, n int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.values[prefix] = n
}

func TestMetricsPublished(t *testing.T) {
	spy := &gaugeSpy{values: map[string]int64{}}
	c := NewCounter(spy)

	c.IncrementAndGet("a/x")
	c.IncrementAndGet("a/x")
	assert.Equal(t, int64(2), spy.values["a/x"])

	c.Clear()
	assert.Equal(t, int64(0), spy.values["a/x"])
}
