package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groboclown/p4ic4idea-sub032/internal/ratelimiter"
)

// ============================================================================
// Spy socket
// ============================================================================

type call struct {
	name  string
	value any
}

type spySocket struct {
	calls []call
	fail  map[string]error
}

func (s *spySocket) record(name string, value any) error {
	s.calls = append(s.calls, call{name, value})
	return s.fail[name]
}

func (s *spySocket) SetNoDelay(v bool) error { return s.record(OptionNoDelay, v) }
func (s *spySocket) SetPerformancePreferences(c, l, b int) error {
	return s.record(OptionPerformance, [3]int{c, l, b})
}
func (s *spySocket) SetReadTimeout(d time.Duration) error { return s.record(OptionReadTimeout, d) }
func (s *spySocket) SetKeepAlive(v bool) error            { return s.record(OptionKeepAlive, v) }
func (s *spySocket) SetReadBuffer(n int) error            { return s.record(OptionRecvBuffer, n) }
func (s *spySocket) SetWriteBuffer(n int) error           { return s.record(OptionSendBuffer, n) }

func (s *spySocket) names() []string {
	out := make([]string, 0, len(s.calls))
	for _, c := range s.calls {
		out = append(out, c.name)
	}
	return out
}

func (s *spySocket) value(name string) (any, bool) {
	for _, c := range s.calls {
		if c.name == name {
			return c.value, true
		}
	}
	return nil, false
}

// ============================================================================
// Configure Tests
// ============================================================================

func TestConfigure(t *testing.T) {
	t.Run("Order", func(t *testing.T) {
		spy := &spySocket{}
		tuning := DefaultTuning()
		tuning.RecvBufferBytes = 65536
		tuning.SendBufferBytes = 32768

		warnings := Configure(spy, tuning)
		assert.Empty(t, warnings)
		assert.Equal(t, []string{
			OptionNoDelay,
			OptionPerformance,
			OptionReadTimeout,
			OptionKeepAlive,
			OptionRecvBuffer,
			OptionSendBuffer,
		}, spy.names())

		perf, _ := spy.value(OptionPerformance)
		assert.Equal(t, [3]int{1, 2, 0}, perf)
	})

	t.Run("ZeroRecvBufferNeverApplied", func(t *testing.T) {
		spy := &spySocket{}
		tuning := DefaultTuning()
		tuning.RecvBufferBytes = 0

		Configure(spy, tuning)
		_, called := spy.value(OptionRecvBuffer)
		assert.False(t, called)
		_, called = spy.value(OptionSendBuffer)
		assert.False(t, called)
	})

	t.Run("NonZeroRecvBufferExactValue", func(t *testing.T) {
		spy := &spySocket{}
		tuning := DefaultTuning()
		tuning.RecvBufferBytes = 123457

		Configure(spy, tuning)
		v, called := spy.value(OptionRecvBuffer)
		require.True(t, called)
		assert.Equal(t, 123457, v)
	})

	t.Run("ZeroTimeoutSkipped", func(t *testing.T) {
		spy := &spySocket{}
		tuning := DefaultTuning()
		tuning.SoTimeout = 0

		Configure(spy, tuning)
		_, called := spy.value(OptionReadTimeout)
		assert.False(t, called)
	})

	t.Run("FailuresDoNotAbort", func(t *testing.T) {
		boom := errors.New("unsupported")
		spy := &spySocket{fail: map[string]error{
			OptionNoDelay:    boom,
			OptionRecvBuffer: boom,
		}}
		tuning := DefaultTuning()
		tuning.RecvBufferBytes = 1024
		tuning.SendBufferBytes = 2048

		warnings := Configure(spy, tuning)
		require.Len(t, warnings, 2)
		assert.Equal(t, OptionNoDelay, warnings[0].Option)
		assert.Equal(t, OptionRecvBuffer, warnings[1].Option)
		assert.ErrorIs(t, warnings[0], boom)

		v, called := spy.value(OptionSendBuffer)
		require.True(t, called)
		assert.Equal(t, 2048, v)
	})
}

func TestTypeOfService(t *testing.T) {
	assert.Equal(t, tosLowDelay, DefaultPerformance.typeOfService())
	assert.Equal(t, tosThroughput, PerformancePreferences{0, 1, 2}.typeOfService())
	assert.Equal(t, tosDefault, PerformancePreferences{2, 1, 1}.typeOfService())
	assert.Equal(t, tosDefault, PerformancePreferences{}.typeOfService())
}

// ============================================================================
// StreamStats Tests
// ============================================================================

func TestStreamStatsConcurrentMax(t *testing.T) {
	stats := &StreamStats{}

	var wg sync.WaitGroup
	for g := 1; g <= 8; g++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				stats.RecordRecv(base*1000 + i)
			}
		}(g)
	}
	wg.Wait()

	snap := stats.Snapshot()
	assert.Equal(t, int64(8999), snap.LargestRecv)
	assert.Equal(t, int64(8000), snap.StreamRecvs)
}

func TestStreamStatsPackets(t *testing.T) {
	stats := &StreamStats{}
	stats.RecordPacketRecv(10)
	stats.RecordPacketRecv(5)
	stats.RecordPacketSent(7)
	stats.RecordSend(3)
	stats.RecordIncompleteRead()

	snap := stats.Snapshot()
	assert.Equal(t, int64(2), snap.PacketsRecv)
	assert.Equal(t, int64(10), snap.LargestPacketRecv)
	assert.Equal(t, int64(1), snap.PacketsSent)
	assert.Equal(t, int64(7), snap.LargestPacketSent)
	assert.Equal(t, int64(3), snap.TotalBytesSent)
	assert.Equal(t, int64(1), snap.IncompleteReads)
}

// ============================================================================
// InstrumentedReader Tests
// ============================================================================

func TestNewInstrumentedReaderNilPanics(t *testing.T) {
	assert.Panics(t, func() { NewInstrumentedReader(nil, &StreamStats{}) })
	assert.Panics(t, func() { NewInstrumentedWriter(nil, nil, nil) })
}

func TestInstrumentedReader(t *testing.T) {
	t.Run("TracksLargestRead", func(t *testing.T) {
		stats := &StreamStats{}
		r := NewInstrumentedReader(bytes.NewReader(make([]byte, 100)), stats)

		buf := make([]byte, 40)
		n, err := r.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, 40, n)

		n, err = r.Read(buf[:10])
		require.NoError(t, err)
		assert.Equal(t, 10, n)

		assert.Equal(t, int64(40), stats.LargestRecv())
		assert.Equal(t, int64(50), stats.Snapshot().TotalBytesRecv)
	})

	t.Run("EOFNotCounted", func(t *testing.T) {
		stats := &StreamStats{}
		r := NewInstrumentedReader(bytes.NewReader(nil), stats)
		_, err := r.Read(make([]byte, 8))
		assert.ErrorIs(t, err, io.EOF)
		assert.Equal(t, int64(0), stats.Snapshot().StreamRecvs)
	})

	t.Run("ReadByte", func(t *testing.T) {
		stats := &StreamStats{}
		r := NewInstrumentedReader(io.LimitReader(bytes.NewReader([]byte("ab")), 2), stats)
		b, err := r.ReadByte()
		require.NoError(t, err)
		assert.Equal(t, byte('a'), b)
		assert.Equal(t, int64(1), stats.LargestRecv())
	})

	t.Run("BufferedPeekSkip", func(t *testing.T) {
		br := bufio.NewReader(bytes.NewReader([]byte("0123456789")))
		r := NewInstrumentedReader(br, nil)
		require.True(t, r.PeekSupported())

		peeked, err := r.Peek(3)
		require.NoError(t, err)
		assert.Equal(t, []byte("012"), peeked)
		assert.Equal(t, 10, r.Buffered())

		skipped, err := r.Skip(5)
		require.NoError(t, err)
		assert.Equal(t, int64(5), skipped)

		rest, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, "56789", string(rest))
		assert.Equal(t, int64(5), r.Stats().Snapshot().TotalBytesRecv)
	})

	t.Run("PeekUnsupported", func(t *testing.T) {
		r := NewInstrumentedReader(bytes.NewBufferString("x"), nil)
		assert.False(t, r.PeekSupported())
		_, err := r.Peek(1)
		assert.ErrorIs(t, err, ErrNotSupported)
		assert.Equal(t, 0, r.Buffered())
		assert.NoError(t, r.Close())
	})

	t.Run("ReadTimeout", func(t *testing.T) {
		client, server := net.Pipe()
		defer client.Close()
		defer server.Close()

		r := NewInstrumentedReader(client, nil, WithReadTimeout(client, 20*time.Millisecond))
		_, err := r.Read(make([]byte, 1))
		require.Error(t, err)

		var ne net.Error
		require.True(t, errors.As(err, &ne))
		assert.True(t, ne.Timeout())
	})

	t.Run("CloseFailsInFlightRead", func(t *testing.T) {
		client, server := net.Pipe()
		defer server.Close()

		r := NewInstrumentedReader(client, nil)
		done := make(chan error, 1)
		go func() {
			_, err := r.Read(make([]byte, 1))
			done <- err
		}()

		time.Sleep(10 * time.Millisecond)
		require.NoError(t, r.Close())
		select {
		case err := <-done:
			assert.Error(t, err)
		case <-time.After(time.Second):
			t.Fatal("read did not unblock after close")
		}
	})
}

func TestInstrumentedWriter(t *testing.T) {
	var out bytes.Buffer
	bw := bufio.NewWriter(&out)
	w := NewInstrumentedWriter(bw, nil, nil)

	_, err := w.Write([]byte("hello"))
	require.NoError(t, err)
	_, err = w.Write([]byte("!"))
	require.NoError(t, err)
	require.NoError(t, w.Flush())

	assert.Equal(t, "hello!", out.String())
	snap := w.Stats().Snapshot()
	assert.Equal(t, int64(5), snap.LargestSend)
	assert.Equal(t, int64(6), snap.TotalBytesSent)
	assert.Equal(t, int64(2), snap.StreamSends)
}

// ============================================================================
// Dialer Tests
// ============================================================================

func listen(t *testing.T) (net.Listener, string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				_, _ = io.Copy(c, c)
				c.Close()
			}()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return ln, addr.IP.String(), addr.Port
}

func TestDialer(t *testing.T) {
	t.Run("PlainConnect", func(t *testing.T) {
		_, host, port := listen(t)

		tuning := DefaultTuning()
		tuning.RecvBufferBytes = 65536
		conn, err := (&Dialer{}).Dial(context.Background(), host, port, tuning, false)
		require.NoError(t, err)
		defer conn.Close()

		local := conn.LocalAddr().(*net.TCPAddr)
		assert.NotZero(t, local.Port)

		_, err = conn.Write([]byte("ping"))
		require.NoError(t, err)
		buf := make([]byte, 4)
		_, err = io.ReadFull(conn, buf)
		require.NoError(t, err)
		assert.Equal(t, "ping", string(buf))
	})

	t.Run("RefusedIsConnectionError", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		port := ln.Addr().(*net.TCPAddr).Port
		ln.Close()

		_, err = (&Dialer{Timeout: time.Second}).Dial(context.Background(), "127.0.0.1", port, DefaultTuning(), false)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrConnection)

		var ce *ConnectionError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, "127.0.0.1:"+strconv.Itoa(port), ce.Addr)
	})

	t.Run("ThrottledIsConnectionError", func(t *testing.T) {
		_, host, port := listen(t)
		limiter := ratelimiter.New(0.001, 1)
		d := &Dialer{Limiter: limiter}

		conn, err := d.Dial(context.Background(), host, port, DefaultTuning(), false)
		require.NoError(t, err)
		conn.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err = d.Dial(ctx, host, port, DefaultTuning(), false)
		assert.ErrorIs(t, err, ErrConnection)
	})

	t.Run("SecureWithFingerprint", func(t *testing.T) {
		srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		defer srv.Close()

		addr := srv.Listener.Addr().(*net.TCPAddr)
		conn, err := (&Dialer{}).Dial(context.Background(), addr.IP.String(), addr.Port, DefaultTuning(), true)
		require.NoError(t, err)
		defer conn.Close()

		fp, err := Fingerprint(conn)
		require.NoError(t, err)
		assert.Equal(t, FormatFingerprint(srv.Certificate().Raw), fp)
		assert.Len(t, fp, 20*3-1)
	})

	t.Run("FingerprintPlain", func(t *testing.T) {
		client, server := net.Pipe()
		defer client.Close()
		defer server.Close()
		_, err := Fingerprint(client)
		assert.ErrorIs(t, err, ErrNoPeerCertificate)
	})
}

func TestTCPSocketBufferSizes(t *testing.T) {
	_, host, port := listen(t)
	conn, err := net.Dial("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	require.NoError(t, err)
	defer conn.Close()

	sock := NewTCPSocket(conn.(*net.TCPConn))
	require.NoError(t, sock.SetReadTimeout(5*time.Second))
	assert.Equal(t, 5*time.Second, sock.ReadTimeout())

	require.NoError(t, sock.SetReadBuffer(65536))
	if recv, _, err := sock.BufferSizes(); err == nil {
		assert.Positive(t, recv)
	}
}

func TestSplitAddr(t *testing.T) {
	tests := []struct {
		in     string
		host   string
		port   int
		secure bool
	}{
		{"perforce:1666", "perforce", 1666, false},
		{"ssl:perforce:1666", "perforce", 1666, true},
		{"SSL:perforce:1666", "perforce", 1666, true},
		{"tcp:10.0.0.1:1666", "10.0.0.1", 1666, false},
		{"1666", "localhost", 1666, false},
		{"[::1]:1666", "::1", 1666, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			host, port, secure, err := SplitAddr(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.host, host)
			assert.Equal(t, tt.port, port)
			assert.Equal(t, tt.secure, secure)
		})
	}

	_, _, _, err := SplitAddr("perforce:notaport")
	assert.Error(t, err)
}
