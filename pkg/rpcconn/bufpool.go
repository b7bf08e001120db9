package rpcconn

import "sync"

// Payload buffers are pooled by size class. Most server replies (info,
// messages, tagged stat output) are a few hundred bytes; file content
// arrives in chunks bounded by the server's filesys.bufsize.
var payloadClasses = []int{
	8 << 10,  // control traffic
	64 << 10, // tagged listings
	1 << 20,  // file content chunks
}

type payloadPool struct {
	classes []int
	pools   []sync.Pool
}

var payloads = newPayloadPool(payloadClasses)

func newPayloadPool(classes []int) *payloadPool {
	p := &payloadPool{classes: classes, pools: make([]sync.Pool, len(classes))}
	for i, size := range classes {
		size := size
		p.pools[i].New = func() any {
			buf := make([]byte, size)
			return &buf
		}
	}
	return p
}

// get returns a slice of length n. Sizes above the largest class are
// allocated directly.
func (p *payloadPool) get(n int) []byte {
	for i, size := range p.classes {
		if n <= size {
			buf := *p.pools[i].Get().(*[]byte)
			return buf[:n]
		}
	}
	return make([]byte, n)
}

// put recycles buf if its capacity matches a class.
func (p *payloadPool) put(buf []byte) {
	for i, size := range p.classes {
		if cap(buf) == size {
			full := buf[:size]
			p.pools[i].Put(&full)
			return
		}
	}
}
