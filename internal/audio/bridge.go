package audio

import (
	"io"
	"sync"
)

const defaultBridgeDepth = 64

// StreamBridge adapts push-based microphone chunks into the pull-based
// reader the conversation client consumes. Read suspends on a channel
// receive until bytes or end-of-stream arrive; it never busy-polls.
type StreamBridge struct {
	ch   chan []byte
	done chan struct{}

	closeOnce sync.Once

	mu        sync.Mutex
	leftover  []byte
	exhausted bool
}

func NewStreamBridge() *StreamBridge {
	return &StreamBridge{
		ch:   make(chan []byte, defaultBridgeDepth),
		done: make(chan struct{}),
	}
}

// Push queues a chunk for the reader. Chunks pushed after CloseSend are
// dropped.
func (b *StreamBridge) Push(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	select {
	case <-b.done:
		return
	default:
	}

	data := make([]byte, len(chunk))
	copy(data, chunk)

	select {
	case <-b.done:
	case b.ch <- data:
	}
}

// CloseSend marks end-of-stream. Readers drain what is already queued and
// then see io.EOF. Safe to call more than once, from any goroutine.
func (b *StreamBridge) CloseSend() {
	b.closeOnce.Do(func() { close(b.done) })
}

// Read returns up to len(p) bytes, blocking until at least one byte or
// end-of-stream is available. Bytes come out in exactly the order they were
// pushed.
func (b *StreamBridge) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	b.mu.Lock()
	if len(b.leftover) > 0 {
		n := copy(p, b.leftover)
		b.leftover = b.leftover[n:]
		b.mu.Unlock()
		return n, nil
	}
	if b.exhausted {
		b.mu.Unlock()
		return 0, io.EOF
	}
	b.mu.Unlock()

	var chunk []byte
	select {
	case chunk = <-b.ch:
	case <-b.done:
		// End-of-stream observed: hand out anything still queued first.
		select {
		case chunk = <-b.ch:
		default:
			b.mu.Lock()
			b.exhausted = true
			b.mu.Unlock()
			return 0, io.EOF
		}
	}

	n := copy(p, chunk)
	if n < len(chunk) {
		b.mu.Lock()
		b.leftover = append(b.leftover, chunk[n:]...)
		b.mu.Unlock()
	}
	return n, nil
}

// Drain returns everything currently buffered without waiting for more.
func (b *StreamBridge) Drain() []byte {
	b.mu.Lock()
	out := b.leftover
	b.leftover = nil
	b.mu.Unlock()

	for {
		select {
		case chunk := <-b.ch:
			out = append(out, chunk...)
		default:
			return out
		}
	}
}

var _ io.Reader = (*StreamBridge)(nil)
