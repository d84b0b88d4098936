package audio

import "sync"

// OutputBuffer accumulates synthesized audio appended by the event callback
// and drained by the playback loop. Append order is byte order out.
type OutputBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func NewOutputBuffer() *OutputBuffer {
	return &OutputBuffer{}
}

func (b *OutputBuffer) Append(data []byte) {
	if len(data) == 0 {
		return
	}
	b.mu.Lock()
	b.buf = append(b.buf, data...)
	b.mu.Unlock()
}

// TakeAll atomically snapshots and clears the buffer.
func (b *OutputBuffer) TakeAll() []byte {
	b.mu.Lock()
	out := b.buf
	b.buf = nil
	b.mu.Unlock()
	return out
}

func (b *OutputBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

func (b *OutputBuffer) Reset() {
	b.mu.Lock()
	b.buf = nil
	b.mu.Unlock()
}
