package gsk

import (
	"sync"

	"golang.org/x/sys/unix"
)

// bufChunkSize is the capacity of one Buffer chunk. 64KiB keeps a chunk
// within one readv/writev iovec's typical sweet spot while amortizing the
// allocation cost of moving data in and out of a Buffer one byte source
// event at a time.
const bufChunkSize = 64 * 1024

// bufChunkPool recycles chunks across Buffers, the same discipline the
// chunked task queue uses to avoid GC churn under high I/O turnover.
var bufChunkPool = sync.Pool{
	New: func() any { return &bufChunk{} },
}

type bufChunk struct {
	data     [bufChunkSize]byte
	readPos  int
	writePos int
	next     *bufChunk
}

func newBufChunk() *bufChunk {
	c := bufChunkPool.Get().(*bufChunk)
	c.readPos, c.writePos, c.next = 0, 0, nil
	return c
}

func returnBufChunk(c *bufChunk) {
	c.next = nil
	bufChunkPool.Put(c)
}

// Buffer is a growable byte queue built from a chunked linked list, used by
// gsk/sorter's run-file record I/O and available to any I/O Source callback
// that needs to stage bytes between a readiness notification and whatever
// eventually consumes them.
// It is not safe for concurrent use; callers needing cross-goroutine access
// must provide their own synchronization, exactly as the teacher's
// ChunkedIngress requires of its caller.
type Buffer struct {
	head, tail *bufChunk
	length     int
}

// NewBuffer returns an empty Buffer.
func NewBuffer() *Buffer { return &Buffer{} }

// Len returns the number of unread bytes currently buffered.
func (b *Buffer) Len() int { return b.length }

// Write appends p to the buffer, filling the tail chunk before allocating a
// new one. It never fails.
func (b *Buffer) Write(p []byte) (int, error) {
	n := len(p)
	for len(p) > 0 {
		if b.tail == nil || b.tail.writePos == bufChunkSize {
			c := newBufChunk()
			if b.tail == nil {
				b.head, b.tail = c, c
			} else {
				b.tail.next = c
				b.tail = c
			}
		}
		copied := copy(b.tail.data[b.tail.writePos:], p)
		b.tail.writePos += copied
		p = p[copied:]
	}
	b.length += n
	return n, nil
}

// Read drains up to len(p) bytes, freeing exhausted chunks back to the
// pool. Returns (0, io.EOF)-shaped behavior in spirit: an empty buffer
// returns (0, nil), matching io.Reader only loosely since Buffer has no
// notion of upstream closure -- callers needing EOF semantics wrap it (as
// gsk/sorter's recordReader does).
func (b *Buffer) Read(p []byte) (int, error) {
	n := 0
	for len(p) > 0 && b.head != nil {
		avail := b.head.writePos - b.head.readPos
		if avail == 0 {
			if b.head == b.tail {
				break
			}
			old := b.head
			b.head = b.head.next
			returnBufChunk(old)
			continue
		}
		copied := copy(p, b.head.data[b.head.readPos:b.head.writePos])
		b.head.readPos += copied
		p = p[copied:]
		n += copied

		if b.head.readPos == b.head.writePos {
			if b.head == b.tail {
				b.head.readPos, b.head.writePos = 0, 0
			} else {
				old := b.head
				b.head = b.head.next
				returnBufChunk(old)
			}
		}
	}
	b.length -= n
	return n, nil
}

// Discard drops up to n unread bytes without copying them out, returning
// how many were actually discarded.
func (b *Buffer) Discard(n int) int {
	discarded := 0
	for n > 0 && b.head != nil {
		avail := b.head.writePos - b.head.readPos
		if avail == 0 {
			if b.head == b.tail {
				break
			}
			old := b.head
			b.head = b.head.next
			returnBufChunk(old)
			continue
		}
		take := avail
		if take > n {
			take = n
		}
		b.head.readPos += take
		n -= take
		discarded += take

		if b.head.readPos == b.head.writePos {
			if b.head == b.tail {
				b.head.readPos, b.head.writePos = 0, 0
			} else {
				old := b.head
				b.head = b.head.next
				returnBufChunk(old)
			}
		}
	}
	b.length -= discarded
	return discarded
}

// iovecs returns byte slices covering each chunk's unread bytes without
// copying, for use with writev(2). The returned slices are valid only until
// the next mutating call on the Buffer.
func (b *Buffer) iovecs() [][]byte {
	var bufs [][]byte
	for c := b.head; c != nil; c = c.next {
		if c.readPos == c.writePos {
			continue
		}
		bufs = append(bufs, c.data[c.readPos:c.writePos])
	}
	return bufs
}

// WritevFD writes the buffer's unread bytes to fd using a single writev(2)
// call (scatter/gather across chunks, avoiding a linear copy into one flat
// slice first), discarding however many bytes the kernel accepted.
func WritevFD(fd int, b *Buffer) (int, error) {
	bufs := b.iovecs()
	if len(bufs) == 0 {
		return 0, nil
	}
	n, err := unix.Writev(fd, bufs)
	total := int(n)
	if total > 0 {
		b.Discard(total)
	}
	return total, err
}

// ReadvFD reads from fd directly into a freshly appended chunk, avoiding an
// intermediate flat buffer, returning however many bytes the kernel
// produced.
func ReadvFD(fd int, b *Buffer, hint int) (int, error) {
	if hint <= 0 || hint > bufChunkSize {
		hint = bufChunkSize
	}
	c := newBufChunk()
	n, err := unix.Read(fd, c.data[:hint])
	if n <= 0 {
		returnBufChunk(c)
		return n, err
	}
	c.writePos = n
	if b.tail == nil {
		b.head, b.tail = c, c
	} else {
		b.tail.next = c
		b.tail = c
	}
	b.length += n
	return n, err
}
