package streamqueue

import (
	"errors"
	"io"

	"github.com/joeycumines/gsk"
)

// Stream is one link in a Queue's chain: a readable and/or writable
// sub-stream with its own independent shutdown signaling.
type Stream interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	ShutdownRead() error
	ShutdownWrite() error
}

// ErrBlocked is returned by Write when the queue's buffered byte count has
// crossed the high-water mark; the caller should stop writing until the
// Queue's low-water (zero) notification fires via the OnUnblocked callback.
var ErrBlocked = errors.New("streamqueue: write blocked by backpressure")

// ErrShutdownWhileQueuing is returned by Write when the writable chain runs
// out after DeclareNoMoreWriters while bytes of the write are still
// unplaced. A sub-stream that reports io.EOF mid-write is not an error by
// itself: Write moves on and hands the remaining bytes to the next one.
var ErrShutdownWhileQueuing = errors.New("streamqueue: sub-stream shut down while data was still queued for it")

type node struct {
	s    Stream
	next *node
}

// Queue chains readable and writable Stream instances into one logical
// stream. Not safe for concurrent use.
type Queue struct {
	readHead, readTail   *node
	writeHead, writeTail *node

	readDone  bool // DeclareNoMoreReaders called
	writeDone bool // DeclareNoMoreWriters called
	closed    bool // Close called

	onReadEmpty  Hook
	onWriteEmpty Hook
	onUnblocked  func()

	maxRetries int

	buffered      int
	highWaterMark int
	blocked       bool
}

// New creates a Queue. maxRetries bounds how many exhausted sub-streams a
// single Read call will skip past before returning to let the caller make
// progress elsewhere; highWaterMark is the buffered-byte threshold (tracked
// via NoteBuffered) above which Write starts returning ErrBlocked. The
// low-water mark is fixed at zero.
func New(maxRetries, highWaterMark int) *Queue {
	if maxRetries <= 0 {
		maxRetries = 4
	}
	return &Queue{maxRetries: maxRetries, highWaterMark: highWaterMark}
}

// OnReadEmpty installs the "no more readers" hook pair.
func (q *Queue) OnReadEmpty(h Hook) { q.onReadEmpty = h }

// OnWriteEmpty installs the "no more writers" hook pair.
func (q *Queue) OnWriteEmpty(h Hook) { q.onWriteEmpty = h }

// AppendReadable enqueues a sub-stream at the tail of the read chain.
func (q *Queue) AppendReadable(s Stream) {
	n := &node{s: s}
	if q.readTail == nil {
		q.readHead, q.readTail = n, n
		return
	}
	q.readTail.next = n
	q.readTail = n
}

// AppendWritable enqueues a sub-stream at the tail of the write chain.
func (q *Queue) AppendWritable(s Stream) {
	n := &node{s: s}
	if q.writeTail == nil {
		q.writeHead, q.writeTail = n, n
		return
	}
	q.writeTail.next = n
	q.writeTail = n
}

// DeclareNoMoreReaders tells the Queue no further AppendReadable calls will
// come. Once the read chain is (or becomes) empty, the read-side
// ShutdownFunc hook fires.
func (q *Queue) DeclareNoMoreReaders() {
	q.readDone = true
	q.maybeFireReadShutdown()
}

// DeclareNoMoreWriters is the write-side equivalent of DeclareNoMoreReaders.
func (q *Queue) DeclareNoMoreWriters() {
	q.writeDone = true
	q.maybeFireWriteShutdown()
}

func (q *Queue) maybeFireReadShutdown() {
	if q.readDone && q.readHead == nil {
		q.onReadEmpty.fireShutdown()
	}
}

func (q *Queue) maybeFireWriteShutdown() {
	if q.writeDone && q.writeHead == nil {
		q.onWriteEmpty.fireShutdown()
	}
}

// Read reads from the head readable sub-stream, advancing past any that
// report io.EOF, up to maxRetries advances per call. Returns io.EOF only
// once the chain is empty and DeclareNoMoreReaders was called; otherwise an
// empty, error-free chain returns (0, nil), signaling "try again later"
// rather than end-of-stream.
func (q *Queue) Read(p []byte) (int, error) {
	if q.closed {
		return 0, gsk.ErrStreamQueueClosed
	}
	retries := 0
	for {
		if q.readHead == nil {
			if q.readDone {
				return 0, io.EOF
			}
			return 0, nil
		}

		n, err := q.readHead.s.Read(p)
		if n > 0 {
			return n, nil
		}
		switch err {
		case nil:
			return 0, nil
		case io.EOF:
			q.popRead()
			retries++
			if retries > q.maxRetries {
				return 0, nil
			}
			continue
		default:
			return 0, &StreamQueueError{Lingering: q.buffered > 0, Cause: err}
		}
	}
}

func (q *Queue) popRead() {
	old := q.readHead
	q.readHead = old.next
	if q.readHead == nil {
		q.readTail = nil
	}
	_ = old.s.ShutdownRead()
	if q.readHead == nil {
		q.onReadEmpty.fireEmpty()
		q.maybeFireReadShutdown()
	}
}

// Write writes to the head writable sub-stream, advancing past any that
// report io.EOF on write to the next sub-stream in the chain. Only once the
// chain runs out mid-write -- there is no next sub-stream and
// DeclareNoMoreWriters was called -- is the leftover data an error
// (ErrShutdownWhileQueuing); an empty, not-yet-declared-done chain instead
// returns (total, nil), signaling "try again once more writers arrive".
// NoteBuffered tracks backpressure separately; Write itself does not consult
// it beyond returning ErrBlocked once blocked (see NoteBuffered).
func (q *Queue) Write(p []byte) (int, error) {
	if q.closed {
		return 0, gsk.ErrStreamQueueClosed
	}
	if q.blocked {
		return 0, ErrBlocked
	}
	total := 0
	for len(p) > 0 {
		if q.writeHead == nil {
			if q.writeDone {
				return total, ErrShutdownWhileQueuing
			}
			return total, nil
		}
		n, err := q.writeHead.s.Write(p)
		total += n
		p = p[n:]
		if err == nil {
			continue
		}
		if err == io.EOF {
			q.popWrite()
			continue
		}
		return total, &StreamQueueError{Lingering: q.buffered > 0, Cause: err}
	}
	return total, nil
}

func (q *Queue) popWrite() {
	old := q.writeHead
	q.writeHead = old.next
	if q.writeHead == nil {
		q.writeTail = nil
	}
	_ = old.s.ShutdownWrite()
	if q.writeHead == nil {
		q.onWriteEmpty.fireEmpty()
		q.maybeFireWriteShutdown()
	}
}

// OnUnblocked installs a callback fired the moment NoteBuffered observes the
// buffered count drop back to the low-water mark after Write had been
// refusing input -- the resume signal for a backpressured producer that
// would otherwise have to poll Blocked().
func (q *Queue) OnUnblocked(fn func()) { q.onUnblocked = fn }

// NoteBuffered updates the queue's tracked buffered-byte count (owned by
// the caller, since the Queue itself does not interpose a byte buffer
// between Read and Write). Crossing highWaterMark upward blocks Write with
// ErrBlocked; dropping back to zero (the fixed low-water mark) unblocks it
// and fires the OnUnblocked hook, if one is installed.
func (q *Queue) NoteBuffered(n int) {
	q.buffered = n
	if !q.blocked && q.highWaterMark > 0 && q.buffered > q.highWaterMark {
		q.blocked = true
	} else if q.blocked && q.buffered <= 0 {
		q.blocked = false
		if q.onUnblocked != nil {
			q.onUnblocked()
		}
	}
}

// Blocked reports whether Write is currently refusing input due to
// backpressure.
func (q *Queue) Blocked() bool { return q.blocked }

// Close fires both Destroy hooks and makes every subsequent Read/Write
// return ErrStreamQueueClosed. It does not shut down any remaining
// sub-streams; callers that need that should drain or explicitly shut each
// one down first. Idempotent: a second Close is a no-op.
func (q *Queue) Close() {
	if q.closed {
		return
	}
	q.closed = true
	q.onReadEmpty.fireDestroy()
	q.onWriteEmpty.fireDestroy()
}
