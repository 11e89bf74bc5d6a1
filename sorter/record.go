package sorter

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/joeycumines/gsk"
)

// recordFlushThreshold is how many staged bytes a recordWriter accumulates
// in its gsk.Buffer before issuing a writev(2) to the backing run file.
const recordFlushThreshold = 32 * 1024

// recordWriter appends length-prefixed records ([u32 length || bytes], host
// byte order) to a run file, staging them through a gsk.Buffer so a run of
// small records amortizes into few scatter/gather writev(2) calls instead
// of one write(2) per record.
type recordWriter struct {
	f   *os.File
	buf *gsk.Buffer
}

func createRecordWriter(path string) (*recordWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, &SorterIOError{Stage: "write", Cause: err}
	}
	return &recordWriter{f: f, buf: gsk.NewBuffer()}, nil
}

func (w *recordWriter) writeRecord(rec []byte) error {
	var lenBuf [4]byte
	binary.NativeEndian.PutUint32(lenBuf[:], uint32(len(rec)))
	w.buf.Write(lenBuf[:])
	w.buf.Write(rec)
	if w.buf.Len() >= recordFlushThreshold {
		return w.drain()
	}
	return nil
}

// drain flushes every staged byte to the backing file.
func (w *recordWriter) drain() error {
	fd := int(w.f.Fd())
	for w.buf.Len() > 0 {
		if _, err := gsk.WritevFD(fd, w.buf); err != nil {
			return &SorterIOError{Stage: "write", Cause: err}
		}
	}
	return nil
}

func (w *recordWriter) close() error {
	if err := w.drain(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

// recordReader sequentially reads length-prefixed records from a run file,
// staging unread file bytes in a gsk.Buffer filled by read(2) (gsk.ReadvFD).
type recordReader struct {
	f       *os.File
	buf     *gsk.Buffer
	done    bool  // f has hit EOF; buf may still hold trailing bytes
	lastErr error // set if the file hit a real read error rather than plain EOF
}

func openRecordReader(path string) (*recordReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &SorterIOError{Stage: "read", Cause: err}
	}
	return &recordReader{f: f, buf: gsk.NewBuffer()}, nil
}

// ensure tops up buf from the file until it holds at least n bytes or the
// file is exhausted, returning whether n bytes are now available.
func (r *recordReader) ensure(n int) bool {
	fd := int(r.f.Fd())
	for r.buf.Len() < n && !r.done {
		read, err := gsk.ReadvFD(fd, r.buf, 0)
		if err != nil {
			r.lastErr = err
			r.done = true
		} else if read == 0 {
			r.done = true
		}
	}
	return r.buf.Len() >= n
}

// next returns the next record, io.EOF once the file is exhausted cleanly.
// A read failure, or a file that ends mid-record, is reported as a
// *SorterIOError since both conditions mean the run file cannot be trusted
// further.
func (r *recordReader) next() ([]byte, error) {
	if !r.ensure(4) {
		if r.lastErr != nil {
			return nil, &SorterIOError{Stage: "read", Cause: r.lastErr}
		}
		if r.buf.Len() == 0 {
			return nil, io.EOF
		}
		return nil, &SorterIOError{Stage: "read", Cause: io.ErrUnexpectedEOF}
	}
	var lenBuf [4]byte
	r.buf.Read(lenBuf[:])
	n := binary.NativeEndian.Uint32(lenBuf[:])

	if !r.ensure(int(n)) {
		cause := error(io.ErrUnexpectedEOF)
		if r.lastErr != nil {
			cause = r.lastErr
		}
		return nil, &SorterIOError{Stage: "read", Cause: cause}
	}
	out := make([]byte, n)
	r.buf.Read(out)
	return out, nil
}

func (r *recordReader) close() error {
	return r.f.Close()
}
