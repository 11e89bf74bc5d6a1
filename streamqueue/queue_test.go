package streamqueue

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeStream adapts a bytes.Reader/Buffer into Stream. writeCap, if
// nonzero, makes Write return io.EOF once that many bytes have been
// accepted, simulating a sub-stream that closes mid-write.
type fakeStream struct {
	r             *bytes.Reader
	w             bytes.Buffer
	writeCap      int
	shutdownRead  bool
	shutdownWrite bool
}

func newFakeStream(data string) *fakeStream {
	return &fakeStream{r: bytes.NewReader([]byte(data))}
}

func (f *fakeStream) Read(p []byte) (int, error) { return f.r.Read(p) }

func (f *fakeStream) Write(p []byte) (int, error) {
	if f.writeCap <= 0 {
		return f.w.Write(p)
	}
	room := f.writeCap - f.w.Len()
	if room <= 0 {
		return 0, io.EOF
	}
	if room > len(p) {
		room = len(p)
	}
	n, err := f.w.Write(p[:room])
	if err != nil {
		return n, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *fakeStream) ShutdownRead() error  { f.shutdownRead = true; return nil }
func (f *fakeStream) ShutdownWrite() error { f.shutdownWrite = true; return nil }

func TestQueueReadsAcrossSubstreams(t *testing.T) {
	q := New(4, 0)
	a := newFakeStream("abc")
	b := newFakeStream("def")
	q.AppendReadable(a)
	q.AppendReadable(b)
	q.DeclareNoMoreReaders()

	var out []byte
	buf := make([]byte, 2)
	for {
		n, err := q.Read(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		if n == 0 {
			break
		}
	}
	require.Equal(t, "abcdef", string(out))
	require.True(t, a.shutdownRead)
	require.True(t, b.shutdownRead)
}

func TestQueueReadEmptyWithoutShutdownReturnsZeroNil(t *testing.T) {
	q := New(4, 0)
	n, err := q.Read(make([]byte, 4))
	require.Equal(t, 0, n)
	require.NoError(t, err)
}

func TestQueueReadShutdownEmitsOnce(t *testing.T) {
	q := New(4, 0)
	fired := 0
	q.OnReadEmpty(Hook{ShutdownFunc: func() { fired++ }})

	a := newFakeStream("x")
	q.AppendReadable(a)

	buf := make([]byte, 1)
	_, _ = q.Read(buf)
	_, _ = q.Read(buf) // drains a, pops it, chain now empty but not declared done
	require.Equal(t, 0, fired)

	q.DeclareNoMoreReaders()
	require.Equal(t, 1, fired)
}

func TestQueueWriteAdvancesAcrossSubstreams(t *testing.T) {
	q := New(4, 0)
	a := &fakeStream{writeCap: 3}
	b := &fakeStream{writeCap: 10}
	q.AppendWritable(a)
	q.AppendWritable(b)

	n, err := q.Write([]byte("payload"))
	require.Equal(t, len("payload"), n)
	require.NoError(t, err)
	require.Equal(t, "pay", a.w.String())
	require.Equal(t, "load", b.w.String())
	require.True(t, a.shutdownWrite)
}

func TestQueueWriteReportsShutdownWhileQueuing(t *testing.T) {
	q := New(4, 0)
	a := &fakeStream{writeCap: 3}
	q.AppendWritable(a)
	q.DeclareNoMoreWriters()

	_, err := q.Write([]byte("payload"))
	require.ErrorIs(t, err, ErrShutdownWhileQueuing)
}

func TestQueueWriteNoMoreSubstreamsNotDeclaredReturnsZeroNil(t *testing.T) {
	q := New(4, 0)
	n, err := q.Write([]byte("x"))
	require.Equal(t, 0, n)
	require.NoError(t, err)
}

func TestQueueBackpressure(t *testing.T) {
	q := New(4, 10)
	q.NoteBuffered(11)
	require.True(t, q.Blocked())

	_, err := q.Write([]byte("x"))
	require.ErrorIs(t, err, ErrBlocked)

	q.NoteBuffered(0)
	require.False(t, q.Blocked())
}
