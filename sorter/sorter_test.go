package sorter

import (
	"bytes"
	"encoding/binary"
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func byteCompare(a, b []byte) int { return bytes.Compare(a, b) }

func drain(t *testing.T, r *Reader) [][]byte {
	t.Helper()
	var out [][]byte
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, rec)
	}
}

func TestSorterSortsWithinOneRun(t *testing.T) {
	s, err := New(Options{RunLimit: 100, Compare: byteCompare})
	require.NoError(t, err)
	defer s.Close()

	for _, rec := range [][]byte{[]byte("c"), []byte("a"), []byte("b")} {
		require.NoError(t, s.Add(rec))
	}

	r, err := s.Reader()
	require.NoError(t, err)
	defer r.Close()

	got := drain(t, r)
	require.Equal(t, [][]byte{[]byte("a"), []byte("b"), []byte("c")}, got)
}

func TestSorterSpillsAndMergesAcrossRuns(t *testing.T) {
	s, err := New(Options{RunLimit: 4, Compare: byteCompare})
	require.NoError(t, err)
	defer s.Close()

	input := []string{"m", "a", "z", "c", "b", "y", "k", "d", "q", "r"}
	for _, v := range input {
		require.NoError(t, s.Add([]byte(v)))
	}

	r, err := s.Reader()
	require.NoError(t, err)
	defer r.Close()

	got := drain(t, r)
	require.Len(t, got, len(input))
	for i := 1; i < len(got); i++ {
		require.LessOrEqual(t, bytes.Compare(got[i-1], got[i]), 0)
	}
}

func TestSorterEmptyReader(t *testing.T) {
	s, err := New(Options{RunLimit: 10, Compare: byteCompare})
	require.NoError(t, err)
	defer s.Close()

	r, err := s.Reader()
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestSorterMergeCollapsesEquals(t *testing.T) {
	sum := func(a, b []byte) (MergeDecision, []byte) {
		return UsePad, append(append([]byte{}, a...), b...)
	}
	s, err := New(Options{RunLimit: 3, Compare: byteCompare, Merge: sum})
	require.NoError(t, err)
	defer s.Close()

	for _, v := range []string{"a", "a", "b"} {
		require.NoError(t, s.Add([]byte(v)))
	}

	r, err := s.Reader()
	require.NoError(t, err)
	defer r.Close()

	got := drain(t, r)
	require.Equal(t, [][]byte{[]byte("aa"), []byte("b")}, got)
}

func TestSorterLargeRandomInput(t *testing.T) {
	s, err := New(Options{RunLimit: 50, Compare: byteCompare})
	require.NoError(t, err)
	defer s.Close()

	rng := rand.New(rand.NewSource(1))
	n := 2000
	for i := 0; i < n; i++ {
		buf := make([]byte, 8)
		rng.Read(buf)
		require.NoError(t, s.Add(buf))
	}

	r, err := s.Reader()
	require.NoError(t, err)
	defer r.Close()

	got := drain(t, r)
	require.Len(t, got, n)
	for i := 1; i < len(got); i++ {
		require.LessOrEqual(t, bytes.Compare(got[i-1], got[i]), 0)
	}
}

func TestSorterByKeyCompare(t *testing.T) {
	type rec struct {
		key uint32
		val byte
	}
	encode := func(r rec) []byte { return []byte{byte(r.key >> 24), byte(r.key >> 16), byte(r.key >> 8), byte(r.key), r.val} }
	decodeKey := func(b []byte) uint32 {
		return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	}

	s, err := New(Options{RunLimit: 4, Compare: ByKey(decodeKey)})
	require.NoError(t, err)
	defer s.Close()

	for _, r := range []rec{{3, 'c'}, {1, 'a'}, {2, 'b'}} {
		require.NoError(t, s.Add(encode(r)))
	}

	rd, err := s.Reader()
	require.NoError(t, err)
	defer rd.Close()

	got := drain(t, rd)
	require.Len(t, got, 3)
	for i := 1; i < len(got); i++ {
		require.Less(t, decodeKey(got[i-1]), decodeKey(got[i]))
	}
}

// Ten thousand records with duplicate keys, sorted and deduplicated via a
// merge function that sums the duplicates' payloads, spread across many
// spilled runs (RunLimit forces a deep merge cascade).
func TestSorterTenThousandRecordsWithDedup(t *testing.T) {
	type rec struct {
		key uint32
		val uint32
	}
	encode := func(r rec) []byte {
		b := make([]byte, 8)
		binary.BigEndian.PutUint32(b[0:4], r.key)
		binary.BigEndian.PutUint32(b[4:8], r.val)
		return b
	}
	decode := func(b []byte) rec {
		return rec{key: binary.BigEndian.Uint32(b[0:4]), val: binary.BigEndian.Uint32(b[4:8])}
	}
	sumDupes := func(a, b []byte) (MergeDecision, []byte) {
		ra, rb := decode(a), decode(b)
		return UsePad, encode(rec{key: ra.key, val: ra.val + rb.val})
	}

	const n = 10000
	const keySpace = 2500 // guarantees duplicate keys

	s, err := New(Options{RunLimit: 200, Compare: ByKey(func(b []byte) uint32 { return decode(b).key }), Merge: sumDupes})
	require.NoError(t, err)
	defer s.Close()

	want := make(map[uint32]uint32, keySpace)
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < n; i++ {
		key := uint32(rng.Intn(keySpace))
		val := uint32(rng.Intn(1000))
		want[key] += val
		require.NoError(t, s.Add(encode(rec{key: key, val: val})))
	}

	r, err := s.Reader()
	require.NoError(t, err)
	defer r.Close()

	got := drain(t, r)
	require.Len(t, got, len(want))

	gotMap := make(map[uint32]uint32, len(got))
	var lastKey uint32
	for i, b := range got {
		rc := decode(b)
		if i > 0 {
			require.Less(t, lastKey, rc.key, "records must be strictly increasing post-dedup")
		}
		lastKey = rc.key
		gotMap[rc.key] = rc.val
	}
	require.Equal(t, want, gotMap)
}
