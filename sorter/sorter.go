package sorter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/joeycumines/gsk"
)

// CompareFunc orders two records three-way, the same way bytes.Compare does:
// negative if a < b, zero if equal, positive if a > b.
type CompareFunc func(a, b []byte) int

// MergeDecision is the outcome of merging two records Compare deemed equal.
type MergeDecision int

const (
	UseA MergeDecision = iota
	UseB
	UsePad
	Discard
)

// MergeFunc collapses two equal (per Compare) adjacent records into one.
// When it returns UsePad, pad is emitted in place of either input.
type MergeFunc func(a, b []byte) (decision MergeDecision, pad []byte)

// Sorter accumulates records in memory up to RunLimit, then spills sorted
// runs to disk and cascades them through a binary merge tree so the live
// run count stays O(log(total/RunLimit)).
type Sorter struct {
	compare CompareFunc
	merge   MergeFunc
	runLimit int

	tmpDir string

	buffer   [][]byte
	nextFile int
	levels   []string // levels[i] != "": path of the pending run at level i

	closed bool
}

// Options configures a new Sorter.
type Options struct {
	// RunLimit bounds how many records are buffered in memory before a run
	// spills to disk.
	RunLimit int
	// Compare orders records; required.
	Compare CompareFunc
	// Merge collapses adjacent equal records; optional (nil: keep both,
	// broken by insertion order).
	Merge MergeFunc
}

// New creates a Sorter with its own private temp directory
// /tmp/gskidx-<pid>-<nnnnn>, mode 0755.
func New(opts Options) (*Sorter, error) {
	if opts.RunLimit <= 0 {
		opts.RunLimit = 4096
	}
	if opts.Compare == nil {
		return nil, fmt.Errorf("sorter: Compare is required")
	}
	dir, err := os.MkdirTemp("", fmt.Sprintf("gskidx-%d-", os.Getpid()))
	if err != nil {
		return nil, &SorterIOError{Stage: "init", Cause: err}
	}
	if err := os.Chmod(dir, 0755); err != nil {
		os.RemoveAll(dir)
		return nil, &SorterIOError{Stage: "init", Cause: err}
	}
	return &Sorter{
		compare:  opts.Compare,
		merge:    opts.Merge,
		runLimit: opts.RunLimit,
		tmpDir:   dir,
	}, nil
}

// Add buffers one record, spilling a sorted run to disk once RunLimit is
// reached.
func (s *Sorter) Add(record []byte) error {
	if s.closed {
		return gsk.ErrSorterClosed
	}
	cp := make([]byte, len(record))
	copy(cp, record)
	s.buffer = append(s.buffer, cp)
	if len(s.buffer) >= s.runLimit {
		return s.flush()
	}
	return nil
}

// flush sorts the in-memory buffer, merges adjacent equals, writes the run
// to disk, and cascades it through the level tree.
func (s *Sorter) flush() error {
	if len(s.buffer) == 0 {
		return nil
	}
	records := s.buffer
	s.buffer = nil

	slices.SortStableFunc(records, func(a, b []byte) int { return s.compare(a, b) })
	merged := s.mergeAdjacentEquals(records)

	path, err := s.writeRun(merged)
	if err != nil {
		return err
	}
	return s.cascade(path, 0)
}

// mergeAdjacentEquals collapses runs of Compare-equal records using Merge,
// or keeps every record (stable order) if Merge is nil.
func (s *Sorter) mergeAdjacentEquals(records [][]byte) [][]byte {
	if s.merge == nil || len(records) == 0 {
		return records
	}
	out := make([][]byte, 0, len(records))
	cur := records[0]
	for i := 1; i < len(records); i++ {
		if s.compare(cur, records[i]) != 0 {
			out = append(out, cur)
			cur = records[i]
			continue
		}
		decision, pad := s.merge(cur, records[i])
		switch decision {
		case UseA:
			// cur unchanged
		case UseB:
			cur = records[i]
		case UsePad:
			cur = pad
		case Discard:
			cur = nil
		}
		if cur == nil && decision == Discard {
			// fall through: next iteration compares records[i] against an
			// empty cur, which is wrong, so pull the next record in as cur.
			if i+1 < len(records) {
				cur = records[i+1]
				i++
			}
		}
	}
	if cur != nil {
		out = append(out, cur)
	}
	return out
}

// writeRun spills records, already sorted and merged, to a new file.
func (s *Sorter) writeRun(records [][]byte) (string, error) {
	id := s.nextFile
	s.nextFile++
	path := filepath.Join(s.tmpDir, fmt.Sprintf("run-%d", id))
	w, err := createRecordWriter(path)
	if err != nil {
		return "", err
	}
	for _, rec := range records {
		if err := w.writeRecord(rec); err != nil {
			w.close()
			return "", err
		}
	}
	if err := w.close(); err != nil {
		return "", err
	}
	return path, nil
}

// cascade inserts a new run at level, 2-way-merging with any run already
// occupying that level and promoting the result, repeating until an empty
// level is found.
func (s *Sorter) cascade(path string, level int) error {
	for {
		for len(s.levels) <= level {
			s.levels = append(s.levels, "")
		}
		if s.levels[level] == "" {
			s.levels[level] = path
			return nil
		}
		merged, err := s.mergeRuns(s.levels[level], path)
		if err != nil {
			return err
		}
		os.Remove(s.levels[level])
		os.Remove(path)
		s.levels[level] = ""
		path = merged
		level++
	}
}

// mergeRuns performs a 2-way external merge of two sorted run files,
// invoking Compare/Merge exactly as the in-memory path does, and returns
// the path of a new run file.
func (s *Sorter) mergeRuns(aPath, bPath string) (string, error) {
	ra, err := openRecordReader(aPath)
	if err != nil {
		return "", err
	}
	defer ra.close()
	rb, err := openRecordReader(bPath)
	if err != nil {
		return "", err
	}
	defer rb.close()

	id := s.nextFile
	s.nextFile++
	outPath := filepath.Join(s.tmpDir, fmt.Sprintf("run-%d", id))
	out, err := createRecordWriter(outPath)
	if err != nil {
		return "", err
	}
	if err := mergeInto(out, ra, rb, s.compare, s.merge); err != nil {
		out.close()
		return "", err
	}
	if err := out.close(); err != nil {
		return "", err
	}
	return outPath, nil
}

// mergeInto drives the classic two-pointer merge over two recordReaders,
// writing the combined, order-preserving result to w. Only a clean io.EOF
// ends a side; any other error (a *SorterIOError from a corrupt or
// unreadable run file) aborts the merge immediately.
func mergeInto(w *recordWriter, a, b *recordReader, compare CompareFunc, merge MergeFunc) error {
	var recA, recB []byte
	var errA, errB error

	nextA := func() error {
		recA, errA = a.next()
		if errA != nil && errA != io.EOF {
			return errA
		}
		return nil
	}
	nextB := func() error {
		recB, errB = b.next()
		if errB != nil && errB != io.EOF {
			return errB
		}
		return nil
	}

	if err := nextA(); err != nil {
		return err
	}
	if err := nextB(); err != nil {
		return err
	}

	for {
		aDone, bDone := errA != nil, errB != nil
		if aDone && bDone {
			return nil
		}
		if aDone {
			if err := w.writeRecord(recB); err != nil {
				return err
			}
			if err := nextB(); err != nil {
				return err
			}
			continue
		}
		if bDone {
			if err := w.writeRecord(recA); err != nil {
				return err
			}
			if err := nextA(); err != nil {
				return err
			}
			continue
		}

		cmp := compare(recA, recB)
		switch {
		case cmp < 0:
			if err := w.writeRecord(recA); err != nil {
				return err
			}
			if err := nextA(); err != nil {
				return err
			}
		case cmp > 0:
			if err := w.writeRecord(recB); err != nil {
				return err
			}
			if err := nextB(); err != nil {
				return err
			}
		default:
			if merge == nil {
				if err := w.writeRecord(recA); err != nil {
					return err
				}
				if err := w.writeRecord(recB); err != nil {
					return err
				}
			} else {
				decision, pad := merge(recA, recB)
				switch decision {
				case UseA:
					if err := w.writeRecord(recA); err != nil {
						return err
					}
				case UseB:
					if err := w.writeRecord(recB); err != nil {
						return err
					}
				case UsePad:
					if err := w.writeRecord(pad); err != nil {
						return err
					}
				case Discard:
					// write nothing
				}
			}
			if err := nextA(); err != nil {
				return err
			}
			if err := nextB(); err != nil {
				return err
			}
		}
	}
}

// Close removes every remaining run file and the Sorter's private temp
// directory. A Sorter must not be used after Close.
func (s *Sorter) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return os.RemoveAll(s.tmpDir)
}
