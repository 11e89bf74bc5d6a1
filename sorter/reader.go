package sorter

import (
	"os"

	"github.com/joeycumines/gsk"
)

// Reader yields every record a Sorter accumulated, in sorted (and, if Merge
// was configured, merged) order. Obtained via Sorter.Reader; closing it
// removes its backing run file.
type Reader struct {
	rr   *recordReader
	path string
}

// Reader flushes any buffered records and collapses every remaining run
// into one final file, returning a Reader over it. The Sorter must not be
// used for further Add calls afterward.
func (s *Sorter) Reader() (*Reader, error) {
	if s.closed {
		return nil, gsk.ErrSorterClosed
	}
	if err := s.flush(); err != nil {
		return nil, err
	}

	final := ""
	for _, path := range s.levels {
		if path == "" {
			continue
		}
		if final == "" {
			final = path
			continue
		}
		merged, err := s.mergeRuns(final, path)
		if err != nil {
			return nil, err
		}
		os.Remove(final)
		os.Remove(path)
		final = merged
	}
	s.levels = nil

	if final == "" {
		// Nothing was ever added: synthesize an empty run so Next behaves
		// consistently (immediate io.EOF) instead of needing a special case.
		empty, err := s.writeRun(nil)
		if err != nil {
			return nil, err
		}
		final = empty
	}

	rr, err := openRecordReader(final)
	if err != nil {
		return nil, err
	}
	return &Reader{rr: rr, path: final}, nil
}

// Next returns the next record in sorted/merged order, io.EOF when
// exhausted.
func (r *Reader) Next() ([]byte, error) {
	return r.rr.next()
}

// Close releases the reader's backing file.
func (r *Reader) Close() error {
	err := r.rr.close()
	os.Remove(r.path)
	return err
}
