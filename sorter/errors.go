package sorter

import "fmt"

// SorterIOError reports a fatal I/O failure -- temp-dir setup, a failed
// writev(2)/read(2) against a run file, or a run file that ends mid-record. Unlike the
// transient io.EOF a Reader returns at the end of a well-formed stream, a
// SorterIOError means the run is corrupt or the disk is failing; the
// Sorter/Reader that surfaced it must not be used further.
type SorterIOError struct {
	// Stage names the operation that failed: "init", "write" or "read".
	Stage string
	Cause error
}

func (e *SorterIOError) Error() string {
	return fmt.Sprintf("sorter: %s: %v", e.Stage, e.Cause)
}

func (e *SorterIOError) Unwrap() error { return e.Cause }
