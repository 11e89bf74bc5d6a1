// Package sorter implements an external (disk-spilling) sort over
// variable-length, length-prefixed byte records. It buffers records in
// memory up to a configurable limit, spills sorted runs to a private temp
// directory, and cascades same-level runs through a binary merge tree so
// the number of on-disk runs stays logarithmic in the total record count.
//
// The package has no dependency on gsk's reactor: it is driven entirely by
// direct calls from whatever goroutine owns the Sorter. Record I/O against
// run files goes through gsk.Buffer, staging writes for batched writev(2)
// flushes and staging reads filled a chunk at a time by read(2), rather than one syscall per
// record.
package sorter
