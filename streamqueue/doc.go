// Package streamqueue chains a sequence of Stream sub-streams into one
// logical stream. A caller appends readable and/or writable sub-streams as
// they become available (e.g. one per uploaded file, one per connection
// accepted); Queue.Read and Queue.Write transparently advance to the next
// sub-stream on EOF, up to a bounded number of retries per call, and raise
// two empty-notification hooks when the respective chain drains.
//
// It has no dependency on gsk's reactor: a caller wires Read/Write into
// whatever I/O source callback drives it.
package streamqueue
