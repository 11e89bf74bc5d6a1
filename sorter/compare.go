package sorter

import "golang.org/x/exp/constraints"

// ByKey builds a CompareFunc from a function extracting an ordered sort key
// out of a record, for the common case where records carry a typed key
// (an integer sequence number, a timestamp, a string) ahead of an opaque
// payload.
func ByKey[T constraints.Ordered](key func(record []byte) T) CompareFunc {
	return func(a, b []byte) int {
		ka, kb := key(a), key(b)
		switch {
		case ka < kb:
			return -1
		case ka > kb:
			return 1
		default:
			return 0
		}
	}
}
