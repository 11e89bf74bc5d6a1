package streamqueue

// Hook groups the notifications a Queue raises about one direction's
// sub-stream chain.
type Hook struct {
	// Func fires every time the chain transitions from non-empty to empty,
	// whether or not the corresponding "no more X" declaration has been
	// made yet.
	Func func()

	// ShutdownFunc fires exactly once, the moment the chain is both empty
	// and its "no more X" declaration has been made -- whichever of those
	// two happens second.
	ShutdownFunc func()

	// Destroy is called when the Queue itself is closed, for cleanup
	// independent of either empty condition.
	Destroy func()
}

func (h Hook) fireEmpty() {
	if h.Func != nil {
		h.Func()
	}
}

func (h Hook) fireShutdown() {
	if h.ShutdownFunc != nil {
		h.ShutdownFunc()
	}
}

func (h Hook) fireDestroy() {
	if h.Destroy != nil {
		h.Destroy()
	}
}
