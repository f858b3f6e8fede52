package view

// Tape is a ring buffer that keeps the most recent entries (bounded memory).
// It is not safe for concurrent use; StepView guards its tapes.
type Tape[T any] struct {
	buf   []T
	size  int
	start int
	count int
}

// NewTape creates a new Tape with the given capacity.
func NewTape[T any](capacity int) *Tape[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Tape[T]{
		buf:  make([]T, capacity),
		size: capacity,
	}
}

// Append adds an entry to the tape.
func (t *Tape[T]) Append(v T) {
	if t.count < t.size {
		t.buf[(t.start+t.count)%t.size] = v
		t.count++
		return
	}
	// overwrite oldest
	t.buf[t.start] = v
	t.start = (t.start + 1) % t.size
}

// Last returns the last n entries in chronological order.
// Returns a copy of the slice, not of the entries.
func (t *Tape[T]) Last(n int) []T {
	if n <= 0 || t.count == 0 {
		return nil
	}
	if n > t.count {
		n = t.count
	}
	out := make([]T, n)
	first := (t.start + (t.count - n)) % t.size
	for i := 0; i < n; i++ {
		out[i] = t.buf[(first+i)%t.size]
	}
	return out
}

// Count returns the number of entries in the tape.
func (t *Tape[T]) Count() int {
	return t.count
}
