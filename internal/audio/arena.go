package audio

import "fmt"

// Arena owns every ring of a pipeline. Elements refer to rings by index.
type Arena struct {
	rings []*Ring
}

// NewArena creates an arena from already initialized rings.
func NewArena(rings ...*Ring) *Arena {
	return &Arena{rings: rings}
}

// Buffer returns the ring at index i. Indices are validated at build time.
func (a *Arena) Buffer(i int) *Ring {
	return a.rings[i]
}

// Len returns the number of rings.
func (a *Arena) Len() int {
	return len(a.rings)
}

// Check reports whether i is a valid ring index.
func (a *Arena) Check(i int) error {
	if i < 0 || i >= len(a.rings) {
		return fmt.Errorf("buffer index %d out of range [0,%d)", i, len(a.rings))
	}
	return nil
}

// Reset resets every ring.
func (a *Arena) Reset() {
	for _, r := range a.rings {
		r.Reset()
	}
}
