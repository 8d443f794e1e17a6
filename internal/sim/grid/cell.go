package grid

// Cell holds the ordered occupants of one grid position. By convention the
// ground tile comes first.
type Cell[T comparable] struct {
	objects []T
}

func (c *Cell[T]) Add(v T) {
	c.objects = append(c.objects, v)
}

// Remove deletes the first occurrence of v, keeping order.
func (c *Cell[T]) Remove(v T) bool {
	for i, o := range c.objects {
		if o == v {
			c.objects = append(c.objects[:i], c.objects[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Cell[T]) Contains(v T) bool {
	for _, o := range c.objects {
		if o == v {
			return true
		}
	}
	return false
}

// Objects returns a copy of the occupants.
func (c *Cell[T]) Objects() []T {
	return append([]T(nil), c.objects...)
}

func (c *Cell[T]) Len() int { return len(c.objects) }

// First returns the bottom-most occupant.
func (c *Cell[T]) First() (T, bool) {
	var zero T
	if len(c.objects) == 0 {
		return zero, false
	}
	return c.objects[0], true
}
