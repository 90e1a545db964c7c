package gps

// trail is the bounded FIFO of received positions.
type trail struct {
	capacity int
	points   []Position
}

func newTrail(capacity int) *trail {
	return &trail{capacity: capacity, points: make([]Position, 0, capacity)}
}

func (t *trail) add(p Position) {
	if len(t.points) == t.capacity {
		copy(t.points, t.points[1:])
		t.points = t.points[:len(t.points)-1]
	}
	t.points = append(t.points, p)
}

func (t *trail) clear() {
	t.points = t.points[:0]
}

func (t *trail) len() int { return len(t.points) }

func (t *trail) snapshot() []Position {
	out := make([]Position, len(t.points))
	copy(out, t.points)
	return out
}
