package world

// Room is a rectangular carved area. Bounds are inclusive of the floor
// tiles; walls sit outside the rectangle.
type Room struct {
	ID     int      `json:"id"`
	X      int      `json:"x"`
	Y      int      `json:"y"`
	Width  int      `json:"width"`
	Height int      `json:"height"`
	Type   RoomType `json:"type"`
}

// Centre returns the room's midpoint.
func (r Room) Centre() (int, int) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Contains reports whether (x,y) lies inside the room rectangle.
func (r Room) Contains(x, y int) bool {
	return x >= r.X && x < r.X+r.Width && y >= r.Y && y < r.Y+r.Height
}

// Overlaps reports whether two rooms intersect, including a one-tile margin
// so carved rooms keep a wall between them.
func (r Room) Overlaps(other Room) bool {
	return r.X-1 < other.X+other.Width &&
		r.X+r.Width+1 > other.X &&
		r.Y-1 < other.Y+other.Height &&
		r.Y+r.Height+1 > other.Y
}

// Interior returns the room's tiles excluding the outer ring, falling back
// to the full rectangle for rooms too small to have one.
func (r Room) Interior() []Position2 {
	var out []Position2
	for y := r.Y + 1; y < r.Y+r.Height-1; y++ {
		for x := r.X + 1; x < r.X+r.Width-1; x++ {
			out = append(out, Position2{X: x, Y: y})
		}
	}
	if len(out) == 0 {
		for y := r.Y; y < r.Y+r.Height; y++ {
			for x := r.X; x < r.X+r.Width; x++ {
				out = append(out, Position2{X: x, Y: y})
			}
		}
	}
	return out
}

// Position2 is a bare map coordinate used by room geometry.
type Position2 struct {
	X int `json:"x"`
	Y int `json:"y"`
}
