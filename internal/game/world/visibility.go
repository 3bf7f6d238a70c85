package world

// VisibilityRadius is how far the player sees, in Chebyshev distance.
const VisibilityRadius = 2

// RecomputeVisibility clears every tile's visibility and lights the square
// around (x,y). Lit tiles also become explored; exploration never resets.
func RecomputeVisibility(m *GameMap, x, y int) {
	for _, t := range m.Tiles {
		t.IsVisible = false
	}
	for dy := -VisibilityRadius; dy <= VisibilityRadius; dy++ {
		for dx := -VisibilityRadius; dx <= VisibilityRadius; dx++ {
			if t, ok := m.TileAt(x+dx, y+dy); ok {
				t.IsVisible = true
				t.IsExplored = true
			}
		}
	}
}
