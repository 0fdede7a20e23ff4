package terrain

// Triangles expands a triangle strip into triangles, dropping degenerate ones.
// Odd triangles are flipped so all triangles keep the winding of the first.
func Triangles(strip []uint32) [][3]uint32 {
	if len(strip) < 3 {
		return nil
	}
	tris := make([][3]uint32, 0, len(strip)-2)
	for i := 2; i < len(strip); i++ {
		a, b, c := strip[i-2], strip[i-1], strip[i]
		if a == b || b == c || a == c {
			continue
		}
		if i%2 == 1 {
			b, c = c, b
		}
		tris = append(tris, [3]uint32{a, b, c})
	}
	return tris
}
