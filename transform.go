package marionette

import "math"

// identityTransform is the identity affine matrix [a, b, c, d, tx, ty].
var identityTransform = [6]float32{1, 0, 0, 1, 0, 0}

// computeSpriteTransform writes the sprite's world affine matrix into out.
// The matrix composes scale, rotation (degrees), and a pivot expressed in
// display-size units (normalized pivot times display size), translated to
// the sprite's position. Built directly from the components, no
// intermediate matrix objects.
//
//	Matrix layout: [a, b, c, d, tx, ty]
//	| a  c  tx |
//	| b  d  ty |
//	| 0  0   1 |
func computeSpriteTransform(sp *Sprite, out *[6]float32) {
	px := sp.PivotX * sp.Width
	py := sp.PivotY * sp.Height
	sx := sp.ScaleX
	sy := sp.ScaleY

	// Fast path: no rotation. Pure scale plus pivot-adjusted translation.
	if sp.Rotation == 0 {
		out[0] = float32(sx)
		out[1] = 0
		out[2] = 0
		out[3] = float32(sy)
		out[4] = float32(sp.X - px*sx)
		out[5] = float32(sp.Y - py*sy)
		return
	}

	sin, cos := math.Sincos(sp.Rotation * math.Pi / 180)

	out[0] = float32(sx * cos)
	out[1] = float32(sy * sin)
	out[2] = float32(-sx * sin)
	out[3] = float32(sy * cos)
	out[4] = float32(sp.X - (px*sx*cos - py*sx*sin))
	out[5] = float32(sp.Y - (px*sy*sin + py*sy*cos))
}

// multiplyAffine multiplies two 2D affine matrices: result = parent * child.
func multiplyAffine(p, c [6]float32) [6]float32 {
	return [6]float32{
		p[0]*c[0] + p[2]*c[1],
		p[1]*c[0] + p[3]*c[1],
		p[0]*c[2] + p[2]*c[3],
		p[1]*c[2] + p[3]*c[3],
		p[0]*c[4] + p[2]*c[5] + p[4],
		p[1]*c[4] + p[3]*c[5] + p[5],
	}
}

// transformPoint applies an affine matrix to a point.
func transformPoint(m [6]float32, x, y float32) (float32, float32) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}
