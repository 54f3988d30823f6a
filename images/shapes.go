// Package images - Image processing utilities
package images

// Box is a center-form bounding box (cx, cy, w, h). The unit of its
// coordinates (normalized 0..1 or pixels) is a contract between pipeline
// stages; a single Box never mixes units.
type Box struct {
	CX, CY, W, H float32
}

// Rect is a lightweight corner-form bounding box.
type Rect struct {
	X1, Y1, X2, Y2 float32
}

// ToRect converts a center-form box to corner form:
// x1=cx-w/2, y1=cy-h/2, x2=cx+w/2, y2=cy+h/2.
func (b Box) ToRect() Rect {
	return Rect{
		X1: b.CX - b.W/2,
		Y1: b.CY - b.H/2,
		X2: b.CX + b.W/2,
		Y2: b.CY + b.H/2,
	}
}

// ToBox converts a corner-form box back to center form.
func (r Rect) ToBox() Box {
	return Box{
		CX: (r.X1 + r.X2) / 2,
		CY: (r.Y1 + r.Y2) / 2,
		W:  r.X2 - r.X1,
		H:  r.Y2 - r.Y1,
	}
}

// Area returns the area of r, or 0 when r is degenerate (x1>=x2 or y1>=y2).
func (r Rect) Area() float32 {
	w := r.X2 - r.X1
	h := r.Y2 - r.Y1
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// CalculateIoU computes the Intersection over Union of two corner-form boxes.
//
// IoU = Area of Intersection / Area of Union.
//
//   - 1.0 means the boxes are identical.
//   - 0.0 means the boxes do not overlap at all.
//
// Degenerate boxes (zero or negative extent) contribute an intersection of
// zero and therefore an IoU of 0. The result is clamped to [0, 1] so that
// floating-point noise can never push it outside the metric's range.
//
// Arguments:
//   - r: The first rectangle.
//   - o: The other rectangle to compare against.
//
// Returns:
//   - float32: A value between 0.0 and 1.0 representing the IoU score.
func CalculateIoU(r, o Rect) float32 {
	// The intersection's top-left is the max of the two top-lefts, its
	// bottom-right the min of the two bottom-rights.
	ix1 := max(r.X1, o.X1)
	iy1 := max(r.Y1, o.Y1)
	ix2 := min(r.X2, o.X2)
	iy2 := min(r.Y2, o.Y2)

	interW := ix2 - ix1
	interH := iy2 - iy1
	if interW <= 0 || interH <= 0 {
		return 0.0
	}
	interArea := interW * interH

	// Inclusion-Exclusion: Union(A, B) = Area(A) + Area(B) - Intersection(A, B)
	unionArea := r.Area() + o.Area() - interArea
	if unionArea <= 0 {
		return 0.0
	}

	iou := interArea / unionArea
	if iou > 1 {
		return 1
	}
	if iou < 0 {
		return 0
	}
	return iou
}
