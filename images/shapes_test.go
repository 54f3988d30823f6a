package images

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestBoxRectRoundTrip verifies center-form/corner-form conversions invert
// each other.
func TestBoxRectRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		box  Box
	}{
		{name: "unit box at origin", box: Box{CX: 0, CY: 0, W: 1, H: 1}},
		{name: "normalized box", box: Box{CX: 0.5, CY: 0.5, W: 0.2, H: 0.4}},
		{name: "pixel box", box: Box{CX: 320, CY: 240, W: 128, H: 192}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.box.ToRect().ToBox()
			assert.InDelta(t, tt.box.CX, got.CX, 1e-5)
			assert.InDelta(t, tt.box.CY, got.CY, 1e-5)
			assert.InDelta(t, tt.box.W, got.W, 1e-5)
			assert.InDelta(t, tt.box.H, got.H, 1e-5)
		})
	}
}

func TestToRect(t *testing.T) {
	r := Box{CX: 0.5, CY: 0.5, W: 0.2, H: 0.4}.ToRect()
	assert.InDelta(t, 0.4, r.X1, 1e-6)
	assert.InDelta(t, 0.3, r.Y1, 1e-6)
	assert.InDelta(t, 0.6, r.X2, 1e-6)
	assert.InDelta(t, 0.7, r.Y2, 1e-6)
}

// TestCalculateIoU exercises the known-value, degenerate and non-overlapping
// cases of the IoU metric.
func TestCalculateIoU(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Rect
		expected float32
	}{
		{
			name:     "quarter overlap",
			a:        Rect{X1: 0, Y1: 0, X2: 10, Y2: 10},
			b:        Rect{X1: 5, Y1: 5, X2: 15, Y2: 15},
			expected: 25.0 / 175.0,
		},
		{
			name:     "identical boxes",
			a:        Rect{X1: 1, Y1: 2, X2: 5, Y2: 6},
			b:        Rect{X1: 1, Y1: 2, X2: 5, Y2: 6},
			expected: 1.0,
		},
		{
			name:     "disjoint boxes",
			a:        Rect{X1: 0, Y1: 0, X2: 1, Y2: 1},
			b:        Rect{X1: 2, Y1: 2, X2: 3, Y2: 3},
			expected: 0.0,
		},
		{
			name:     "degenerate first box",
			a:        Rect{X1: 5, Y1: 5, X2: 5, Y2: 5},
			b:        Rect{X1: 0, Y1: 0, X2: 10, Y2: 10},
			expected: 0.0,
		},
		{
			name:     "inverted box",
			a:        Rect{X1: 10, Y1: 10, X2: 0, Y2: 0},
			b:        Rect{X1: 0, Y1: 0, X2: 10, Y2: 10},
			expected: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, CalculateIoU(tt.a, tt.b), 1e-5)
		})
	}
}

// TestCalculateIoUSymmetricAndBounded checks iou(a,b) == iou(b,a) and
// 0 <= iou <= 1 across a spread of box pairs.
func TestCalculateIoUSymmetricAndBounded(t *testing.T) {
	boxes := []Rect{
		{X1: 0, Y1: 0, X2: 10, Y2: 10},
		{X1: 5, Y1: 5, X2: 15, Y2: 15},
		{X1: -3, Y1: -3, X2: 3, Y2: 3},
		{X1: 2, Y1: 2, X2: 2, Y2: 8}, // zero width
		{X1: 100, Y1: 100, X2: 101, Y2: 101},
	}

	for i, a := range boxes {
		for j, b := range boxes {
			ab := CalculateIoU(a, b)
			ba := CalculateIoU(b, a)
			assert.Equal(t, ab, ba, "iou not symmetric for pair (%d,%d)", i, j)
			assert.GreaterOrEqual(t, ab, float32(0))
			assert.LessOrEqual(t, ab, float32(1))
		}
	}

	// Self-IoU of a non-degenerate box is exactly 1.
	assert.Equal(t, float32(1), CalculateIoU(boxes[0], boxes[0]))
}
