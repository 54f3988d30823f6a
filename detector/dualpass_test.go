package detector

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visionml/go-detect/inference"
	"github.com/visionml/go-detect/postprocess"
	"github.com/visionml/go-detect/preprocess"
)

func det(class int, score float32) postprocess.Detection {
	return postprocess.Detection{Class: class, Score: score}
}

func TestDualPassPrefersStrongerRotatedPass(t *testing.T) {
	engine := &mockEngine{outputs: []*inference.Output{
		rawOutput([6]float32{0.5, 0.5, 0.2, 0.2, 0.55, 0.1}),
		rawOutput([6]float32{0.5, 0.25, 0.2, 0.2, 0.9, 0.1}),
	}}
	d := New(engine, testOptions())

	results, err := d.DetectFrameDualPass(context.Background(), testFrame(8, 6))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 2, engine.calls)

	// Rotated-pass box scaled to the rotated 6x8 frame (cx=3, cy=2) and
	// remapped back to the 8x6 sensor frame by undoing the clockwise
	// rotation: cx'=cy=2, cy'=6-cx=3, dimensions swapped.
	assert.InDelta(t, 0.9, results[0].Score, 1e-6)
	assert.InDelta(t, 2, results[0].Box.CX, 1e-3)
	assert.InDelta(t, 3, results[0].Box.CY, 1e-3)
	assert.InDelta(t, 1.6, results[0].Box.W, 1e-3)
	assert.InDelta(t, 1.2, results[0].Box.H, 1e-3)
}

// markerEngine locates the brightest pixel of the input's red channel and
// emits one detection centered on it, scoring higher on every call so the
// rotated pass always wins.
type markerEngine struct {
	calls int
}

func (m *markerEngine) Run(_ context.Context, in *preprocess.Input) (*inference.Output, error) {
	n := in.Desc.Width
	best := 0
	for i := 1; i < n*n; i++ {
		if in.Floats[i] > in.Floats[best] {
			best = i
		}
	}
	cx := (float32(best%n) + 0.5) / float32(n)
	cy := (float32(best/n) + 0.5) / float32(n)
	score := float32(0.55)
	if m.calls > 0 {
		score = 0.9
	}
	m.calls++
	return rawOutput([6]float32{cx, cy, 0.25, 0.25, score, 0.1}), nil
}

func (m *markerEngine) Close() error { return nil }

func TestDualPassRemapReturnsToMarkerPixel(t *testing.T) {
	// A single bright pixel at (1, 0) of a 4x4 frame. The rotated pass sees
	// it at (3, 1), and the winning rotated detection must come back
	// centered on the marker's original position, not its point reflection.
	f := testFrame(4, 4)
	for i := range f.Planes[0].Bytes {
		f.Planes[0].Bytes[i] = 16
	}
	f.Planes[0].Bytes[1] = 235

	d := New(&markerEngine{}, testOptions())
	results, err := d.DetectFrameDualPass(context.Background(), f)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.InDelta(t, 0.9, results[0].Score, 1e-6)
	assert.InDelta(t, 1.5, results[0].Box.CX, 1e-3)
	assert.InDelta(t, 0.5, results[0].Box.CY, 1e-3)
}

func TestDualPassTieFavorsDirectPass(t *testing.T) {
	output := rawOutput([6]float32{0.5, 0.5, 0.2, 0.2, 0.8, 0.1})
	engine := &mockEngine{outputs: []*inference.Output{output, output}}
	d := New(engine, testOptions())

	results, err := d.DetectFrameDualPass(context.Background(), testFrame(8, 6))
	require.NoError(t, err)
	require.Len(t, results, 1)

	// Direct-pass geometry: scaled to the 8x6 frame, never remapped.
	assert.InDelta(t, 4, results[0].Box.CX, 1e-3)
	assert.InDelta(t, 3, results[0].Box.CY, 1e-3)
}

func TestDualPassSwallowsRotatedPassFailure(t *testing.T) {
	engine := &mockEngine{
		outputs: []*inference.Output{
			rawOutput([6]float32{0.5, 0.5, 0.2, 0.2, 0.7, 0.1}),
			nil,
		},
		errs: []error{nil, errors.New("rotated pass exploded")},
	}
	d := New(engine, testOptions())

	results, err := d.DetectFrameDualPass(context.Background(), testFrame(8, 6))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 0.7, results[0].Score, 1e-6)
}

func TestDualPassDirectPassFailurePropagates(t *testing.T) {
	engine := &mockEngine{
		outputs: []*inference.Output{nil},
		errs:    []error{errors.New("direct pass exploded")},
	}
	d := New(engine, testOptions())

	_, err := d.DetectFrameDualPass(context.Background(), testFrame(8, 6))
	assert.Error(t, err)
	assert.Equal(t, 1, engine.calls)
}

func TestDualPassSkipsRotationForNonSquareInput(t *testing.T) {
	engine := &mockEngine{outputs: []*inference.Output{
		rawOutput([6]float32{0.5, 0.5, 0.2, 0.2, 0.8, 0.1}),
	}}
	opts := testOptions()
	opts.Input.Width = 6
	opts.Input.Height = 4
	d := New(engine, opts)

	results, err := d.DetectFrameDualPass(context.Background(), testFrame(8, 6))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, engine.calls)
}

func TestDualPassPreferredClassBonus(t *testing.T) {
	// The rotated pass scores higher on raw confidence, but only the direct
	// pass contains the preferred class.
	engine := &mockEngine{outputs: []*inference.Output{
		rawOutput([6]float32{0.5, 0.5, 0.2, 0.2, 0.6, 0.1}),
		rawOutput([6]float32{0.5, 0.5, 0.2, 0.2, 0.1, 0.9}),
	}}
	opts := testOptions()
	opts.PreferredClass = 0
	d := New(engine, opts)

	results, err := d.DetectFrameDualPass(context.Background(), testFrame(8, 6))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "cat", results[0].Label)
}

func TestScoreResults(t *testing.T) {
	d := New(&mockEngine{}, testOptions())

	assert.InDelta(t, 0, d.scoreResults(nil), 1e-6)

	results := []Result{
		{Detection: det(0, 0.9)},
		{Detection: det(1, 0.6)},
	}
	assert.InDelta(t, 1.6, d.scoreResults(results), 1e-6)

	opts := testOptions()
	opts.PreferredClass = 1
	preferring := New(&mockEngine{}, opts)
	assert.InDelta(t, 2.6, preferring.scoreResults(results), 1e-6)
}
