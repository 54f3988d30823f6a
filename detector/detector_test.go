package detector

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visionml/go-detect/inference"
	"github.com/visionml/go-detect/preprocess"
)

// mockEngine replays canned raw outputs in call order, repeating the last
// one once the script runs out.
type mockEngine struct {
	outputs []*inference.Output
	errs    []error
	calls   int
	closed  bool
}

func (m *mockEngine) Run(_ context.Context, _ *preprocess.Input) (*inference.Output, error) {
	i := m.calls
	m.calls++
	if i >= len(m.outputs) {
		i = len(m.outputs) - 1
	}
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	return m.outputs[i], nil
}

func (m *mockEngine) Close() error {
	m.closed = true
	return nil
}

// rawOutput builds a channel-major [1, 6, N] output tensor for a two-class
// model from per-prediction (cx, cy, w, h, score0, score1) rows.
func rawOutput(predictions ...[6]float32) *inference.Output {
	n := len(predictions)
	data := make([]float32, 6*n)
	for c := 0; c < 6; c++ {
		for p, pred := range predictions {
			data[c*n+p] = pred[c]
		}
	}
	return &inference.Output{Shape: []int64{1, 6, int64(n)}, Data: data}
}

func testOptions() Options {
	return Options{
		Labels:         []string{"cat", "dog"},
		Input:          preprocess.TensorDescriptor{Width: 4, Height: 4, Layout: preprocess.NCHW, DType: preprocess.Float32},
		PreferredClass: -1,
	}
}

// testFrame builds a planar gray YUV420 frame.
func testFrame(width, height int) *preprocess.Frame {
	chroma := make([]byte, (width/2)*(height/2))
	for i := range chroma {
		chroma[i] = 128
	}
	luma := make([]byte, width*height)
	for i := range luma {
		luma[i] = 128
	}
	return &preprocess.Frame{
		Width:  width,
		Height: height,
		Planes: []preprocess.Plane{
			{Bytes: luma, RowStride: width, PixelStride: 1},
			{Bytes: chroma, RowStride: width / 2, PixelStride: 1},
			{Bytes: append([]byte(nil), chroma...), RowStride: width / 2, PixelStride: 1},
		},
	}
}

func TestDetectImage(t *testing.T) {
	engine := &mockEngine{outputs: []*inference.Output{
		rawOutput([6]float32{0.5, 0.5, 0.2, 0.4, 0.9, 0.1}),
	}}
	d := New(engine, testOptions())

	img := image.NewRGBA(image.Rect(0, 0, 640, 480))
	results, err := d.DetectImage(context.Background(), img)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, "cat", results[0].Label)
	assert.InDelta(t, 0.9, results[0].Score, 1e-6)
	assert.InDelta(t, 320, results[0].Box.CX, 1e-3)
	assert.InDelta(t, 240, results[0].Box.CY, 1e-3)
	assert.InDelta(t, 128, results[0].Box.W, 1e-3)
	assert.InDelta(t, 192, results[0].Box.H, 1e-3)
}

func TestDetectFrameEngineErrorPropagates(t *testing.T) {
	cause := &inference.EngineError{Op: "run session", Err: errors.New("native crash")}
	engine := &mockEngine{
		outputs: []*inference.Output{nil},
		errs:    []error{cause},
	}
	d := New(engine, testOptions())

	results, err := d.DetectFrame(context.Background(), testFrame(8, 8))
	assert.Empty(t, results)

	var engineErr *inference.EngineError
	require.ErrorAs(t, err, &engineErr)
}

func TestDetectFrameMalformedFrameSkipsInference(t *testing.T) {
	engine := &mockEngine{outputs: []*inference.Output{rawOutput()}}
	d := New(engine, testOptions())

	_, err := d.DetectFrame(context.Background(), &preprocess.Frame{Width: 8, Height: 8})
	assert.ErrorIs(t, err, preprocess.ErrMalformedFrame)
	assert.Zero(t, engine.calls)
}

func TestDetectFrameThrottle(t *testing.T) {
	engine := &mockEngine{outputs: []*inference.Output{
		rawOutput([6]float32{0.5, 0.5, 0.2, 0.4, 0.9, 0.1}),
	}}
	opts := testOptions()
	opts.ProcessEveryNFrames = 2
	d := New(engine, opts)

	frame := testFrame(8, 8)
	for i := 0; i < 4; i++ {
		_, err := d.DetectFrame(context.Background(), frame)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, engine.calls)
}

func TestDetectFrameEmptyResultIsNotAnError(t *testing.T) {
	// Every candidate below threshold: a valid, empty result.
	engine := &mockEngine{outputs: []*inference.Output{
		rawOutput([6]float32{0.5, 0.5, 0.2, 0.4, 0.1, 0.2}),
	}}
	d := New(engine, testOptions())

	results, err := d.DetectFrame(context.Background(), testFrame(8, 8))
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDetectFrameRemapsDeclaredRotation(t *testing.T) {
	// An 8x6 frame carrying a declared 90° clockwise rotation: the box is
	// decoded in delivered coordinates (cx=4, cy=1.5), then mapped into the
	// 6x8 sensor frame as cx'=cy=1.5, cy'=8-cx=4 with dimensions swapped.
	engine := &mockEngine{outputs: []*inference.Output{
		rawOutput([6]float32{0.5, 0.25, 0.2, 0.2, 0.9, 0.1}),
	}}
	d := New(engine, testOptions())

	f := testFrame(8, 6)
	f.RotationDegrees = 90
	results, err := d.DetectFrame(context.Background(), f)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.InDelta(t, 1.5, results[0].Box.CX, 1e-3)
	assert.InDelta(t, 4, results[0].Box.CY, 1e-3)
	assert.InDelta(t, 1.2, results[0].Box.W, 1e-3)
	assert.InDelta(t, 1.6, results[0].Box.H, 1e-3)
}

func TestDetectFrameBadOutputShape(t *testing.T) {
	engine := &mockEngine{outputs: []*inference.Output{
		{Shape: []int64{1, 5, 7}, Data: make([]float32, 35)},
	}}
	d := New(engine, testOptions())

	_, err := d.DetectFrame(context.Background(), testFrame(8, 8))
	assert.Error(t, err)
}

func TestClose(t *testing.T) {
	engine := &mockEngine{}
	d := New(engine, testOptions())
	require.NoError(t, d.Close())
	assert.True(t, engine.closed)
}

func TestLoadLabels(t *testing.T) {
	// Interior blank lines are placeholder classes and keep later indices
	// aligned; trailing blank lines are dropped.
	path := filepath.Join(t.TempDir(), "labels.txt")
	require.NoError(t, os.WriteFile(path, []byte("cat\n\ndog\n\n"), 0o644))

	labels, err := LoadLabels(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "", "dog"}, labels)
	assert.Equal(t, 2, ClassIndex(labels, "dog"))
}

func TestLoadLabelsMissingFile(t *testing.T) {
	_, err := LoadLabels(filepath.Join(t.TempDir(), "absent.txt"))
	assert.Error(t, err)
}

func TestStatsCollectsPipelineTimings(t *testing.T) {
	engine := &mockEngine{outputs: []*inference.Output{
		rawOutput([6]float32{0.5, 0.5, 0.2, 0.4, 0.9, 0.1}),
	}}
	opts := testOptions()
	opts.Stats = NewStats()
	d := New(engine, opts)

	_, err := d.DetectFrame(context.Background(), testFrame(8, 8))
	require.NoError(t, err)

	snapshot := opts.Stats.Snapshot()
	for _, stage := range []string{StageConvert, StageInference, StageDecode} {
		report, ok := snapshot[stage]
		require.True(t, ok, stage)
		assert.EqualValues(t, 1, report.Count, stage)
		assert.GreaterOrEqual(t, report.Max, report.Mean, stage)
	}
}

func TestClassIndex(t *testing.T) {
	assert.Equal(t, 0, ClassIndex(COCOLabels, "person"))
	assert.Equal(t, -1, ClassIndex(COCOLabels, "unicorn"))
}
