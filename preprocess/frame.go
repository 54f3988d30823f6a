// Package preprocess - converts raw camera frames and still images into the
// tensor layouts detection models consume.
package preprocess

import (
	"github.com/pkg/errors"
)

// ErrMalformedFrame reports a frame whose plane data cannot be interpreted as
// YUV420: a required plane is absent or empty. Per-byte gaps inside a present
// plane are not malformed; those bytes read as the neutral chroma value.
var ErrMalformedFrame = errors.New("preprocess: malformed frame")

// Layout is the memory order of the output tensor.
type Layout int

const (
	// NCHW stores the image as three contiguous channel planes.
	NCHW Layout = iota
	// NHWC stores the image as interleaved per-pixel channel triples.
	NHWC
)

func (l Layout) String() string {
	if l == NHWC {
		return "NHWC"
	}
	return "NCHW"
}

// DType is the element type of the output tensor.
type DType int

const (
	// Float32 scales channel values to [0, 1].
	Float32 DType = iota
	// Uint8 keeps channel values as raw 0..255 bytes.
	Uint8
)

func (d DType) String() string {
	if d == Uint8 {
		return "uint8"
	}
	return "float32"
}

// TensorDescriptor describes the input tensor a model expects: spatial size,
// memory layout and element type. The batch dimension is always 1.
type TensorDescriptor struct {
	Width  int
	Height int
	Layout Layout
	DType  DType
}

// Shape returns the 4-D tensor shape implied by the descriptor.
func (d TensorDescriptor) Shape() []int64 {
	if d.Layout == NHWC {
		return []int64{1, int64(d.Height), int64(d.Width), 3}
	}
	return []int64{1, 3, int64(d.Height), int64(d.Width)}
}

// Elements returns the number of channel values in the tensor.
func (d TensorDescriptor) Elements() int {
	return 3 * d.Width * d.Height
}

// Plane is one plane of a planar or semi-planar YUV frame. RowStride is the
// byte distance between vertically adjacent samples; PixelStride the distance
// between horizontally adjacent samples (2 for interleaved NV12/NV21 chroma).
type Plane struct {
	Bytes       []byte
	RowStride   int
	PixelStride int
}

// Frame is a single YUV420 camera frame. Planes holds Y, U, V in that order.
// RotationDegrees is the clockwise rotation the frame content carries
// relative to the sensor (0, 90, 180 or 270); the converter does not apply
// it, detections are remapped back to the sensor orientation instead.
type Frame struct {
	Width           int
	Height          int
	RotationDegrees int
	Planes          []Plane
}

// validate checks that all three planes are present and non-empty.
func (f *Frame) validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return errors.Wrapf(ErrMalformedFrame, "%dx%d frame", f.Width, f.Height)
	}
	if len(f.Planes) < 3 {
		return errors.Wrapf(ErrMalformedFrame, "%d planes, need 3", len(f.Planes))
	}
	for i := range f.Planes[:3] {
		if len(f.Planes[i].Bytes) == 0 {
			return errors.Wrapf(ErrMalformedFrame, "plane %d is empty", i)
		}
	}
	return nil
}
