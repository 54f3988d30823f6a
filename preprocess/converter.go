package preprocess

import (
	"image"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// BT.601 YUV to RGB coefficients. Luma is video range (16..235) and is
// expanded before the chroma terms are added, so nominal white (Y=235,
// U=V=128) converts to full-scale RGB white.
const (
	lumaOffset = 16
	lumaScale  = 1.164

	redVWeight   = 1.402
	greenUWeight = 0.344136
	greenVWeight = 0.714136
	blueUWeight  = 1.772

	// neutralChroma is substituted for any byte whose computed index falls
	// outside a present plane, yielding a grayscale pixel instead of a
	// conversion failure.
	neutralChroma = 128
)

// Input is a converted model input tensor. Exactly one of Floats or Bytes is
// populated, matching Desc.DType. The backing slices are owned by the
// Converter and are overwritten by its next conversion.
type Input struct {
	Desc   TensorDescriptor
	Floats []float32
	Bytes  []byte
}

// Converter turns frames and still images into model input tensors. The
// output buffer is allocated once and reused across calls, so a Converter is
// not safe for concurrent use; give each worker its own.
type Converter struct {
	desc   TensorDescriptor
	floats []float32
	bytes  []byte
}

// NewConverter creates a Converter producing tensors shaped by desc.
func NewConverter(desc TensorDescriptor) *Converter {
	c := &Converter{desc: desc}
	if desc.DType == Uint8 {
		c.bytes = make([]byte, desc.Elements())
	} else {
		c.floats = make([]float32, desc.Elements())
	}
	return c
}

// Descriptor returns the output tensor descriptor.
func (c *Converter) Descriptor() TensorDescriptor {
	return c.desc
}

// put writes one channel value of the destination pixel, dispatching on the
// descriptor's layout and element type. v is a 0..255 channel value.
func (c *Converter) put(x, y, channel int, v float32) {
	var idx int
	if c.desc.Layout == NHWC {
		idx = (y*c.desc.Width+x)*3 + channel
	} else {
		idx = channel*c.desc.Width*c.desc.Height + y*c.desc.Width + x
	}
	if c.desc.DType == Uint8 {
		c.bytes[idx] = byte(v)
	} else {
		c.floats[idx] = v / 255.0
	}
}

func (c *Converter) input() *Input {
	return &Input{Desc: c.desc, Floats: c.floats, Bytes: c.bytes}
}

// sampleChroma reads one byte of a chroma plane, substituting the neutral
// value when the computed index falls outside the plane's backing. Frames
// from real camera HALs routinely carry strides that overrun the final row.
func sampleChroma(p *Plane, row, col int) float32 {
	idx := row*p.RowStride + col*p.PixelStride
	if idx < 0 || idx >= len(p.Bytes) {
		return neutralChroma
	}
	return float32(p.Bytes[idx])
}

// sampleLuma reads one byte of the luma plane, clamping the computed index
// into the plane's backing. A truncated plane repeats its last byte instead
// of flashing mid-gray.
func sampleLuma(p *Plane, row, col int) float32 {
	idx := row*p.RowStride + col*p.PixelStride
	if idx < 0 {
		idx = 0
	}
	if idx >= len(p.Bytes) {
		idx = len(p.Bytes) - 1
	}
	return float32(p.Bytes[idx])
}

func clampByte(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

// ConvertFrame resizes a YUV420 frame to the model input size and converts
// it to RGB in a single fused pass, with no intermediate RGB image.
//
// Luma is sampled bilinearly at the fractional source position of each
// destination pixel; chroma is sampled at half the integer source position,
// matching the 2x2 subsampling of YUV420. Color conversion follows BT.601.
//
// A frame missing any of its three planes fails with ErrMalformedFrame. The
// returned Input aliases the Converter's internal buffer.
func (c *Converter) ConvertFrame(f *Frame) (*Input, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}

	yPlane := &f.Planes[0]
	uPlane := &f.Planes[1]
	vPlane := &f.Planes[2]

	scaleX := float32(f.Width) / float32(c.desc.Width)
	scaleY := float32(f.Height) / float32(c.desc.Height)

	for dy := 0; dy < c.desc.Height; dy++ {
		srcY := (float32(dy)+0.5)*scaleY - 0.5
		if srcY < 0 {
			srcY = 0
		}
		y0 := int(srcY)
		fy := srcY - float32(y0)
		y1 := y0 + 1
		if y1 >= f.Height {
			y1 = f.Height - 1
		}

		for dx := 0; dx < c.desc.Width; dx++ {
			srcX := (float32(dx)+0.5)*scaleX - 0.5
			if srcX < 0 {
				srcX = 0
			}
			x0 := int(srcX)
			fx := srcX - float32(x0)
			x1 := x0 + 1
			if x1 >= f.Width {
				x1 = f.Width - 1
			}

			top := sampleLuma(yPlane, y0, x0)*(1-fx) + sampleLuma(yPlane, y0, x1)*fx
			bottom := sampleLuma(yPlane, y1, x0)*(1-fx) + sampleLuma(yPlane, y1, x1)*fx
			luma := lumaScale * (top*(1-fy) + bottom*fy - lumaOffset)

			u := sampleChroma(uPlane, y0/2, x0/2) - 128
			v := sampleChroma(vPlane, y0/2, x0/2) - 128

			c.put(dx, dy, 0, clampByte(luma+redVWeight*v))
			c.put(dx, dy, 1, clampByte(luma-greenUWeight*u-greenVWeight*v))
			c.put(dx, dy, 2, clampByte(luma+blueUWeight*u))
		}
	}
	return c.input(), nil
}

// ConvertImage resizes a decoded still image to the model input size with
// Lanczos3 resampling and writes it into the converter's tensor layout.
func (c *Converter) ConvertImage(img image.Image) *Input {
	img = resize.Resize(uint(c.desc.Width), uint(c.desc.Height), img, resize.Lanczos3)
	for y := 0; y < c.desc.Height; y++ {
		for x := 0; x < c.desc.Width; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			c.put(x, y, 0, float32(r>>8))
			c.put(x, y, 1, float32(g>>8))
			c.put(x, y, 2, float32(b>>8))
		}
	}
	return c.input()
}

// RotateSquare90 rotates a square input tensor 90° clockwise in place, by an
// index transpose followed by a horizontal reverse of every row. Works for
// both layouts and element types; non-square tensors are rejected.
func RotateSquare90(in *Input) error {
	if in.Desc.Width != in.Desc.Height {
		return errors.Errorf("preprocess: cannot rotate %dx%d tensor in place, square required",
			in.Desc.Width, in.Desc.Height)
	}

	var swap func(a, b int)
	if in.Desc.DType == Uint8 {
		swap = func(a, b int) { in.Bytes[a], in.Bytes[b] = in.Bytes[b], in.Bytes[a] }
	} else {
		swap = func(a, b int) { in.Floats[a], in.Floats[b] = in.Floats[b], in.Floats[a] }
	}

	n := in.Desc.Width
	idx := func(y, x, channel int) int {
		if in.Desc.Layout == NHWC {
			return (y*n+x)*3 + channel
		}
		return channel*n*n + y*n + x
	}

	for ch := 0; ch < 3; ch++ {
		for y := 0; y < n; y++ {
			for x := y + 1; x < n; x++ {
				swap(idx(y, x, ch), idx(x, y, ch))
			}
		}
		for y := 0; y < n; y++ {
			for x := 0; x < n/2; x++ {
				swap(idx(y, x, ch), idx(y, n-1-x, ch))
			}
		}
	}
	return nil
}
