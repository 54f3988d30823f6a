package images

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/chai2010/webp"
	"github.com/cshum/vipsgen/vips"
	"github.com/pkg/errors"
)

// DecodeShrunk decodes an encoded image and shrinks it to fit within
// width x height in one libvips pass, returning a Go-native image.Image.
// Shrinking during decode avoids materializing the full-resolution bitmap
// for large camera stills that are about to be resampled down to a model
// input anyway.
func DecodeShrunk(b []byte, format ImageFormat, width, height int) (image.Image, error) {
	if len(b) == 0 {
		return nil, errors.New("images: empty image data")
	}
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("images: invalid target dimensions %dx%d", width, height)
	}

	var save func(*vips.Image) ([]byte, error)
	var decode func(io.Reader) (image.Image, error)
	switch format {
	case FormatJPEG:
		save = func(i *vips.Image) ([]byte, error) { return i.JpegsaveBuffer(&vips.JpegsaveBufferOptions{}) }
		decode = jpeg.Decode
	case FormatWebP:
		save = func(i *vips.Image) ([]byte, error) { return i.WebpsaveBuffer(&vips.WebpsaveBufferOptions{}) }
		decode = webp.Decode
	case FormatPNG:
		save = func(i *vips.Image) ([]byte, error) { return i.PngsaveBuffer(&vips.PngsaveBufferOptions{}) }
		decode = png.Decode
	default:
		return nil, errors.Errorf("images: unsupported image format %q", format)
	}

	img, err := vips.NewImageFromBuffer(b, &vips.LoadOptions{
		Access: vips.AccessSequential,
	})
	if err != nil {
		return nil, errors.Wrap(err, "images: load image")
	}
	defer img.Close()

	err = img.ThumbnailImage(width, &vips.ThumbnailImageOptions{
		Height: height,
		FailOn: vips.FailOnError,
	})
	if err != nil {
		return nil, errors.Wrap(err, "images: shrink image")
	}

	encoded, err := save(img)
	if err != nil {
		return nil, errors.Wrapf(err, "images: encode shrunk %s", format)
	}
	if len(encoded) == 0 {
		return nil, errors.Errorf("images: %s encoder produced no bytes", format)
	}

	decoded, err := decode(bytes.NewReader(encoded))
	return decoded, errors.Wrapf(err, "images: decode shrunk %s", format)
}
