package images

import "strings"

// ImageFormat represents supported encoded image formats.
type ImageFormat string

const (
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatWebP is the WebP image format.
	FormatWebP ImageFormat = "webp"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
	// FormatUnknown is any extension this package cannot decode.
	FormatUnknown ImageFormat = ""
)

// FormatForExtension maps a file extension (with or without the leading dot)
// to its image format.
func FormatForExtension(ext string) ImageFormat {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "jpg", "jpeg":
		return FormatJPEG
	case "webp":
		return FormatWebP
	case "png":
		return FormatPNG
	default:
		return FormatUnknown
	}
}
