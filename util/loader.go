// Package util - filesystem helpers for feeding images through the
// detection pipeline.
package util

import (
	"image"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/visionml/go-detect/images"
)

// ImageFile represents one encoded image on disk.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Data is the raw bytes of the image file.
	Data []byte
	// Format is the encoded format inferred from the extension.
	Format images.ImageFormat
	// Frame is the frame number parsed from the file name, or the file's
	// position in the directory listing when the name carries no number.
	Frame int
}

// Decode decodes the file, shrunk to fit within width x height.
func (f *ImageFile) Decode(width, height int) (image.Image, error) {
	return images.DecodeShrunk(f.Data, f.Format, width, height)
}

// frameNumber extracts the trailing number of a file name like
// "frame-0042.jpg". Returns -1 when the name carries no number.
func frameNumber(name, ext string) int {
	stem := strings.TrimSuffix(name, ext)
	end := len(stem)
	start := end
	for start > 0 && stem[start-1] >= '0' && stem[start-1] <= '9' {
		start--
	}
	if start == end {
		return -1
	}
	frame, err := strconv.Atoi(stem[start:end])
	if err != nil {
		return -1
	}
	return frame
}

// LoadDirectoryImageFiles reads every decodable image file from a directory,
// ordered by the frame number in the file name (directory order for files
// without one).
func LoadDirectoryImageFiles(dir string) ([]ImageFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read image directory %s", dir)
	}

	var files []ImageFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := filepath.Ext(entry.Name())
		format := images.FormatForExtension(ext)
		if format == images.FormatUnknown {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil, errors.Wrapf(readErr, "read image file %s", path)
		}

		frame := frameNumber(entry.Name(), ext)
		if frame < 0 {
			frame = len(files)
		}
		files = append(files, ImageFile{
			Path:   path,
			Data:   data,
			Format: format,
			Frame:  frame,
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Frame < files[j].Frame
	})
	return files, nil
}
