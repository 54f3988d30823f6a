package postprocess

import "github.com/visionml/go-detect/images"

// outOfBoundsMargin is how far past the destination edge a scaled box center
// may land (as a fraction of the destination size) before it counts as
// out of bounds for the fallback heuristic.
const outOfBoundsMargin = 0.2

// ScaleToImage converts normalized detections to pixel units of the
// destination image, mutating boxes in place.
//
// Every coordinate is multiplied by the destination size. If the fraction of
// boxes whose scaled center lands more than 20% past the destination bounds
// exceeds fallbackRatio, the normalized interpretation was likely wrong (the
// model actually emitted coordinates in model-input pixels that slipped past
// the decoder's unit heuristic). In that case the scaled result is discarded
// and the boxes are re-derived from the raw decoder values, scaled by
// imageSize/modelInputSize instead.
func ScaleToImage(detections []Detection, imgWidth, imgHeight, modelWidth, modelHeight int, fallbackRatio float32) {
	if len(detections) == 0 {
		return
	}

	raw := make([]images.Box, len(detections))
	for i := range detections {
		raw[i] = detections[i].Box
	}

	w := float32(imgWidth)
	h := float32(imgHeight)
	outOfBounds := 0
	for i := range detections {
		b := &detections[i].Box
		b.CX *= w
		b.CY *= h
		b.W *= w
		b.H *= h
		if b.CX < -outOfBoundsMargin*w || b.CX > (1+outOfBoundsMargin)*w ||
			b.CY < -outOfBoundsMargin*h || b.CY > (1+outOfBoundsMargin)*h {
			outOfBounds++
		}
	}

	if float32(outOfBounds)/float32(len(detections)) <= fallbackRatio {
		return
	}

	// Too many centers landed outside the destination: re-derive from the
	// raw values, treating them as model-input pixels.
	sx := w / float32(modelWidth)
	sy := h / float32(modelHeight)
	for i := range detections {
		detections[i].Box = images.Box{
			CX: raw[i].CX * sx,
			CY: raw[i].CY * sy,
			W:  raw[i].W * sx,
			H:  raw[i].H * sy,
		}
	}
}

// RemapClockwise rotates a box 90° clockwise, mapping a box decoded against
// a frame whose content was rotated 90° counter-clockwise back to the
// original sensor frame. rawWidth is the sensor frame's width, in the same
// unit as the box.
func RemapClockwise(b images.Box, rawWidth float32) images.Box {
	return images.Box{
		CX: rawWidth - b.CY,
		CY: b.CX,
		W:  b.H,
		H:  b.W,
	}
}

// RemapCounterClockwise is the inverse of RemapClockwise: it rotates a box
// 90° counter-clockwise, mapping a box decoded against a frame whose content
// was rotated 90° clockwise back to the original sensor frame. rawHeight is
// the sensor frame's height.
func RemapCounterClockwise(b images.Box, rawHeight float32) images.Box {
	return images.Box{
		CX: b.CY,
		CY: rawHeight - b.CX,
		W:  b.H,
		H:  b.W,
	}
}

// RemapHalfTurn maps a box decoded against a frame rotated 180° back to the
// original frame. Dimensions are unchanged.
func RemapHalfTurn(b images.Box, rawWidth, rawHeight float32) images.Box {
	return images.Box{
		CX: rawWidth - b.CX,
		CY: rawHeight - b.CY,
		W:  b.W,
		H:  b.H,
	}
}

// RemapRotation maps all detections decoded against a rotated frame back to
// the original sensor frame, mutating boxes in place. rotationDegrees is the
// clockwise rotation the frame content carries relative to the sensor; 0 is
// the identity. width and height are the rotated frame's dimensions in the
// boxes' unit (for 90/270 the sensor frame has them swapped).
func RemapRotation(detections []Detection, rotationDegrees int, width, height float32) {
	switch rotationDegrees {
	case 90:
		// Undo a clockwise rotation; the sensor height equals the
		// rotated width.
		for i := range detections {
			detections[i].Box = RemapCounterClockwise(detections[i].Box, width)
		}
	case 180:
		for i := range detections {
			detections[i].Box = RemapHalfTurn(detections[i].Box, width, height)
		}
	case 270:
		// Undo a counter-clockwise rotation; the sensor width equals
		// the rotated height.
		for i := range detections {
			detections[i].Box = RemapClockwise(detections[i].Box, height)
		}
	}
}
