// Package postprocess - decodes raw detector output tensors into filtered,
// scaled detection results.
package postprocess

import "github.com/visionml/go-detect/images"

// Detection represents a single decoded candidate. One aggregate record per
// candidate instead of parallel class/score/geometry slices, so the decode,
// suppress and map stages can never drift out of index alignment.
type Detection struct {
	// The predicted class index of the detection.
	Class int
	// The confidence score of the detection, in [0, 1].
	Score float32
	// The center-form bounding box. Normalized 0..1 as produced by Decode;
	// ScaleToImage converts it to pixel units in place.
	Box images.Box
}

// Config defines the per-call parameters of the decode/suppress/map stages.
// Supplied per call and never persisted.
type Config struct {
	// ConfidenceThreshold is the minimum score for a candidate to survive
	// decoding. Value between 0 and 1; lower values keep more objects.
	ConfidenceThreshold float32
	// IoUThreshold is the maximum allowed overlap between two kept boxes.
	// Value between 0 and 1; lower values merge more objects together.
	IoUThreshold float32
	// ClassAgnostic suppresses overlapping boxes regardless of class when
	// true. Default is class-aware suppression.
	ClassAgnostic bool
	// FallbackRatio is the out-of-bounds fraction above which ScaleToImage
	// abandons the normalized interpretation and re-scales from the raw
	// decoder output. The source material disagrees with itself on this
	// value (0.5 vs 0.7), so it is a tunable, not a constant.
	FallbackRatio float32
}

const (
	// DefaultConfidenceThreshold keeps candidates the model is at least
	// half-sure about.
	DefaultConfidenceThreshold = 0.5
	// DefaultIoUThreshold is the customary single-stage detector NMS overlap.
	DefaultIoUThreshold = 0.45
	// DefaultFallbackRatio splits the difference between the 0.5 and 0.7
	// call sites observed in the field.
	DefaultFallbackRatio = 0.6
)

// NewConfig creates a Config populated with the default thresholds.
func NewConfig() *Config {
	return &Config{
		ConfidenceThreshold: DefaultConfidenceThreshold,
		IoUThreshold:        DefaultIoUThreshold,
		ClassAgnostic:       false,
		FallbackRatio:       DefaultFallbackRatio,
	}
}
