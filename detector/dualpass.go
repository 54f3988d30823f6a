package detector

import (
	"context"

	"github.com/chewxy/math32"
	"github.com/sirupsen/logrus"

	"github.com/visionml/go-detect/preprocess"
)

// Dual-pass scoring weights.
const (
	// countWeight rewards result sets with more detections, breaking near
	// ties between passes with similar total confidence.
	countWeight = 0.05
	// preferredClassBonus rewards a result set containing the configured
	// preferred class.
	preferredClassBonus = 1.0
)

// scoreResults rates one pass's result set: the sum of confidences, a small
// per-detection bonus, and a flat bonus when the preferred class showed up.
func (d *Detector) scoreResults(results []Result) float32 {
	score := countWeight * float32(len(results))
	preferredSeen := false
	for _, r := range results {
		score += r.Score
		if d.opts.PreferredClass >= 0 && r.Class == d.opts.PreferredClass {
			preferredSeen = true
		}
	}
	if preferredSeen {
		score += preferredClassBonus
	}
	return score
}

// DetectFrameDualPass runs a frame through the pipeline twice, once as-is
// and once rotated 90°, and returns whichever pass scored better, remapped
// to the frame's original orientation. Cameras frequently deliver sideways
// sensors; the rotated pass wins when the upright content matches the model
// better.
//
// The rotated pass only runs for square model inputs, since the tensor is
// rotated in place. Any failure in the rotated pass is swallowed and the
// direct pass wins; only a direct-pass failure reaches the caller. Ties
// favor the direct pass.
func (d *Detector) DetectFrameDualPass(ctx context.Context, f *preprocess.Frame) ([]Result, error) {
	if d.skipFrame() {
		return nil, nil
	}

	in, err := d.conv.ConvertFrame(f)
	if err != nil {
		return nil, err
	}

	passA, err := d.detect(ctx, in, f.Width, f.Height)
	if err != nil {
		return nil, err
	}
	scoreA := d.scoreResults(passA)

	scoreB := math32.Inf(-1)
	var passB []Result
	if d.opts.Input.Width == d.opts.Input.Height {
		if rotated, rotErr := d.rotatedPass(ctx, in, f); rotErr == nil {
			passB = rotated
			scoreB = d.scoreResults(passB)
		} else {
			d.log.WithError(rotErr).Debug("rotated pass failed, keeping direct pass")
		}
	}

	if scoreB > scoreA {
		d.log.WithFields(logrus.Fields{
			"direct":  scoreA,
			"rotated": scoreB,
		}).Debug("rotated pass selected")
		return passB, nil
	}
	return passA, nil
}

// rotatedPass rotates the already-converted tensor in place, runs the second
// inference against the rotated geometry, and remaps the detections back to
// the original sensor frame.
func (d *Detector) rotatedPass(ctx context.Context, in *preprocess.Input, f *preprocess.Frame) ([]Result, error) {
	if err := preprocess.RotateSquare90(in); err != nil {
		return nil, err
	}

	// The rotated frame's dimensions are the original's, swapped.
	results, err := d.detect(ctx, in, f.Height, f.Width)
	if err != nil {
		return nil, err
	}

	// RotateSquare90 turned the content clockwise, so the remap undoes a
	// 90° clockwise rotation of an f.Height x f.Width frame.
	remapResults(results, 90, float32(f.Height), float32(f.Width))
	return results, nil
}
