package postprocess

import (
	"github.com/chewxy/math32"

	"github.com/visionml/go-detect/images"
)

// Activation describes how a batch's class scores were produced by the model.
type Activation int

const (
	// ActivationProbabilities means the scores are already in [0, 1].
	ActivationProbabilities Activation = iota
	// ActivationLogits means the scores are raw logits and need the logistic
	// function applied before thresholding.
	ActivationLogits
)

func (a Activation) String() string {
	if a == ActivationLogits {
		return "logits"
	}
	return "probabilities"
}

// CoordUnit describes the unit of a batch's box geometry.
type CoordUnit int

const (
	// CoordNormalized means geometry is in 0..1 relative to the model input.
	CoordNormalized CoordUnit = iota
	// CoordPixels means geometry is in pixels of some training resolution.
	CoordPixels
)

// CoordScale is the decoded coordinate-unit decision. When Unit is
// CoordPixels, Base is the inferred training resolution to renormalize by.
type CoordScale struct {
	Unit CoordUnit
	Base float32
}

// activationSampleLimit bounds how many predictions per class channel the
// activation heuristic inspects before deciding.
const activationSampleLimit = 32

// DetectActivation samples a bounded prefix of the class channels and decides
// whether the batch carries probabilities or raw logits. Any sampled value
// outside [0, 1.5] marks the whole batch as logits. One decision per decode
// call, never per prediction.
func DetectActivation(view *ChannelMajor) Activation {
	sample := view.Predictions()
	if sample > activationSampleLimit {
		sample = activationSampleLimit
	}
	for c := 4; c < view.Channels(); c++ {
		ch := view.Channel(c)
		for p := 0; p < sample; p++ {
			if ch[p] < 0 || ch[p] > 1.5 {
				return ActivationLogits
			}
		}
	}
	return ActivationProbabilities
}

// DetectCoordScale scans the geometry channels and decides whether box
// coordinates are normalized or in pixel units of an unknown training
// resolution. Magnitudes beyond 2.0 mean pixels; the base resolution is
// inferred from the maximum magnitude observed.
func DetectCoordScale(view *ChannelMajor) CoordScale {
	maxMag := float32(0)
	for c := 0; c < 4 && c < view.Channels(); c++ {
		for _, v := range view.Channel(c) {
			if m := math32.Abs(v); m > maxMag {
				maxMag = m
			}
		}
	}
	if maxMag <= 2.0 {
		return CoordScale{Unit: CoordNormalized}
	}
	base := float32(640)
	switch {
	case maxMag > 1000:
		base = 1280
	case maxMag < 300:
		base = 320
	}
	return CoordScale{Unit: CoordPixels, Base: base}
}

// sigmoid is the logistic function applied to raw logit scores.
func sigmoid(x float32) float32 {
	return 1.0 / (1.0 + math32.Exp(-x))
}

// Decode extracts per-prediction candidates from a channel-major view.
//
// For every prediction column the class channels are scanned for the best
// score with a strict greater-than comparison, so ties keep the lowest class
// index. The activation and coordinate-scale heuristics are resolved once for
// the whole batch before the scan. Candidates below confidenceThreshold are
// dropped.
//
// The returned detections carry normalized center-form geometry and follow
// the original prediction order; they are not yet sorted or suppressed.
// A view with no class channels (4 or fewer total) yields no detections.
func Decode(view *ChannelMajor, confidenceThreshold float32) []Detection {
	numClasses := view.Channels() - 4
	if numClasses <= 0 {
		return nil
	}

	activation := DetectActivation(view)
	scale := DetectCoordScale(view)

	cxs := view.Channel(0)
	cys := view.Channel(1)
	ws := view.Channel(2)
	hs := view.Channel(3)

	detections := make([]Detection, 0, view.Predictions())
	for p := 0; p < view.Predictions(); p++ {
		bestClass := -1
		bestScore := math32.Inf(-1)
		for c := 0; c < numClasses; c++ {
			score := view.Channel(4 + c)[p]
			if activation == ActivationLogits {
				score = sigmoid(score)
			}
			if score > bestScore {
				bestScore = score
				bestClass = c
			}
		}
		if bestClass < 0 || bestScore <= confidenceThreshold {
			continue
		}

		box := images.Box{CX: cxs[p], CY: cys[p], W: ws[p], H: hs[p]}
		if scale.Unit == CoordPixels {
			box.CX /= scale.Base
			box.CY /= scale.Base
			box.W /= scale.Base
			box.H /= scale.Base
		}

		detections = append(detections, Detection{
			Class: bestClass,
			Score: bestScore,
			Box:   box,
		})
	}
	return detections
}
