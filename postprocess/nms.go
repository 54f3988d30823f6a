package postprocess

import (
	"sort"

	"github.com/visionml/go-detect/images"
)

// Suppress filters overlapping detections with greedy Non-Maximum
// Suppression.
//
// Candidates are stable-sorted by descending score, so equal scores keep
// their original prediction order and the output is deterministic. The
// highest-scoring remaining candidate is emitted, then every remaining
// candidate overlapping it beyond cfg.IoUThreshold is discarded — only
// same-class candidates unless cfg.ClassAgnostic is set.
//
// Suppress is a pure function of its inputs: the input slice is not
// modified, and the result is ordered by descending confidence.
func Suppress(detections []Detection, cfg *Config) []Detection {
	n := len(detections)
	if n == 0 {
		return nil
	}

	sorted := make([]Detection, n)
	copy(sorted, detections)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	filtered := make([]Detection, 0, n)
	used := make([]bool, n)

	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}

		anchor := sorted[i]
		filtered = append(filtered, anchor)
		used[i] = true

		anchorRect := anchor.Box.ToRect()
		for j := i + 1; j < n; j++ {
			if used[j] {
				continue
			}
			if !cfg.ClassAgnostic && sorted[j].Class != anchor.Class {
				continue
			}
			if images.CalculateIoU(anchorRect, sorted[j].Box.ToRect()) > cfg.IoUThreshold {
				used[j] = true
			}
		}
	}

	return filtered
}
