package postprocess

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// ShapeError reports a raw output tensor whose axes cannot be reconciled with
// the expected channel count. Fatal for that inference call; there is no
// partial result to recover.
type ShapeError struct {
	D1, D2   int
	Channels int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("postprocess: output shape [1 %d %d] has no axis matching %d channels",
		e.D1, e.D2, e.Channels)
}

// ChannelMajor is a read-only channel-major view of a raw detector output:
// channel index 0..3 is box geometry (cx, cy, w, h), 4.. are per-class
// scores. Every channel holds one value per prediction.
type ChannelMajor struct {
	channels [][]float32
	preds    int
}

// Channels returns the number of channels (4 + numClasses).
func (v *ChannelMajor) Channels() int { return len(v.channels) }

// Predictions returns the number of predictions per channel.
func (v *ChannelMajor) Predictions() int { return v.preds }

// Channel returns the per-prediction values of channel c. The returned slice
// is a view; callers must not mutate it.
func (v *ChannelMajor) Channel(c int) []float32 { return v.channels[c] }

// Canonicalize builds a channel-major view of a raw `[1, d1, d2]` output
// tensor, resolving the ambiguous axis order against the expected channel
// count (4 + numClasses):
//
//   - d1 == channels: the tensor is already channel-major and channel rows
//     are referenced directly, without copying.
//   - d2 == channels: the tensor is prediction-major and is transposed into
//     a fresh channel-major backing.
//   - neither: *ShapeError.
func Canonicalize(data []float32, d1, d2, channels int) (*ChannelMajor, error) {
	if d1 <= 0 || d2 <= 0 || channels <= 0 {
		return nil, errors.Errorf("postprocess: invalid dimensions d1=%d d2=%d channels=%d", d1, d2, channels)
	}
	if len(data) < d1*d2 {
		return nil, errors.Errorf("postprocess: output holds %d floats, shape [1 %d %d] needs %d",
			len(data), d1, d2, d1*d2)
	}

	switch {
	case d1 == channels:
		view := &ChannelMajor{
			channels: make([][]float32, d1),
			preds:    d2,
		}
		for c := 0; c < d1; c++ {
			view.channels[c] = data[c*d2 : (c+1)*d2 : (c+1)*d2]
		}
		return view, nil

	case d2 == channels:
		// Prediction-major: transpose into a contiguous channel-major backing.
		backing := make([]float32, d1*d2)
		view := &ChannelMajor{
			channels: make([][]float32, d2),
			preds:    d1,
		}
		for c := 0; c < d2; c++ {
			row := backing[c*d1 : (c+1)*d1 : (c+1)*d1]
			for p := 0; p < d1; p++ {
				row[p] = data[p*d2+c]
			}
			view.channels[c] = row
		}
		return view, nil

	default:
		return nil, &ShapeError{D1: d1, D2: d2, Channels: channels}
	}
}

// FromDense builds a channel-major view from a dense tensor of shape
// [1, d1, d2], for callers whose inference layer hands back a
// *tensor.Dense rather than a flat slice.
func FromDense(d *tensor.Dense, channels int) (*ChannelMajor, error) {
	shape := d.Shape()
	if len(shape) != 3 || shape[0] != 1 {
		return nil, errors.Errorf("postprocess: expected a [1, d1, d2] tensor, got %v", shape)
	}
	data, ok := d.Data().([]float32)
	if !ok {
		return nil, errors.Errorf("postprocess: expected float32 tensor data, got %T", d.Data())
	}
	return Canonicalize(data, shape[1], shape[2], channels)
}
