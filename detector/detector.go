// Package detector - ties frame conversion, inference and raw-output
// decoding into a single detection pipeline.
package detector

import (
	"context"
	"image"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/visionml/go-detect/inference"
	"github.com/visionml/go-detect/postprocess"
	"github.com/visionml/go-detect/preprocess"
)

// Result is one detection with its class name resolved against the label
// set. Box geometry is in pixels of the source image.
type Result struct {
	postprocess.Detection
	Label string
}

// Options configures a Detector.
type Options struct {
	// Labels are the model's class names, indexed by class. Defaults to the
	// COCO set.
	Labels []string
	// Input describes the model's input tensor.
	Input preprocess.TensorDescriptor
	// Post holds the decode/suppress/map thresholds. Defaults from
	// postprocess.NewConfig.
	Post *postprocess.Config
	// PreferredClass biases dual-pass selection toward result sets holding
	// this class. -1 disables the bias.
	PreferredClass int
	// ProcessEveryNFrames runs inference on one camera frame out of N.
	// Values below 2 process every frame.
	ProcessEveryNFrames int
	// Logger receives per-frame debug logging. Defaults to the standard
	// logrus logger.
	Logger *logrus.Logger
	// Stats, when set, collects per-stage pipeline timings.
	Stats *Stats
}

// Detector runs the full pipeline: frame or image in, labeled pixel-space
// detections out. One Detector owns one conversion buffer, so give each
// concurrent worker its own instance and share the Engine behind them.
type Detector struct {
	engine inference.Engine
	conv   *preprocess.Converter
	opts   Options
	log    *logrus.Entry

	frameCount atomic.Uint64
}

// New creates a Detector running models through the given engine.
func New(engine inference.Engine, opts Options) *Detector {
	if opts.Labels == nil {
		opts.Labels = COCOLabels
	}
	if opts.Post == nil {
		opts.Post = postprocess.NewConfig()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Detector{
		engine: engine,
		conv:   preprocess.NewConverter(opts.Input),
		opts:   opts,
		log:    opts.Logger.WithField("component", "detector"),
	}
}

// channels is the expected channel count of the raw output tensor.
func (d *Detector) channels() int {
	return 4 + len(d.opts.Labels)
}

// label resolves a class index to its name; out-of-range indices keep an
// empty label rather than failing the frame.
func (d *Detector) label(class int) string {
	if class >= 0 && class < len(d.opts.Labels) {
		return d.opts.Labels[class]
	}
	return ""
}

// detect runs one converted input through the engine and decodes the raw
// output into pixel-space results for an imgWidth x imgHeight destination.
func (d *Detector) detect(ctx context.Context, in *preprocess.Input, imgWidth, imgHeight int) ([]Result, error) {
	inferStart := time.Now()
	out, err := d.engine.Run(ctx, in)
	if err != nil {
		return nil, err
	}
	d.opts.Stats.observe(StageInference, inferStart)

	if len(out.Shape) != 3 || out.Shape[0] != 1 {
		return nil, errors.Errorf("detector: unexpected output shape %v, want [1 d1 d2]", out.Shape)
	}

	decodeStart := time.Now()
	defer d.opts.Stats.observe(StageDecode, decodeStart)

	view, err := postprocess.Canonicalize(out.Data, int(out.Shape[1]), int(out.Shape[2]), d.channels())
	if err != nil {
		return nil, err
	}

	detections := postprocess.Decode(view, d.opts.Post.ConfidenceThreshold)
	detections = postprocess.Suppress(detections, d.opts.Post)
	postprocess.ScaleToImage(detections, imgWidth, imgHeight,
		d.opts.Input.Width, d.opts.Input.Height, d.opts.Post.FallbackRatio)

	results := make([]Result, len(detections))
	for i, det := range detections {
		results[i] = Result{Detection: det, Label: d.label(det.Class)}
	}

	d.log.WithFields(logrus.Fields{
		"candidates": view.Predictions(),
		"kept":       len(results),
	}).Debug("decoded detections")
	return results, nil
}

// DetectImage runs detection on a decoded still image. Results are in the
// image's pixel space.
func (d *Detector) DetectImage(ctx context.Context, img image.Image) ([]Result, error) {
	bounds := img.Bounds()
	in := d.conv.ConvertImage(img)
	return d.detect(ctx, in, bounds.Dx(), bounds.Dy())
}

// DetectFrame runs detection on one YUV420 camera frame. Results are in the
// sensor's pixel space: when the frame declares a rotation, boxes are
// remapped back to the unrotated sensor orientation. When
// ProcessEveryNFrames is set, skipped frames return an empty result with no
// error and no inference runs.
func (d *Detector) DetectFrame(ctx context.Context, f *preprocess.Frame) ([]Result, error) {
	if d.skipFrame() {
		return nil, nil
	}
	convertStart := time.Now()
	in, err := d.conv.ConvertFrame(f)
	if err != nil {
		return nil, err
	}
	d.opts.Stats.observe(StageConvert, convertStart)
	results, err := d.detect(ctx, in, f.Width, f.Height)
	if err != nil {
		return nil, err
	}
	remapResults(results, f.RotationDegrees, float32(f.Width), float32(f.Height))
	return results, nil
}

// remapResults maps results decoded against a rotated frame of the given
// dimensions back to the sensor orientation, in place.
func remapResults(results []Result, rotationDegrees int, width, height float32) {
	if rotationDegrees == 0 || len(results) == 0 {
		return
	}
	detections := make([]postprocess.Detection, len(results))
	for i := range results {
		detections[i] = results[i].Detection
	}
	postprocess.RemapRotation(detections, rotationDegrees, width, height)
	for i := range results {
		results[i].Detection = detections[i]
	}
}

// skipFrame applies the frame throttle, counting every arriving frame.
func (d *Detector) skipFrame() bool {
	n := uint64(d.opts.ProcessEveryNFrames)
	count := d.frameCount.Add(1)
	return n > 1 && (count-1)%n != 0
}

// Close releases the underlying engine.
func (d *Detector) Close() error {
	return d.engine.Close()
}
