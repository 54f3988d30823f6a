package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/visionml/go-detect/detector"
	"github.com/visionml/go-detect/images"
	"github.com/visionml/go-detect/inference"
	"github.com/visionml/go-detect/postprocess"
	"github.com/visionml/go-detect/preprocess"
	"github.com/visionml/go-detect/util"
)

const (
	// DefaultModelPath is the ONNX model loaded when no flag is given.
	DefaultModelPath = "yolov8n.onnx"
	// DefaultInputSize is the model input resolution for YOLO exports.
	DefaultInputSize = 640
)

func main() {
	var (
		modelPath      string
		engineName     string
		labelPath      string
		imagePath      string
		dirPath        string
		inputSize      int
		confidence     float64
		iou            float64
		classAgnostic  bool
		everyN         int
		preferredClass string
		ortLibrary     string
		verbose        bool
	)
	flag.StringVar(&modelPath, "model", DefaultModelPath, "Path to ONNX model file")
	flag.StringVar(&engineName, "engine", string(inference.EngineONNX), "Inference engine: onnx or dnn")
	flag.StringVar(&labelPath, "labels", "", "Path to class label file (defaults to the COCO set)")
	flag.StringVar(&imagePath, "image", "", "Path to a single image file")
	flag.StringVar(&dirPath, "dir", "", "Path to a directory of image files")
	flag.IntVar(&inputSize, "input-size", DefaultInputSize, "Model input resolution (square)")
	flag.Float64Var(&confidence, "confidence", postprocess.DefaultConfidenceThreshold, "Detection confidence threshold")
	flag.Float64Var(&iou, "iou", postprocess.DefaultIoUThreshold, "NMS IoU threshold")
	flag.BoolVar(&classAgnostic, "class-agnostic", false, "Suppress overlapping boxes regardless of class")
	flag.IntVar(&everyN, "every-n", 1, "Process one frame out of N in directory mode")
	flag.StringVar(&preferredClass, "prefer", "", "Class name to bias dual-pass selection toward")
	flag.StringVar(&ortLibrary, "ort-library", "", "Path to the onnxruntime shared library")
	flag.BoolVar(&verbose, "v", false, "Enable debug logging")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	if (imagePath == "") == (dirPath == "") {
		log.Fatal("exactly one of -image or -dir is required")
	}

	labels := detector.COCOLabels
	if labelPath != "" {
		loaded, err := detector.LoadLabels(labelPath)
		if err != nil {
			log.WithError(err).Fatal("failed to load labels")
		}
		labels = loaded
	}

	engine, err := newEngine(engineName, modelPath, ortLibrary)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize inference engine")
	}

	cfg := postprocess.NewConfig()
	cfg.ConfidenceThreshold = float32(confidence)
	cfg.IoUThreshold = float32(iou)
	cfg.ClassAgnostic = classAgnostic

	stats := detector.NewStats()
	d := detector.New(engine, detector.Options{
		Labels: labels,
		Input: preprocess.TensorDescriptor{
			Width:  inputSize,
			Height: inputSize,
			Layout: preprocess.NCHW,
			DType:  preprocess.Float32,
		},
		Post:                cfg,
		PreferredClass:      detector.ClassIndex(labels, preferredClass),
		ProcessEveryNFrames: everyN,
		Logger:              log,
		Stats:               stats,
	})
	defer d.Close()
	defer func() {
		for stage, report := range stats.Snapshot() {
			log.WithFields(logrus.Fields{
				"count": report.Count,
				"mean":  report.Mean,
				"max":   report.Max,
			}).Infof("stage %s timing", stage)
		}
	}()

	ctx := context.Background()
	if imagePath != "" {
		err = runImage(ctx, log, d, imagePath, inputSize)
	} else {
		err = runDirectory(ctx, log, d, dirPath, inputSize, everyN)
	}
	if err != nil {
		log.WithError(err).Fatal("detection failed")
	}
}

// newEngine builds the requested inference backend.
func newEngine(name, modelPath, ortLibrary string) (inference.Engine, error) {
	switch inference.EngineType(name) {
	case inference.EngineONNX:
		return inference.NewORTEngine(inference.ORTConfig{
			ModelPath:         modelPath,
			SharedLibraryPath: ortLibrary,
		})
	case inference.EngineDNN:
		return inference.NewDNNEngine(inference.DNNConfig{ModelPath: modelPath})
	default:
		return nil, fmt.Errorf("unknown engine %q, supported: %v", name, inference.Engines)
	}
}

// runImage detects objects in a single still image.
func runImage(ctx context.Context, log *logrus.Logger, d *detector.Detector, path string, inputSize int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	// Pre-shrink to a small multiple of the model input so full-resolution
	// stills never hit the Go-side resampler.
	img, err := images.DecodeShrunk(data, images.FormatForExtension(filepath.Ext(path)), inputSize*2, inputSize*2)
	if err != nil {
		return err
	}

	start := time.Now()
	results, err := d.DetectImage(ctx, img)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"path":    path,
		"count":   len(results),
		"elapsed": time.Since(start),
	}).Info("image processed")

	printResults(path, results)
	return nil
}

// runDirectory detects objects in every image of a directory, in frame
// order.
func runDirectory(ctx context.Context, log *logrus.Logger, d *detector.Detector, dir string, inputSize, everyN int) error {
	files, err := util.LoadDirectoryImageFiles(dir)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"dir": dir, "files": len(files)}).Info("loaded image directory")

	start := time.Now()
	processed := 0
	for i := range files {
		if everyN > 1 && i%everyN != 0 {
			continue
		}
		img, decErr := files[i].Decode(inputSize*2, inputSize*2)
		if decErr != nil {
			log.WithError(decErr).WithField("path", files[i].Path).Warn("skipping undecodable image")
			continue
		}

		results, detErr := d.DetectImage(ctx, img)
		if detErr != nil {
			return detErr
		}
		processed++
		printResults(files[i].Path, results)
	}

	elapsed := time.Since(start)
	log.WithFields(logrus.Fields{
		"processed": processed,
		"elapsed":   elapsed,
		"fps":       float64(processed) / elapsed.Seconds(),
	}).Info("directory processed")
	return nil
}

func printResults(path string, results []detector.Result) {
	for _, r := range results {
		fmt.Printf("%s: %s %.2f cx=%.1f cy=%.1f w=%.1f h=%.1f\n",
			path, r.Label, r.Score, r.Box.CX, r.Box.CY, r.Box.W, r.Box.H)
	}
}
