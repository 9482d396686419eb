package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"
	"github.com/disintegration/imaging"
	"github.com/pulseapp/companion/pkg/detector"
	"github.com/pulseapp/companion/pkg/nn"
	"github.com/pulseapp/companion/pkg/nnload"
	"github.com/pulseapp/companion/pkg/onnx"
)

func check(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	parser := argparse.NewParser("detect", "Run object detection on a batch of images")
	inputs := parser.StringList("i", "input", &argparse.Options{Help: "Input image file (may be repeated)", Required: true})
	outDir := parser.String("o", "output", &argparse.Options{Help: "Output directory for labels and overlays", Required: true})
	modelName := parser.String("n", "model", &argparse.Options{Help: "Model file name, eg yolo11n.onnx", Default: "yolov10n.onnx"})
	modelStore := parser.String("m", "models", &argparse.Options{Help: "Model store: directory, http(s) URL, or gs://bucket/prefix", Default: "/companion/models"})
	onnxLib := parser.String("", "onnxlib", &argparse.Options{Help: "Path to onnxruntime shared library", Default: ""})
	threshold := parser.Float("t", "threshold", &argparse.Options{Help: "Probability threshold", Default: float64(nn.DefaultProbabilityThreshold)})
	width := parser.Int("", "width", &argparse.Options{Help: "Overlay width", Default: 640})
	height := parser.Int("", "height", &argparse.Options{Help: "Overlay height", Default: 480})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	check(err)

	check(os.MkdirAll(*outDir, 0755))
	loader, err := nnload.NewArtifactLoader(logger, *modelStore, filepath.Join(*outDir, ".models"), *onnxLib)
	check(err)
	defer onnx.Shutdown()

	det, err := detector.New(logger, loader, detector.Options{
		SurfaceWidth:  *width,
		SurfaceHeight: *height,
		InitialModel:  *modelName,
		Params:        &nn.DetectionParams{ProbabilityThreshold: float32(*threshold)},
	})
	check(err)
	defer det.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	check(det.WaitForModel(ctx))

	for _, input := range *inputs {
		img, err := imaging.Open(input, imaging.AutoOrientation(true))
		if err != nil {
			logger.Errorf("Failed to read %v: %v", input, err)
			continue
		}
		result, err := det.ProcessFrame(ctx, img)
		if err != nil {
			logger.Errorf("Detection failed on %v: %v", input, err)
			continue
		}

		base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
		labels := nn.NewImageLabels(input, result.Model, result.Raw)
		out, err := os.Create(filepath.Join(*outDir, base+".json"))
		check(err)
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		check(encoder.Encode(labels))
		out.Close()

		check(imaging.Save(det.Overlay(), filepath.Join(*outDir, base+"_overlay.png")))
		logger.Infof("%v: %v objects", input, len(result.Raw))
	}
}
