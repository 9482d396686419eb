package main

import (
	"fmt"
	"os"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"
	"github.com/pulseapp/companion/pkg/nnload"
	"github.com/pulseapp/companion/pkg/onnx"
	"github.com/pulseapp/companion/server"
	"github.com/pulseapp/companion/server/config"
	"github.com/pulseapp/companion/server/monitor"
)

func check(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	parser := argparse.NewParser("companion", "Real-time object detection on a camera feed")
	configFile := parser.String("c", "config", &argparse.Options{Help: "JSON configuration file. If omitted, defaults are used.", Default: ""})
	listen := parser.String("l", "listen", &argparse.Options{Help: "HTTP listen address (overrides config)", Default: ""})
	modelStore := parser.String("m", "models", &argparse.Options{Help: "Model store: directory, http(s) URL, or gs://bucket/prefix (overrides config)", Default: ""})
	frameDir := parser.String("", "frames", &argparse.Options{Help: "Read frames from this directory of images (overrides config)", Default: ""})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Default()
	if *configFile != "" {
		cfg, err = config.LoadConfig(*configFile)
		check(err)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *modelStore != "" {
		cfg.ModelStore = *modelStore
	}
	if *frameDir != "" {
		cfg.FrameSource.Type = "dir"
		cfg.FrameSource.Path = *frameDir
	}
	check(cfg.Validate())

	loader, err := nnload.NewArtifactLoader(logger, cfg.ModelStore, cfg.ModelCacheDir, cfg.OnnxLibrary)
	check(err)
	defer onnx.Shutdown()

	var source monitor.FrameSource
	if cfg.FrameSource.Type != "" {
		source, err = monitor.NewSource(cfg.FrameSource.Type, cfg.FrameSource.Path, cfg.FrameSource.URL)
		check(err)
	}

	srv, err := server.NewServer(logger, cfg, loader, source)
	check(err)
	srv.ListenForKillSignals()
	if err := srv.ListenHTTP(cfg.Listen); err != nil {
		logger.Errorf("ListenHTTP returned: %v", err)
		srv.Shutdown()
		onnx.Shutdown()
		os.Exit(1)
	}

	// ListenHTTP returns as soon as the HTTP server closes, but the model session must be
	// released before the onnxruntime environment is destroyed.
	<-srv.ShutdownComplete
}
