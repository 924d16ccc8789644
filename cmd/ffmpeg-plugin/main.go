package main

import (
	"flag"

	"i2v-dispatch/internal/engine"
	"i2v-dispatch/plugin/shared"
)

func main() {
	device := flag.String("device", engine.DeviceName(0), "device the plugin is pinned to")
	// Generative plugins load this model; ffmpeg has nothing to load.
	flag.String("model-name", "", "model to load")
	flag.Parse()

	shared.Serve(engine.NewFFmpegTransformer(*device))
}
