package engine

import (
	"bytes"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"i2v-dispatch/plugin/shared"
)

// FFmpegTransformer renders a still image into a video of the requested size
// and length. It stands in for a generative model when running the pipeline
// without one; prompts and inference steps are ignored.
type FFmpegTransformer struct {
	ffmpegCmd string
	device    string
}

var _ shared.Transformer = (*FFmpegTransformer)(nil)

func NewFFmpegTransformer(device string) *FFmpegTransformer {
	return &FFmpegTransformer{ffmpegCmd: "ffmpeg", device: device}
}

func (f *FFmpegTransformer) Transform(req shared.TransformRequest) (shared.TransformResponse, error) {
	cmdPath, err := exec.LookPath(f.ffmpegCmd)
	if err != nil {
		return shared.TransformResponse{}, err
	}

	slog.Info("rendering video", "device", f.device, "input", req.InputPath, "width", req.Width, "height", req.Height, "frames", req.FrameCount)

	var stderr bytes.Buffer
	cmd := exec.Command(cmdPath, f.args(req)...)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return shared.TransformResponse{}, fmt.Errorf("ffmpeg failed: %w: %s", err, lastLine(stderr.String()))
	}

	return shared.TransformResponse{OutputPath: req.OutputPath}, nil
}

func (f *FFmpegTransformer) args(req shared.TransformRequest) []string {
	return []string{
		"-y",
		"-loop", "1",
		"-framerate", strconv.Itoa(req.FPS),
		"-i", req.InputPath,
		"-frames:v", strconv.Itoa(req.FrameCount),
		"-vf", fmt.Sprintf("scale=%d:%d", req.Width, req.Height),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		req.OutputPath,
	}
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}
