package engine

import "fmt"

const (
	DefaultWidth          = 848
	DefaultHeight         = 480
	DefaultAlignment      = 32
	DefaultFrameCount     = 241
	DefaultInferenceSteps = 75
	DefaultFPS            = 24
	DefaultPrompt         = "make this image a realistic video"
	DefaultNegativePrompt = "worst quality, inconsistent motion, blurry, jittery, distorted"
)

// Params are the generation options shared by every job of a run. They never
// depend on the job being processed.
type Params struct {
	Width          int
	Height         int
	FrameCount     int
	InferenceSteps int
	FPS            int
	Prompt         string
	NegativePrompt string
}

// AlignDown rounds v down to a multiple of unit.
func AlignDown(v, unit int) int {
	if unit <= 0 {
		return v
	}
	return v - v%unit
}

func NewParams(width, height, alignment, frameCount, inferenceSteps, fps int, prompt, negativePrompt string) (Params, error) {
	p := Params{
		Width:          AlignDown(width, alignment),
		Height:         AlignDown(height, alignment),
		FrameCount:     frameCount,
		InferenceSteps: inferenceSteps,
		FPS:            fps,
		Prompt:         prompt,
		NegativePrompt: negativePrompt,
	}

	if p.Width <= 0 || p.Height <= 0 {
		return Params{}, fmt.Errorf("resolution %dx%d aligned to %d is empty", width, height, alignment)
	}
	if p.FrameCount <= 0 || p.InferenceSteps <= 0 || p.FPS <= 0 {
		return Params{}, fmt.Errorf("frame count, inference steps and fps must be positive, got %d, %d, %d", frameCount, inferenceSteps, fps)
	}

	return p, nil
}

func DefaultParams() Params {
	p, _ := NewParams(DefaultWidth, DefaultHeight, DefaultAlignment, DefaultFrameCount, DefaultInferenceSteps, DefaultFPS, DefaultPrompt, DefaultNegativePrompt)
	return p
}
