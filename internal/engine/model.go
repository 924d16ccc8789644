package engine

import (
	"context"
	"fmt"
)

type Request struct {
	InputPath string
	// OutputDir is the job's working directory. The model writes its artifact
	// inside it and returns the artifact's path.
	OutputDir string
	Params    Params
}

// Model is a transform engine bound to one device for its whole lifetime.
// Release must free everything the model holds on the device and is called
// once per loaded model, whether or not Transform succeeded.
type Model interface {
	Transform(ctx context.Context, req Request) (string, error)

	Release()
}

// Loader creates a Model bound to the given device.
type Loader func(device int) (Model, error)

// TransformError reports a failure while loading a model or transforming a
// job's input. It only ever fails the job it belongs to.
type TransformError struct {
	Device int
	Input  string
	Err    error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform of %s on device %d failed: %v", e.Input, e.Device, e.Err)
}

func (e *TransformError) Unwrap() error {
	return e.Err
}
