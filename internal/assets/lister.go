package assets

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"i2v-dispatch/internal/storage"
)

const OutputExtension = ".mp4"

var DefaultImageExtensions = []string{".png", ".jpg", ".jpeg"}

// Job is one unit of work: transform the input object into the output object.
// Jobs are built once by the lister and never modified.
type Job struct {
	Input  storage.Locator
	Output storage.Locator
}

// ListError is returned when the source location cannot be enumerated. It is
// fatal for a run since there is nothing to process.
type ListError struct {
	Source storage.Location
	Err    error
}

func (e *ListError) Error() string {
	return fmt.Sprintf("unable to list assets under %s: %v", e.Source, e.Err)
}

func (e *ListError) Unwrap() error {
	return e.Err
}

type Lister struct {
	store      storage.Provider
	extensions []string
}

func NewLister(store storage.Provider, extensions ...string) *Lister {
	if len(extensions) == 0 {
		extensions = DefaultImageExtensions
	}

	normalized := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized = append(normalized, ext)
	}

	return &Lister{store: store, extensions: normalized}
}

// List enumerates the images under src and pairs each with its output key
// under dst. Jobs are returned in the store's listing order.
func (l *Lister) List(ctx context.Context, src, dst storage.Location) ([]Job, error) {
	var jobs []Job
	skipped := 0

	for obj, err := range l.store.IterObjects(ctx, src.Bucket, src.ListPrefix()) {
		if err != nil {
			return nil, &ListError{Source: src, Err: err}
		}

		if !l.IsImage(obj.Name) {
			skipped++
			continue
		}

		jobs = append(jobs, Job{
			Input:  src.Locator(obj.Name),
			Output: dst.Locator(OutputKey(dst.Prefix, obj.Name)),
		})
	}

	slog.Info("listed source assets", "source", src.String(), "images", len(jobs), "skipped", skipped)

	for output, inputs := range OutputCollisions(jobs) {
		slog.Warn("multiple inputs share an output, only one video will be kept", "output", output, "inputs", inputs)
	}

	return jobs, nil
}

// OutputCollisions returns the output keys derived from more than one input,
// mapped to those inputs in listing order.
func OutputCollisions(jobs []Job) map[string][]string {
	byOutput := make(map[string][]string, len(jobs))
	for _, job := range jobs {
		out := job.Output.String()
		byOutput[out] = append(byOutput[out], job.Input.String())
	}

	collisions := make(map[string][]string)
	for out, inputs := range byOutput {
		if len(inputs) > 1 {
			collisions[out] = inputs
		}
	}
	return collisions
}

func (l *Lister) IsImage(key string) bool {
	lower := strings.ToLower(key)
	for _, ext := range l.extensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// OutputKey places the input's base name, with its extension replaced by
// OutputExtension, under dstPrefix. Names made only of leading dots and an
// extension, like ".png", have no extension and keep their full name.
func OutputKey(dstPrefix, inputKey string) string {
	base := path.Base(inputKey)
	stem := strings.TrimSuffix(base, path.Ext(base))
	if strings.TrimLeft(stem, ".") == "" {
		stem = base
	}
	return path.Join(strings.Trim(dstPrefix, "/"), stem+OutputExtension)
}
