package storage

import (
	"fmt"
	"strings"
)

const (
	SchemeGCS   = "gs"
	SchemeS3    = "s3"
	SchemeLocal = "file"
)

var supportedSchemes = map[string]struct{}{
	SchemeGCS:   {},
	SchemeS3:    {},
	SchemeLocal: {},
}

// Location is a container plus a path prefix inside it, e.g. gs://bucket/Inputs.
type Location struct {
	Scheme string
	Bucket string
	Prefix string
}

func ParseLocation(uri string) (Location, error) {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return Location{}, fmt.Errorf("invalid location %q: expected <scheme>://<bucket>/<prefix>", uri)
	}

	scheme = strings.ToLower(scheme)
	if _, ok := supportedSchemes[scheme]; !ok {
		return Location{}, fmt.Errorf("invalid location %q: unsupported scheme %q", uri, scheme)
	}

	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return Location{}, fmt.Errorf("invalid location %q: bucket is required", uri)
	}

	return Location{Scheme: scheme, Bucket: bucket, Prefix: strings.Trim(prefix, "/")}, nil
}

func (l Location) String() string {
	if l.Prefix == "" {
		return fmt.Sprintf("%s://%s", l.Scheme, l.Bucket)
	}
	return fmt.Sprintf("%s://%s/%s", l.Scheme, l.Bucket, l.Prefix)
}

// ListPrefix is the prefix used to enumerate the location. A non-empty prefix
// always ends with a slash so that "Inputs" does not also match "Inputs2/...".
func (l Location) ListPrefix() string {
	if l.Prefix == "" {
		return ""
	}
	return l.Prefix + "/"
}

// Locator addresses one object. It is built once from a listing entry and is
// never modified afterwards.
type Locator struct {
	Scheme string
	Bucket string
	Key    string
}

func (l Location) Locator(key string) Locator {
	return Locator{Scheme: l.Scheme, Bucket: l.Bucket, Key: key}
}

func (l Locator) String() string {
	return fmt.Sprintf("%s://%s/%s", l.Scheme, l.Bucket, l.Key)
}
