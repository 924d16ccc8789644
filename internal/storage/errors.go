package storage

import "fmt"

const (
	OpDownload = "download"
	OpUpload   = "upload"
)

// StorageError reports a failed transfer of a single object. Workers treat it
// as a failure of the job that requested the transfer, never of the run.
type StorageError struct {
	Op     string
	Bucket string
	Key    string
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s %s/%s failed: %v", e.Op, e.Bucket, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func newStorageError(op, bucket, key string, err error) error {
	return &StorageError{Op: op, Bucket: bucket, Key: key, Err: err}
}
