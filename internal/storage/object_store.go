package storage

import (
	"context"
	"io"
)

// ObjectStore is the shared integration bus between pipeline stages. A store
// is bound to a single bucket; keys are hierarchical strings and objects are
// written once and never mutated.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, data io.Reader) error

	GetObject(ctx context.Context, key string) (io.ReadCloser, error)

	// ObjectURI returns the location of an object in the form understood by
	// the transcription service, e.g. s3://bucket/key.
	ObjectURI(key string) string

	Bucket() string
}
