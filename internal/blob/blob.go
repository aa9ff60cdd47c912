// Package blob defines the media blob store the engine uploads to and
// reconciles against.
package blob

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Open for a ref the store does not hold.
var ErrNotFound = errors.New("blob: not found")

// Object describes a stored blob.
type Object struct {
	Ref         string
	Name        string
	ContentType string
	Size        int64
}

//go:generate mockgen -destination=mock_store.go -package=blob goreels/internal/blob Store

// Store is the external media store. It fails independently of the record
// store and may be slow or partitioned at any time.
type Store interface {
	Upload(ctx context.Context, name, contentType string, r io.Reader) (*Object, error)
	// Exists returns (false, nil) only when the store definitively reports
	// the ref as absent. Every other failure is returned as an error.
	Exists(ctx context.Context, ref string) (bool, error)
	// Delete removes the blob. Deleting an absent ref is not an error.
	Delete(ctx context.Context, ref string) error
	Open(ctx context.Context, ref string) (io.ReadCloser, *Object, error)
}
