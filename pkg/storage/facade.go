package storage

import (
	"context"
	"time"
)

// Facade is the contract every storage backend implements. A facade is
// bound to exactly one store for its whole lifetime and is safe for
// concurrent use: it holds no mutable state besides its client handle and
// StoreMetadata.
//
// The facade performs no retries, adds no timeouts and does not order
// concurrent calls. Callers needing any of that wrap the facade.
type Facade interface {
	// Read returns the whole object at path. If decrypt is non-nil it is
	// applied once to the raw bytes; its failure fails the read.
	Read(ctx context.Context, path string, decrypt TransformFunc) ([]byte, error)

	// Write stores data at path, overwriting any existing object. If encrypt
	// is non-nil it runs on a private copy of data; data itself is never
	// modified.
	Write(ctx context.Context, path string, data []byte, encrypt TransformFunc) error

	// List returns every key starting with dirPath, across the whole subtree,
	// sorted ascending. No match yields an empty slice.
	List(ctx context.Context, dirPath string) ([]string, error)

	// ListVersions returns the version IDs of the object at filePath in the
	// order the backend reports them.
	ListVersions(ctx context.Context, filePath string) ([]string, error)

	// Delete removes the object at path. Deleting an absent object succeeds.
	Delete(ctx context.Context, path string) error

	// Move copies from to to, then deletes from. It is not atomic: when the
	// delete fails the object exists at both paths and the error is returned.
	Move(ctx context.Context, from, to string) error

	// Copy duplicates from to to within the same store, overwriting to.
	Copy(ctx context.Context, from, to string) error

	// Stat returns backend metadata for the object at path.
	Stat(ctx context.Context, path string) (*ObjectMetadata, error)

	// Exists reports whether an object is present at path. It never fails:
	// any backend error reads as false and is logged.
	Exists(ctx context.Context, path string) bool

	// Describe returns the store this facade is bound to.
	Describe() StoreMetadata
}

// ExistenceProber is implemented by facades that can tell an absent object
// apart from a failed existence check.
type ExistenceProber interface {
	// Probe returns (false, nil) when the object is absent and a non-nil
	// error when the backend could not answer.
	Probe(ctx context.Context, path string) (bool, error)
}

// ProbeExists uses the facade's ExistenceProber when it has one. Otherwise
// it falls back to Exists, which cannot report errors.
func ProbeExists(ctx context.Context, f Facade, path string) (bool, error) {
	if p, ok := f.(ExistenceProber); ok {
		return p.Probe(ctx, path)
	}
	return f.Exists(ctx, path), nil
}

// ObjectMetadata is the backend-native metadata of a single object.
type ObjectMetadata struct {
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
	ETag         string
	VersionID    string
	StorageClass string
	UserMetadata map[string]string
}

// CopyDeleter is the subset of Facade that MoveViaCopy needs.
type CopyDeleter interface {
	Copy(ctx context.Context, from, to string) error
	Delete(ctx context.Context, path string) error
}

// MoveViaCopy implements Move as Copy followed by Delete. A failed copy
// leaves the source untouched and skips the delete. A failed delete leaves
// both objects in place; there is no rollback.
func MoveViaCopy(ctx context.Context, f CopyDeleter, provider Provider, from, to string) error {
	if err := f.Copy(ctx, from, to); err != nil {
		return NewError("move", from, string(provider), err)
	}
	if err := f.Delete(ctx, from); err != nil {
		return NewError("move", from, string(provider), &PartialMoveError{From: from, To: to, Err: err})
	}
	return nil
}
