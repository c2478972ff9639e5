package local

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/sgl-project/fallible/pkg/storage"
)

// classify tags filesystem errors with the matching storage sentinel. Errors
// that already carry one pass through.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, storage.ErrAccessDenied),
		errors.Is(err, storage.ErrInvalidPath),
		errors.Is(err, storage.ErrInvalidConfig):
		return err
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %w", storage.ErrNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %w", storage.ErrAccessDenied, err)
	}
	return err
}

func wrapError(op, path string, err error) error {
	return storage.NewError(op, path, string(storage.ProviderLocal), err)
}
