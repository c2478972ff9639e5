package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/sgl-project/fallible/pkg/logging"
	"github.com/sgl-project/fallible/pkg/storage"
)

// tempPrefix marks in-flight atomic writes. Files carrying it are never
// reported as objects and keys may not use it.
const tempPrefix = ".fallible-"

// mkdirAttempts bounds how often a write recreates a parent directory that
// another process pruned underneath it.
const mkdirAttempts = 5

const (
	dirMode  os.FileMode = 0o750
	fileMode os.FileMode = 0o640
)

// Facade implements storage.Facade over a directory tree. Keys are
// forward-slash paths relative to the root.
type Facade struct {
	fs       afero.Fs
	root     string
	metadata storage.StoreMetadata
	logger   logging.Interface

	// dirMu orders parent creation in writes against pruning in deletes.
	dirMu sync.Mutex
}

var (
	_ storage.Facade          = (*Facade)(nil)
	_ storage.ExistenceProber = (*Facade)(nil)
)

type options struct {
	fs afero.Fs
}

// Option customizes facade construction.
type Option func(*options)

// WithFs serves the store from fsys instead of the host filesystem.
func WithFs(fsys afero.Fs) Option {
	return func(o *options) {
		o.fs = fsys
	}
}

// New binds a facade to cfg.Root, which must be an existing directory.
func New(ctx context.Context, cfg storage.Config, logger logging.Interface, opts ...Option) (*Facade, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if cfg.Provider == "" {
		cfg.Provider = storage.ProviderLocal
	}
	if cfg.Provider != storage.ProviderLocal {
		return nil, fmt.Errorf("%w: expected provider %s, got %s", storage.ErrInvalidConfig, storage.ProviderLocal, cfg.Provider)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{fs: afero.NewOsFs()}
	for _, opt := range opts {
		opt(&o)
	}

	root := filepath.Clean(cfg.Root)
	name := filepath.Base(root)
	if cfg.Name != "" && cfg.Name != name {
		return nil, &storage.ConstructionError{
			Provider: storage.ProviderLocal,
			Store:    cfg.Name,
			Err:      fmt.Errorf("%w: name %q does not match root %s", storage.ErrInvalidConfig, cfg.Name, root),
		}
	}

	fi, err := o.fs.Stat(root)
	if err != nil {
		return nil, &storage.ConstructionError{Provider: storage.ProviderLocal, Store: name, Err: classify(err)}
	}
	if !fi.IsDir() {
		return nil, &storage.ConstructionError{
			Provider: storage.ProviderLocal,
			Store:    name,
			Err:      fmt.Errorf("%w: %s is not a directory", storage.ErrInvalidConfig, root),
		}
	}

	md, err := storage.NewStoreMetadata(storage.LocalPathID{Path: root}, name, cfg.Description)
	if err != nil {
		return nil, &storage.ConstructionError{Provider: storage.ProviderLocal, Store: name, Err: err}
	}

	logger.WithField("root", root).
		WithField("fsType", fmt.Sprintf("%T", o.fs)).
		Info("Local storage facade initialized")

	return &Facade{
		fs:       o.fs,
		root:     root,
		metadata: md,
		logger:   logger.WithField("root", root),
	}, nil
}

// resolve maps an object key to a filesystem path under the root. Keys
// whose last segment carries the temp prefix are reserved.
func (f *Facade) resolve(key string) (string, error) {
	p, err := f.within(key)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(filepath.Base(p), tempPrefix) {
		return "", fmt.Errorf("%w: %q uses the reserved %s prefix", storage.ErrInvalidPath, key, tempPrefix)
	}
	return p, nil
}

// within maps key to a path strictly inside the root.
func (f *Facade) within(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: empty key", storage.ErrInvalidPath)
	}
	p := filepath.Join(f.root, filepath.FromSlash(key))
	rel, err := filepath.Rel(f.root, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes %s", storage.ErrInvalidPath, key, f.root)
	}
	return p, nil
}

// file stats p and reports a directory as an absent object.
func (f *Facade) file(p string) (os.FileInfo, error) {
	fi, err := f.fs.Stat(p)
	if err != nil {
		return nil, classify(err)
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", storage.ErrNotFound, p)
	}
	return fi, nil
}

// Read loads the whole file and applies decrypt once.
func (f *Facade) Read(_ context.Context, path string, decrypt storage.TransformFunc) ([]byte, error) {
	f.logger.WithField("key", path).Debug("Reading object")

	p, err := f.resolve(path)
	if err != nil {
		return nil, wrapError("read", path, err)
	}
	if _, err := f.file(p); err != nil {
		return nil, wrapError("read", path, err)
	}
	raw, err := afero.ReadFile(f.fs, p)
	if err != nil {
		return nil, wrapError("read", path, classify(err))
	}
	return storage.ApplyDecrypt(decrypt, path, raw)
}

// Write replaces the file atomically, creating parent directories.
func (f *Facade) Write(_ context.Context, path string, data []byte, encrypt storage.TransformFunc) error {
	p, err := f.resolve(path)
	if err != nil {
		return wrapError("write", path, err)
	}
	payload, err := storage.ApplyEncrypt(encrypt, path, data)
	if err != nil {
		return err
	}

	f.logger.WithField("key", path).WithField("size", len(payload)).Debug("Writing object")
	return wrapError("write", path, f.writeAtomic(p, payload))
}

func (f *Facade) writeAtomic(p string, data []byte) error {
	dir := filepath.Dir(p)
	if isRenameBugged(f.fs) {
		f.dirMu.Lock()
		defer f.dirMu.Unlock()
		if err := f.fs.MkdirAll(dir, dirMode); err != nil {
			return classify(err)
		}
		return classify(afero.WriteFile(f.fs, p, data, fileMode))
	}

	tmp, err := f.createTemp(dir, filepath.Base(p))
	if err != nil {
		return classify(err)
	}
	name := tmp.Name()
	defer func() { _ = f.fs.Remove(name) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return classify(err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return classify(err)
	}
	if err := tmp.Close(); err != nil {
		return classify(err)
	}
	if err := f.fs.Chmod(name, fileMode); err != nil {
		return classify(err)
	}
	return classify(f.fs.Rename(name, p))
}

// createTemp creates dir and a temp file inside it. Once the temp file
// exists dir is not empty, so pruning leaves it alone until the rename.
func (f *Facade) createTemp(dir, base string) (afero.File, error) {
	f.dirMu.Lock()
	defer f.dirMu.Unlock()

	var err error
	for range mkdirAttempts {
		if err = f.fs.MkdirAll(dir, dirMode); err == nil {
			var tmp afero.File
			if tmp, err = afero.TempFile(f.fs, dir, tempPrefix+base+"~"); err == nil {
				return tmp, nil
			}
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		f.logger.WithField("dir", dir).Debug("Parent directory vanished, recreating")
	}
	return nil, err
}

// isRenameBugged reports filesystems whose Rename cannot replace an open
// or existing file reliably. Writes there skip the temp file.
func isRenameBugged(fsys afero.Fs) bool {
	_, ok := fsys.(*afero.MemMapFs)
	return ok
}

// List walks the deepest directory named by dirPath and returns every file
// whose key starts with dirPath.
func (f *Facade) List(_ context.Context, dirPath string) ([]string, error) {
	f.logger.WithField("prefix", dirPath).Debug("Listing objects")

	start := f.root
	if i := strings.LastIndex(dirPath, "/"); i > 0 {
		p, err := f.within(dirPath[:i])
		if err != nil {
			return nil, wrapError("list", dirPath, err)
		}
		start = p
	}

	keys := []string{}
	if ok, err := afero.DirExists(f.fs, start); err != nil {
		return nil, wrapError("list", dirPath, classify(err))
	} else if !ok {
		return keys, nil
	}

	err := afero.Walk(f.fs, start, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || strings.HasPrefix(info.Name(), tempPrefix) {
			return nil
		}
		rel, err := filepath.Rel(f.root, p)
		if err != nil {
			return err
		}
		if key := filepath.ToSlash(rel); strings.HasPrefix(key, dirPath) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, wrapError("list", dirPath, classify(err))
	}

	sort.Strings(keys)
	return keys, nil
}

// ListVersions reports the single "null" version of an existing file, the
// id S3 gives objects in unversioned buckets.
func (f *Facade) ListVersions(ctx context.Context, filePath string) ([]string, error) {
	ok, err := f.Probe(ctx, filePath)
	if err != nil {
		return nil, wrapError("list_versions", filePath, err)
	}
	if !ok {
		return []string{}, nil
	}
	return []string{"null"}, nil
}

// Delete removes the file and any directories it leaves empty. Missing
// files are not an error.
func (f *Facade) Delete(_ context.Context, path string) error {
	f.logger.WithField("key", path).Debug("Deleting object")

	p, err := f.resolve(path)
	if err != nil {
		return wrapError("delete", path, err)
	}
	if _, err := f.file(p); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return wrapError("delete", path, err)
	}
	if err := f.fs.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return wrapError("delete", path, classify(err))
	}
	f.pruneEmptyParents(filepath.Dir(p))
	return nil
}

// pruneEmptyParents removes empty directories from dir up to the root.
// Failures stop the walk silently; a leftover directory lists as nothing.
func (f *Facade) pruneEmptyParents(dir string) {
	f.dirMu.Lock()
	defer f.dirMu.Unlock()

	for dir != f.root && strings.HasPrefix(dir, f.root) {
		entries, err := afero.ReadDir(f.fs, dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := f.fs.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// Move is Copy followed by Delete; see storage.MoveViaCopy.
func (f *Facade) Move(ctx context.Context, from, to string) error {
	f.logger.WithField("from", from).WithField("to", to).Debug("Moving object")
	return storage.MoveViaCopy(ctx, f, storage.ProviderLocal, from, to)
}

// Copy duplicates the file's bytes to a new key.
func (f *Facade) Copy(_ context.Context, from, to string) error {
	f.logger.WithField("from", from).WithField("to", to).Debug("Copying object")

	src, err := f.resolve(from)
	if err != nil {
		return wrapError("copy", from, err)
	}
	dst, err := f.resolve(to)
	if err != nil {
		return wrapError("copy", to, err)
	}
	if _, err := f.file(src); err != nil {
		return wrapError("copy", from, err)
	}
	data, err := afero.ReadFile(f.fs, src)
	if err != nil {
		return wrapError("copy", from, classify(err))
	}
	return wrapError("copy", from, f.writeAtomic(dst, data))
}

// Stat reports size and modification time. Content type is guessed from the
// extension and the version id is always "null".
func (f *Facade) Stat(_ context.Context, path string) (*storage.ObjectMetadata, error) {
	p, err := f.resolve(path)
	if err != nil {
		return nil, wrapError("stat", path, err)
	}
	fi, err := f.file(p)
	if err != nil {
		return nil, wrapError("stat", path, err)
	}

	ct := mime.TypeByExtension(filepath.Ext(p))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return &storage.ObjectMetadata{
		Key:          path,
		Size:         fi.Size(),
		LastModified: fi.ModTime().UTC(),
		ContentType:  ct,
		VersionID:    "null",
		UserMetadata: map[string]string{},
	}, nil
}

// Probe reports (false, nil) for absent files and directories; other
// failures are returned.
func (f *Facade) Probe(_ context.Context, path string) (bool, error) {
	p, err := f.resolve(path)
	if err != nil {
		return false, wrapError("exists", path, err)
	}
	if _, err := f.file(p); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, wrapError("exists", path, err)
	}
	return true, nil
}

// Exists reports false for any failure and logs those other than NotFound.
func (f *Facade) Exists(ctx context.Context, path string) bool {
	ok, err := f.Probe(ctx, path)
	if err != nil {
		f.logger.WithField("key", path).WithError(err).Warn("Existence check failed, reporting object as absent")
	}
	return ok
}

// Describe returns the directory's StoreMetadata.
func (f *Facade) Describe() storage.StoreMetadata {
	return f.metadata
}
