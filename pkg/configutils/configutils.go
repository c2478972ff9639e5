// Package configutils loads layered YAML/JSON/TOML configuration into
// viper and binds environment overrides for config structs.
package configutils

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"reflect"
	"slices"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// ImportKey names the list of files a config file layers itself on top of.
const ImportKey = "imports"

// Loader reads config files, following imports, from a filesystem.
type Loader struct {
	fs afero.Fs
}

// NewLoader returns a Loader over fsys, or the host filesystem when nil.
func NewLoader(fsys afero.Fs) *Loader {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &Loader{fs: fsys}
}

// ResolveAndMergeFile loads filePath from the host filesystem into v.
func ResolveAndMergeFile(v *viper.Viper, filePath string) error {
	return NewLoader(nil).Load(v, filePath)
}

// Load merges filePath into v after every file it imports, so the importing
// file wins on conflicting keys. Imports are resolved relative to the file
// naming them; a file imported twice is merged once.
func (l *Loader) Load(v *viper.Viper, filePath string) error {
	ext, err := configType(filePath)
	if err != nil {
		return err
	}
	if _, err := l.fs.Stat(filePath); err != nil {
		return err
	}

	v.SetFs(l.fs)
	v.SetConfigType(ext)
	v.SetConfigFile(filePath)
	if err := v.ReadInConfig(); err != nil {
		return err
	}

	order, err := l.importOrder(v, filePath, map[string]bool{filepath.Clean(filePath): true})
	if err != nil {
		return fmt.Errorf("could not resolve configuration imports: %w", err)
	}
	for _, p := range append(order, filePath) {
		if err := l.merge(v, p); err != nil {
			return fmt.Errorf("merging config %s: %w", p, err)
		}
	}
	v.SetConfigType(ext)
	return nil
}

func configType(filePath string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filePath), "."))
	if ext == "" {
		return "", errors.New("configuration file has no extension")
	}
	if !slices.Contains(viper.SupportedExts, ext) {
		return "", fmt.Errorf("unsupported configuration file extension: .%s", ext)
	}
	return ext, nil
}

// importOrder walks the import graph depth first and returns files in
// post-order, children before the files importing them.
func (l *Loader) importOrder(v *viper.Viper, from string, visited map[string]bool) ([]string, error) {
	var order []string
	for _, imp := range v.GetStringSlice(ImportKey) {
		if imp == "" {
			continue
		}
		p := filepath.Clean(imp)
		if !filepath.IsAbs(p) {
			p = filepath.Join(filepath.Dir(from), imp)
		}
		if visited[p] {
			continue
		}
		visited[p] = true

		if _, err := l.fs.Stat(p); err != nil {
			return nil, err
		}
		ext, err := configType(p)
		if err != nil {
			return nil, err
		}

		child := viper.New()
		child.SetFs(l.fs)
		child.SetConfigType(ext)
		child.SetConfigFile(p)
		if err := child.ReadInConfig(); err != nil {
			return nil, err
		}

		sub, err := l.importOrder(child, p, visited)
		if err != nil {
			return nil, err
		}
		order = append(append(order, sub...), p)
	}
	return order, nil
}

// merge layers filePath onto v, parsed by its own extension.
func (l *Loader) merge(v *viper.Viper, filePath string) error {
	ext, err := configType(filePath)
	if err != nil {
		return err
	}
	v.SetConfigType(ext)

	r, err := l.fs.Open(filePath)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()
	return v.MergeConfig(r)
}

// IsNotExist reports whether a load failed because a file was missing.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// BindEnvsRecursive binds an environment variable for every mapstructure
// key of the struct iface points to, nested under path. Nil struct pointers
// are allocated so their fields can be bound too.
func BindEnvsRecursive(v *viper.Viper, iface interface{}, path string) error {
	val := reflect.ValueOf(iface)
	if val.Kind() != reflect.Ptr || val.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("expected pointer to struct, got %T", iface)
	}
	val = val.Elem()
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		tag, _, _ := strings.Cut(typ.Field(i).Tag.Get("mapstructure"), ",")
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if path != "" {
			key = path + "." + tag
		}

		field := val.Field(i)
		if field.Kind() == reflect.Ptr && field.Type().Elem().Kind() == reflect.Struct {
			if field.IsNil() {
				field.Set(reflect.New(field.Type().Elem()))
			}
			field = field.Elem()
		}
		if field.Kind() == reflect.Struct {
			if err := BindEnvsRecursive(v, field.Addr().Interface(), key); err != nil {
				return err
			}
			continue
		}

		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind environment variable for %s: %w", key, err)
		}
	}
	return nil
}
