package recipe

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// FS is the storage recipes are read from and saved to. Paths are rooted at
// the recipes directory.
type FS interface {
	Get(path string) (data []byte, err error)
	Put(path string, data []byte) (err error)
	Exists(path string) (exists bool, err error)
	List(path string) (entries []string, err error)
}

// ErrUnknownRecipe is returned when no file holds the named recipe.
var ErrUnknownRecipe = errors.New("unknown recipe")

var exts = []string{".yml", ".yaml"}

// Registry loads named recipes from an FS and keeps the parsed result.
// It is safe for concurrent use.
type Registry struct {
	cache *lru.TwoQueueCache[string, *Recipe]
	fs    FS
	group singleflight.Group
	log   *zap.Logger
}

// NewRegistry creates a registry caching up to size parsed recipes.
func NewRegistry(fs FS, size int, log *zap.Logger) (*Registry, error) {
	if fs == nil {
		return nil, fmt.Errorf("no filesystem defined for the recipe registry")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if size <= 0 {
		size = 100
	}

	cache, err := lru.New2Q[string, *Recipe](size)
	if err != nil {
		return nil, err
	}
	return &Registry{cache: cache, fs: fs, log: log}, nil
}

// Get returns the recipe stored as <name>.yml or <name>.yaml.
func (r *Registry) Get(name string) (*Recipe, error) {
	if v, ok := r.cache.Get(name); ok {
		return v, nil
	}

	v, err, _ := r.group.Do(name, func() (any, error) {
		return r.load(name)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Recipe), nil
}

func (r *Registry) load(name string) (*Recipe, error) {
	if !validName(name) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRecipe, name)
	}

	for _, ext := range exts {
		fp := "/" + name + ext

		ok, err := r.fs.Exists(fp)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		data, err := r.fs.Get(fp)
		if err != nil {
			return nil, err
		}

		rc, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fp, err)
		}
		rc.Name = name

		r.cache.Add(name, rc)
		r.log.Debug("recipe loaded", zap.String("name", name), zap.Int("steps", len(rc.Steps)))
		return rc, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownRecipe, name)
}

// Save validates data and writes it as <name>.yml, replacing any cached
// copy.
func (r *Registry) Save(name string, data []byte) error {
	if !validName(name) {
		return fmt.Errorf("invalid recipe name %q", name)
	}
	if _, err := Parse(data); err != nil {
		return err
	}
	if err := r.fs.Put("/"+name+exts[0], data); err != nil {
		return err
	}
	r.cache.Remove(name)
	return nil
}

// List returns the names of all stored recipes, sorted.
func (r *Registry) List() ([]string, error) {
	entries, err := r.fs.List("/")
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(entries))
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		ext := filepath.Ext(e)
		if ext != ".yml" && ext != ".yaml" {
			continue
		}
		n := strings.TrimSuffix(e, ext)
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func validName(name string) bool {
	return name != "" &&
		!strings.ContainsAny(name, `/\`) &&
		!strings.Contains(name, "..")
}

type aferoFS struct {
	fs afero.Fs
}

// NewAferoFS adapts an afero filesystem.
func NewAferoFS(fs afero.Fs) FS {
	return &aferoFS{fs: fs}
}

// NewOsFS serves recipes from basePath on disk.
func NewOsFS(basePath string) FS {
	return NewAferoFS(afero.NewBasePathFs(afero.NewOsFs(), basePath))
}

func (f *aferoFS) Get(path string) ([]byte, error) {
	return afero.ReadFile(f.fs, path)
}

func (f *aferoFS) Put(path string, data []byte) error {
	if err := f.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return afero.WriteFile(f.fs, path, data, 0o644)
}

func (f *aferoFS) Exists(path string) (bool, error) {
	return afero.Exists(f.fs, path)
}

func (f *aferoFS) List(path string) ([]string, error) {
	fi, err := afero.ReadDir(f.fs, path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(fi))
	for _, e := range fi {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
