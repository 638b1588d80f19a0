package env

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/tchajed/specious-kv/engine"
	"github.com/tchajed/specious-kv/fs"
)

// Registry maps normalized directory paths to live environments.
type Registry struct {
	opener engine.Opener
	fs     fs.Filesys
	logger *zap.Logger

	// mu guards envs and every Env's refcount
	mu   sync.Mutex
	envs map[string]*Env
	// opens collapses concurrent opens of one path into one engine open
	opens singleflight.Group
}

// NewRegistry creates a registry that opens environments with opener.
// Directories are prepared and recovered through fsys, which must name the
// same files the opener does. A nil logger uses zap.L().
func NewRegistry(opener engine.Opener, fsys fs.Filesys, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.L()
	}
	return &Registry{
		opener: opener,
		fs:     fsys,
		logger: logger,
		envs:   make(map[string]*Env),
	}
}

// GetOrCreate acquires the environment at path and opens (creating if needed)
// the named store in it. On success the caller owns one reference to the
// returned Env.
func (r *Registry) GetOrCreate(path, store string, strategy RecoveryStrategy) (*Env, engine.Store, error) {
	e, err := r.Acquire(path, strategy)
	if err != nil {
		return nil, engine.Store{}, err
	}
	s, err := e.openStore(store)
	if err != nil {
		e.Release()
		return nil, engine.Store{}, fmt.Errorf("%w %q: %v", ErrStoreOpenFailure, store, err)
	}
	return e, s, nil
}

// Acquire returns a reference to the environment at path, opening it if no
// live environment exists. strategy applies only if this call opens the
// environment; a live environment is shared as is.
func (r *Registry) Acquire(path string, strategy RecoveryStrategy) (*Env, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	norm, err := r.fs.Normalize(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	for {
		if e := r.lookup(norm); e != nil {
			return e, nil
		}
		_, err, _ := r.opens.Do(norm, func() (interface{}, error) {
			return nil, r.open(norm, strategy)
		})
		if err != nil {
			return nil, err
		}
		// the environment is registered now, unless every reference to it
		// was already released, in which case it is opened again
	}
}

func (r *Registry) lookup(path string) *Env {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.envs[path]
	if !ok {
		return nil
	}
	e.refs++
	return e
}

func (r *Registry) open(path string, strategy RecoveryStrategy) error {
	r.mu.Lock()
	_, ok := r.envs[path]
	r.mu.Unlock()
	if ok {
		return nil
	}

	if err := fs.EnsureDir(r.fs, path); err != nil {
		if errors.Is(err, fs.ErrNotDir) {
			return fmt.Errorf("%w: %s", ErrInvalidPath, path)
		}
		return engine.IO(err)
	}
	rec := &recovery{
		opener:   r.opener,
		fs:       r.fs,
		dir:      path,
		strategy: strategy,
		logger:   r.logger,
	}
	ee, err := rec.run()
	if err != nil {
		r.logger.Debug("failed to open environment", zap.String("path", path), zap.Error(err))
		return err
	}
	r.mu.Lock()
	r.envs[path] = &Env{path: path, env: ee, reg: r}
	r.mu.Unlock()
	r.logger.Debug("opened environment", zap.String("path", path), zap.Bool("recovered", rec.recovered))
	return nil
}

// Len returns the number of live environments.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.envs)
}
