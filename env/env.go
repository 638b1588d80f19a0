// Package env manages shared handles to storage environments.
//
// A Registry hands out at most one live Env per directory. Envs are reference
// counted: every holder calls Release exactly once, and the last release
// closes the engine environment.
package env

import (
	"sync"

	"go.uber.org/zap"

	"github.com/tchajed/specious-kv/engine"
)

// Env is a shared, open environment.
//
// Reads run under a shared latch and writes under an exclusive one, so a
// write never overlaps any other operation on the environment.
type Env struct {
	path  string
	env   engine.Env
	latch sync.RWMutex
	reg   *Registry
	// refs is guarded by reg.mu
	refs int
}

// Path returns the normalized directory of the environment.
func (e *Env) Path() string {
	return e.path
}

// Read runs fn in a read transaction under the shared latch.
func (e *Env) Read(fn func(tx engine.ReadTxn) error) error {
	e.latch.RLock()
	defer e.latch.RUnlock()
	return e.env.View(fn)
}

// Write runs fn in a write transaction under the exclusive latch.
func (e *Env) Write(fn func(tx engine.WriteTxn) error) error {
	e.latch.Lock()
	defer e.latch.Unlock()
	return e.env.Update(fn)
}

func (e *Env) openStore(name string) (engine.Store, error) {
	e.latch.Lock()
	defer e.latch.Unlock()
	return e.env.OpenStore(name)
}

// Retain takes another reference to e, which the caller must Release. The
// caller must already hold a reference.
func (e *Env) Retain() {
	e.reg.mu.Lock()
	defer e.reg.mu.Unlock()
	if e.refs <= 0 {
		panic("env: retain of a released environment")
	}
	e.refs++
}

// Release drops a reference. Dropping the last reference closes the
// environment and removes it from the registry, so the next acquire of the
// path opens it again.
func (e *Env) Release() error {
	r := e.reg
	// held across the close so the path cannot be reopened before the
	// engine has released its files
	r.mu.Lock()
	defer r.mu.Unlock()
	e.refs--
	if e.refs > 0 {
		return nil
	}
	if e.refs < 0 {
		panic("env: environment released more times than acquired")
	}
	delete(r.envs, e.path)
	e.latch.Lock()
	err := e.env.Close()
	e.latch.Unlock()
	if err != nil {
		r.logger.Error("failed to close environment", zap.String("path", e.path), zap.Error(err))
		return engine.IO(err)
	}
	r.logger.Debug("closed environment", zap.String("path", e.path))
	return nil
}
