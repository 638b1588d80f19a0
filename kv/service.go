// Package kv is an asynchronous key-value store.
//
// A Service opens databases, which are named stores inside environment
// directories. Every operation returns immediately and reports its result
// through a callback that runs exactly once on a background goroutine:
//
//	svc := kv.NewService()
//	defer svc.Close()
//	svc.OpenOrCreate("/tmp/x", "main", env.Error, func(db *kv.Database, err error) {
//		if err != nil {
//			return
//		}
//		db.Put("a", value.Int(1), func(err error) { ... })
//	})
//
// Operations on one database complete in the order they were submitted.
// Databases sharing a directory share one open environment, in which reads
// run concurrently and each write runs alone.
package kv

import (
	"sync"

	"go.uber.org/zap"

	"github.com/tchajed/specious-kv/env"
	"github.com/tchajed/specious-kv/fs"
	"github.com/tchajed/specious-kv/queue"
)

// Service owns the worker pool and the registry of open environments.
type Service struct {
	opts   options
	logger *zap.Logger
	reg    *env.Registry
	tasks  *queue.Dispatcher

	mu     sync.Mutex
	closed bool
}

// NewService starts a service.
func NewService(opts ...Option) *Service {
	o := defaultOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.L()
	}
	if o.fs == nil {
		o.fs = fs.OsFs()
	}
	return &Service{
		opts:   o,
		logger: o.logger,
		reg:    env.NewRegistry(o.opener, o.fs, o.logger),
		tasks:  queue.NewDispatcher(o.workers),
	}
}

// OpenOrCreate opens the store named store in the environment directory at
// path, creating both as needed. strategy says how to handle an environment
// that is corrupt; it is ignored if the environment is already open.
//
// The caller owns the Database passed to cb and must Release it.
func (s *Service) OpenOrCreate(path, store string, strategy env.RecoveryStrategy, cb DatabaseCallback) {
	r := &resolver[*Database]{cb: cb}
	err := s.tasks.Submit(queue.TaskFunc(func() {
		defer func() {
			if p := recover(); p != nil {
				s.logger.Error("open panicked", zap.String("path", path), zap.Any("panic", p))
				r.fail(ErrIoFailure)
			}
		}()
		e, st, err := s.reg.GetOrCreate(path, store, strategy)
		if err != nil {
			s.logger.Debug("open failed", zap.String("path", path), zap.String("store", store), zap.Error(err))
			r.fail(classify(err))
			return
		}
		r.resolve(newDatabase(s, e, st, store), nil)
	}))
	if err != nil {
		go r.fail(ErrCanceled)
	}
}

// GetOrCreate is OpenOrCreate with the env.Error recovery strategy.
func (s *Service) GetOrCreate(path, store string, cb DatabaseCallback) {
	s.OpenOrCreate(path, store, env.Error, cb)
}

// Importer bulk-loads pairs into a database.
type Importer interface {
	Import(pairs []Pair) error
	Close() error
}

// CreateImporter is not supported and fails with ErrNotImplemented.
func (s *Service) CreateImporter(kind, path string) (Importer, error) {
	return nil, ErrNotImplemented
}

// Close waits for all submitted work to finish and stops the workers. Work
// submitted afterward fails with ErrCanceled. Databases must still be
// released; their environments stay open until they are.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.tasks.Close()
}
