package kv

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/tchajed/specious-kv/engine"
	"github.com/tchajed/specious-kv/engine/badgerkv"
	"github.com/tchajed/specious-kv/engine/boltkv"
	"github.com/tchajed/specious-kv/engine/logkv"
	"github.com/tchajed/specious-kv/fs"
)

type options struct {
	logger  *zap.Logger
	workers int
	opener  engine.Opener
	fs      fs.Filesys
}

var defaultOptions = options{
	workers: 0,
	opener:  boltkv.Opener{},
}

// Option configures a Service.
type Option func(opts *options)

// WithLogger sets the logger; the default is zap.L().
func WithLogger(logger *zap.Logger) Option {
	return func(opts *options) {
		opts.logger = logger
	}
}

// WithWorkers sets the number of worker goroutines; the default is
// GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(opts *options) {
		opts.workers = n
	}
}

// WithEngine sets the storage engine. The default is bbolt on the operating
// system's file system.
func WithEngine(opener engine.Opener) Option {
	return func(opts *options) {
		opts.opener = opener
	}
}

// WithFilesys sets the file system environments are prepared and recovered
// in. It must be the file system the engine stores its files in; bbolt and
// badger need the operating system's.
func WithFilesys(fsys fs.Filesys) Option {
	return func(opts *options) {
		opts.fs = fsys
	}
}

// Engines lists the names EngineByName accepts.
var Engines = []string{"bolt", "badger", "log", "mem"}

// EngineByName returns the options that select a storage engine:
//
//	bolt    bbolt, one file per environment (the default)
//	badger  BadgerDB
//	log     the log-structured engine on disk
//	mem     the log-structured engine on a private in-memory file system
func EngineByName(name string) ([]Option, error) {
	switch name {
	case "bolt":
		return []Option{WithEngine(boltkv.Opener{}), WithFilesys(fs.OsFs())}, nil
	case "badger":
		return []Option{WithEngine(badgerkv.Opener{}), WithFilesys(fs.OsFs())}, nil
	case "log":
		fsys := fs.OsFs()
		return []Option{WithEngine(logkv.Opener{Fs: fsys}), WithFilesys(fsys)}, nil
	case "mem":
		mem := logkv.NewMem()
		return []Option{WithEngine(mem), WithFilesys(mem.Fs)}, nil
	}
	return nil, fmt.Errorf("unknown engine %q (want one of %v)", name, Engines)
}
