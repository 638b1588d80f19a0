package fs

import (
	"errors"
	"io"
)

// ErrNotDir is returned when a path that must be a directory names a file.
var ErrNotDir = errors.New("not a directory")

// File is an open file; writes are durable once Sync returns.
type File interface {
	io.ReadWriteCloser
	Sync() error
	Name() string
}

// Filesys is a database-specific API for accessing the file system.
//
// bbolt and badger open their own files through the OS; everything else the
// environment layer does to a directory, recovery included, goes through a
// Filesys.
//
// Callers are expected to follow some rules when calling this API:
//   - Open: name should exist
//   - Create: truncates name if it already exists
//   - RemoveAll: a missing name is not an error
//   - Rename: replaces dst if it exists; a missing src is an error that
//     satisfies os.IsNotExist
type Filesys interface {
	Open(name string) (File, error)
	Create(name string) (File, error)
	Exists(name string) (bool, error)
	IsDir(name string) (bool, error)
	MkdirAll(name string) error
	RemoveAll(name string) error
	Rename(src, dst string) error
	ReadFile(name string) ([]byte, error)
	List(dir string) ([]string, error)
	// Normalize returns the canonical form of path used to identify an
	// environment.
	Normalize(path string) (string, error)
	// OS reports whether names are real operating system paths, which
	// engines that open files themselves require.
	OS() bool
}
