package fs

import (
	"errors"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
)

type aferoFs struct {
	fs afero.Afero
	os bool
}

func (fs aferoFs) Open(name string) (File, error) {
	return fs.fs.Open(name)
}

func (fs aferoFs) Create(name string) (File, error) {
	return fs.fs.Create(name)
}

func (fs aferoFs) Exists(name string) (bool, error) {
	return fs.fs.Exists(name)
}

func (fs aferoFs) IsDir(name string) (bool, error) {
	return fs.fs.IsDir(name)
}

func (fs aferoFs) MkdirAll(name string) error {
	return fs.fs.MkdirAll(name, 0755)
}

// RemoveAll removes name and anything beneath it. A missing name is not an
// error.
func (fs aferoFs) RemoveAll(name string) error {
	isDir, err := fs.fs.IsDir(name)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if !isDir {
		// NOTE: MemMapFs.RemoveAll deletes every path with name as a prefix,
		// which would take data.db.corrupt along with data.db
		return fs.fs.Remove(name)
	}
	return fs.fs.RemoveAll(name)
}

func (fs aferoFs) Rename(src, dst string) error {
	return fs.fs.Rename(src, dst)
}

func (fs aferoFs) ReadFile(name string) ([]byte, error) {
	return fs.fs.ReadFile(name)
}

// List returns the sorted base names of the entries in dir.
func (fs aferoFs) List(dir string) ([]string, error) {
	infos, err := fs.fs.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (fs aferoFs) Normalize(path string) (string, error) {
	if path == "" {
		return "", errors.New("empty path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if !fs.os {
		return abs, nil
	}
	// resolve symlinks so that two spellings of one directory share an
	// environment; for a missing path, resolve the nearest existing ancestor
	// and re-join the missing tail
	dir, tail := abs, ""
	for {
		resolved, err := filepath.EvalSymlinks(dir)
		if err == nil {
			return filepath.Join(resolved, tail), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs, nil
		}
		tail = filepath.Join(filepath.Base(dir), tail)
		dir = parent
	}
}

func (fs aferoFs) OS() bool {
	return fs.os
}

// FromAfero creates an fs.Filesys from any Afero file system.
func FromAfero(fs afero.Fs) Filesys {
	_, isOS := fs.(*afero.OsFs)
	return aferoFs{fs: afero.Afero{Fs: fs}, os: isOS}
}

// MemFs creates an in-memory Filesys
func MemFs() Filesys {
	return FromAfero(afero.NewMemMapFs())
}

// OsFs creates a Filesys backed by the operating system.
func OsFs() Filesys {
	return FromAfero(afero.NewOsFs())
}

// WriteFile creates name with the given contents.
func WriteFile(fs Filesys, name string, data []byte) error {
	f, err := fs.Create(name)
	if err != nil {
		return err
	}
	_, err = f.Write(data)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

// AtomicCreateWith replaces name with data by writing a temporary file and
// renaming it into place.
func AtomicCreateWith(fs Filesys, name string, data []byte) error {
	tmp := name + ".tmp"
	if err := WriteFile(fs, tmp, data); err != nil {
		return err
	}
	return fs.Rename(tmp, name)
}

// EnsureDir creates dir if it is missing and fails with ErrNotDir if dir
// names something other than a directory.
func EnsureDir(fs Filesys, dir string) error {
	ok, err := fs.Exists(dir)
	if err != nil {
		return err
	}
	if !ok {
		return fs.MkdirAll(dir)
	}
	isDir, err := fs.IsDir(dir)
	if err != nil {
		return err
	}
	if !isDir {
		return ErrNotDir
	}
	return nil
}
