package fs

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"
)

type FsSuite struct {
	suite.Suite
	fs Filesys
}

func TestFs(t *testing.T) {
	suite.Run(t, new(FsSuite))
}

func (suite *FsSuite) SetupTest() {
	suite.fs = MemFs()
	suite.Require().NoError(suite.fs.MkdirAll("/db"))
}

func (suite FsSuite) CreateFile(fname string, contents []byte) {
	suite.Require().NoError(WriteFile(suite.fs, fname, contents))
}

func (suite FsSuite) ReadFile(fname string) []byte {
	f, err := suite.fs.Open(fname)
	suite.Require().NoError(err)
	data, err := ioutil.ReadAll(f)
	suite.Require().NoError(err)
	f.Close()
	return data
}

func (suite FsSuite) TestCreate() {
	suite.CreateFile("/db/foo", []byte{2})
	suite.Equal([]byte{2}, suite.ReadFile("/db/foo"),
		"file should have same contents as written")
}

func (suite FsSuite) TestAtomicCreate() {
	suite.CreateFile("/db/foo", []byte{1})
	suite.NoError(AtomicCreateWith(suite.fs, "/db/foo", []byte{2}))
	suite.Equal([]byte{2}, suite.ReadFile("/db/foo"),
		"file should have correct contents")
	ok, err := suite.fs.Exists("/db/foo.tmp")
	suite.NoError(err)
	suite.False(ok, "temporary file should be renamed away")
}

func (suite FsSuite) TestList() {
	suite.CreateFile("/db/foo", []byte{})
	suite.CreateFile("/db/bar", []byte{})
	names, err := suite.fs.List("/db")
	suite.NoError(err)
	suite.Equal([]string{"bar", "foo"}, names)
}

func (suite FsSuite) TestRemoveAll() {
	suite.CreateFile("/db/foo", []byte{})
	suite.NoError(suite.fs.RemoveAll("/db/foo"))
	names, err := suite.fs.List("/db")
	suite.NoError(err)
	suite.Empty(names)
	suite.NoError(suite.fs.RemoveAll("/db/foo"), "removing a missing file is not an error")
}

func (suite FsSuite) TestRename() {
	suite.CreateFile("/db/foo", []byte{1, 2, 3})
	suite.NoError(suite.fs.Rename("/db/foo", "/db/bar"))
	names, err := suite.fs.List("/db")
	suite.NoError(err)
	suite.Equal([]string{"bar"}, names)
	suite.Equal([]byte{1, 2, 3}, suite.ReadFile("/db/bar"),
		"rename should preserve contents")
}

func (suite FsSuite) TestEnsureDir() {
	suite.NoError(EnsureDir(suite.fs, "/db/sub/dir"))
	isDir, err := suite.fs.IsDir("/db/sub/dir")
	suite.NoError(err)
	suite.True(isDir)

	suite.CreateFile("/db/file", nil)
	suite.ErrorIs(EnsureDir(suite.fs, "/db/file"), ErrNotDir)
}

func (suite FsSuite) TestNormalize() {
	p, err := suite.fs.Normalize("/db/./x/../y")
	suite.NoError(err)
	suite.Equal(filepath.Clean("/db/y"), p)
	_, err = suite.fs.Normalize("")
	suite.Error(err)
}

func TestNormalizeResolvesSymlinks(t *testing.T) {
	dir := t.TempDir()
	real := filepath.Join(dir, "real")
	link := filepath.Join(dir, "link")
	if err := os.Mkdir(real, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(real, link); err != nil {
		t.Skip("symlinks unsupported:", err)
	}
	fs := OsFs()
	a, err := fs.Normalize(real)
	if err != nil {
		t.Fatal(err)
	}
	b, err := fs.Normalize(link)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("symlink should normalize to its target: %s != %s", a, b)
	}
	if !fs.OS() || MemFs().OS() {
		t.Error("only the OS filesystem should report OS()")
	}
}

func TestNormalizeMissingLeafUnderSymlink(t *testing.T) {
	dir := t.TempDir()
	real := filepath.Join(dir, "real")
	link := filepath.Join(dir, "link")
	if err := os.Mkdir(real, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(real, link); err != nil {
		t.Skip("symlinks unsupported:", err)
	}
	fs := OsFs()
	missing, err := fs.Normalize(filepath.Join(link, "db", "sub"))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(real, "db", "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	created, err := fs.Normalize(filepath.Join(real, "db", "sub"))
	if err != nil {
		t.Fatal(err)
	}
	if missing != created {
		t.Errorf("missing path should normalize like its created form: %s != %s", missing, created)
	}
}
