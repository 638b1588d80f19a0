package env

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zaptest"

	"github.com/tchajed/specious-kv/engine"
	"github.com/tchajed/specious-kv/engine/badgerkv"
	"github.com/tchajed/specious-kv/engine/boltkv"
	"github.com/tchajed/specious-kv/fs"
)

func TestDecide(t *testing.T) {
	corrupt := engine.Corrupt(errors.New("bad magic"))
	ioErr := engine.IO(errors.New("permission denied"))
	tests := []struct {
		name      string
		err       error
		strategy  RecoveryStrategy
		recovered bool
		want      action
	}{
		{"opened", nil, Discard, false, actionDone},
		{"opened after recovery", nil, Rename, true, actionDone},
		{"corrupt with error strategy", corrupt, Error, false, actionFail},
		{"corrupt with discard", corrupt, Discard, false, actionDiscard},
		{"corrupt with rename", corrupt, Rename, false, actionRename},
		{"corrupt again after recovery", corrupt, Discard, true, actionFail},
		{"io errors are not recovered", ioErr, Rename, false, actionFail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decide(tt.err, tt.strategy, tt.recovered))
		})
	}
}

func TestParseRecoveryStrategy(t *testing.T) {
	assert := assert.New(t)
	for _, s := range []RecoveryStrategy{Error, Discard, Rename} {
		parsed, err := ParseRecoveryStrategy(s.String())
		assert.NoError(err)
		assert.Equal(s, parsed)
	}
	parsed, err := ParseRecoveryStrategy("Rename")
	assert.NoError(err)
	assert.Equal(Rename, parsed)
	_, err = ParseRecoveryStrategy("repair")
	assert.Error(err)

	var s RecoveryStrategy
	assert.NoError(s.UnmarshalText([]byte("discard")))
	assert.Equal(Discard, s)
}

// RecoverySuite opens an environment over a corrupt engine file. dataFile is
// the file that holds the garbage and moved is where Rename should put it.
type RecoverySuite struct {
	suite.Suite
	opener   engine.Opener
	dataFile string
	moved    string

	dir     string
	garbage []byte
	reg     *Registry
}

func TestBoltRecovery(t *testing.T) {
	suite.Run(t, &RecoverySuite{
		opener:   boltkv.Opener{NoSync: true},
		dataFile: boltkv.DataFile,
		moved:    boltkv.DataFile + CorruptSuffix,
	})
}

func TestBadgerRecovery(t *testing.T) {
	if testing.Short() {
		t.Skip("badger is slow to open")
	}
	suite.Run(t, &RecoverySuite{
		opener:   badgerkv.Opener{},
		dataFile: filepath.Join(badgerkv.DataDir, "MANIFEST"),
		moved:    filepath.Join(badgerkv.DataDir+CorruptSuffix, "MANIFEST"),
	})
}

func (s *RecoverySuite) SetupTest() {
	s.dir = s.T().TempDir()
	// larger than two pages of any page size bolt would pick
	s.garbage = bytes.Repeat([]byte("this is not a database file"), 16*1024)
	s.writeFile(s.dataFile, s.garbage)
	s.reg = NewRegistry(s.opener, fs.OsFs(), zaptest.NewLogger(s.T()))
}

func (s *RecoverySuite) writeFile(name string, data []byte) {
	path := filepath.Join(s.dir, name)
	s.Require().NoError(os.MkdirAll(filepath.Dir(path), 0755))
	s.Require().NoError(os.WriteFile(path, data, 0644))
}

func (s *RecoverySuite) readFile(name string) []byte {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	s.Require().NoError(err)
	return data
}

func (s *RecoverySuite) exists(name string) bool {
	_, err := os.Stat(filepath.Join(s.dir, name))
	return err == nil
}

// checkUsable checks the environment is empty and accepts writes.
func (s *RecoverySuite) checkUsable(e *Env, st engine.Store) {
	err := e.Read(func(tx engine.ReadTxn) error {
		keys, err := engine.CollectKeys(tx, st, nil, nil)
		s.Empty(keys, "recovered environment should be empty")
		return err
	})
	s.NoError(err)
	err = e.Write(func(tx engine.WriteTxn) error {
		return tx.Put(st, []byte("k"), []byte("v"))
	})
	s.NoError(err, "recovered environment should be writable")
}

func (s *RecoverySuite) TestErrorStrategy() {
	_, _, err := s.reg.GetOrCreate(s.dir, "s", Error)
	s.ErrorIs(err, engine.ErrCorrupt)
	s.Equal(s.garbage, s.readFile(s.dataFile), "corrupt file should be untouched")
	s.False(s.exists(s.moved))
	s.Equal(0, s.reg.Len())
}

func (s *RecoverySuite) TestDiscard() {
	e, st, err := s.reg.GetOrCreate(s.dir, "s", Discard)
	s.Require().NoError(err)
	defer e.Release()
	s.checkUsable(e, st)
	s.False(s.exists(s.moved))
	s.NotEqual(s.garbage, s.readFile(s.dataFile))
}

func (s *RecoverySuite) TestRename() {
	e, st, err := s.reg.GetOrCreate(s.dir, "s", Rename)
	s.Require().NoError(err)
	defer e.Release()
	s.checkUsable(e, st)
	s.Equal(s.garbage, s.readFile(s.moved),
		"renamed file should be byte-identical to the corrupt one")
}

func (s *RecoverySuite) TestRenameReplacesOldCorruptFile() {
	s.writeFile(s.moved, []byte("from an earlier recovery"))
	e, _, err := s.reg.GetOrCreate(s.dir, "s", Rename)
	s.Require().NoError(err)
	defer e.Release()
	s.Equal(s.garbage, s.readFile(s.moved))
}

func (s *RecoverySuite) TestLiveEnvIgnoresStrategy() {
	e, _, err := s.reg.GetOrCreate(s.dir, "s", Discard)
	s.Require().NoError(err)
	defer e.Release()
	e2, _, err := s.reg.GetOrCreate(s.dir, "other", Error)
	s.Require().NoError(err)
	defer e2.Release()
	s.Same(e, e2)
}

func TestSideEffectsSkipMissingFiles(t *testing.T) {
	fsys := fs.MemFs()
	require.NoError(t, fsys.MkdirAll("/db"))
	require.NoError(t, fs.WriteFile(fsys, "/db/a", []byte("a")))
	files := []string{"a", "missing"}

	assert.NoError(t, moveAside(fsys, "/db", files))
	data, err := fsys.ReadFile("/db/a" + CorruptSuffix)
	assert.NoError(t, err)
	assert.Equal(t, []byte("a"), data)
	ok, _ := fsys.Exists("/db/missing" + CorruptSuffix)
	assert.False(t, ok)

	assert.NoError(t, discard(fsys, "/db", files))
	assert.NoError(t, discard(fsys, "/db", files), "discard should be idempotent")
	ok, _ = fsys.Exists("/db/a" + CorruptSuffix)
	assert.True(t, ok, "discard only removes engine files")
}
