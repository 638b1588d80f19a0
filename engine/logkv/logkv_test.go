package logkv

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/tchajed/specious-kv/engine"
	"github.com/tchajed/specious-kv/engine/enginetest"
	"github.com/tchajed/specious-kv/fs"
	"github.com/tchajed/specious-kv/log"
)

func TestMemEngine(t *testing.T) {
	suite.Run(t, &enginetest.Suite{
		NewOpener: func() (engine.Opener, string) {
			o := NewMem()
			if err := o.Fs.MkdirAll("/db"); err != nil {
				t.Fatal(err)
			}
			return o, "/db"
		},
	})
}

func TestOsEngine(t *testing.T) {
	suite.Run(t, &enginetest.Suite{
		NewOpener: func() (engine.Opener, string) {
			return Opener{Fs: fs.OsFs()}, t.TempDir()
		},
	})
}

func memEnv(t *testing.T) (Opener, *Env) {
	o := NewMem()
	require.NoError(t, o.Fs.MkdirAll("/db"))
	env, err := o.Open("/db")
	require.NoError(t, err)
	return o, env.(*Env)
}

func put(t *testing.T, env engine.Env, key, val string) {
	err := env.Update(func(tx engine.WriteTxn) error {
		return tx.Put(engine.Store{}, []byte(key), []byte(val))
	})
	require.NoError(t, err)
}

func TestReopenCompacts(t *testing.T) {
	assert := assert.New(t)
	o, env := memEnv(t)
	put(t, env, "a", "1")
	put(t, env, "a", "2")
	put(t, env, "b", "3")
	require.NoError(t, env.Close())

	reopened, err := o.Open("/db")
	require.NoError(t, err)
	defer reopened.Close()

	f, err := o.Fs.Open("/db/" + LogFile)
	require.NoError(t, err)
	defer f.Close()
	txns, err := log.RecoverTxns(f)
	require.NoError(t, err)
	if assert.Len(txns, 1, "reopening should leave one snapshot txn") {
		ops, err := decodeOps(txns[0])
		assert.NoError(err)
		assert.Equal([]op{
			{opPut, "", []byte("a"), []byte("2")},
			{opPut, "", []byte("b"), []byte("3")},
		}, ops)
	}
	exists, _ := o.Fs.Exists("/db/" + LogFile + tmpSuffix)
	assert.False(exists, "temporary log should be renamed away")
}

func TestCorruptLog(t *testing.T) {
	assert := assert.New(t)
	o := NewMem()
	garbage := append([]byte{0xf8}, bytes.Repeat([]byte{0xff}, 64)...)
	require.NoError(t, o.Fs.MkdirAll("/db"))
	require.NoError(t, fs.WriteFile(o.Fs, "/db/"+LogFile, garbage))

	_, err := o.Open("/db")
	assert.ErrorIs(err, engine.ErrCorrupt)
	data, err := o.Fs.ReadFile("/db/" + LogFile)
	assert.NoError(err)
	assert.Equal(garbage, data, "failed open should not modify the log")
}

func TestUnknownOperation(t *testing.T) {
	o := NewMem()
	require.NoError(t, o.Fs.MkdirAll("/db"))
	f, err := o.Fs.Create("/db/" + LogFile)
	require.NoError(t, err)
	w := log.New(f)
	require.NoError(t, w.Add([]byte{0x7f, 0}))
	require.NoError(t, w.Close())

	_, err = o.Open("/db")
	assert.ErrorIs(t, err, engine.ErrCorrupt)
}

func TestTruncatedOperation(t *testing.T) {
	// a put whose value is cut short
	var buf []byte
	buf = append(buf, encodeOps([]op{{opPut, "s", []byte("key"), []byte("value")}})...)
	_, err := decodeOps(buf[:len(buf)-2])
	assert.Error(t, err)
}

func TestReplayAllOperations(t *testing.T) {
	assert := assert.New(t)
	o, env := memEnv(t)
	s := engine.Store{Name: "s"}
	err := env.Update(func(tx engine.WriteTxn) error {
		for _, k := range []string{"a", "b", "c", "d", "e"} {
			if err := tx.Put(s, []byte(k), []byte("v"+k)); err != nil {
				return err
			}
		}
		if err := tx.Delete(s, []byte("a")); err != nil {
			return err
		}
		return tx.DeleteRange(s, []byte("c"), []byte("e"))
	})
	require.NoError(t, err)
	err = env.Update(func(tx engine.WriteTxn) error {
		return tx.Put(engine.Store{Name: "other"}, []byte("x"), []byte("y"))
	})
	require.NoError(t, err)
	err = env.Update(func(tx engine.WriteTxn) error {
		return tx.Clear(engine.Store{Name: "other"})
	})
	require.NoError(t, err)
	require.NoError(t, env.Close())

	reopened, err := o.Open("/db")
	require.NoError(t, err)
	defer reopened.Close()
	keys, err := collect(reopened, s)
	assert.NoError(err)
	assert.Equal([]string{"b", "e"}, keys)
	keys, err = collect(reopened, engine.Store{Name: "other"})
	assert.NoError(err)
	assert.Empty(keys)
}

func collect(env engine.Env, s engine.Store) ([]string, error) {
	var keys []string
	err := env.View(func(tx engine.ReadTxn) error {
		ks, err := engine.CollectKeys(tx, s, nil, nil)
		for _, k := range ks {
			keys = append(keys, string(k))
		}
		return err
	})
	return keys, err
}

func TestClosedEnv(t *testing.T) {
	_, env := memEnv(t)
	require.NoError(t, env.Close())
	assert.NoError(t, env.Close(), "close should be idempotent")
	err := env.View(func(tx engine.ReadTxn) error { return nil })
	assert.ErrorIs(t, err, engine.ErrIO)
}

func TestOpenMissingDir(t *testing.T) {
	o := Opener{Fs: fs.OsFs()}
	_, err := o.Open(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, engine.ErrIO)
}

func TestTableDeleteRange(t *testing.T) {
	assert := assert.New(t)
	tbl := &table{}
	for _, k := range []string{"d", "a", "c", "b"} {
		tbl.Put([]byte(k), nil)
	}
	tbl.DeleteRange([]byte("c"), []byte("b"))
	assert.Equal(4, tbl.Len(), "an inverted range is empty")
	tbl.DeleteRange([]byte("b"), nil)
	assert.Equal(1, tbl.Len())
	_, ok := tbl.Get([]byte("a"))
	assert.True(ok)
}
