// Package enginetest is a conformance suite run against every engine.
package enginetest

import (
	"errors"
	"fmt"

	"github.com/stretchr/testify/suite"
	"github.com/tchajed/specious-kv/engine"
)

type kv struct {
	key string
	val string
}

// Suite exercises an engine.Opener. NewOpener is called once per test and
// returns the opener and the directory to open.
type Suite struct {
	suite.Suite
	NewOpener func() (engine.Opener, string)

	opener engine.Opener
	dir    string
	env    engine.Env
	store  engine.Store
}

func (s *Suite) SetupTest() {
	s.opener, s.dir = s.NewOpener()
	s.open()
}

func (s *Suite) TearDownTest() {
	if s.env != nil {
		s.NoError(s.env.Close())
		s.env = nil
	}
}

func (s *Suite) open() {
	env, err := s.opener.Open(s.dir)
	s.Require().NoError(err)
	s.env = env
	s.store, err = env.OpenStore("test")
	s.Require().NoError(err)
}

// Reopen closes and reopens the environment.
func (s *Suite) Reopen() {
	s.Require().NoError(s.env.Close())
	s.env = nil
	s.open()
}

func (s *Suite) put(st engine.Store, key, val string) {
	err := s.env.Update(func(tx engine.WriteTxn) error {
		return tx.Put(st, []byte(key), []byte(val))
	})
	s.Require().NoError(err)
}

func (s *Suite) get(st engine.Store, key string) (string, bool) {
	var val []byte
	var ok bool
	err := s.env.View(func(tx engine.ReadTxn) error {
		var err error
		val, ok, err = tx.Get(st, []byte(key))
		return err
	})
	s.Require().NoError(err)
	return string(val), ok
}

func (s *Suite) scan(st engine.Store, from, to string) []kv {
	var out []kv
	err := s.env.View(func(tx engine.ReadTxn) error {
		return tx.Iterate(st, []byte(from), []byte(to), func(k, v []byte) error {
			out = append(out, kv{string(k), string(v)})
			return nil
		})
	})
	s.Require().NoError(err)
	return out
}

func (s *Suite) fill(keys ...string) {
	err := s.env.Update(func(tx engine.WriteTxn) error {
		for _, k := range keys {
			if err := tx.Put(s.store, []byte(k), []byte("val "+k)); err != nil {
				return err
			}
		}
		return nil
	})
	s.Require().NoError(err)
}

func (s *Suite) TestPutGet() {
	s.put(s.store, "a", "val")
	v, ok := s.get(s.store, "a")
	s.True(ok)
	s.Equal("val", v)
}

func (s *Suite) TestGetMissing() {
	_, ok := s.get(s.store, "missing")
	s.False(ok)
}

func (s *Suite) TestPutReplace() {
	s.put(s.store, "a", "val")
	s.put(s.store, "a", "new val")
	v, _ := s.get(s.store, "a")
	s.Equal("new val", v)
}

func (s *Suite) TestDelete() {
	s.fill("a", "b")
	err := s.env.Update(func(tx engine.WriteTxn) error {
		if err := tx.Delete(s.store, []byte("a")); err != nil {
			return err
		}
		return tx.Delete(s.store, []byte("never-written"))
	})
	s.NoError(err)
	_, ok := s.get(s.store, "a")
	s.False(ok, "deleted key should be missing")
	_, ok = s.get(s.store, "b")
	s.True(ok, "non-deleted key should be present")
}

func (s *Suite) TestIterateOrderAndBounds() {
	s.fill("d", "b", "a", "c", "e")
	s.Equal([]kv{{"a", "val a"}, {"b", "val b"}, {"c", "val c"}, {"d", "val d"}, {"e", "val e"}},
		s.scan(s.store, "", ""))
	s.Equal([]kv{{"b", "val b"}, {"c", "val c"}}, s.scan(s.store, "b", "d"),
		"range should be half-open")
	s.Equal([]kv{{"d", "val d"}, {"e", "val e"}}, s.scan(s.store, "cc", ""))
	s.Equal([]kv{{"a", "val a"}}, s.scan(s.store, "", "b"))
	s.Empty(s.scan(s.store, "d", "b"), "inverted range should be empty")
}

func (s *Suite) TestIterateError() {
	s.fill("a", "b")
	stop := errors.New("stop")
	calls := 0
	err := s.env.View(func(tx engine.ReadTxn) error {
		return tx.Iterate(s.store, nil, nil, func(k, v []byte) error {
			calls++
			return stop
		})
	})
	s.ErrorIs(err, stop)
	s.Equal(1, calls)
}

func (s *Suite) TestDeleteRange() {
	s.fill("a", "b", "c", "d")
	err := s.env.Update(func(tx engine.WriteTxn) error {
		return tx.DeleteRange(s.store, []byte("b"), []byte("d"))
	})
	s.NoError(err)
	s.Equal([]kv{{"a", "val a"}, {"d", "val d"}}, s.scan(s.store, "", ""))
}

func (s *Suite) TestClear() {
	other, err := s.env.OpenStore("other")
	s.Require().NoError(err)
	s.fill("a", "b")
	s.put(other, "a", "kept")
	err = s.env.Update(func(tx engine.WriteTxn) error {
		return tx.Clear(s.store)
	})
	s.NoError(err)
	s.Empty(s.scan(s.store, "", ""))
	v, ok := s.get(other, "a")
	s.True(ok, "clear should not touch other stores")
	s.Equal("kept", v)

	err = s.env.Update(func(tx engine.WriteTxn) error {
		return tx.Clear(s.store)
	})
	s.NoError(err, "clearing an empty store should succeed")
}

func (s *Suite) TestStoresAreIsolated() {
	// "ab" is a prefix-extension of "a", which engines that prefix keys with
	// the store name must not confuse
	a, err := s.env.OpenStore("a")
	s.Require().NoError(err)
	ab, err := s.env.OpenStore("ab")
	s.Require().NoError(err)
	def, err := s.env.OpenStore("")
	s.Require().NoError(err)
	s.put(a, "bkey", "in a")
	s.put(ab, "key", "in ab")
	s.put(def, "key", "in default")

	s.Equal([]kv{{"bkey", "in a"}}, s.scan(a, "", ""))
	s.Equal([]kv{{"key", "in ab"}}, s.scan(ab, "", ""))
	s.Equal([]kv{{"key", "in default"}}, s.scan(def, "", ""))
}

func (s *Suite) TestUpdateRollsBack() {
	s.fill("a")
	fail := errors.New("abort")
	err := s.env.Update(func(tx engine.WriteTxn) error {
		if err := tx.Put(s.store, []byte("b"), []byte("uncommitted")); err != nil {
			return err
		}
		if err := tx.Delete(s.store, []byte("a")); err != nil {
			return err
		}
		return fail
	})
	s.ErrorIs(err, fail)
	_, ok := s.get(s.store, "b")
	s.False(ok, "aborted put should not be visible")
	_, ok = s.get(s.store, "a")
	s.True(ok, "aborted delete should not be visible")
}

func (s *Suite) TestWriteTxnSeesOwnWrites() {
	err := s.env.Update(func(tx engine.WriteTxn) error {
		if err := tx.Put(s.store, []byte("a"), []byte("1")); err != nil {
			return err
		}
		v, ok, err := tx.Get(s.store, []byte("a"))
		if err != nil {
			return err
		}
		if !ok || string(v) != "1" {
			return fmt.Errorf("read %q %v inside txn", v, ok)
		}
		return nil
	})
	s.NoError(err)
}

func (s *Suite) TestReopenPersists() {
	s.fill("a", "b")
	s.put(s.store, "a", "updated")
	err := s.env.Update(func(tx engine.WriteTxn) error {
		return tx.Delete(s.store, []byte("b"))
	})
	s.Require().NoError(err)
	s.Reopen()
	s.Equal([]kv{{"a", "updated"}}, s.scan(s.store, "", ""))
}

func (s *Suite) TestManyKeys() {
	var keys []string
	for i := 0; i < 500; i++ {
		keys = append(keys, fmt.Sprintf("key-%04d", i))
	}
	s.fill(keys...)
	got := s.scan(s.store, "key-0100", "key-0200")
	s.Len(got, 100)
	s.Equal("key-0100", got[0].key)
	s.Equal("key-0199", got[99].key)
}
