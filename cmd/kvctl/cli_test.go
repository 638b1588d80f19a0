package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// kvctl runs the cli with the given stdin and arguments and returns stdout,
// stderr and the exit code.
func kvctl(t *testing.T, stdin string, args ...string) (stdout, stderr string, rc int) {
	t.Helper()
	var out, errOut bytes.Buffer
	config := NewCliConfig()
	config.Stdin = strings.NewReader(stdin)
	config.Stdout = &out
	config.Stderr = &errOut
	exitRc := 0
	// replace the kong exit function with one that doesn't exit
	config.Exit = func(rc int) { exitRc = rc }

	rc, err := Cli(args, config)
	require.NoError(t, err)
	if exitRc != 0 {
		rc = exitRc
	}
	return out.String(), errOut.String(), rc
}

func TestPutGet(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()

	_, _, rc := kvctl(t, "", "-p", dir, "put", "greeting", "hello")
	assert.Equal(0, rc)
	_, _, rc = kvctl(t, "", "-p", dir, "put", "-t", "int", "answer", "42")
	assert.Equal(0, rc)

	out, _, rc := kvctl(t, "", "-p", dir, "get", "greeting")
	assert.Equal(0, rc)
	assert.Equal("hello\n", out)
	out, _, _ = kvctl(t, "", "-p", dir, "get", "answer")
	assert.Equal("42\n", out)

	out, _, _ = kvctl(t, "", "-p", dir, "has", "answer")
	assert.Equal("true\n", out)
}

func TestGetMissing(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()
	_, stderr, rc := kvctl(t, "", "-p", dir, "get", "nope")
	assert.Equal(1, rc)
	assert.Contains(stderr, "not found")

	out, _, rc := kvctl(t, "", "-p", dir, "get", "-d", "fallback", "nope")
	assert.Equal(0, rc)
	assert.Equal("fallback\n", out)
}

func TestStoresAreSeparate(t *testing.T) {
	dir := t.TempDir()
	kvctl(t, "", "-p", dir, "-s", "one", "put", "k", "v")
	out, _, _ := kvctl(t, "", "-p", dir, "-s", "two", "has", "k")
	assert.Equal(t, "false\n", out)
}

func TestLoadAndDump(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()
	_, stderr, rc := kvctl(t, "b\t2\na\t1\nc\t3\n", "-p", dir, "load", "-t", "int")
	assert.Equal(0, rc)
	assert.Contains(stderr, "3 pairs")

	out, _, rc := kvctl(t, "", "-p", dir, "dump")
	assert.Equal(0, rc)
	assert.Contains(out, "key")
	var rows []string
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "int") {
			rows = append(rows, line)
		}
	}
	require.Len(t, rows, 3, "three rows:\n%s", out)
	assert.Contains(rows[0], "a")
	assert.Contains(rows[2], "c")

	// a key without a value deletes it
	_, _, rc = kvctl(t, "b\n", "-p", dir, "load")
	assert.Equal(0, rc)
	out, _, _ = kvctl(t, "", "-p", dir, "dump", "--from", "b")
	assert.NotContains(out, "| b")
	assert.Contains(out, "c")
}

func TestDeleteAndClear(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()
	kvctl(t, "a\tx\nb\tx\nc\tx\nd\tx\n", "-p", dir, "load")

	_, _, rc := kvctl(t, "", "-p", dir, "delete", "a")
	assert.Equal(0, rc)
	_, _, rc = kvctl(t, "", "-p", dir, "delete", "a")
	assert.Equal(0, rc, "deleting a missing key succeeds")
	_, _, rc = kvctl(t, "", "-p", dir, "delete-range", "b", "c")
	assert.Equal(0, rc)
	out, _, _ := kvctl(t, "", "-p", dir, "has", "b")
	assert.Equal("false\n", out)
	out, _, _ = kvctl(t, "", "-p", dir, "has", "c")
	assert.Equal("true\n", out)

	_, _, rc = kvctl(t, "", "-p", dir, "clear")
	assert.Equal(0, rc)
	out, _, _ = kvctl(t, "", "-p", dir, "dump")
	assert.Contains(out, "No pairs")
}

func TestBadInput(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()
	_, stderr, rc := kvctl(t, "", "-p", dir, "put", "-t", "int", "k", "seven")
	assert.Equal(1, rc)
	assert.Contains(stderr, "bad int")

	_, stderr, rc = kvctl(t, "", "-p", dir, "put", "bad\xff", "v")
	assert.Equal(1, rc)
	assert.Contains(stderr, "invalid key")

	_, _, rc = kvctl(t, "", "-p", dir, "--engine", "leveldb", "get", "k")
	assert.NotEqual(0, rc, "unknown engines are rejected by the parser")
}

func TestParseValue(t *testing.T) {
	assert := assert.New(t)
	for _, tt := range []struct {
		typ, text, want string
	}{
		{"string", "hi", "hi"},
		{"int", "-3", "-3"},
		{"float", "2.5", "2.5"},
		{"bool", "true", "true"},
		{"bytes", "00ff", "00ff"},
	} {
		v, err := parseValue(tt.typ, tt.text)
		assert.NoError(err, tt.typ)
		assert.Equal(tt.want, v.String(), tt.typ)
	}
	_, err := parseValue("bytes", "zz")
	assert.Error(err)
}
