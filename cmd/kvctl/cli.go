package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	. "github.com/stevegt/goadapt"
	"go.uber.org/zap"

	"github.com/tchajed/specious-kv/env"
	"github.com/tchajed/specious-kv/kv"
	"github.com/tchajed/specious-kv/value"
)

type cmdGet struct {
	Key     string `arg:"" help:"Key to look up."`
	Default string `short:"d" help:"Print this instead of failing when the key is missing."`
}

type cmdPut struct {
	Key   string `arg:"" help:"Key to store."`
	Value string `arg:"" help:"Value to store, parsed according to --type."`
	Type  string `short:"t" enum:"string,int,float,bool,bytes" default:"string" help:"Value type (string, int, float, bool, or hex-encoded bytes)."`
}

type cmdHas struct {
	Key string `arg:"" help:"Key to look up."`
}

type cmdDelete struct {
	Key string `arg:"" help:"Key to delete."`
}

type cmdDeleteRange struct {
	From string `arg:"" help:"First key to delete."`
	To   string `arg:"" optional:"" help:"Delete keys before this one (default: to the end)."`
}

type cmdClear struct{}

type cmdDump struct {
	From string `help:"Start at this key."`
	To   string `help:"Stop before this key."`
}

// cmdLoad reads tab-separated key/value lines from stdin and writes them in
// one batch; a line with only a key deletes it.
type cmdLoad struct {
	Type string `short:"t" enum:"string,int,float,bool,bytes" default:"string" help:"Type of every value."`
}

type cliArgs struct {
	Path     string `short:"p" required:"" env:"KVCTL_PATH" help:"Environment directory."`
	Store    string `short:"s" default:"" help:"Store within the environment (default store if empty)."`
	Engine   string `short:"e" enum:"bolt,badger,log,mem" default:"bolt" env:"KVCTL_ENGINE" help:"Storage engine."`
	Recovery string `short:"r" enum:"error,discard,rename" default:"error" help:"What to do if the environment is corrupt."`
	Verbose  bool   `short:"v" help:"Log debug information to stderr."`

	Get         cmdGet         `cmd:"" help:"Print the value of a key."`
	Put         cmdPut         `cmd:"" help:"Store a value."`
	Has         cmdHas         `cmd:"" help:"Report whether a key is present."`
	Delete      cmdDelete      `cmd:"" help:"Delete a key."`
	DeleteRange cmdDeleteRange `cmd:"" name:"delete-range" help:"Delete a range of keys."`
	Clear       cmdClear       `cmd:"" help:"Delete every key in the store."`
	Dump        cmdDump        `cmd:"" help:"Print a range of pairs as a markdown table."`
	Load        cmdLoad        `cmd:"" help:"Write tab-separated key/value lines from stdin in one batch."`
}

// CliConfig contains the configuration for kvctl
type CliConfig struct {
	Name        string
	Description string
	// Exit is the function to call to exit the program
	Exit   func(int)
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// Timeout bounds each operation
	Timeout time.Duration
}

// NewCliConfig returns a new Config struct with default values populated
func NewCliConfig() *CliConfig {
	return &CliConfig{
		Name:        "kvctl",
		Description: "Inspect and edit key-value stores.",
		Exit:        func(i int) { os.Exit(i) },
		Stdin:       os.Stdin,
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
		Timeout:     time.Minute,
	}
}

// Cli parses args and runs the subcommand. Command failures that are the
// user's to fix (a missing key, a bad value) are printed and reported
// through rc; err is for everything else.
func Cli(args []string, config *CliConfig) (rc int, err error) {
	defer Return(&err)

	var cli cliArgs
	parser, err := kong.New(&cli,
		kong.Name(config.Name),
		kong.Description(config.Description),
		kong.Exit(config.Exit),
		kong.Writers(config.Stdout, config.Stderr),
	)
	Ck(err)
	ctx, err := parser.Parse(args)
	parser.FatalIfErrorf(err)
	if err != nil {
		// only reached when config.Exit returns
		return 2, nil
	}

	logger := zap.NewNop()
	if cli.Verbose {
		logger, err = zap.NewDevelopment()
		Ck(err)
	}
	defer logger.Sync()

	opts, err := kv.EngineByName(cli.Engine)
	Ck(err)
	strategy, err := env.ParseRecoveryStrategy(cli.Recovery)
	Ck(err)
	svc := kv.NewService(append(opts, kv.WithLogger(logger))...)
	defer svc.Close()

	s := &session{config: config}
	db, err := s.open(svc, cli.Path, cli.Store, strategy)
	if err != nil {
		return s.fail("open %s: %v", cli.Path, err), nil
	}
	defer db.Release()
	s.db = db

	switch ctx.Command() {
	case "get <key>":
		return s.get(cli.Get.Key, cli.Get.Default, cli.Get.Default != ""), nil
	case "put <key> <value>":
		return s.put(cli.Put.Key, cli.Put.Type, cli.Put.Value), nil
	case "has <key>":
		return s.has(cli.Has.Key), nil
	case "delete <key>":
		return s.void("delete", func(cb kv.VoidCallback) { db.Delete(cli.Delete.Key, cb) }), nil
	case "delete-range <from>", "delete-range <from> <to>":
		return s.void("delete range", func(cb kv.VoidCallback) {
			db.DeleteRange(cli.DeleteRange.From, cli.DeleteRange.To, cb)
		}), nil
	case "clear":
		return s.void("clear", db.Clear), nil
	case "dump":
		return s.dump(cli.Dump.From, cli.Dump.To), nil
	case "load":
		return s.load(cli.Load.Type), nil
	}
	return s.fail("unrecognized command: %s", ctx.Command()), nil
}

// session runs one command against an open database, turning callbacks
// back into sequential code.
type session struct {
	config *CliConfig
	db     *kv.Database
}

func (s *session) fail(format string, args ...interface{}) int {
	Fpf(s.config.Stderr, "%s %s\n", color.RedString("error:"), fmt.Sprintf(format, args...))
	return 1
}

type result struct {
	v   interface{}
	err error
}

// wait blocks until submit's callback runs.
func (s *session) wait(submit func(done func(interface{}, error))) (interface{}, error) {
	ch := make(chan result, 1)
	submit(func(v interface{}, err error) { ch <- result{v, err} })
	select {
	case r := <-ch:
		return r.v, r.err
	case <-time.After(s.config.Timeout):
		return nil, fmt.Errorf("timed out after %v", s.config.Timeout)
	}
}

func (s *session) open(svc *kv.Service, path, store string, strategy env.RecoveryStrategy) (*kv.Database, error) {
	v, err := s.wait(func(done func(interface{}, error)) {
		svc.OpenOrCreate(path, store, strategy, func(db *kv.Database, err error) { done(db, err) })
	})
	if err != nil {
		return nil, err
	}
	return v.(*kv.Database), nil
}

func (s *session) void(name string, submit func(cb kv.VoidCallback)) int {
	_, err := s.wait(func(done func(interface{}, error)) {
		submit(func(err error) { done(nil, err) })
	})
	if err != nil {
		return s.fail("%s: %v", name, err)
	}
	return 0
}

func (s *session) get(key, def string, hasDefault bool) int {
	v, err := s.wait(func(done func(interface{}, error)) {
		s.db.Get(key, value.Absent, func(v value.Value, err error) { done(v, err) })
	})
	if err != nil {
		return s.fail("get %q: %v", key, err)
	}
	val := v.(value.Value)
	if val.IsAbsent() {
		if hasDefault {
			Fpf(s.config.Stdout, "%s\n", def)
			return 0
		}
		return s.fail("%q not found", key)
	}
	Fpf(s.config.Stdout, "%s\n", val)
	return 0
}

func (s *session) has(key string) int {
	v, err := s.wait(func(done func(interface{}, error)) {
		s.db.Has(key, func(ok bool, err error) { done(ok, err) })
	})
	if err != nil {
		return s.fail("has %q: %v", key, err)
	}
	Fpf(s.config.Stdout, "%v\n", v.(bool))
	return 0
}

func (s *session) put(key, typ, text string) int {
	v, err := parseValue(typ, text)
	if err != nil {
		return s.fail("%v", err)
	}
	return s.void("put", func(cb kv.VoidCallback) { s.db.Put(key, v, cb) })
}

func (s *session) load(typ string) int {
	var pairs []kv.Pair
	scanner := bufio.NewScanner(s.config.Stdin)
	for line := 1; scanner.Scan(); line++ {
		text := scanner.Text()
		if text == "" {
			continue
		}
		key, raw, found := strings.Cut(text, "\t")
		p := kv.Pair{Key: key, Value: value.Absent}
		if found {
			v, err := parseValue(typ, raw)
			if err != nil {
				return s.fail("line %d: %v", line, err)
			}
			p.Value = v
		}
		pairs = append(pairs, p)
	}
	if err := scanner.Err(); err != nil {
		return s.fail("reading input: %v", err)
	}
	rc := s.void("load", func(cb kv.VoidCallback) { s.db.WriteMany(pairs, cb) })
	if rc == 0 {
		Fpf(s.config.Stderr, "%s %d pairs\n", color.GreenString("wrote"), len(pairs))
	}
	return rc
}

func (s *session) dump(from, to string) int {
	v, err := s.wait(func(done func(interface{}, error)) {
		s.db.Enumerate(from, to, func(e *kv.Enumerator, err error) { done(e, err) })
	})
	if err != nil {
		return s.fail("enumerate: %v", err)
	}
	e := v.(*kv.Enumerator)
	if !e.HasMore() {
		Fpf(s.config.Stdout, "_No pairs_\n")
		return 0
	}

	alignment := []tw.Align{tw.AlignNone, tw.AlignNone, tw.AlignNone}
	table := tablewriter.NewTable(s.config.Stdout,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header([]string{"key", "type", "value"})
	bad := 0
	for e.HasMore() {
		p, err := e.Next()
		if err != nil {
			bad++
			Fpf(s.config.Stderr, "%s %v\n", color.YellowString("skipped:"), err)
			continue
		}
		table.Append([]string{p.Key, p.Value.Kind().String(), formatValue(p.Value)})
	}
	table.Render()
	if bad > 0 {
		return 1
	}
	return 0
}

func parseValue(typ, text string) (value.Value, error) {
	switch typ {
	case "", "string":
		return value.String(text), nil
	case "int":
		i, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return value.Absent, fmt.Errorf("bad int %q", text)
		}
		return value.Int(i), nil
	case "float":
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return value.Absent, fmt.Errorf("bad float %q", text)
		}
		return value.Float(f), nil
	case "bool":
		b, err := strconv.ParseBool(text)
		if err != nil {
			return value.Absent, fmt.Errorf("bad bool %q", text)
		}
		return value.Bool(b), nil
	case "bytes":
		b, err := hex.DecodeString(text)
		if err != nil {
			return value.Absent, fmt.Errorf("bad hex bytes %q", text)
		}
		return value.Bytes(b), nil
	}
	return value.Absent, fmt.Errorf("unknown type %q", typ)
}

// formatValue renders a value for a table cell, escaping the characters
// that would break the markdown row.
func formatValue(v value.Value) string {
	s := v.String()
	if v.Kind() == value.KindString {
		s = strconv.Quote(s)
	}
	return strings.ReplaceAll(s, "|", `\|`)
}
