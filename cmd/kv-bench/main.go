package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"
	"runtime/pprof"
	"strings"

	"go.uber.org/zap"

	"github.com/tchajed/specious-kv/env"
	"github.com/tchajed/specious-kv/kv"
	"github.com/tchajed/specious-kv/value"
)

const dbPath = "benchmark.db"

func showNum(i int) string {
	if i > 2000 {
		if i%1000 == 0 {
			return fmt.Sprintf("%dK", i/1000)
		}
		return fmt.Sprintf("%.1fK", float64(i)/1000)
	}
	return fmt.Sprintf("%d", i)
}

var benchmarks = flag.String("benchmarks", "fillseq,readseq,init,fillrandom,readrandom,writemany,enumerate", "comma-separated list of benchmarks to run")
var engineName = flag.String("engine", "bolt", "storage engine to use (bolt|badger|log|mem)")
var numEntries = flag.Int("entries", 100000, "number of entries to put in database")
var numReads = flag.Int("reads", -1, "number of reads to perform (-1 to copy entries)")
var batchSize = flag.Int("batch", 1000, "pairs per WriteMany batch")
var inflight = flag.Int("inflight", 256, "maximum operations in flight")
var workers = flag.Int("workers", 0, "worker goroutines (0 for GOMAXPROCS)")
var deleteDatabase = flag.Bool("delete-db", false, "delete database directory on completion")
var verbose = flag.Bool("v", false, "log debug information")
var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var memprofile = flag.String("memprofile", "", "write memory cpu profile to `file`")

func writeMemProfile(fname string) {
	f, err := os.Create(fname)
	if err != nil {
		log.Fatal("could not create memory profile: ", err)
	}
	runtime.GC() // get up-to-date statistics
	if err := pprof.WriteHeapProfile(f); err != nil {
		log.Fatal("could not write memory profile: ", err)
	}
	f.Close()
}

// openDb opens the benchmark store, waiting for the callback.
func openDb(svc *kv.Service) *kv.Database {
	type result struct {
		db  *kv.Database
		err error
	}
	ch := make(chan result, 1)
	svc.OpenOrCreate(dbPath, "bench", env.Discard, func(db *kv.Database, err error) {
		ch <- result{db, err}
	})
	r := <-ch
	if r.err != nil {
		log.Fatal("could not open database: ", r.err)
	}
	return r.db
}

// put submits a put and accounts for it when it completes.
func put(db *kv.Database, s BenchState, key string, val []byte) {
	release := s.Acquire()
	db.Put(key, value.Bytes(val), func(err error) {
		defer release()
		if err != nil {
			s.Failed()
			return
		}
		s.FinishedSingleOp(len(key) + len(val))
	})
}

func get(db *kv.Database, s BenchState, key string) {
	release := s.Acquire()
	db.Get(key, value.Absent, func(v value.Value, err error) {
		defer release()
		if err != nil {
			s.Failed()
			return
		}
		if !v.IsAbsent() {
			s.FinishedSingleOp(len(key) + len(v.AsBytes()))
		}
	})
}

func writeMany(db *kv.Database, s BenchState, pairs []kv.Pair) {
	release := s.Acquire()
	db.WriteMany(pairs, func(err error) {
		defer release()
		if err != nil {
			s.Failed()
			return
		}
		for _, p := range pairs {
			s.FinishedSingleOp(len(p.Key) + len(p.Value.AsBytes()))
		}
	})
}

func runBenchmarks(svc *kv.Service, db *kv.Database) {
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
	}
	if *memprofile != "" {
		defer writeMemProfile(*memprofile)
	}

	benchmarkNames := strings.Split(*benchmarks, ",")
	for _, name := range benchmarkNames {
		s := NewBench(name, *inflight)
		switch name {
		case "fillseq":
			for i := 0; i < *numEntries; i++ {
				put(db, s, s.NextKey(), s.Value())
			}
		case "fillrandom":
			for i := 0; i < *numEntries; i++ {
				put(db, s, s.RandomKey(*numEntries), s.Value())
			}
		case "writemany":
			var pairs []kv.Pair
			for i := 0; i < *numEntries; i++ {
				pairs = append(pairs, kv.Pair{Key: s.NextKey(), Value: value.Bytes(s.Value())})
				if len(pairs) == *batchSize {
					writeMany(db, s, pairs)
					pairs = nil
				}
			}
			if len(pairs) > 0 {
				writeMany(db, s, pairs)
			}
		case "readseq":
			for i := 0; i < *numReads; i++ {
				get(db, s, s.NextKey())
			}
		case "readrandom":
			// read in a different random order from random writes
			s.ReSeed(1)
			for i := 0; i < *numReads; i++ {
				get(db, s, s.RandomKey(*numEntries))
			}
		case "enumerate":
			release := s.Acquire()
			db.Enumerate("", "", func(e *kv.Enumerator, err error) {
				defer release()
				if err != nil {
					s.Failed()
					return
				}
				for e.HasMore() {
					p, err := e.Next()
					if err != nil {
						s.Failed()
						continue
					}
					s.FinishedSingleOp(len(p.Key) + len(p.Value.AsBytes()))
				}
			})
		case "init":
			db.Release()
			db = openDb(svc)
			s.FinishedSingleOp(0)
		default:
			fmt.Fprintf(os.Stderr, "unknown benchmark %s\n", name)
			os.Exit(1)
		}
		s.Report()
	}
	db.Release()
}

func main() {
	flag.Parse()

	if len(flag.Args()) > 0 {
		fmt.Fprintln(os.Stderr, "extra command line arguments", flag.Args())
		flag.Usage()
		os.Exit(1)
	}

	if *numReads == -1 {
		*numReads = *numEntries
	}

	opts, err := kv.EngineByName(*engineName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := zap.NewNop()
	if *verbose {
		logger, _ = zap.NewDevelopment()
	}
	opts = append(opts, kv.WithLogger(logger), kv.WithWorkers(*workers))

	totalBytes := float64(*numEntries * (16 + valueSize))
	for _, info := range []struct {
		Key   string
		Value string
	}{
		{"engine", *engineName},
		{"entries", showNum(*numEntries)},
		{"batch size", showNum(*batchSize)},
		{"total data (MB)", fmt.Sprintf("%.1f", totalBytes/(1024*1024))},
	} {
		fmt.Printf("%20s %s\n", info.Key+":", info.Value)
	}
	fmt.Println(strings.Repeat("-", 30))

	os.RemoveAll(dbPath)
	svc := kv.NewService(opts...)
	db := openDb(svc)
	runBenchmarks(svc, db)
	if err := svc.Close(); err != nil {
		log.Fatal(err)
	}

	if *deleteDatabase {
		os.RemoveAll(dbPath)
	}
}
