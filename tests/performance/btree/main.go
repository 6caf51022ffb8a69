// Command btree drives concurrent inserts, searches and deletes against a
// fresh index file and reports timings.
package main

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/renatospessotto/Trabalho-arquivos/core/indexing/btree"
	"github.com/renatospessotto/Trabalho-arquivos/pkg/logger"
)

type options struct {
	dir      string
	from, to int
	workers  int
	delete   bool
	logLevel string
}

func main() {
	var opts options
	pflag.StringVar(&opts.dir, "dir", filepath.Join(os.TempDir(), "attackdb-perf"), "directory for the index file")
	pflag.IntVar(&opts.from, "from", 9000, "first id")
	pflag.IntVar(&opts.to, "to", 11000, "id after the last one")
	pflag.IntVar(&opts.workers, "workers", 20, "concurrent callers")
	pflag.BoolVar(&opts.delete, "delete", true, "delete every other id after searching")
	pflag.StringVar(&opts.logLevel, "log-level", "info", "log level")
	pflag.Parse()

	zlogger, err := logger.New(logger.Config{Level: opts.logLevel})
	if err != nil {
		os.Exit(1)
	}
	defer zlogger.Sync()

	if err := os.MkdirAll(opts.dir, 0755); err != nil {
		zlogger.Fatal("failed to create directory", zap.String("dir", opts.dir), zap.Error(err))
	}
	path := filepath.Join(opts.dir, "perf.idx")
	tree, err := btree.Create(path, zlogger)
	if err != nil {
		zlogger.Fatal("failed to create index", zap.String("path", path), zap.Error(err))
	}
	defer tree.Close()

	write(tree, opts, zlogger)
	read(tree, opts, zlogger)
	if opts.delete {
		remove(tree, opts, zlogger)
		if err := tree.Verify(); err != nil {
			zlogger.Error("index invariants broken after deletes", zap.Error(err))
		}
	}
	h := tree.Header()
	zlogger.Info("done", zap.Int32("pages", h.NodeCount), zap.Int32("root", h.RootRRN))
}

// fanOut calls fn for every id in [from, to) with at most workers in flight
// and returns the number of calls that reported failure.
func fanOut(opts options, fn func(id int32) bool) int64 {
	var (
		wg       sync.WaitGroup
		failures atomic.Int64
	)
	sem := make(chan struct{}, opts.workers)
	for i := opts.from; i < opts.to; i++ {
		sem <- struct{}{}
		wg.Add(1)
		go func(id int32) {
			defer wg.Done()
			defer func() { <-sem }()
			if !fn(id) {
				failures.Add(1)
			}
		}(int32(i))
	}
	wg.Wait()
	return failures.Load()
}

// offsetFor derives a recognisable offset from an id.
func offsetFor(id int32) int64 { return int64(id) * 10 }

func write(tree *btree.BTree, opts options, log *zap.Logger) {
	start := time.Now()
	failed := fanOut(opts, func(id int32) bool {
		if err := tree.Insert(id, offsetFor(id)); err != nil {
			log.Warn("insert failed", zap.Int32("id", id), zap.Error(err))
			return false
		}
		return true
	})
	log.Info("inserts finished", zap.Int("ids", opts.to-opts.from), zap.Int64("failed", failed),
		zap.Duration("elapsed", time.Since(start)))
}

func read(tree *btree.BTree, opts options, log *zap.Logger) {
	start := time.Now()
	failed := fanOut(opts, func(id int32) bool {
		off, found, err := tree.Search(id)
		switch {
		case err != nil:
			log.Warn("search failed", zap.Int32("id", id), zap.Error(err))
			return false
		case !found:
			log.Warn("id not found", zap.Int32("id", id))
			return false
		case off != offsetFor(id):
			log.Warn("offset mismatch", zap.Int32("id", id), zap.Int64("offset", off))
			return false
		}
		return true
	})
	log.Info("searches finished", zap.Int("ids", opts.to-opts.from), zap.Int64("failed", failed),
		zap.Duration("elapsed", time.Since(start)))
}

func remove(tree *btree.BTree, opts options, log *zap.Logger) {
	start := time.Now()
	failed := fanOut(opts, func(id int32) bool {
		if id%2 == 1 {
			return true
		}
		ok, err := tree.Delete(id)
		if err != nil || !ok {
			log.Warn("delete failed", zap.Int32("id", id), zap.Bool("found", ok), zap.Error(err))
			return false
		}
		return true
	})
	log.Info("deletes finished", zap.Int64("failed", failed), zap.Duration("elapsed", time.Since(start)))
}
