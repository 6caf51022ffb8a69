package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/renatospessotto/Trabalho-arquivos/config"
	"github.com/renatospessotto/Trabalho-arquivos/core/dberror"
	"github.com/renatospessotto/Trabalho-arquivos/core/indexing/btree"
	"github.com/renatospessotto/Trabalho-arquivos/core/indexmanager"
	"github.com/renatospessotto/Trabalho-arquivos/core/ingest"
	"github.com/renatospessotto/Trabalho-arquivos/core/storage_engine/common"
	"github.com/renatospessotto/Trabalho-arquivos/core/storage_engine/heapfile"
	"github.com/renatospessotto/Trabalho-arquivos/core/storage_engine/record"
	"github.com/renatospessotto/Trabalho-arquivos/internal/console"
	"github.com/renatospessotto/Trabalho-arquivos/pkg/telemetry"
)

const (
	failureMessage  = "Falha no processamento do arquivo."
	notFoundMessage = "Registro inexistente."
	querySeparator  = "**********"
)

// handler runs one command against already tokenized arguments.
type handler func(ctx context.Context, args []string) error

// app holds the files and collaborators shared by every command of a process.
type app struct {
	cfg    config.Config
	logger *zap.Logger
	tel    *telemetry.Telemetry
	out    io.Writer
	mgr    *indexmanager.Manager
}

func newApp(cfg config.Config, logger *zap.Logger, tel *telemetry.Telemetry, out io.Writer) *app {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &app{cfg: cfg, logger: logger, tel: tel, out: out}
}

func (a *app) handlers() map[string]handler {
	return map[string]handler{
		"build":    a.build,
		"list":     a.list,
		"find":     a.find,
		"delete":   a.delete,
		"insert":   a.insert,
		"update":   a.update,
		"index":    a.index,
		"freelist": a.freeList,
		"stats":    a.stats,
		"backup":   a.backup,
	}
}

// run executes h and turns a failure into the user-facing diagnostic.
func (a *app) run(ctx context.Context, name string, h handler, args []string) error {
	err := h(ctx, args)
	if err != nil {
		a.logger.Error("Command failed", zap.String("command", name), zap.Strings("args", args), zap.Error(err))
		if isUsage(err) {
			fmt.Fprintln(a.out, err)
		} else {
			fmt.Fprintln(a.out, failureMessage)
		}
	}
	return err
}

func (a *app) close() error {
	if a.mgr == nil {
		return nil
	}
	err := a.mgr.Close()
	a.mgr = nil
	return err
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// manager opens the heap on first use and attaches the index when its file exists.
func (a *app) manager() (*indexmanager.Manager, error) {
	return a.open(true)
}

func (a *app) open(attachIndex bool) (*indexmanager.Manager, error) {
	if a.mgr != nil {
		return a.mgr, nil
	}
	heap, err := heapfile.Open(a.cfg.DataFile, a.logger)
	if err != nil {
		return nil, err
	}
	var index *btree.BTree
	if attachIndex && fileExists(a.cfg.IndexFile) {
		index, err = btree.Open(a.cfg.IndexFile, a.logger)
		if err != nil {
			_ = heap.Close()
			return nil, err
		}
	}
	mgr, err := indexmanager.New(heap, index, a.tel, a.logger)
	if err != nil {
		_ = heap.Close()
		if index != nil {
			_ = index.Close()
		}
		return nil, err
	}
	a.mgr = mgr
	return mgr, nil
}

func (a *app) printDigest(path string) error {
	digest, err := common.FileDigest(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%x  %s\n", digest, path)
	return nil
}

func (a *app) printEntries(mgr *indexmanager.Manager, entries []heapfile.Entry) {
	labels := mgr.Heap().Labels()
	for _, e := range entries {
		fmt.Fprint(a.out, record.Format(e.Record, labels))
	}
}

// --- Heap commands ---

// build recreates the data file from a CSV file. An existing index is
// rebuilt over the new data.
func (a *app) build(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: build takes the CSV path", dberror.ErrInvalidCriteria)
	}
	if err := a.close(); err != nil {
		return err
	}
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("%w: %v", dberror.ErrFileUnavailable, err)
	}
	defer f.Close()

	heap, err := heapfile.Build(a.cfg.DataFile, ingest.NewReader(f, a.logger), a.logger)
	if err != nil {
		return err
	}
	mgr, err := indexmanager.New(heap, nil, a.tel, a.logger)
	if err != nil {
		_ = heap.Close()
		return err
	}
	a.mgr = mgr
	if fileExists(a.cfg.IndexFile) {
		if err := mgr.BuildIndex(ctx, a.cfg.IndexFile); err != nil {
			return err
		}
	}
	return a.printDigest(a.cfg.DataFile)
}

func (a *app) list(ctx context.Context, args []string) error {
	mgr, err := a.manager()
	if err != nil {
		return err
	}
	entries, err := mgr.Find(ctx, nil)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(a.out, notFoundMessage)
		return nil
	}
	a.printEntries(mgr, entries)
	return nil
}

// find answers one or more criteria groups, each followed by a separator line.
func (a *app) find(ctx context.Context, args []string) error {
	mgr, err := a.manager()
	if err != nil {
		return err
	}
	for len(args) > 0 {
		var c record.Criteria
		c, args, err = console.ParseCriteria(args)
		if err != nil {
			return err
		}
		entries, err := mgr.Find(ctx, c)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintf(a.out, "%s\n\n", notFoundMessage)
		}
		a.printEntries(mgr, entries)
		fmt.Fprintln(a.out, querySeparator)
	}
	return nil
}

func (a *app) delete(ctx context.Context, args []string) error {
	mgr, err := a.manager()
	if err != nil {
		return err
	}
	for len(args) > 0 {
		var c record.Criteria
		c, args, err = console.ParseCriteria(args)
		if err != nil {
			return err
		}
		removed, err := mgr.Delete(ctx, c)
		if err != nil {
			return err
		}
		a.logger.Info("Records removed", zap.Int("count", len(removed)))
	}
	return a.printDigest(a.cfg.DataFile)
}

func (a *app) insert(ctx context.Context, args []string) error {
	mgr, err := a.manager()
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return fmt.Errorf("%w: insert needs a record", dberror.ErrInvalidCriteria)
	}
	for len(args) > 0 {
		var r *record.Record
		r, args, err = console.ParseRecord(args)
		if err != nil {
			return err
		}
		off, err := mgr.Insert(ctx, r)
		if err != nil {
			return err
		}
		a.logger.Info("Record inserted", zap.Int32("id", r.ID), zap.Int64("offset", off))
	}
	return a.printDigest(a.cfg.DataFile)
}

func (a *app) update(ctx context.Context, args []string) error {
	mgr, err := a.manager()
	if err != nil {
		return err
	}
	for len(args) > 0 {
		var (
			c   record.Criteria
			set record.Assignments
		)
		c, args, err = console.ParseCriteria(args)
		if err != nil {
			return err
		}
		set, args, err = console.ParseAssignments(args)
		if err != nil {
			return err
		}
		changes, err := mgr.Update(ctx, c, set)
		if err != nil {
			return err
		}
		a.logger.Info("Records updated", zap.Int("count", len(changes)))
	}
	return a.printDigest(a.cfg.DataFile)
}

func (a *app) freeList(ctx context.Context, args []string) error {
	mgr, err := a.manager()
	if err != nil {
		return err
	}
	slots, err := mgr.Heap().FreeList()
	if err != nil {
		return err
	}
	if len(slots) == 0 {
		fmt.Fprintln(a.out, "free list empty")
		return nil
	}
	for _, s := range slots {
		fmt.Fprintf(a.out, "offset=%d capacity=%d id=%d\n", s.Offset, s.Capacity, s.ID)
	}
	return nil
}

func (a *app) stats(ctx context.Context, args []string) error {
	mgr, err := a.manager()
	if err != nil {
		return err
	}
	h := mgr.Heap().Header()
	fmt.Fprintf(a.out, "data %s: active=%d removed=%d free_head=%d next_append=%d\n",
		a.cfg.DataFile, h.ActiveCount, h.RemovedCount, h.FreeListHead, h.NextAppendOffset)
	if index := mgr.Index(); index != nil {
		ih := index.Header()
		fmt.Fprintf(a.out, "index %s: root=%d next_rrn=%d pages=%d\n",
			a.cfg.IndexFile, ih.RootRRN, ih.NextRRN, ih.NodeCount)
	}
	return a.tel.WriteMetrics(a.out)
}

func (a *app) backup(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: backup takes the target directory", dberror.ErrInvalidCriteria)
	}
	// Copies are taken from closed files; the next command reopens them.
	if err := a.close(); err != nil {
		return err
	}
	target, files, err := common.Snapshot(ctx, args[0], []string{a.cfg.DataFile, a.cfg.IndexFile},
		a.cfg.Backup.RateBytesPerSec, a.cfg.Backup.Verify, a.logger)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, target)
	for _, f := range files {
		fmt.Fprintf(a.out, "%x  %s\n", f.SHA256, f.Copy)
	}
	return nil
}

// --- Index commands ---

func (a *app) index(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: index needs build, get, check or dump", dberror.ErrInvalidCriteria)
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "build":
		return a.indexBuild(ctx, rest)
	case "get":
		return a.indexGet(ctx, rest)
	case "check":
		return a.indexCheck(ctx, rest)
	case "dump":
		return a.indexDump(ctx, rest)
	}
	return fmt.Errorf("%w: unknown index command %q", dberror.ErrInvalidCriteria, sub)
}

func (a *app) indexBuild(ctx context.Context, args []string) error {
	// A stale or torn index must not block its own rebuild.
	mgr, err := a.open(false)
	if err != nil {
		return err
	}
	if err := mgr.BuildIndex(ctx, a.cfg.IndexFile); err != nil {
		return err
	}
	return a.printDigest(a.cfg.IndexFile)
}

func (a *app) indexGet(ctx context.Context, args []string) error {
	mgr, err := a.manager()
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return fmt.Errorf("%w: index get needs an id", dberror.ErrInvalidCriteria)
	}
	for _, arg := range args {
		id, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("%w: id %q is not a number", dberror.ErrInvalidCriteria, arg)
		}
		entry, found, err := mgr.IndexSearch(ctx, int32(id))
		if err != nil {
			return err
		}
		if !found {
			fmt.Fprintln(a.out, notFoundMessage)
			continue
		}
		a.printEntries(mgr, []heapfile.Entry{entry})
	}
	return nil
}

func (a *app) attachedIndex() (*btree.BTree, error) {
	mgr, err := a.manager()
	if err != nil {
		return nil, err
	}
	index := mgr.Index()
	if index == nil {
		return nil, fmt.Errorf("%w: %s", dberror.ErrFileUnavailable, a.cfg.IndexFile)
	}
	return index, nil
}

func (a *app) indexCheck(ctx context.Context, args []string) error {
	index, err := a.attachedIndex()
	if err != nil {
		return err
	}
	if err := index.Verify(); err != nil {
		return err
	}
	var keys int
	if err := index.Walk(func(int32, int64) error { keys++; return nil }); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "index ok: %d keys in %d pages\n", keys, index.Header().NodeCount)
	return nil
}

func (a *app) indexDump(ctx context.Context, args []string) error {
	index, err := a.attachedIndex()
	if err != nil {
		return err
	}
	h := index.Header()
	fmt.Fprintf(a.out, "status=%c root=%d next_rrn=%d pages=%d\n", h.Status, h.RootRRN, h.NextRRN, h.NodeCount)
	pages, err := index.Dump()
	if err != nil {
		return err
	}
	for _, p := range pages {
		fmt.Fprintf(a.out, "rrn=%d kind=%d keys=%v offsets=%v children=%v\n",
			p.RRN, p.Kind, p.Keys, p.Offsets, p.Children)
	}
	return nil
}

// isUsage reports whether err came from malformed command input.
func isUsage(err error) bool {
	return errors.Is(err, dberror.ErrInvalidCriteria)
}
