package btree

import (
	"errors"

	"go.uber.org/zap"

	"github.com/renatospessotto/Trabalho-arquivos/core/dberror"
	"github.com/renatospessotto/Trabalho-arquivos/core/storage_engine/record"
)

// ActiveScanner yields the active records of a heap file with their offsets.
type ActiveScanner interface {
	ScanActive(fn func(off int64, r *record.Record) error) error
}

// endOfInput is the id that marks the end of ingested data.
const endOfInput int32 = -1

var errStopBuild = errors.New("end of input record reached")

// BuildFromHeap creates a fresh index at path holding (id, offset) for every
// active record of heap, in scan order. The file is marked consistent only
// after the scan completes. Duplicate ids are skipped with a warning.
func BuildFromHeap(path string, heap ActiveScanner, logger *zap.Logger) (*BTree, error) {
	t, err := create(path, logger)
	if err != nil {
		return nil, err
	}

	var indexed, skipped int
	err = heap.ScanActive(func(off int64, r *record.Record) error {
		if r.ID == endOfInput {
			return errStopBuild
		}
		err := t.insert(r.ID, off)
		if errors.Is(err, dberror.ErrKeyAlreadyExists) {
			t.logger.Warn("Duplicate id skipped", zap.Int32("id", r.ID), zap.Int64("offset", off))
			skipped++
			return nil
		}
		if err == nil {
			indexed++
		}
		return err
	})
	if err != nil && !errors.Is(err, errStopBuild) {
		_ = t.Close()
		return nil, err
	}
	if err := t.commit(); err != nil {
		_ = t.Close()
		return nil, err
	}
	t.logger.Info("Index built", zap.String("path", path), zap.Int("indexed", indexed),
		zap.Int("skipped", skipped), zap.Int32("pages", t.header.NodeCount))
	return t, nil
}
