package common

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/renatospessotto/Trabalho-arquivos/core/dberror"
)

// SnapshotFile is one copied file of a snapshot.
type SnapshotFile struct {
	Source string
	Copy   string
	SHA256 []byte
}

// Snapshot copies every existing file in paths into a fresh
// <dir>/snapshot-<uuid>/ directory. Missing files are skipped.
func Snapshot(ctx context.Context, dir string, paths []string, rateBytesPerSec int64, verify bool, logger *zap.Logger) (string, []SnapshotFile, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate snapshot id: %w", err)
	}
	target := filepath.Join(dir, "snapshot-"+id.String())
	if err := os.MkdirAll(target, 0755); err != nil {
		return "", nil, fmt.Errorf("%w: create %s: %v", dberror.ErrFileUnavailable, target, err)
	}

	var files []SnapshotFile
	for _, src := range paths {
		if _, err := os.Stat(src); os.IsNotExist(err) {
			logger.Warn("Snapshot source missing, skipped", zap.String("path", src))
			continue
		}
		dst := filepath.Join(target, filepath.Base(src))
		digest, err := CopyThrottled(ctx, src, dst, rateBytesPerSec, verify)
		if err != nil {
			return target, files, err
		}
		logger.Info("Snapshot file copied", zap.String("source", src), zap.String("copy", dst),
			zap.String("sha256", fmt.Sprintf("%x", digest)))
		files = append(files, SnapshotFile{Source: src, Copy: dst, SHA256: digest})
	}
	return target, files, nil
}
