// Package common holds file helpers shared by the heap and index files.
package common

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/time/rate"

	"github.com/renatospessotto/Trabalho-arquivos/core/dberror"
)

// chunkSize: size of each read/write chunk
const chunkSize = 1024 * 1024

var bufPool = sync.Pool{
	New: func() interface{} { return make([]byte, chunkSize) },
}

// CopyThrottled copies srcPath to dstPath chunk by chunk, limited to
// rateBytesPerSec when positive. It returns the sha256 of the copied bytes.
// With verify set, dstPath is re-read and must hash to the same digest.
func CopyThrottled(ctx context.Context, srcPath, dstPath string, rateBytesPerSec int64, verify bool) ([]byte, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open src %s: %v", dberror.ErrFileUnavailable, srcPath, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: open dst %s: %v", dberror.ErrFileUnavailable, dstPath, err)
	}
	defer dst.Close()

	var limiter *rate.Limiter
	if rateBytesPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(rateBytesPerSec), chunkSize) // burst = chunkSize
	}

	sum := sha256.New()
	var readOff int64
	for {
		buf := bufPool.Get().([]byte)
		n, rerr := src.ReadAt(buf[:chunkSize], readOff)
		if n > 0 {
			if limiter != nil {
				if err := limiter.WaitN(ctx, n); err != nil {
					bufPool.Put(buf)
					return nil, fmt.Errorf("rate limiter error: %w", err)
				}
			}
			if _, werr := dst.Write(buf[:n]); werr != nil {
				bufPool.Put(buf)
				return nil, fmt.Errorf("%w: write %s: %v", dberror.ErrIO, dstPath, werr)
			}
			sum.Write(buf[:n])
			readOff += int64(n)
		}
		bufPool.Put(buf)

		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				break
			}
			return nil, fmt.Errorf("%w: read %s: %v", dberror.ErrIO, srcPath, rerr)
		}
	}

	if err := dst.Sync(); err != nil {
		return nil, fmt.Errorf("%w: sync %s: %v", dberror.ErrIO, dstPath, err)
	}
	digest := sum.Sum(nil)
	if !verify {
		return digest, nil
	}

	got, err := FileDigest(dstPath)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(got, digest) {
		return nil, fmt.Errorf("%w: %s digest %x, source %x", dberror.ErrIO, dstPath, got, digest)
	}
	return digest, nil
}

// FileDigest returns the sha256 of the file at path.
func FileDigest(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", dberror.ErrFileUnavailable, path, err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", dberror.ErrIO, path, err)
	}
	return h.Sum(nil), nil
}
