// Package heapfile stores variable-length attack records in a single file
// behind a fixed header. Removed slots are chained into a LIFO free list and
// reused first-fit by later inserts.
package heapfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/renatospessotto/Trabalho-arquivos/core/dberror"
	"github.com/renatospessotto/Trabalho-arquivos/core/storage_engine/record"
)

// Source feeds records to Build. Next returns io.EOF when exhausted.
type Source interface {
	Next() (*record.Record, error)
}

// Entry pairs a record with the byte offset of its slot.
type Entry struct {
	Offset int64
	Record *record.Record
}

// --- Store ---

type Store struct {
	path   string
	file   *os.File
	header Header
	logger *zap.Logger
	mu     sync.Mutex
}

// Create truncates path and writes an empty header with status '0'.
func Create(path string, logger *zap.Logger) (*Store, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: creating %s: %v", dberror.ErrFileUnavailable, path, err)
	}
	s := &Store{path: path, file: file, header: NewHeader(), logger: logger.Named("heapfile")}
	if err := s.writeHeader(); err != nil {
		_ = file.Close()
		return nil, err
	}
	return s, nil
}

// Open reads the header of an existing heap file. Status is checked per
// operation, so an inconsistent file can still be opened and inspected.
func Open(path string, logger *zap.Logger) (*Store, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", dberror.ErrFileUnavailable, path, err)
	}
	s := &Store{path: path, file: file, logger: logger.Named("heapfile")}
	buf := make([]byte, HeaderSize)
	if n, err := file.ReadAt(buf, 0); n < HeaderSize {
		_ = file.Close()
		return nil, fmt.Errorf("%w: heap header of %s: read %d bytes: %v", dberror.ErrShortRead, path, n, err)
	}
	if err := s.header.UnmarshalBinary(buf); err != nil {
		_ = file.Close()
		return nil, err
	}
	return s, nil
}

// Build creates path and appends every record produced by src in order.
// The file is marked consistent once src is exhausted.
func Build(path string, src Source, logger *zap.Logger) (*Store, error) {
	s, err := Create(path, logger)
	if err != nil {
		return nil, err
	}
	for {
		r, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		if _, err := s.appendSlot(r); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	if err := s.commit(); err != nil {
		_ = s.Close()
		return nil, err
	}
	s.logger.Info("Heap file built", zap.String("path", path), zap.Int32("records", s.header.ActiveCount))
	return s, nil
}

func (s *Store) Path() string { return s.path }

// Header returns a copy of the in-memory header.
func (s *Store) Header() Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.header
}

func (s *Store) Labels() record.Labels {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.header.Labels()
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	if err != nil {
		return fmt.Errorf("%w: closing %s: %v", dberror.ErrIO, s.path, err)
	}
	return nil
}

// --- low level I/O ---

func (s *Store) requireConsistent() error {
	if s.file == nil {
		return fmt.Errorf("%w: %s is closed", dberror.ErrFileUnavailable, s.path)
	}
	if s.header.Status != StatusConsistent {
		return fmt.Errorf("%w: %s", dberror.ErrInconsistentFile, s.path)
	}
	return nil
}

func (s *Store) writeAt(data []byte, off int64) error {
	n, err := s.file.WriteAt(data, off)
	if err != nil {
		return fmt.Errorf("%w: writing %d bytes at %d: %v", dberror.ErrIO, len(data), off, err)
	}
	if n != len(data) {
		return fmt.Errorf("%w: wrote %d of %d bytes at %d", dberror.ErrShortWrite, n, len(data), off)
	}
	return nil
}

func (s *Store) writeHeader() error {
	data, err := s.header.MarshalBinary()
	if err != nil {
		return err
	}
	if err := s.writeAt(data, 0); err != nil {
		return err
	}
	return s.file.Sync()
}

// beginWrite flags the file inconsistent on disk before the first mutation.
func (s *Store) beginWrite() error {
	s.header.Status = StatusInconsistent
	return s.writeAt([]byte{StatusInconsistent}, 0)
}

// commit rewrites the full header with status '1'.
func (s *Store) commit() error {
	s.header.Status = StatusConsistent
	return s.writeHeader()
}

// readSlot reads and decodes the slot starting at off.
func (s *Store) readSlot(off int64) (*record.Record, error) {
	if off < HeaderSize || off >= s.header.NextAppendOffset {
		return nil, fmt.Errorf("%w: offset %d outside [%d, %d)", dberror.ErrShortRead, off, HeaderSize, s.header.NextAppendOffset)
	}
	var head [record.SlotHeaderSize]byte
	if n, err := s.file.ReadAt(head[:], off); n < len(head) {
		return nil, fmt.Errorf("%w: slot header at %d: %v", dberror.ErrShortRead, off, err)
	}
	payload := int32(binary.LittleEndian.Uint32(head[1:]))
	end := off + record.SlotHeaderSize + int64(payload)
	if payload < 0 || end > s.header.NextAppendOffset {
		return nil, fmt.Errorf("%w: slot at %d declares %d payload bytes", dberror.ErrDeserialization, off, payload)
	}
	buf := make([]byte, record.SlotHeaderSize+int(payload))
	if n, err := s.file.ReadAt(buf, off); n < len(buf) {
		return nil, fmt.Errorf("%w: slot at %d: read %d of %d bytes: %v", dberror.ErrShortRead, off, n, len(buf), err)
	}
	r, _, err := record.Decode(buf)
	return r, err
}

// appendSlot writes r at the end of the data as a new active slot sized exactly.
func (s *Store) appendSlot(r *record.Record) (int64, error) {
	r.Removed = record.FlagActive
	r.Next = record.NoLink
	r.PayloadSize = record.Size(r)
	data := r.Encode()
	off := s.header.NextAppendOffset
	if err := s.writeAt(data, off); err != nil {
		return 0, err
	}
	s.header.NextAppendOffset += int64(len(data))
	s.header.ActiveCount++
	return off, nil
}

// --- reads ---

// ReadAt returns the record whose slot starts at off.
func (s *Store) ReadAt(off int64) (*record.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireConsistent(); err != nil {
		return nil, err
	}
	return s.readSlot(off)
}

// Scan visits every slot, active or removed, in file order. A non-nil error
// from fn stops the scan and is returned unchanged.
func (s *Store) Scan(fn func(off int64, r *record.Record) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireConsistent(); err != nil {
		return err
	}
	return s.scan(fn)
}

// ScanActive is Scan restricted to active slots.
func (s *Store) ScanActive(fn func(off int64, r *record.Record) error) error {
	return s.Scan(func(off int64, r *record.Record) error {
		if r.IsRemoved() {
			return nil
		}
		return fn(off, r)
	})
}

func (s *Store) scan(fn func(off int64, r *record.Record) error) error {
	for off := int64(HeaderSize); off < s.header.NextAppendOffset; {
		r, err := s.readSlot(off)
		if err != nil {
			return err
		}
		if err := fn(off, r); err != nil {
			return err
		}
		off += record.SlotHeaderSize + int64(r.PayloadSize)
	}
	return nil
}

// Find returns every active record matching c, in file order.
func (s *Store) Find(c record.Criteria) ([]Entry, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireConsistent(); err != nil {
		return nil, err
	}
	return s.collect(c)
}

func (s *Store) collect(c record.Criteria) ([]Entry, error) {
	var out []Entry
	err := s.scan(func(off int64, r *record.Record) error {
		if !r.IsRemoved() && c.Match(r) {
			out = append(out, Entry{Offset: off, Record: r})
		}
		return nil
	})
	return out, err
}
