package btree

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/renatospessotto/Trabalho-arquivos/core/dberror"
)

const (
	// HeaderSize is the size of the index file header; page 0 starts here.
	HeaderSize = 44

	StatusInconsistent byte = '0'
	StatusConsistent   byte = '1'

	headerPadByte = '$'
)

// Header is the on-disk index file header. binary.Write packs the fields
// with no padding, so the encoded size is exactly HeaderSize bytes.
type Header struct {
	Status    byte
	RootRRN   int32
	NextRRN   int32
	NodeCount int32
	Padding   [HeaderSize - 13]byte
}

func newHeader() Header {
	h := Header{Status: StatusInconsistent, RootRRN: NilRRN}
	for i := range h.Padding {
		h.Padding[i] = headerPadByte
	}
	return h
}

// --- diskManager ---

// diskManager performs page-granular I/O on the index file. Page k lives at
// HeaderSize + k*PageSize.
type diskManager struct {
	path string
	file *os.File
}

func openDiskManager(path string, create bool) (*diskManager, error) {
	flags := os.O_RDWR
	if create {
		flags |= os.O_CREATE | os.O_TRUNC
	}
	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: opening index %s: %v", dberror.ErrFileUnavailable, path, err)
	}
	return &diskManager{path: path, file: file}, nil
}

func pageOffset(rrn int32) int64 {
	return HeaderSize + int64(rrn)*PageSize
}

func (dm *diskManager) writeAt(data []byte, off int64) error {
	n, err := dm.file.WriteAt(data, off)
	if err != nil {
		return fmt.Errorf("%w: writing %d bytes at %d: %v", dberror.ErrIO, len(data), off, err)
	}
	if n != len(data) {
		return fmt.Errorf("%w: wrote %d of %d bytes at %d", dberror.ErrShortWrite, n, len(data), off)
	}
	return nil
}

func (dm *diskManager) readHeader() (Header, error) {
	var h Header
	buf := make([]byte, HeaderSize)
	if n, err := dm.file.ReadAt(buf, 0); n < HeaderSize {
		return h, fmt.Errorf("%w: index header of %s: read %d bytes: %v", dberror.ErrShortRead, dm.path, n, err)
	}
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &h); err != nil {
		return h, fmt.Errorf("%w: index header: %v", dberror.ErrDeserialization, err)
	}
	return h, nil
}

func (dm *diskManager) writeHeader(h *Header) error {
	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize))
	if err := binary.Write(buf, binary.LittleEndian, h); err != nil {
		return fmt.Errorf("%w: index header: %v", dberror.ErrSerialization, err)
	}
	return dm.writeAt(buf.Bytes(), 0)
}

func (dm *diskManager) writeStatus(status byte) error {
	return dm.writeAt([]byte{status}, 0)
}

func (dm *diskManager) readPage(rrn int32) (*Page, error) {
	if rrn < 0 {
		return nil, fmt.Errorf("%w: page rrn %d", dberror.ErrRecordLinkCorrupt, rrn)
	}
	buf := make([]byte, PageSize)
	if n, err := dm.file.ReadAt(buf, pageOffset(rrn)); n < PageSize {
		return nil, fmt.Errorf("%w: page %d: read %d bytes: %v", dberror.ErrShortRead, rrn, n, err)
	}
	p := &Page{RRN: rrn}
	if err := p.UnmarshalBinary(buf); err != nil {
		return nil, err
	}
	return p, nil
}

func (dm *diskManager) writePage(p *Page) error {
	data, err := p.MarshalBinary()
	if err != nil {
		return err
	}
	return dm.writeAt(data, pageOffset(p.RRN))
}

func (dm *diskManager) sync() error {
	if err := dm.file.Sync(); err != nil {
		return fmt.Errorf("%w: syncing %s: %v", dberror.ErrIO, dm.path, err)
	}
	return nil
}

func (dm *diskManager) close() error {
	if err := dm.file.Close(); err != nil {
		return fmt.Errorf("%w: closing %s: %v", dberror.ErrIO, dm.path, err)
	}
	return nil
}
