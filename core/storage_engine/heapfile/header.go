package heapfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/renatospessotto/Trabalho-arquivos/core/dberror"
	"github.com/renatospessotto/Trabalho-arquivos/core/storage_engine/record"
)

const (
	// HeaderSize is the fixed size of the heap file header. Records start here.
	HeaderSize = 276

	StatusInconsistent byte = '0'
	StatusConsistent   byte = '1'

	descriptorSize = HeaderSize - (1 + 8 + 8 + 4 + 4)
)

// descriptorLayout lists the immutable descriptive text of the header in
// on-disk order. Each entry is truncated or zero-padded to its width.
var descriptorLayout = []struct {
	text  string
	width int
}{
	{"IDENTIFICADOR DO ATAQUE", 23},
	{"ANO EM QUE O ATAQUE OCORREU", 27},
	{"PREJUIZO CAUSADO PELO ATAQUE", 28},
	{"1", 1},
	{"PAIS ONDE OCORREU O ATAQUE", 26},
	{"2", 1},
	{"TIPO DE AMEACA A SEGURANCA CIBERNETICA", 38},
	{"3", 1},
	{"SETOR DA INDUSTRIA QUE SOFREU O ATAQUE", 38},
	{"4", 1},
	{"ESTRATEGIA DE DEFESA CIBERNETICA EMPREGADA PARA RESOLVER O PROBLEMA", 67},
}

// Header is the on-disk heap file header. binary.Write packs the fields with
// no padding, so the encoded size is exactly HeaderSize bytes.
type Header struct {
	Status           byte
	FreeListHead     int64 // offset of the most recently removed slot, -1 if none
	NextAppendOffset int64
	ActiveCount      int32
	RemovedCount     int32
	Descriptors      [descriptorSize]byte
}

// NewHeader returns the header of an empty, not yet consistent file.
func NewHeader() Header {
	h := Header{
		Status:           StatusInconsistent,
		FreeListHead:     record.NoLink,
		NextAppendOffset: HeaderSize,
	}
	off := 0
	for _, d := range descriptorLayout {
		copy(h.Descriptors[off:off+d.width], d.text)
		off += d.width
	}
	return h
}

func (h *Header) MarshalBinary() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize))
	if err := binary.Write(buf, binary.LittleEndian, h); err != nil {
		return nil, fmt.Errorf("%w: heap header: %v", dberror.ErrSerialization, err)
	}
	return buf.Bytes(), nil
}

func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("%w: heap header needs %d bytes, got %d", dberror.ErrShortRead, HeaderSize, len(data))
	}
	if err := binary.Read(bytes.NewReader(data[:HeaderSize]), binary.LittleEndian, h); err != nil {
		return fmt.Errorf("%w: heap header: %v", dberror.ErrDeserialization, err)
	}
	return nil
}

// Labels extracts the field descriptions used when printing records.
func (h *Header) Labels() record.Labels {
	texts := make([]string, 0, len(descriptorLayout))
	off := 0
	for _, d := range descriptorLayout {
		texts = append(texts, strings.TrimRight(string(h.Descriptors[off:off+d.width]), "\x00"))
		off += d.width
	}
	return record.Labels{
		ID:              texts[0],
		Year:            texts[1],
		FinancialLoss:   texts[2],
		Country:         texts[4],
		AttackType:      texts[6],
		TargetIndustry:  texts[8],
		DefenseStrategy: texts[10],
	}
}
