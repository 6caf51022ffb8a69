// Package record implements the on-disk encoding of a single attack record
// and the criteria used to select and modify records.
//
// Slot layout (all integers little-endian):
//
//	Offset  Size  Field
//	──────────────────────────────────────────────────────
//	0       1     removed        '0' active, '1' removed
//	1       4     payloadSize    int32, bytes that follow this field
//	5       8     next           int64, free-list link (-1 when unused)
//	13      4     id             int32
//	17      4     year           int32, -1 when absent
//	21      4     financialLoss  float32, -1.0 when absent
//	25      var   '1'country|  '2'attackType|  '3'targetIndustry|  '4'defenseStrategy|
//	        var   '$' trash up to 5+payloadSize
//
// Absent text fields take no bytes at all.
package record

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/renatospessotto/Trabalho-arquivos/core/dberror"
)

const (
	FlagActive  byte = '0'
	FlagRemoved byte = '1'

	NoYear          int32   = -1
	NoFinancialLoss float32 = -1.0
	NoLink          int64   = -1

	// SlotHeaderSize covers the removed flag and the payloadSize field.
	SlotHeaderSize = 1 + 4
	// minDecodeSize covers removed, payloadSize, next and id.
	minDecodeSize = SlotHeaderSize + 8 + 4
	fixedSize     = 4 + 8 + 4 + 4 + 4
)

// Record is one attack report as stored in the heap file.
type Record struct {
	Removed       byte
	PayloadSize   int32
	Next          int64
	ID            int32
	Year          int32
	FinancialLoss float32

	Country         string
	AttackType      string
	TargetIndustry  string
	DefenseStrategy string
}

// New builds an active record whose payload size equals its encoded size.
func New(id, year int32, financialLoss float32, country, attackType, targetIndustry, defenseStrategy string) *Record {
	r := &Record{
		Removed:         FlagActive,
		Next:            NoLink,
		ID:              id,
		Year:            year,
		FinancialLoss:   financialLoss,
		Country:         country,
		AttackType:      attackType,
		TargetIndustry:  targetIndustry,
		DefenseStrategy: defenseStrategy,
	}
	r.PayloadSize = Size(r)
	return r
}

func (r *Record) IsRemoved() bool { return r.Removed == FlagRemoved }

// Clone returns a copy of r.
func (r *Record) Clone() *Record {
	c := *r
	return &c
}

// Size computes the payload bytes r needs: every fixed field after the
// removed flag, plus marker and delimiter for each present text field, minus
// the payloadSize field itself.
func Size(r *Record) int32 {
	var variable int32
	for _, f := range r.textFields() {
		if f != "" {
			variable += int32(len(f)) + 2
		}
	}
	return fixedSize + variable - 4
}

func (r *Record) textFields() [4]string {
	return [4]string{r.Country, r.AttackType, r.TargetIndustry, r.DefenseStrategy}
}

// Encode serializes r using its current PayloadSize, without trash.
func (r *Record) Encode() []byte {
	fixed := make([]byte, 0, SlotHeaderSize+int(Size(r)))
	fixed = append(fixed, r.Removed)
	fixed = binary.LittleEndian.AppendUint32(fixed, uint32(r.PayloadSize))
	fixed = binary.LittleEndian.AppendUint64(fixed, uint64(r.Next))
	fixed = binary.LittleEndian.AppendUint32(fixed, uint32(r.ID))
	fixed = binary.LittleEndian.AppendUint32(fixed, uint32(r.Year))
	fixed = binary.LittleEndian.AppendUint32(fixed, math.Float32bits(r.FinancialLoss))
	buf := bytes.NewBuffer(fixed)
	for i, f := range r.textFields() {
		EncodeField(buf, f, i+1)
	}
	return buf.Bytes()
}

// EncodeSlot serializes r into a slot of the given capacity. PayloadSize is
// set to capacity and the remainder is filled with trash.
func (r *Record) EncodeSlot(capacity int32) ([]byte, error) {
	need := Size(r)
	if capacity < need {
		return nil, fmt.Errorf("%w: record %d needs %d bytes, slot holds %d", dberror.ErrSerialization, r.ID, need, capacity)
	}
	r.PayloadSize = capacity
	data := r.Encode()
	for fill := int(capacity - need); fill > 0; fill-- {
		data = append(data, TrashByte)
	}
	return data, nil
}

// Decode parses one record from the start of data. It returns the record and
// the number of bytes consumed, including any trailing trash.
func Decode(data []byte) (*Record, int, error) {
	if len(data) < minDecodeSize {
		return nil, 0, fmt.Errorf("%w: record needs at least %d bytes, got %d", dberror.ErrShortRead, minDecodeSize, len(data))
	}
	r := &Record{
		Removed:     data[0],
		PayloadSize: int32(binary.LittleEndian.Uint32(data[1:5])),
		Next:        int64(binary.LittleEndian.Uint64(data[5:13])),
		ID:          int32(binary.LittleEndian.Uint32(data[13:17])),
	}
	c := NewCursor(data)
	c.off = minDecodeSize

	// Narrower records written by older tools may end before year/financialLoss.
	r.Year = NoYear
	if c.Remaining() >= 4 {
		r.Year = int32(binary.LittleEndian.Uint32(data[c.off:]))
	}
	c.off = min(c.off+4, len(data))
	r.FinancialLoss = NoFinancialLoss
	if c.Remaining() >= 4 {
		r.FinancialLoss = math.Float32frombits(binary.LittleEndian.Uint32(data[c.off:]))
	}
	c.off = min(c.off+4, len(data))

	r.Country = c.DecodeField(CountryPos)
	r.AttackType = c.DecodeField(AttackTypePos)
	r.TargetIndustry = c.DecodeField(TargetIndustryPos)
	r.DefenseStrategy = c.DecodeField(DefenseStrategyPos)
	c.SkipTrash()
	return r, c.Offset(), nil
}
