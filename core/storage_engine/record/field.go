package record

import "bytes"

const (
	// FieldDelimiter terminates every present variable-length field.
	FieldDelimiter byte = '|'
	// TrashByte fills the unused tail of a slot that is larger than its record.
	TrashByte byte = '$'
)

// Positional markers of the optional text fields, in on-disk order.
const (
	CountryPos = iota + 1
	AttackTypePos
	TargetIndustryPos
	DefenseStrategyPos
)

// EncodeField appends one optional text field to buf. An empty value is
// elided entirely: no marker and no delimiter are written.
func EncodeField(buf *bytes.Buffer, value string, pos int) {
	if value == "" {
		return
	}
	buf.WriteByte(byte('0' + pos))
	buf.WriteString(value)
	buf.WriteByte(FieldDelimiter)
}

// Cursor walks a byte slice holding encoded record bytes.
type Cursor struct {
	data []byte
	off  int
}

func NewCursor(data []byte) *Cursor {
	return &Cursor{data: data}
}

// Offset returns the number of bytes consumed so far.
func (c *Cursor) Offset() int { return c.off }

func (c *Cursor) Remaining() int { return len(c.data) - c.off }

// DecodeField reads the field expected at position pos. When the next byte is
// trash, belongs to another position, or no delimiter follows, the field is
// absent and the cursor does not move.
func (c *Cursor) DecodeField(pos int) string {
	if c.off >= len(c.data) {
		return ""
	}
	marker := c.data[c.off]
	if marker == TrashByte || int(marker)-'0' != pos {
		return ""
	}
	end := bytes.IndexByte(c.data[c.off+1:], FieldDelimiter)
	if end <= 0 {
		// A missing delimiter or a zero-length body is never written by the encoder.
		return ""
	}
	value := string(c.data[c.off+1 : c.off+1+end])
	c.off += end + 2
	return value
}

// SkipTrash consumes a run of trash bytes and stops before the first byte
// that is not trash.
func (c *Cursor) SkipTrash() int {
	start := c.off
	for c.off < len(c.data) && c.data[c.off] == TrashByte {
		c.off++
	}
	return c.off - start
}
