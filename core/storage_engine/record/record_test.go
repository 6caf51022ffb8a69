package record

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/renatospessotto/Trabalho-arquivos/core/dberror"
)

func TestFieldCodec_PresentAndAbsent(t *testing.T) {
	var buf bytes.Buffer
	EncodeField(&buf, "Brazil", CountryPos)
	EncodeField(&buf, "", AttackTypePos)
	EncodeField(&buf, "Banking", TargetIndustryPos)
	require.Equal(t, "1Brazil|3Banking|", buf.String())

	c := NewCursor(buf.Bytes())
	require.Equal(t, "Brazil", c.DecodeField(CountryPos))
	require.Equal(t, "", c.DecodeField(AttackTypePos), "marker 3 does not belong to position 2")
	require.Equal(t, 8, c.Offset(), "cursor must not move on a mismatched marker")
	require.Equal(t, "Banking", c.DecodeField(TargetIndustryPos))
	require.Equal(t, "", c.DecodeField(DefenseStrategyPos))
	require.Equal(t, 0, c.Remaining())
}

func TestFieldCodec_StopsAtTrash(t *testing.T) {
	c := NewCursor([]byte("1Chile|$$$"))
	require.Equal(t, "Chile", c.DecodeField(CountryPos))
	require.Equal(t, "", c.DecodeField(AttackTypePos))
	require.Equal(t, 7, c.Offset())
	require.Equal(t, 3, c.SkipTrash())
	require.Equal(t, 0, c.Remaining())
}

func TestSize_MatchesEncodedPayload(t *testing.T) {
	r := New(7, 2020, 12.5, "Brazil", "Phishing", "", "AI-based Detection")
	encoded := r.Encode()
	require.Equal(t, int(SlotHeaderSize+Size(r)), len(encoded))
	// 20 fixed bytes after payloadSize, plus len+2 per present field.
	require.Equal(t, int32(20+8+10+20), Size(r))
	require.Equal(t, Size(r), r.PayloadSize)
}

func TestEncode_FixedFieldsLittleEndian(t *testing.T) {
	r := New(258, NoYear, 2.0, "", "", "", "")
	r.Next = 276
	want := []byte{
		FlagActive,
		20, 0, 0, 0, // payloadSize
		0x14, 0x01, 0, 0, 0, 0, 0, 0, // next
		0x02, 0x01, 0, 0, // id
		0xff, 0xff, 0xff, 0xff, // year absent
		0, 0, 0, 0x40, // float32 2.0
	}
	require.Equal(t, want, r.Encode())
}

func TestDecode_RoundTrip(t *testing.T) {
	cases := []*Record{
		New(1, 2015, 80.53, "China", "Phishing", "Education", "VPN"),
		New(2, NoYear, NoFinancialLoss, "", "", "", ""),
		New(3, 2019, 1.0, "", "Ransomware", "", "Firewall"),
	}
	for _, want := range cases {
		got, n, err := Decode(want.Encode())
		require.NoError(t, err)
		require.Equal(t, want, got)
		require.Equal(t, int(SlotHeaderSize+want.PayloadSize), n)
	}
}

func TestDecode_AbsentCountryAndYear(t *testing.T) {
	r := New(10, NoYear, 3.5, "", "DDoS", "", "")
	data := r.Encode()
	// No marker or delimiter is written for the country.
	require.NotContains(t, string(data), "1|")
	got, _, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, "", got.Country)
	require.Equal(t, NoYear, got.Year)
	require.Equal(t, "DDoS", got.AttackType)
}

func TestEncodeSlot_PadsWithTrash(t *testing.T) {
	r := New(4, 2021, 9.9, "Peru", "", "", "")
	data, err := r.EncodeSlot(r.PayloadSize + 6)
	require.NoError(t, err)
	require.True(t, bytes.HasSuffix(data, []byte("$$$$$$")))
	require.Equal(t, int(SlotHeaderSize+r.PayloadSize), len(data))

	// A following slot must start right after the trash run.
	next := New(5, 2022, 1, "", "", "", "").Encode()
	got, n, err := Decode(append(data, next...))
	require.NoError(t, err)
	require.Equal(t, "Peru", got.Country)
	require.Equal(t, len(data), n)

	_, err = r.EncodeSlot(Size(r) - 1)
	require.True(t, errors.Is(err, dberror.ErrSerialization))
}

func TestDecode_ShortRead(t *testing.T) {
	_, _, err := Decode([]byte{'0', 1, 0, 0})
	require.True(t, errors.Is(err, dberror.ErrShortRead))
}

func TestDecode_NarrowRecordUsesSentinels(t *testing.T) {
	r := New(11, 2001, 5, "", "", "", "")
	data := r.Encode()[:minDecodeSize+2]
	got, _, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, int32(11), got.ID)
	require.Equal(t, NoYear, got.Year)
	require.Equal(t, NoFinancialLoss, got.FinancialLoss)
}
