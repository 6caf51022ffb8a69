package ingest

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/renatospessotto/Trabalho-arquivos/core/storage_engine/record"
)

func readAll(t *testing.T, input string) []*record.Record {
	t.Helper()
	r := NewReader(strings.NewReader(input), zap.NewNop())
	var out []*record.Record
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, rec)
	}
}

func TestReader_ParsesLinesAndSkipsHeader(t *testing.T) {
	input := "idAttack,year,financialLoss,country,attackType,targetIndustry,defenseMechanism\r\n" +
		"1,2015,80.53,China,Phishing,Education,VPN\r\n" +
		"2,,,,DDoS,,\n" +
		"3,2019,abc,Brazil,,Banking,Firewall\n"
	recs := readAll(t, input)
	require.Len(t, recs, 3)

	require.Equal(t, record.New(1, 2015, 80.53, "China", "Phishing", "Education", "VPN"), recs[0])
	require.Equal(t, record.NoYear, recs[1].Year)
	require.Equal(t, record.NoFinancialLoss, recs[1].FinancialLoss)
	require.Equal(t, "", recs[1].Country)
	require.Equal(t, "DDoS", recs[1].AttackType)
	require.Equal(t, record.NoFinancialLoss, recs[2].FinancialLoss)
	require.Equal(t, "Firewall", recs[2].DefenseStrategy)
}

func TestReader_EmptyIDEndsInput(t *testing.T) {
	input := "header\n" +
		"1,2015,1,A,B,C,D\n" +
		",2016,1,A,B,C,D\n" +
		"3,2017,1,A,B,C,D\n"
	recs := readAll(t, input)
	require.Len(t, recs, 1)
}

func TestReader_ShortLineAndEmptyInput(t *testing.T) {
	recs := readAll(t, "header\n7,2020\n")
	require.Len(t, recs, 1)
	require.Equal(t, int32(2020), recs[0].Year)
	require.Equal(t, "", recs[0].DefenseStrategy)

	require.Empty(t, readAll(t, ""))
	require.Empty(t, readAll(t, "header only\n"))
}
