package indexmanager

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/renatospessotto/Trabalho-arquivos/core/dberror"
	"github.com/renatospessotto/Trabalho-arquivos/core/ingest"
	"github.com/renatospessotto/Trabalho-arquivos/core/storage_engine/heapfile"
	"github.com/renatospessotto/Trabalho-arquivos/core/storage_engine/record"
	"github.com/renatospessotto/Trabalho-arquivos/pkg/telemetry"
)

const sampleCSV = "idAttack,year,financialLoss,country,attackType,targetIndustry,defenseMechanism\n" +
	"1,2015,80.53,China,Phishing,Education,VPN\n" +
	"2,2019,62.19,China,Ransomware,Retail,Firewall\n" +
	"3,2017,38.65,India,Man-in-the-Middle,IT,VPN\n" +
	"4,2024,41.44,UK,Ransomware,Telecommunications,AI-based Detection\n" +
	"5,2018,74.41,Germany,Man-in-the-Middle,IT,Antivirus\n"

// setupManager builds a heap from sampleCSV and an index over it.
func setupManager(t *testing.T, tel *telemetry.Telemetry) *Manager {
	t.Helper()
	dir := t.TempDir()
	heap, err := heapfile.Build(filepath.Join(dir, "attacks.bin"),
		ingest.NewReader(strings.NewReader(sampleCSV), zap.NewNop()), zap.NewNop())
	require.NoError(t, err)

	if tel == nil {
		tel, _, err = telemetry.New(telemetry.Config{})
		require.NoError(t, err)
	}
	m, err := New(heap, nil, tel, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.BuildIndex(context.Background(), filepath.Join(dir, "index.bin")))
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func byID(id string) record.Criteria {
	return record.Criteria{{Field: record.FieldID, Value: id}}
}

func TestFind_UsesIndexForIDCondition(t *testing.T) {
	m := setupManager(t, nil)
	ctx := context.Background()

	found, err := m.Find(ctx, byID("4"))
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "UK", found[0].Record.Country)

	// The remaining conditions still apply.
	found, err = m.Find(ctx, record.Criteria{{Field: record.FieldID, Value: "4"}, {Field: record.FieldCountry, Value: "Chile"}})
	require.NoError(t, err)
	require.Empty(t, found)

	found, err = m.Find(ctx, record.Criteria{{Field: record.FieldCountry, Value: "china"}})
	require.NoError(t, err)
	require.Len(t, found, 2)
}

func TestFind_DuplicateIDsScanTheHeap(t *testing.T) {
	dir := t.TempDir()
	csv := sampleCSV + "2,2021,10.00,Brazil,DDoS,Retail,VPN\n"
	heap, err := heapfile.Build(filepath.Join(dir, "attacks.bin"),
		ingest.NewReader(strings.NewReader(csv), zap.NewNop()), zap.NewNop())
	require.NoError(t, err)
	tel, _, err := telemetry.New(telemetry.Config{})
	require.NoError(t, err)
	m, err := New(heap, nil, tel, zap.NewNop())
	require.NoError(t, err)
	defer m.Close()
	ctx := context.Background()

	// The build skips the second id 2, so the index alone would miss it.
	require.NoError(t, m.BuildIndex(ctx, filepath.Join(dir, "index.bin")))
	found, err := m.Find(ctx, byID("2"))
	require.NoError(t, err)
	require.Len(t, found, 2)

	removed, err := m.Delete(ctx, byID("2"))
	require.NoError(t, err)
	require.Len(t, removed, 2, "find and delete agree on the matches")

	// With the duplicate gone the index covers the heap again.
	found, err = m.Find(ctx, byID("5"))
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.NoError(t, m.Index().Verify())
}

func TestInsertDelete_KeepIndexInSync(t *testing.T) {
	m := setupManager(t, nil)
	ctx := context.Background()

	removed, err := m.Delete(ctx, record.Criteria{{Field: record.FieldAttackType, Value: "ransomware"}})
	require.NoError(t, err)
	require.Len(t, removed, 2)
	_, found, err := m.IndexSearch(ctx, 2)
	require.NoError(t, err)
	require.False(t, found)

	off, err := m.Insert(ctx, record.New(6, 2023, 1.5, "Peru", "", "", ""))
	require.NoError(t, err)
	require.Equal(t, removed[1].Offset, off, "most recently removed slot is reused first")

	e, found, err := m.IndexSearch(ctx, 6)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, off, e.Offset)
	require.Equal(t, "Peru", e.Record.Country)

	_, err = m.Insert(ctx, record.New(6, 2023, 1.5, "Chile", "", "", ""))
	require.True(t, errors.Is(err, dberror.ErrKeyAlreadyExists))
	require.NoError(t, m.Index().Verify())
}

func TestUpdate_RelocationRepointsIndex(t *testing.T) {
	m := setupManager(t, nil)
	ctx := context.Background()

	changes, err := m.Update(ctx, byID("3"), record.Assignments{
		{Field: record.FieldDefenseStrategy, Value: "Zero Trust Network Access with continuous verification"},
	})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	require.True(t, changes[0].Relocated())

	e, found, err := m.IndexSearch(ctx, 3)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, changes[0].NewOffset, e.Offset)
	require.Equal(t, "India", e.Record.Country)
}

func TestIndexDirectOperations(t *testing.T) {
	m := setupManager(t, nil)
	ctx := context.Background()

	deleted, err := m.IndexDelete(ctx, 5)
	require.NoError(t, err)
	require.True(t, deleted)
	_, found, err := m.IndexSearch(ctx, 5)
	require.NoError(t, err)
	require.False(t, found)

	all, err := m.Heap().Find(byID("5"))
	require.NoError(t, err)
	require.Len(t, all, 1, "heap is untouched by index-only operations")

	require.NoError(t, m.IndexInsertDirect(ctx, 5, all[0].Offset))
	err = m.IndexInsertDirect(ctx, 5, 999)
	require.True(t, errors.Is(err, dberror.ErrKeyAlreadyExists))
	ok, err := m.IndexUpdateOffset(ctx, 5, all[0].Offset)
	require.NoError(t, err)
	require.True(t, ok)
	e, found, err := m.IndexSearch(ctx, 5)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "Germany", e.Record.Country)
}

func TestIndexSearch_StaleEntryIsNotFound(t *testing.T) {
	m := setupManager(t, nil)
	ctx := context.Background()

	// Removing through the heap alone leaves the index pointing at a freed slot.
	removed, err := m.Heap().Delete(byID("4"))
	require.NoError(t, err)
	require.Len(t, removed, 1)

	_, found, err := m.IndexSearch(ctx, 4)
	require.NoError(t, err)
	require.False(t, found)
	viaFind, err := m.Find(ctx, byID("4"))
	require.NoError(t, err)
	require.Empty(t, viaFind)
}

func TestIndexOperations_WithoutIndex(t *testing.T) {
	heap, err := heapfile.Build(filepath.Join(t.TempDir(), "attacks.bin"),
		ingest.NewReader(strings.NewReader(sampleCSV), zap.NewNop()), zap.NewNop())
	require.NoError(t, err)
	tel, _, err := telemetry.New(telemetry.Config{})
	require.NoError(t, err)
	m, err := New(heap, nil, tel, nil)
	require.NoError(t, err)
	defer m.Close()

	_, _, err = m.IndexSearch(context.Background(), 1)
	require.True(t, errors.Is(err, dberror.ErrFileUnavailable))

	found, err := m.Find(context.Background(), byID("1"))
	require.NoError(t, err)
	require.Len(t, found, 1)
}

func TestMetricsAreExported(t *testing.T) {
	tel, shutdown, err := telemetry.New(telemetry.Config{Enabled: true, ServiceName: "attackdb-test"})
	require.NoError(t, err)
	defer func() { _ = shutdown(context.Background()) }()

	m := setupManager(t, tel)
	_, err = m.Find(context.Background(), byID("1"))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, tel.WriteMetrics(&buf))
	require.Contains(t, buf.String(), "attackdb_store_")
}
