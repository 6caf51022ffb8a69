package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/renatospessotto/Trabalho-arquivos/config"
	"github.com/renatospessotto/Trabalho-arquivos/pkg/telemetry"
)

const sampleCSV = "idAttack,year,financialLoss,country,attackType,targetIndustry,defenseMechanism\n" +
	"1,2015,80.53,China,Phishing,Education,VPN\n" +
	"2,2019,62.19,China,Ransomware,Retail,Firewall\n" +
	"3,2017,38.65,India,Man-in-the-Middle,IT,VPN\n" +
	"4,2024,41.44,UK,Ransomware,Telecommunications,AI-based Detection\n"

// setupApp returns an app over files in a temp dir, built from sampleCSV.
func setupApp(t *testing.T) (*app, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	csv := filepath.Join(dir, "attacks.csv")
	require.NoError(t, os.WriteFile(csv, []byte(sampleCSV), 0644))

	cfg := config.Default()
	cfg.DataFile = filepath.Join(dir, "attacks.bin")
	cfg.IndexFile = filepath.Join(dir, "attacks.idx")
	cfg.Telemetry.Enabled = false

	tel, _, err := telemetry.New(cfg.Telemetry)
	require.NoError(t, err)
	out := &bytes.Buffer{}
	a := newApp(cfg, zap.NewNop(), tel, out)
	t.Cleanup(func() { _ = a.close() })

	require.NoError(t, a.build(context.Background(), []string{csv}))
	out.Reset()
	return a, out
}

func TestApp_ListAndFind(t *testing.T) {
	a, out := setupApp(t)
	ctx := context.Background()

	require.NoError(t, a.list(ctx, nil))
	require.Equal(t, 4, strings.Count(out.String(), "IDENTIFICADOR DO ATAQUE:"))

	out.Reset()
	require.NoError(t, a.find(ctx, []string{"1", "country", "China", "1", "country", "Brazil"}))
	text := out.String()
	require.Equal(t, 2, strings.Count(text, "PAIS ONDE OCORREU O ATAQUE: China"))
	require.Contains(t, text, notFoundMessage)
	require.Equal(t, 2, strings.Count(text, querySeparator))
}

func TestApp_MutationsKeepIndexInSync(t *testing.T) {
	a, out := setupApp(t)
	ctx := context.Background()

	require.NoError(t, a.index(ctx, []string{"build"}))
	require.NoError(t, a.delete(ctx, []string{"1", "attackType", "Ransomware"}))
	require.NoError(t, a.insert(ctx, []string{"9", "", "12.5", "Chile", "", "Banking", "VPN"}))
	require.NoError(t, a.update(ctx, []string{"1", "idAttack", "3", "1", "country", "Republic of Korea"}))

	out.Reset()
	require.NoError(t, a.index(ctx, []string{"get", "9", "2"}))
	text := out.String()
	require.Contains(t, text, "PAIS ONDE OCORREU O ATAQUE: Chile")
	require.Contains(t, text, "ANO EM QUE O ATAQUE OCORREU: NADA CONSTA")
	require.Contains(t, text, notFoundMessage)

	out.Reset()
	require.NoError(t, a.index(ctx, []string{"check"}))
	require.Contains(t, out.String(), "index ok: 3 keys")

	out.Reset()
	require.NoError(t, a.find(ctx, []string{"1", "idAttack", "3"}))
	require.Contains(t, out.String(), "Republic of Korea")

	out.Reset()
	require.NoError(t, a.freeList(ctx, nil))
	// id 9 reused one deleted slot; the relocated id 3 left its old slot behind.
	require.Equal(t, 2, strings.Count(out.String(), "offset="))

	out.Reset()
	require.NoError(t, a.index(ctx, []string{"dump"}))
	require.Contains(t, out.String(), "status=1")
}

func TestApp_FailuresPrintDiagnostic(t *testing.T) {
	a, out := setupApp(t)
	ctx := context.Background()

	require.Error(t, a.run(ctx, "index", a.index, []string{"check"}), "no index file yet")
	require.Contains(t, out.String(), failureMessage)

	require.NoError(t, a.index(ctx, []string{"build"}))
	out.Reset()
	err := a.run(ctx, "insert", a.insert, []string{"1", "2020", "1", "Peru", "", "", ""})
	require.Error(t, err, "id 1 already exists")
	require.Contains(t, out.String(), failureMessage)

	out.Reset()
	err = a.run(ctx, "find", a.find, []string{"1", "severity", "high"})
	require.Error(t, err)
	require.NotContains(t, out.String(), failureMessage)
}

func TestApp_BackupAndStats(t *testing.T) {
	a, out := setupApp(t)
	ctx := context.Background()

	require.NoError(t, a.index(ctx, []string{"build"}))
	dir := t.TempDir()
	out.Reset()
	require.NoError(t, a.backup(ctx, []string{dir}))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	require.True(t, strings.HasPrefix(lines[0], filepath.Join(dir, "snapshot-")))

	out.Reset()
	require.NoError(t, a.stats(ctx, nil))
	require.Contains(t, out.String(), "active=4 removed=0")
	require.Contains(t, out.String(), "# telemetry disabled")
}

func TestShellLoop_DispatchesAndContinues(t *testing.T) {
	a, out := setupApp(t)
	lines := []string{
		"",
		"help",
		`insert 7 2020 NULO "New Zealand" DDoS NULO "Zero Trust"`,
		"find 1 country",
		`find 1 country "New Zealand"`,
		"bogus",
		"exit",
		"list",
	}
	next := func() (string, error) {
		if len(lines) == 0 {
			return "", io.EOF
		}
		line := lines[0]
		lines = lines[1:]
		return line, nil
	}

	require.NoError(t, shellLoop(context.Background(), a, a.handlers(), next))
	text := out.String()
	require.Contains(t, text, "commands:")
	require.Contains(t, text, "PAIS ONDE OCORREU O ATAQUE: New Zealand")
	require.Contains(t, text, "PREJUIZO CAUSADO PELO ATAQUE: NADA CONSTA")
	require.Contains(t, text, `unknown command "bogus"`)
	require.Equal(t, []string{"list"}, lines, "exit stops the loop")
}
