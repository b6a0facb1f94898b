package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"autorkm/internal/aggregator"
	"autorkm/internal/core"
	"autorkm/internal/sheets/xlsx"
)

func writeFixture(t *testing.T) string {
	t.Helper()
	rows := [][]any{
		{"Instansi", "Topik", "Channel", "Status", "Kecamatan", "Kelurahan", "Kategori", "Tanggal"},
		{"Dinas A", "Jalan", "Web", "Selesai", "Kec 1", "Kel 1", "Keluhan", "2024-05-01"},
		{"Dinas A", "Air", "Phone", "Selesai", "Kec 1", "Kel 2", "Permohonan Informasi", "2024-05-02"},
		{"Badan B", "Sampah", "Web", "Selesai", "Kec 2", "Kel 1", "Keluhan", "2024-05-02"},
		{"Dinas C", "Jalan", "Web", "Proses", "Kec 2", "Kel 2", "Keluhan", "2024-05-03"},
	}
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	path := filepath.Join(t.TempDir(), "rkm.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCommand(&stdout, &stderr)
	if args == nil {
		// cobra falls back to os.Args on a nil slice.
		args = []string{}
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func TestReportCommand(t *testing.T) {
	out, err := run(t, writeFixture(t))
	require.NoError(t, err)

	assert.Contains(t, out, "Baris: 4  Selesai: 3")
	assert.Contains(t, out, "Hasil RKM")
	assert.Contains(t, out, "Dinas A")
	assert.Contains(t, out, "Persentase Kategori")
	assert.Contains(t, out, "66.7")
	assert.Contains(t, out, "2024-05-02")
}

func TestReportCommandSectionsAndFormat(t *testing.T) {
	out, err := run(t, writeFixture(t), "--section", aggregator.SectionChannel, "--format", "csv")
	require.NoError(t, err)

	assert.Contains(t, out, "Channel,Jumlah")
	assert.Contains(t, out, "Web,2")
	assert.NotContains(t, out, "Hasil RKM")
}

func TestReportCommandPrefix(t *testing.T) {
	out, err := run(t, writeFixture(t), "--prefix", "Badan", "--section", aggregator.SectionComplaintAgencies, "--format", "csv")
	require.NoError(t, err)
	assert.Contains(t, out, "Badan B,1")
	assert.NotContains(t, out, "Dinas A,")
}

func TestReportCommandWritesWorkbook(t *testing.T) {
	target := filepath.Join(t.TempDir(), "out.xlsx")
	_, err := run(t, writeFixture(t), "--out", target, "--section", aggregator.SectionCategories)
	require.NoError(t, err)

	f, err := os.Open(target)
	require.NoError(t, err)
	defer f.Close()
	table, err := xlsx.ReadTable(f, aggregator.SectionCategories)
	require.NoError(t, err)
	assert.Equal(t, []string{core.HeaderCategory, core.HeaderCount, core.HeaderPercentage}, table.Headers)
	assert.Len(t, table.Rows, 2)
}

func TestTopicsCommand(t *testing.T) {
	out, err := run(t, "topics", writeFixture(t), "--agency", "Dinas A", "--category", core.CategoryComplaint, "--format", "csv")
	require.NoError(t, err)
	assert.Contains(t, out, "Jalan,1")
	assert.NotContains(t, out, "Air")

	_, err = run(t, "topics", writeFixture(t))
	assert.EqualError(t, err, "--agency is required")
}

func TestReportCommandErrors(t *testing.T) {
	path := writeFixture(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no input", nil, "a workbook path or --sheets is required"},
		{"unknown section", []string{path, "--section", "nope"}, `unknown section "nope"`},
		{"unknown format", []string{path, "--format", "xml"}, `unknown format "xml"`},
		{"file and sheets", []string{path, "--sheets"}, "pass either a file or --sheets, not both"},
		{"missing file", []string{filepath.Join(t.TempDir(), "missing.xlsx")}, "missing.xlsx"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
