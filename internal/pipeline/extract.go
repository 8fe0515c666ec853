package pipeline

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"donorsync/internal"
)

// ExtractTable reads one batch file into a raw table. Workbooks use the
// first sheet only; the first non-empty row is the header. Every cell stays
// a string so donor numbers keep leading zeros.
func ExtractTable(path string) (internal.RawTable, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return internal.RawTable{}, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return parseXLSX(blob)
	case ".csv":
		return parseCSV(blob)
	default:
		return internal.RawTable{}, fmt.Errorf("unsupported batch file type: %s", filepath.Ext(path))
	}
}

func parseXLSX(content []byte) (internal.RawTable, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return internal.RawTable{}, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return internal.RawTable{}, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return internal.RawTable{}, err
	}
	return tableFromRows(rows)
}

func parseCSV(content []byte) (internal.RawTable, error) {
	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return internal.RawTable{}, err
	}
	return tableFromRows(rows)
}

func tableFromRows(rows [][]string) (internal.RawTable, error) {
	start := 0
	for start < len(rows) && rowEmpty(rows[start]) {
		start++
	}
	if start >= len(rows) {
		return internal.RawTable{}, fmt.Errorf("no header row found")
	}

	columns := trimTrailingEmpty(rows[start])
	if len(columns) == 0 {
		return internal.RawTable{}, fmt.Errorf("no header row found")
	}

	out := make([][]string, 0, len(rows)-start-1)
	for _, row := range rows[start+1:] {
		if rowEmpty(row) {
			continue
		}
		out = append(out, padRow(row, len(columns)))
	}
	return internal.RawTable{Columns: columns, Rows: out}, nil
}

func rowEmpty(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// trimTrailingEmpty drops the blank header cells spreadsheets keep after
// the last named column.
func trimTrailingEmpty(row []string) []string {
	end := len(row)
	for end > 0 && strings.TrimSpace(row[end-1]) == "" {
		end--
	}
	return row[:end]
}

// padRow aligns a data row to the header width. Sheet readers omit
// trailing empty cells, so short rows are common.
func padRow(row []string, width int) []string {
	if len(row) >= width {
		return row[:width]
	}
	out := make([]string, width)
	copy(out, row)
	return out
}
