package registry

import (
	"fmt"
	"strings"

	"donorsync/internal"
	"donorsync/internal/util"
)

// masterHeaders is the registry sheet layout. Column meaning is positional;
// the optional Birthday column can only ever be the trailing eleventh.
var masterHeaders = []string{
	"Donor #", "Donor First", "Donor Last", "Donor E-mail", "Donor Account #",
	"Donor Phone", "Donor Address", "Zip Code", "Donor Status", "Center",
}

const birthdateHeader = "Birthday"

// ParseMaster decodes sheet values into registry records, detecting the
// schema variant from the header row. An empty sheet is an empty registry.
// Columns beyond the known layout are ignored.
func ParseMaster(values [][]string) ([]internal.MasterRecord, internal.RegistrySchema, error) {
	if len(values) == 0 {
		return nil, internal.RegistrySchema{}, nil
	}

	header := values[0]
	if len(header) < len(masterHeaders) {
		return nil, internal.RegistrySchema{}, fmt.Errorf("registry sheet has %d columns, want at least %d", len(header), len(masterHeaders))
	}
	schema := internal.RegistrySchema{}
	if len(header) > len(masterHeaders) && strings.EqualFold(util.CollapseSpaces(header[len(masterHeaders)]), birthdateHeader) {
		schema.HasBirthdate = true
	}

	width := len(masterHeaders)
	if schema.HasBirthdate {
		width++
	}

	out := make([]internal.MasterRecord, 0, len(values)-1)
	for _, row := range values[1:] {
		cells := padCells(row, width)
		if rowBlank(cells) {
			continue
		}
		m := internal.MasterRecord{
			DonorNumber: cells[0],
			DonorFirst:  cells[1],
			DonorLast:   cells[2],
			Email:       cells[3],
			Account:     cells[4],
			Phone:       cells[5],
			Address:     cells[6],
			Zip:         cells[7],
			Status:      cells[8],
			Center:      cells[9],
		}
		if schema.HasBirthdate {
			m.Birthdate = cells[10]
		}
		out = append(out, m)
	}
	return out, schema, nil
}

// MasterValues encodes the registry for a full-sheet write, header row
// included.
func MasterValues(records []internal.MasterRecord, schema internal.RegistrySchema) [][]any {
	header := make([]any, 0, len(masterHeaders)+1)
	for _, h := range masterHeaders {
		header = append(header, h)
	}
	if schema.HasBirthdate {
		header = append(header, birthdateHeader)
	}

	out := make([][]any, 0, len(records)+1)
	out = append(out, header)
	for _, m := range records {
		row := []any{
			m.DonorNumber, m.DonorFirst, m.DonorLast, m.Email, m.Account,
			m.Phone, m.Address, m.Zip, m.Status, m.Center,
		}
		if schema.HasBirthdate {
			row = append(row, m.Birthdate)
		}
		out = append(out, row)
	}
	return out
}

// AuditValues encodes fixed-width audit rows for an append call.
func AuditValues(rows [][]string) [][]any {
	out := make([][]any, 0, len(rows))
	for _, row := range rows {
		cells := make([]any, 0, len(row))
		for _, c := range row {
			cells = append(cells, c)
		}
		out = append(out, cells)
	}
	return out
}

func padCells(row []string, width int) []string {
	if len(row) >= width {
		return row[:width]
	}
	out := make([]string, width)
	copy(out, row)
	return out
}

func rowBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
