package pipeline

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"donorsync/internal"
)

// ExportLeadsCSV writes leads in the canonical batch column order. The
// Birthday column appears only when the batch tracked one, mirroring the
// upstream export shape.
func ExportLeadsCSV(leads []internal.Lead, hasBirthdate bool, outputPath string) error {
	headers := []string{"Donor #", "Donor Account #", "Zip Code", "Donor Status", "Facility"}
	if hasBirthdate {
		headers = append(headers, "Birthday")
	}
	headers = append(headers, "Donor First", "Donor Last", "Donor E-mail", "Donor Phone", "Donor Address")

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(headers); err != nil {
		return err
	}
	for _, lead := range leads {
		r := lead.Record
		row := []string{r.DonorNumber, r.Account, r.Zip, r.Status, r.Facility}
		if hasBirthdate {
			row = append(row, r.Birthdate)
		}
		row = append(row, r.DonorFirst, r.DonorLast, r.Email, r.Phone, r.Address)
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// ExportReviewXLSX writes the operator review workbook: outcome counts on
// a Summary sheet, new donors on the second, updates with old and new
// values side by side on the third.
func ExportReviewXLSX(outcome internal.Outcome, outputPath string) error {
	f := excelize.NewFile()
	first := f.GetSheetName(0)
	_ = f.SetSheetName(first, "Summary")
	if _, err := f.NewSheet("New"); err != nil {
		return err
	}
	if _, err := f.NewSheet("Updated"); err != nil {
		return err
	}

	tracked := "no"
	if outcome.BirthdateTracked {
		tracked = "yes"
	}
	summary := [][]any{
		{"New donors", len(outcome.New)},
		{"Updated donors", len(outcome.Updated)},
		{"Unchanged", outcome.Unchanged},
		{"Skipped rows", outcome.Skipped},
		{"Leads", len(Leads(outcome))},
		{"Birthday tracked", tracked},
	}
	for i, line := range summary {
		writeRow(f, "Summary", i+1, line)
	}

	newHeaders := []string{
		"Donor #", "Donor First", "Donor Last", "Donor E-mail", "Donor Account #",
		"Donor Phone", "Donor Address", "Zip Code", "Donor Status", "Facility", "Birthday",
	}
	writeHeader(f, "New", newHeaders)
	for i, r := range outcome.New {
		writeRow(f, "New", i+2, []any{
			r.DonorNumber, r.DonorFirst, r.DonorLast, r.Email, r.Account,
			r.Phone, r.Address, r.Zip, r.Status, r.Facility, r.Birthdate,
		})
	}

	updatedHeaders := []string{
		"Donor #", "Facility", "Changed",
		"Donor E-mail", "Previous E-mail", "Donor Phone", "Previous Phone",
		"Donor Address", "Previous Address", "Birthday", "Previous Birthday",
	}
	writeHeader(f, "Updated", updatedHeaders)
	for i, u := range outcome.Updated {
		writeRow(f, "Updated", i+2, []any{
			u.Record.DonorNumber, u.Record.Facility, changedList(u.Changes),
			u.Record.Email, u.Master.Email, u.Record.Phone, u.Master.Phone,
			u.Record.Address, u.Master.Address, u.Record.Birthdate, u.Master.Birthdate,
		})
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func writeHeader(f *excelize.File, sheet string, headers []string) {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
}

func writeRow(f *excelize.File, sheet string, rowNum int, values []any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, rowNum)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func changedList(c internal.FieldChanges) string {
	parts := []string{}
	if c.Email {
		parts = append(parts, "email")
	}
	if c.Phone {
		parts = append(parts, "phone")
	}
	if c.Address {
		parts = append(parts, "address")
	}
	if c.Center {
		parts = append(parts, "center")
	}
	if c.Birthdate {
		parts = append(parts, "birthdate")
	}
	return strings.Join(parts, ",")
}
