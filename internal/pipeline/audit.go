package pipeline

import "donorsync/internal"

// auditHeaders is the fixed append-only layout of the audit sheet. K
// through N are literal flag columns a downstream manual-review process
// keys on.
var auditHeaders = []string{
	"Donor #", "Donor First", "Donor Last", "Donor E-mail", "Donor Account #",
	"Donor Phone", "Donor Address", "Zip Code", "Donor Status", "Center",
	"K", "L", "M", "N", "Birthday",
}

const auditMarker = "x"

// AuditRows formats new then updated records as fixed-width rows. A
// birthdate the schema variant does not track is emitted as empty, never
// omitted, so row width stays constant across runs.
func AuditRows(outcome internal.Outcome) [][]string {
	out := make([][]string, 0, len(outcome.New)+len(outcome.Updated))
	for _, r := range outcome.New {
		out = append(out, auditRow(r))
	}
	for _, u := range outcome.Updated {
		out = append(out, auditRow(u.Record))
	}
	return out
}

func auditRow(r internal.DonorRecord) []string {
	return []string{
		r.DonorNumber, r.DonorFirst, r.DonorLast, r.Email, r.Account,
		r.Phone, r.Address, r.Zip, r.Status, r.Facility,
		auditMarker, auditMarker, auditMarker, auditMarker, r.Birthdate,
	}
}
