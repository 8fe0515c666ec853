package pipeline

import (
	"fmt"
	"os"
	"strings"
	"time"

	"donorsync/internal"
	"donorsync/internal/util"
)

// DefaultEmailDenylist holds the placeholder addresses the donor management
// system fills in when a donor declined to share an email. Matching is
// exact after lower-casing, never substring.
var DefaultEmailDenylist = []string{
	"someone@plasmaworld.com",
	"someone@plasma.com",
	"some@plasmaworld.com",
	"someone@plasmaworld.om",
	"na@na.com",
	"someoneinplasma@gmail.com",
}

// LoadDenylistFile reads one address per line; blank lines and # comments
// are skipped. The result replaces DefaultEmailDenylist entirely.
func LoadDenylistFile(path string) ([]string, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(string(blob), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, nil
}

// dateLayouts are tried in order; the first that parses wins, so US
// month-day order beats day-month on ambiguous values. Unpadded layouts
// accept zero-padded input too. Time-bearing forms cover workbook cells
// rendered as timestamps.
var dateLayouts = []string{
	"1/2/2006",
	"2/1/2006",
	"2006-1-2",
	"2006/1/2",
	"1-2-2006",
	"2-1-2006",
	"2006-1-2 15:04:05",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
}

func ParseDate(value string) (time.Time, bool) {
	v := strings.TrimSpace(value)
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// MappedRow is one batch row projected through the field mapping, with the
// donation date pre-parsed for dedup ordering.
type MappedRow struct {
	Values       map[internal.Field]string
	DonationDate time.Time
	HasDate      bool
}

// MapRows projects every raw row through the mapping. The second return
// counts rows whose donation date was present but unparseable.
func MapRows(table internal.RawTable, mapping internal.FieldMapping) ([]MappedRow, int) {
	idx := map[internal.Field]int{}
	for field, col := range mapping {
		if col == "" {
			continue
		}
		if i := findColumn(table.Columns, col, true); i >= 0 {
			idx[field] = i
		}
	}

	badDates := 0
	out := make([]MappedRow, 0, len(table.Rows))
	for _, row := range table.Rows {
		values := map[internal.Field]string{}
		for field, i := range idx {
			if i < len(row) {
				values[field] = row[i]
			}
		}
		mr := MappedRow{Values: values}
		if raw, ok := values[internal.FieldLastDonation]; ok && strings.TrimSpace(raw) != "" {
			if t, parsed := ParseDate(raw); parsed {
				mr.DonationDate = t
				mr.HasDate = true
			} else {
				badDates++
			}
		}
		out = append(out, mr)
	}
	return out, badDates
}

// NormStats counts per-field fallbacks so a run can report how dirty the
// batch was without failing it.
type NormStats struct {
	Rows             int
	PhoneFallbacks   int
	EmailsBlanked    int
	BadBirthdates    int
	BadDonationDates int
}

// Normalizer turns mapped rows into canonical donor records. Every rule
// degrades to a fallback; one bad value never aborts a batch.
type Normalizer struct {
	denylist map[string]bool
}

func NewNormalizer(denylist []string) *Normalizer {
	set := map[string]bool{}
	for _, e := range denylist {
		set[strings.ToLower(strings.TrimSpace(e))] = true
	}
	return &Normalizer{denylist: set}
}

func (n *Normalizer) Normalize(rows []MappedRow) ([]internal.DonorRecord, NormStats) {
	stats := NormStats{Rows: len(rows)}
	out := make([]internal.DonorRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, n.record(row, &stats))
	}
	return out, stats
}

func (n *Normalizer) record(row MappedRow, stats *NormStats) internal.DonorRecord {
	v := func(field internal.Field) string { return row.Values[field] }

	rec := internal.DonorRecord{
		DonorNumber: v(internal.FieldDonorNumber),
		Account:     v(internal.FieldDonorAccount),
		Zip:         v(internal.FieldZipCode),
		Status:      v(internal.FieldDonorStatus),
		Facility:    v(internal.FieldFacility),
	}

	if name, ok := row.Values[internal.FieldDonorName]; ok {
		rec.DonorFirst, rec.DonorLast = SplitName(name)
	} else {
		rec.DonorFirst = util.CapitalizeWords(v(internal.FieldDonorFirst))
		rec.DonorLast = util.CapitalizeWords(v(internal.FieldDonorLast))
	}

	email := strings.ToLower(v(internal.FieldDonorEmail))
	if email != "" && n.denylist[email] {
		email = ""
		stats.EmailsBlanked++
	}
	rec.Email = email

	phone, ok := FormatPhone(v(internal.FieldDonorPhone))
	if !ok {
		stats.PhoneFallbacks++
	}
	rec.Phone = phone

	rec.Address = strings.TrimSpace(v(internal.FieldAddressLine1) + " " + v(internal.FieldAddressLine2))

	if raw := v(internal.FieldBirthdate); strings.TrimSpace(raw) != "" {
		if t, parsed := ParseDate(raw); parsed {
			rec.Birthdate = t.Format("2006-01-02")
		} else {
			rec.Birthdate = raw
			stats.BadBirthdates++
		}
	}

	return rec
}

// FormatPhone renders a NANP number as 1(AAA) BBB-CCCC. Ten digits get the
// country prefix; anything that does not come out at eleven digits is
// returned unchanged. Empty input passes through and is not a fallback.
func FormatPhone(phone string) (string, bool) {
	if strings.TrimSpace(phone) == "" {
		return phone, true
	}
	digits := util.Digits(phone)
	if len(digits) == 10 {
		digits = "1" + digits
	}
	if len(digits) != 11 {
		return phone, false
	}
	return fmt.Sprintf("1(%s) %s-%s", digits[1:4], digits[4:7], digits[7:]), true
}

// SplitName splits "Last, First" on the first comma only; a value with no
// comma is all first name. Tokens are lower-cased then capitalized one by
// one and re-joined with single spaces.
func SplitName(name string) (first, last string) {
	parts := strings.SplitN(name, ",", 2)
	if len(parts) == 2 {
		last = parts[0]
		first = parts[1]
	} else {
		first = parts[0]
	}
	return util.CapitalizeWords(first), util.CapitalizeWords(last)
}
