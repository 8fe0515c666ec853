package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"donorsync/internal"
	"donorsync/internal/util"
)

// SchemaMapper resolves raw batch columns onto canonical fields. Fixed and
// assisted modes are two strategies behind one capability; reconciliation
// never knows which one produced the mapping.
type SchemaMapper interface {
	Resolve(columns []string) (internal.FieldMapping, error)
}

// fixedContract is the export contract of the donor management system.
// Real exports carry a stray tab inside the donation-date header, so
// headers are compared with whitespace collapsed.
var fixedContract = map[internal.Field]string{
	internal.FieldDonorNumber:  "Donor #",
	internal.FieldDonorName:    "Donor Name",
	internal.FieldDonorEmail:   "Donor E-mail",
	internal.FieldDonorAccount: "Donor Account #",
	internal.FieldDonorPhone:   "Donor Phone",
	internal.FieldFacility:     "Facility",
	internal.FieldAddressLine1: "Donor Address Line 1",
	internal.FieldAddressLine2: "Donor Address Line 2",
	internal.FieldCity:         "City",
	internal.FieldZipCode:      "Zip Code",
	internal.FieldDonorStatus:  "Donor Status",
	internal.FieldLastDonation: "Last Donation Date",
	internal.FieldBirthdate:    "DOB",
}

// mappableFields fixes iteration order for validation and suggestions.
var mappableFields = []internal.Field{
	internal.FieldDonorNumber,
	internal.FieldDonorName,
	internal.FieldDonorEmail,
	internal.FieldDonorAccount,
	internal.FieldDonorPhone,
	internal.FieldFacility,
	internal.FieldAddressLine1,
	internal.FieldAddressLine2,
	internal.FieldCity,
	internal.FieldZipCode,
	internal.FieldDonorStatus,
	internal.FieldLastDonation,
	internal.FieldBirthdate,
}

var knownFields = map[internal.Field]bool{
	internal.FieldDonorNumber:  true,
	internal.FieldDonorName:    true,
	internal.FieldDonorFirst:   true,
	internal.FieldDonorLast:    true,
	internal.FieldDonorEmail:   true,
	internal.FieldDonorAccount: true,
	internal.FieldDonorPhone:   true,
	internal.FieldFacility:     true,
	internal.FieldAddressLine1: true,
	internal.FieldAddressLine2: true,
	internal.FieldCity:         true,
	internal.FieldZipCode:      true,
	internal.FieldDonorStatus:  true,
	internal.FieldLastDonation: true,
	internal.FieldBirthdate:    true,
}

// FixedSchema expects every contract column under its exact name. DOB is
// the one column older exports may lack, so it alone is optional.
type FixedSchema struct{}

func (FixedSchema) Resolve(columns []string) (internal.FieldMapping, error) {
	mapping := internal.FieldMapping{}
	missing := []string{}
	for _, field := range mappableFields {
		want := fixedContract[field]
		idx := findColumn(columns, want, false)
		if idx >= 0 {
			mapping[field] = columns[idx]
			continue
		}
		if field != internal.FieldBirthdate {
			missing = append(missing, want)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return mapping, nil
}

// AssistedSchema carries an operator-confirmed mapping. Column names are
// matched case-insensitively; the resolved mapping always points at the
// spelling the batch actually uses.
type AssistedSchema struct {
	Mapping internal.FieldMapping
}

func (s AssistedSchema) Resolve(columns []string) (internal.FieldMapping, error) {
	mapping := internal.FieldMapping{}
	for field, col := range s.Mapping {
		if col == "" {
			continue
		}
		idx := findColumn(columns, col, true)
		if idx < 0 {
			return nil, fmt.Errorf("mapped column %q for %s not found in batch", col, field)
		}
		mapping[field] = columns[idx]
	}
	if err := ValidateMapping(mapping); err != nil {
		return nil, err
	}
	return mapping, nil
}

// ValidateMapping enforces the processability floor: a batch needs a donor
// number, a facility, and some form of donor name.
func ValidateMapping(mapping internal.FieldMapping) error {
	if mapping[internal.FieldDonorNumber] == "" {
		return fmt.Errorf("mapping must include donor_number")
	}
	if mapping[internal.FieldFacility] == "" {
		return fmt.Errorf("mapping must include facility")
	}
	if mapping[internal.FieldDonorName] == "" && mapping[internal.FieldDonorFirst] == "" {
		return fmt.Errorf("mapping must include donor_name or donor_first")
	}
	return nil
}

func findColumn(columns []string, name string, fold bool) int {
	want := util.CollapseSpaces(name)
	if fold {
		want = strings.ToLower(want)
	}
	for i, col := range columns {
		have := util.CollapseSpaces(col)
		if fold {
			have = strings.ToLower(have)
		}
		if have == want {
			return i
		}
	}
	return -1
}

const (
	SuggestExact   = "exact"
	SuggestPartial = "partial"
	SuggestDefault = "default"
)

// Suggestion proposes a source column for one canonical field. Default
// confidence means no synonym matched and the operator must check it.
type Suggestion struct {
	Field      internal.Field
	Column     string
	Confidence string
}

// DefaultSynonyms seeds the suggestion pass. Callers may load a replacement
// set per source system.
var DefaultSynonyms = map[internal.Field][]string{
	internal.FieldDonorNumber:  {"donor #", "donor number", "donor no", "donor id"},
	internal.FieldDonorName:    {"donor name", "full name", "name"},
	internal.FieldDonorEmail:   {"donor e-mail", "donor email", "e-mail", "email"},
	internal.FieldDonorAccount: {"donor account #", "donor account", "account #", "account"},
	internal.FieldDonorPhone:   {"donor phone", "phone number", "phone", "mobile"},
	internal.FieldFacility:     {"facility", "center", "location", "site"},
	internal.FieldAddressLine1: {"donor address line 1", "address line 1", "address 1", "address"},
	internal.FieldAddressLine2: {"donor address line 2", "address line 2", "address 2", "apt"},
	internal.FieldCity:         {"city", "town"},
	internal.FieldZipCode:      {"zip code", "zip", "postal code"},
	internal.FieldDonorStatus:  {"donor status", "status"},
	internal.FieldLastDonation: {"last donation date", "last donation", "donation date"},
	internal.FieldBirthdate:    {"dob", "birthday", "birth date", "date of birth", "birthdate"},
}

// SuggestMapping proposes a column per canonical field: exact synonym match
// first, substring match second, first unclaimed column as a last resort.
// Exact always beats substring so "Donor Phone" cannot lose to a column
// that merely contains "phone". Each column is claimed at most once.
// Headers are compared with accents folded, so a localized header like
// "Téléphone" still reaches the phone synonyms.
func SuggestMapping(columns []string, synonyms map[internal.Field][]string) []Suggestion {
	if synonyms == nil {
		synonyms = DefaultSynonyms
	}
	claimed := map[int]bool{}
	out := []Suggestion{}

	claim := func(field internal.Field, idx int, confidence string) {
		claimed[idx] = true
		out = append(out, Suggestion{Field: field, Column: columns[idx], Confidence: confidence})
	}

	for _, field := range mappableFields {
		probes := synonyms[field]
		idx := matchColumn(columns, claimed, probes, true)
		if idx >= 0 {
			claim(field, idx, SuggestExact)
			continue
		}
		idx = matchColumn(columns, claimed, probes, false)
		if idx >= 0 {
			claim(field, idx, SuggestPartial)
			continue
		}
		if idx = firstUnclaimed(columns, claimed); idx >= 0 {
			claim(field, idx, SuggestDefault)
		}
	}
	return out
}

func matchColumn(columns []string, claimed map[int]bool, probes []string, exact bool) int {
	for _, probe := range probes {
		for i, col := range columns {
			if claimed[i] {
				continue
			}
			have := strings.ToLower(util.FoldDiacritics(util.CollapseSpaces(col)))
			if exact && have == probe {
				return i
			}
			if !exact && strings.Contains(have, probe) {
				return i
			}
		}
	}
	return -1
}

func firstUnclaimed(columns []string, claimed map[int]bool) int {
	for i := range columns {
		if !claimed[i] {
			return i
		}
	}
	return -1
}

// MappingFromSuggestions converts an accepted suggestion list into a
// mapping. The operator confirms or edits before the batch runs.
func MappingFromSuggestions(suggestions []Suggestion) internal.FieldMapping {
	mapping := internal.FieldMapping{}
	for _, s := range suggestions {
		mapping[s.Field] = s.Column
	}
	return mapping
}

// ColumnSamples returns up to limit non-empty values of one column, for
// the operator preview that confirms a birthdate mapping.
func ColumnSamples(table internal.RawTable, column string, limit int) []string {
	idx := findColumn(table.Columns, column, true)
	if idx < 0 {
		return nil
	}
	out := []string{}
	for _, row := range table.Rows {
		if idx >= len(row) {
			continue
		}
		v := strings.TrimSpace(row[idx])
		if v == "" {
			continue
		}
		out = append(out, v)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// LoadMappingFile reads an operator-confirmed mapping from a JSON object of
// canonical field name to source column name.
func LoadMappingFile(path string) (internal.FieldMapping, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw := map[string]string{}
	if err := json.Unmarshal(blob, &raw); err != nil {
		return nil, fmt.Errorf("parse mapping file %s: %w", path, err)
	}
	mapping := internal.FieldMapping{}
	for name, col := range raw {
		field := internal.Field(name)
		if !knownFields[field] {
			return nil, fmt.Errorf("mapping file %s: unknown field %q", path, name)
		}
		mapping[field] = col
	}
	return mapping, nil
}

// LoadSynonymsFile overlays per-field synonym lists from a JSON object onto
// the defaults.
func LoadSynonymsFile(path string) (map[internal.Field][]string, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw := map[string][]string{}
	if err := json.Unmarshal(blob, &raw); err != nil {
		return nil, fmt.Errorf("parse synonyms file %s: %w", path, err)
	}
	out := map[internal.Field][]string{}
	for field, probes := range DefaultSynonyms {
		out[field] = probes
	}
	for name, probes := range raw {
		field := internal.Field(name)
		if !knownFields[field] {
			return nil, fmt.Errorf("synonyms file %s: unknown field %q", path, name)
		}
		lowered := make([]string, 0, len(probes))
		for _, p := range probes {
			lowered = append(lowered, strings.ToLower(util.FoldDiacritics(util.CollapseSpaces(p))))
		}
		out[field] = lowered
	}
	return out, nil
}
