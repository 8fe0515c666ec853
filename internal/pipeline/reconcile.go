package pipeline

import (
	"strings"

	"donorsync/internal"
	"donorsync/internal/util"
)

// Reconcile joins one normalized batch against a registry snapshot on the
// composite key. There is no secondary matching: an unmatched key is a new
// donor, unconditionally. Two records sharing a donor number at different
// facilities are independent matches.
func Reconcile(records []internal.DonorRecord, master []internal.MasterRecord, schema internal.RegistrySchema, batchHasBirthdate bool) internal.Outcome {
	byKey := make(map[string]internal.MasterRecord, len(master))
	for _, m := range master {
		byKey[m.Key()] = m
	}

	compareBirthdate := schema.HasBirthdate && batchHasBirthdate

	out := internal.Outcome{BirthdateTracked: compareBirthdate}
	for _, rec := range records {
		if strings.TrimSpace(rec.DonorNumber) == "" || strings.TrimSpace(rec.Facility) == "" {
			out.Skipped++
			continue
		}
		m, ok := byKey[rec.Key()]
		if !ok {
			out.New = append(out.New, rec)
			continue
		}
		changes := diff(rec, m, compareBirthdate)
		if changes.Any() {
			out.Updated = append(out.Updated, internal.UpdatedDonor{Record: rec, Master: m, Changes: changes})
		} else {
			out.Unchanged++
		}
	}
	return out
}

// diff compares the outreach-relevant fields on their standardized forms,
// so punctuation and casing differences never register as updates. The
// birthdate only participates when batch and registry both track it.
func diff(rec internal.DonorRecord, m internal.MasterRecord, compareBirthdate bool) internal.FieldChanges {
	eq := func(a, b string) bool { return util.Standardize(a) == util.Standardize(b) }
	c := internal.FieldChanges{
		Email:   !eq(rec.Email, m.Email),
		Phone:   !eq(rec.Phone, m.Phone),
		Address: !eq(rec.Address, m.Address),
		Center:  !eq(rec.Facility, m.Center),
	}
	if compareBirthdate {
		c.Birthdate = !eq(rec.Birthdate, m.Birthdate)
	}
	return c
}
