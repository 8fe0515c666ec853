package pipeline

import "donorsync/internal"

// Merge computes the full next-state registry: rows matching an updated key
// are replaced, new rows appended, everything else passes through in its
// original order. Removal is by composite key, so updating a donor number
// at one center never disturbs the same number at another center.
func Merge(master []internal.MasterRecord, outcome internal.Outcome) []internal.MasterRecord {
	updated := make(map[string]bool, len(outcome.Updated))
	for _, u := range outcome.Updated {
		updated[u.Record.Key()] = true
	}

	out := make([]internal.MasterRecord, 0, len(master)+len(outcome.Updated)+len(outcome.New))
	for _, m := range master {
		if updated[m.Key()] {
			continue
		}
		out = append(out, m)
	}
	for _, u := range outcome.Updated {
		out = append(out, ToMaster(u.Record))
	}
	for _, r := range outcome.New {
		out = append(out, ToMaster(r))
	}
	return out
}

// ToMaster renames facility to center. All fields keep their display
// values, never the standardized comparison forms.
func ToMaster(r internal.DonorRecord) internal.MasterRecord {
	return internal.MasterRecord{
		DonorNumber: r.DonorNumber,
		DonorFirst:  r.DonorFirst,
		DonorLast:   r.DonorLast,
		Email:       r.Email,
		Account:     r.Account,
		Phone:       r.Phone,
		Address:     r.Address,
		Zip:         r.Zip,
		Status:      r.Status,
		Center:      r.Facility,
		Birthdate:   r.Birthdate,
	}
}
