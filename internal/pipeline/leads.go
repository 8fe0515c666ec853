package pipeline

import "donorsync/internal"

// Leads selects donors who may need outreach: every new donor, plus every
// updated donor whose phone, email, or tracked birthdate changed. Address
// or center moves alone do not make a lead.
func Leads(outcome internal.Outcome) []internal.Lead {
	out := make([]internal.Lead, 0, len(outcome.New)+len(outcome.Updated))
	for _, r := range outcome.New {
		out = append(out, internal.Lead{Record: r, Kind: internal.LeadNew})
	}
	for _, u := range outcome.Updated {
		if u.Changes.Contact() {
			out = append(out, internal.Lead{Record: u.Record, Kind: internal.LeadUpdated})
		}
	}
	return out
}
