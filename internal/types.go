package internal

// Field names the canonical batch columns. Source exports use arbitrary
// header spellings; the schema mapper resolves them onto these.
type Field string

const (
	FieldDonorNumber  Field = "donor_number"
	FieldDonorName    Field = "donor_name"
	FieldDonorFirst   Field = "donor_first"
	FieldDonorLast    Field = "donor_last"
	FieldDonorEmail   Field = "donor_email"
	FieldDonorAccount Field = "donor_account"
	FieldDonorPhone   Field = "donor_phone"
	FieldFacility     Field = "facility"
	FieldAddressLine1 Field = "address_line1"
	FieldAddressLine2 Field = "address_line2"
	FieldCity         Field = "city"
	FieldZipCode      Field = "zip_code"
	FieldDonorStatus  Field = "donor_status"
	FieldLastDonation Field = "last_donation_date"
	FieldBirthdate    Field = "birthdate"
)

// RawTable is one uploaded batch as read from disk: header row plus data
// rows, all values as opaque strings. Donor numbers are never parsed as
// numbers.
type RawTable struct {
	Columns []string
	Rows    [][]string
}

// FieldMapping resolves canonical fields to source column names. Absent
// entries omit the field from all downstream records.
type FieldMapping map[Field]string

// DonorRecord is the canonical per-visit record after normalization.
// Empty string means absent; Birthdate is ISO (YYYY-MM-DD) when parseable.
type DonorRecord struct {
	DonorNumber string
	DonorFirst  string
	DonorLast   string
	Email       string
	Account     string
	Phone       string
	Address     string
	Zip         string
	Status      string
	Facility    string
	Birthdate   string
}

// MasterRecord is one row of the standing registry. Identity is the
// (DonorNumber, Center) pair; the same donor number may exist at several
// centers independently.
type MasterRecord struct {
	DonorNumber string
	DonorFirst  string
	DonorLast   string
	Email       string
	Account     string
	Phone       string
	Address     string
	Zip         string
	Status      string
	Center      string
	Birthdate   string
}

// CompositeKey is the sole join key between batch and registry.
func CompositeKey(donorNumber, center string) string {
	return donorNumber + "_" + center
}

func (r DonorRecord) Key() string  { return CompositeKey(r.DonorNumber, r.Facility) }
func (r MasterRecord) Key() string { return CompositeKey(r.DonorNumber, r.Center) }

// RegistrySchema captures which optional columns the persisted registry
// carries. The trailing Birthday column was added to the sheet later, so
// both layouts remain in the wild.
type RegistrySchema struct {
	HasBirthdate bool
}

// FieldChanges is the per-record change mask computed by reconciliation.
// All comparisons were made on standardized values.
type FieldChanges struct {
	Email     bool
	Phone     bool
	Address   bool
	Center    bool
	Birthdate bool
}

func (c FieldChanges) Any() bool {
	return c.Email || c.Phone || c.Address || c.Center || c.Birthdate
}

// Contact reports whether an outreach-relevant channel changed.
func (c FieldChanges) Contact() bool {
	return c.Email || c.Phone || c.Birthdate
}

// UpdatedDonor pairs a matched batch record with the master row it
// supersedes.
type UpdatedDonor struct {
	Record  DonorRecord
	Master  MasterRecord
	Changes FieldChanges
}

// Outcome is the result of reconciling one batch against the registry.
// BirthdateTracked records whether both sides carried a birthdate, so
// exports built later from a stored outcome render the same columns.
type Outcome struct {
	New              []DonorRecord
	Updated          []UpdatedDonor
	Unchanged        int
	Skipped          int
	BirthdateTracked bool
}

type LeadKind string

const (
	LeadNew     LeadKind = "new"
	LeadUpdated LeadKind = "updated"
)

// Lead is a donor whose contact channel is fresh or changed and who may
// need outreach.
type Lead struct {
	Record DonorRecord
	Kind   LeadKind
}

// Batch lifecycle statuses.
const (
	BatchReceived   = "received"
	BatchReconciled = "reconciled"
	BatchPushed     = "pushed"
	BatchExported   = "exported"
	BatchFailed     = "failed"
)

// BatchRow is one entry of the local batch ledger.
type BatchRow struct {
	ID         int
	Filename   string
	Hash       string
	Status     string
	ReceivedAt string
	RawRef     string
	LastError  string
}
