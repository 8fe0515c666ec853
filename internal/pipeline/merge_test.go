package pipeline

import (
	"testing"

	"donorsync/internal"
)

func TestMergePassthroughOrder(t *testing.T) {
	master := []internal.MasterRecord{
		masterRec("P100", "DALLAS"),
		masterRec("P200", "DALLAS"),
		masterRec("P300", "DALLAS"),
	}
	r := batchRec("P200", "DALLAS")
	r.Email = "changed@example.com"
	outcome := Reconcile([]internal.DonorRecord{r}, master, internal.RegistrySchema{}, false)

	merged := Merge(master, outcome)
	if len(merged) != 3 {
		t.Fatalf("len=%d", len(merged))
	}
	// Untouched rows keep their order; the replacement moves to the end.
	if merged[0].DonorNumber != "P100" || merged[1].DonorNumber != "P300" {
		t.Fatalf("order=%v %v", merged[0].DonorNumber, merged[1].DonorNumber)
	}
	if merged[2].DonorNumber != "P200" || merged[2].Email != "changed@example.com" {
		t.Fatalf("updated row wrong: %+v", merged[2])
	}
}

func TestMergeRemovesByCompositeKey(t *testing.T) {
	master := []internal.MasterRecord{
		masterRec("P100", "DALLAS"),
		masterRec("P100", "PHOENIX"),
	}
	r := batchRec("P100", "DALLAS")
	r.Phone = "1(480) 555-0100"
	outcome := Reconcile([]internal.DonorRecord{r}, master, internal.RegistrySchema{}, false)

	merged := Merge(master, outcome)
	if len(merged) != 2 {
		t.Fatalf("len=%d", len(merged))
	}
	// The Phoenix entry with the same donor number survives untouched.
	if merged[0].Center != "PHOENIX" || merged[0].Phone != "1(214) 555-0142" {
		t.Fatalf("sibling entry disturbed: %+v", merged[0])
	}
	if merged[1].Center != "DALLAS" || merged[1].Phone != "1(480) 555-0100" {
		t.Fatalf("updated entry wrong: %+v", merged[1])
	}
}

func TestMergeAppendsNew(t *testing.T) {
	master := []internal.MasterRecord{masterRec("P100", "DALLAS")}
	outcome := Reconcile([]internal.DonorRecord{batchRec("P900", "TUCSON")}, master, internal.RegistrySchema{}, false)

	merged := Merge(master, outcome)
	if len(merged) != 2 {
		t.Fatalf("len=%d", len(merged))
	}
	if merged[1].DonorNumber != "P900" || merged[1].Center != "TUCSON" {
		t.Fatalf("new row wrong: %+v", merged[1])
	}
}

func TestMergeKeepsDisplayValues(t *testing.T) {
	r := batchRec("P900", "TUCSON")
	r.Email = "Mixed.Case@Example.com"
	outcome := Reconcile([]internal.DonorRecord{r}, nil, internal.RegistrySchema{}, false)

	merged := Merge(nil, outcome)
	if merged[0].Email != "Mixed.Case@Example.com" {
		t.Fatalf("standardized form leaked into master: %q", merged[0].Email)
	}
}
