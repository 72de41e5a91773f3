package genesis_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ardanlabs/signchain/foundation/blockchain/genesis"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_SaveLoad(t *testing.T) {
	gen := genesis.Genesis{
		Date:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		ChainID:   1,
		Signers:   []string{"0xF01813E4B85e178A83e29B8E7bF26BD830a25f32", "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4"},
		Threshold: 2,
		Allocations: map[string]uint64{
			"0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4": 500,
			"0xF01813E4B85e178A83e29B8E7bF26BD830a25f32": 1000,
		},
	}

	t.Log("Given the need to persist the genesis file.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen saving and loading a two of two genesis.", testID)
		{
			path := filepath.Join(t.TempDir(), "genesis.json")

			if err := gen.Save(path); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to save the genesis: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to save the genesis.", success, testID)

			got, err := genesis.Load(path)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to load the genesis: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to load the genesis.", success, testID)

			if got.Required() != 2 || len(got.Signers) != 2 || got.Allocations[gen.Signers[0]] != 1000 {
				t.Fatalf("\t%s\tTest %d:\tShould get the same values back: %+v", failed, testID, got)
			}
			t.Logf("\t%s\tTest %d:\tShould get the same values back.", success, testID)

			addrs := got.SortedAllocations()
			if len(addrs) != 2 || addrs[0] > addrs[1] {
				t.Fatalf("\t%s\tTest %d:\tShould sort the allocations: %v", failed, testID, addrs)
			}
			t.Logf("\t%s\tTest %d:\tShould sort the allocations.", success, testID)
		}
	}
}

func Test_Validate(t *testing.T) {
	tt := []struct {
		name string
		gen  genesis.Genesis
		req  int
		ok   bool
	}{
		{"default", genesis.Genesis{Signers: []string{"a"}}, 1, true},
		{"nosigners", genesis.Genesis{}, 1, false},
		{"threshold", genesis.Genesis{Signers: []string{"a"}, Threshold: 2}, 2, false},
		{"negative", genesis.Genesis{Signers: []string{"a"}, Threshold: -1}, 1, false},
	}

	t.Log("Given the need to validate genesis values.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen handling the %s genesis.", testID, tst.name)
				{
					err := tst.gen.Validate()
					if (err == nil) != tst.ok {
						t.Fatalf("\t%s\tTest %d:\tShould get valid=%v, got %v.", failed, testID, tst.ok, err)
					}
					t.Logf("\t%s\tTest %d:\tShould get valid=%v.", success, testID, tst.ok)

					if tst.ok && tst.gen.Required() != tst.req {
						t.Fatalf("\t%s\tTest %d:\tShould require %d signers.", failed, testID, tst.req)
					}
				}
			}

			t.Run(tst.name, f)
		}
	}
}
