// Copyright 2017 Cameron Bergoon
// https://github.com/cbergoon/merkletree
// Licensed under the MIT License, see LICENCE file for details.

package merkle_test

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/ardanlabs/signchain/foundation/blockchain/merkle"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// data uses the sha256 hashing algorithm for the merkle tree.
type data struct {
	x string
}

func (d data) Hash() ([]byte, error) {
	h := sha256.Sum256([]byte(d.x))
	return h[:], nil
}

func (d data) Equals(other data) bool {
	return d.x == other.x
}

// =============================================================================

func Test_Tree(t *testing.T) {
	type table struct {
		name   string
		values []data
	}

	tt := []table{
		{name: "empty", values: nil},
		{name: "one", values: []data{{"a"}}},
		{name: "odd", values: []data{{"a"}, {"b"}, {"c"}}},
		{name: "even", values: []data{{"a"}, {"b"}, {"c"}, {"d"}}},
		{name: "five", values: []data{{"a"}, {"b"}, {"c"}, {"d"}, {"e"}}},
	}

	t.Log("Given the need to commit to a set of values.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen handling %d values.", testID, len(tst.values))
			{
				f := func(t *testing.T) {
					tree, err := merkle.NewTree(tst.values)
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to build the tree: %v", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould be able to build the tree.", success, testID)

					if err := tree.Verify(); err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to verify the tree: %v", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould be able to verify the tree.", success, testID)

					values := tree.Values()
					if len(values) != len(tst.values) {
						t.Logf("\t%s\tTest %d:\tgot: %d", failed, testID, len(values))
						t.Logf("\t%s\tTest %d:\texp: %d", failed, testID, len(tst.values))
						t.Fatalf("\t%s\tTest %d:\tShould get back the same values.", failed, testID)
					}
					for i := range values {
						if !values[i].Equals(tst.values[i]) {
							t.Fatalf("\t%s\tTest %d:\tShould get back the values in order.", failed, testID)
						}
					}
					t.Logf("\t%s\tTest %d:\tShould get back the values in order.", success, testID)

					for _, v := range tst.values {
						proof, order, err := tree.Proof(v)
						if err != nil {
							t.Fatalf("\t%s\tTest %d:\tShould be able to get a proof: %v", failed, testID, err)
						}

						hash, _ := v.Hash()
						for i, p := range proof {
							var sum [32]byte
							switch order[i] {
							case 0:
								sum = sha256.Sum256(append(append([]byte{}, p...), hash...))
							default:
								sum = sha256.Sum256(append(append([]byte{}, hash...), p...))
							}
							hash = sum[:]
						}

						if !bytes.Equal(hash, tree.MerkleRoot) {
							t.Fatalf("\t%s\tTest %d:\tShould prove %q is in the tree.", failed, testID, v.x)
						}
					}
					t.Logf("\t%s\tTest %d:\tShould prove every value is in the tree.", success, testID)
				}

				t.Run(tst.name, f)
			}
		}
	}
}

func Test_RootChangesWithOrder(t *testing.T) {
	t1, err := merkle.NewTree([]data{{"a"}, {"b"}})
	if err != nil {
		t.Fatalf("Should be able to build the tree: %v", err)
	}

	t2, err := merkle.NewTree([]data{{"b"}, {"a"}})
	if err != nil {
		t.Fatalf("Should be able to build the tree: %v", err)
	}

	if t1.RootHex() == t2.RootHex() {
		t.Fatalf("Should get a different root when the order changes.")
	}
}
