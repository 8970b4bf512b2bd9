package vdj

import (
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/testutil/expect"
)

func validTig() TigData {
	full := "GGGACGTACGTTTTACGTAAAA"
	quals := make([]byte, len(full))
	return TigData{
		Barcode:   "AAAC-1",
		ChainType: "IGH",
		Left:      true,
		Full:      full,
		Quals:     quals,
		VStart:    3,
		JStop:     18,
		CStart:    18,
		CDR3Start: 10,
		CDR3:      "TTTT",
	}
}

func TestValidate(t *testing.T) {
	tig := validTig()
	expect.NoError(t, tig.Validate())
	expect.EQ(t, tig.Seq(), "ACGTACGTTTTACGT")

	for _, mod := range []func(*TigData){
		func(t *TigData) { t.JStop = len(t.Full) + 1 },
		func(t *TigData) { t.VStart = t.JStop + 1 },
		func(t *TigData) { t.Quals = t.Quals[1:] },
		func(t *TigData) { t.CDR3 = "TTTA" },
		func(t *TigData) { t.CDR3Start = 16 },
		func(t *TigData) { t.CStart = 10 },
	} {
		tig := validTig()
		mod(&tig)
		err := tig.Validate()
		expect.True(t, errors.Is(errors.Invalid, err), err)
	}
}

func TestDigest(t *testing.T) {
	e := ExactClonotype{
		Share:  []TigShare{{ChainType: "IGH", Seq: "ACGT", CDR3: "CG", CRefID: 3}},
		Clones: []Clone{{Donor: 1}, {Donor: 0}, {Donor: 1}},
	}
	e.ComputeDigest()
	d := e.Digest
	e.Clones = append(e.Clones, Clone{Donor: 0, Barcode: "X"})
	e.ComputeDigest()
	expect.EQ(t, e.Digest, d)
	expect.EQ(t, e.Donors(), []int{0, 1})

	e.Share[0].CRefID = 4
	e.ComputeDigest()
	expect.False(t, e.Digest == d)
	expect.True(t, e.Digest.Less(d) != d.Less(e.Digest))
}

func TestDistinct(t *testing.T) {
	e := ExactClonotype{Clones: []Clone{
		{Dataset: 3, Donor: 2}, {Dataset: 1, Donor: 2}, {Dataset: 3, Donor: 0}, {Dataset: 2, Donor: 2},
	}}
	expect.EQ(t, e.Datasets(), []int{1, 2, 3})
	expect.EQ(t, e.Donors(), []int{0, 2})
	expect.EQ(t, len((&ExactClonotype{}).Donors()), 0)
}

func TestLens(t *testing.T) {
	a := &CloneInfo{Lens: []int{10, 12}}
	b := &CloneInfo{Lens: []int{10, 14}}
	c := &CloneInfo{Lens: []int{20}}
	expect.True(t, SameLens(a, &CloneInfo{Lens: []int{10, 12}}))
	expect.False(t, SameLens(a, b))
	expect.True(t, LessLens(a, b))
	expect.True(t, LessLens(c, a))
	expect.False(t, LessLens(a, a))
	j := PotentialJoin{Shares: []int{4, 2, 7}}
	expect.EQ(t, j.MinShares(), 2)
}
