package join

import (
	"testing"

	"github.com/grailbio/clonotype/vdj"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

const (
	vref  = "CAGGTGCAGCTGGTGCAGTCTGGGGCTGAGG"
	cdr3  = "TGTGCGAGAGATTACTGG"
	jpart = "GGCCAGGGAACC"
)

func mutate(s string, pos ...int) string {
	b := []byte(s)
	for _, p := range pos {
		if b[p] == 'A' {
			b[p] = 'C'
		} else {
			b[p] = 'A'
		}
	}
	return string(b)
}

// testInfo returns a one-chain CloneInfo whose V part carries mutations at
// the given positions.
func testInfo(index int, c string, donor int, vmuts ...int) vdj.CloneInfo {
	seq := mutate(vref, vmuts...) + c + jpart
	return vdj.CloneInfo{
		Index:      index,
		Exact:      index,
		Lens:       []int{len(seq)},
		Tigs:       []string{seq},
		CDR3s:      []string{c},
		CDR3Starts: []int{len(vref)},
		ChainTypes: []string{"IGH"},
		VRefIDs:    []int{1},
		JRefIDs:    []int{2},
		VRefSeqs:   []string{vref},
		Donors:     []int{donor},
		NCells:     1,
	}
}

func TestScoreIdentical(t *testing.T) {
	s := NewDefaultScorer(DefaultOpts)
	a := testInfo(0, cdr3, 0, 3, 7)
	b := testInfo(1, cdr3, 0, 3, 7)
	joins := s.Score(&a, &b)
	assert.EQ(t, len(joins), 1)
	j := joins[0]
	expect.EQ(t, j.K1, 0)
	expect.EQ(t, j.K2, 1)
	expect.EQ(t, j.CDR3Diffs, 0)
	expect.EQ(t, j.Shares, []int{2})
	expect.EQ(t, j.Indeps, []int{0})
	expect.EQ(t, j.Score, 0.0)
	expect.False(t, j.Err)
	expect.EQ(t, s.Score(&a, &b), joins)
}

func TestScoreCDR3Diffs(t *testing.T) {
	s := NewDefaultScorer(DefaultOpts)
	// Two CDR3 differences supported by three shared mutations.
	a := testInfo(0, cdr3, 0, 3, 7, 11)
	b := testInfo(1, mutate(cdr3, 4, 9), 0, 3, 7, 11, 20)
	joins := s.Score(&a, &b)
	assert.EQ(t, len(joins), 1)
	expect.EQ(t, joins[0].CDR3Diffs, 2)
	expect.EQ(t, joins[0].MinShares(), 3)
	expect.EQ(t, joins[0].Indeps, []int{1})
	expect.EQ(t, joins[0].Score, 7.0)

	// Without shared mutations, CDR3 differences are not explained.
	a = testInfo(0, cdr3, 0)
	b = testInfo(1, mutate(cdr3, 4), 0)
	expect.EQ(t, len(s.Score(&a, &b)), 0)
}

func TestScoreIncompatible(t *testing.T) {
	s := NewDefaultScorer(DefaultOpts)
	a := testInfo(0, cdr3, 0)
	b := testInfo(1, cdr3[:15], 0)
	expect.EQ(t, len(s.Score(&a, &b)), 0)

	b = testInfo(1, cdr3, 0)
	b.ChainTypes = []string{"TRB"}
	expect.EQ(t, len(s.Score(&a, &b)), 0)

	opts := DefaultOpts
	opts.MaxScore = 1
	a = testInfo(0, cdr3, 0, 1, 2, 3)
	b = testInfo(1, cdr3, 0, 4, 5, 6)
	expect.EQ(t, len(NewDefaultScorer(opts).Score(&a, &b)), 0)
	expect.EQ(t, len(s.Score(&a, &b)), 1)
}

func TestScoreDonorConflict(t *testing.T) {
	s := NewDefaultScorer(DefaultOpts)
	a := testInfo(0, cdr3, 0)
	b := testInfo(1, cdr3, 1)
	joins := s.Score(&a, &b)
	assert.EQ(t, len(joins), 1)
	expect.True(t, joins[0].Err)
}
