// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package join scores candidate links between pairs of CloneInfo entries.
package join

import (
	"github.com/grailbio/clonotype/vdj"
)

// Scorer proposes joins between two CloneInfo entries with identical chain
// length signatures. Implementations must be deterministic and safe for
// concurrent use, and return an empty result when no join is plausible.
type Scorer interface {
	Score(a, b *vdj.CloneInfo) []vdj.PotentialJoin
}

// Opts configures DefaultScorer.
type Opts struct {
	// MaxCDR3Diffs is the largest number of CDR3 nucleotide differences,
	// summed over chains, of an accepted join.
	MaxCDR3Diffs int
	// CDR3Weight is the weight of one CDR3 difference in the score,
	// relative to one independent mutation elsewhere.
	CDR3Weight float64
	// MaxScore is the largest score of an accepted join.
	MaxScore float64
}

// DefaultOpts is the default configuration.
var DefaultOpts = Opts{
	MaxCDR3Diffs: 10,
	CDR3Weight:   3,
	MaxScore:     60,
}

// DefaultScorer scores joins by counting somatic mutations. A mutation is a
// V segment position where a chain differs from its reference. Mutations
// carried by both entries at the same position are shared evidence of a
// common ancestor; all other differences between the chains are independent.
//
// A join is proposed when the chains have identical types and CDR3 lengths,
// the CDR3s differ at no more than MaxCDR3Diffs positions, those differences
// are outnumbered by shared mutations (or absent), and the score, the
// weighted sum of CDR3 differences and independent mutations, is at most
// MaxScore. Joins between entries without a common donor are flagged Err.
type DefaultScorer struct {
	Opts Opts
}

// NewDefaultScorer creates a DefaultScorer.
func NewDefaultScorer(opts Opts) *DefaultScorer { return &DefaultScorer{Opts: opts} }

// Score implements Scorer.
func (s *DefaultScorer) Score(a, b *vdj.CloneInfo) []vdj.PotentialJoin {
	if !vdj.SameLens(a, b) {
		return nil
	}
	n := len(a.Lens)
	cd := 0
	for m := 0; m < n; m++ {
		if a.ChainTypes[m] != b.ChainTypes[m] || len(a.CDR3s[m]) != len(b.CDR3s[m]) {
			return nil
		}
		for i := range a.CDR3s[m] {
			if a.CDR3s[m][i] != b.CDR3s[m][i] {
				cd++
			}
		}
	}
	if cd > s.Opts.MaxCDR3Diffs {
		return nil
	}
	j := vdj.PotentialJoin{
		K1:        a.Index,
		K2:        b.Index,
		CDR3Diffs: cd,
		Shares:    make([]int, n),
		Indeps:    make([]int, n),
	}
	totalShares, totalIndeps := 0, 0
	for m := 0; m < n; m++ {
		j.Shares[m], j.Indeps[m] = mutations(a, b, m)
		totalShares += j.Shares[m]
		totalIndeps += j.Indeps[m]
	}
	if cd > 0 && cd > totalShares {
		return nil
	}
	j.Score = s.Opts.CDR3Weight*float64(cd) + float64(totalIndeps)
	if j.Score > s.Opts.MaxScore {
		return nil
	}
	j.Err = !intersects(a.Donors, b.Donors)
	return []vdj.PotentialJoin{j}
}

// cdr3Span returns the CDR3 interval of chain m of c.
func cdr3Span(c *vdj.CloneInfo, m int) (int, int) {
	return c.CDR3Starts[m], c.CDR3Starts[m] + len(c.CDR3s[m])
}

// mutations counts the shared and independent mutations of chain m outside
// the CDR3. Chain m of a and b has the same length.
func mutations(a, b *vdj.CloneInfo, m int) (shares, indeps int) {
	x, y := a.Tigs[m], b.Tigs[m]
	rx, ry := a.VRefSeqs[m], b.VRefSeqs[m]
	xs, xe := cdr3Span(a, m)
	ys, ye := cdr3Span(b, m)
	for p := 0; p < len(x); p++ {
		if (p >= xs && p < xe) || (p >= ys && p < ye) {
			continue
		}
		inRef := p < len(rx) && p < len(ry)
		switch {
		case x[p] != y[p]:
			indeps++
		case inRef && x[p] != rx[p] && y[p] != ry[p]:
			shares++
		}
	}
	return
}

func intersects(a, b []int) bool {
	if len(a) == 0 || len(b) == 0 {
		return true
	}
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
