// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package vdj

// CloneInfo is the unit compared and joined by the clustering stage. Each
// CloneInfo refers to exactly one ExactClonotype, and carries copies of the
// per-chain fields needed to score joins.
type CloneInfo struct {
	// Index is the position of this entry in the CloneInfo slice.
	Index int
	// Exact is the index of the referenced ExactClonotype.
	Exact int

	// Lens holds the length of each chain's V..J sequence. Only entries with
	// identical Lens are ever compared.
	Lens       []int
	Tigs       []string
	CDR3s      []string
	CDR3Starts []int
	ChainTypes []string
	VRefIDs    []int
	JRefIDs    []int
	// VRefSeqs holds the V reference each chain is best explained by, after
	// allele correction.
	VRefSeqs []string

	Donors  []int
	Origins []int
	NCells  int
}

// SameLens reports whether a and b have identical chain length signatures.
func SameLens(a, b *CloneInfo) bool {
	if len(a.Lens) != len(b.Lens) {
		return false
	}
	for i := range a.Lens {
		if a.Lens[i] != b.Lens[i] {
			return false
		}
	}
	return true
}

// LessLens orders CloneInfos by chain count, then lexicographically by
// chain lengths.
func LessLens(a, b *CloneInfo) bool {
	if len(a.Lens) != len(b.Lens) {
		return len(a.Lens) < len(b.Lens)
	}
	for i := range a.Lens {
		if a.Lens[i] != b.Lens[i] {
			return a.Lens[i] < b.Lens[i]
		}
	}
	return false
}

// PotentialJoin is a candidate link between CloneInfo entries K1 and K2.
type PotentialJoin struct {
	K1, K2 int
	Score  float64
	// CDR3Diffs counts nucleotide differences summed over the CDR3s.
	CDR3Diffs int
	// Shares[m] counts somatic mutations that both entries carry on chain m;
	// Indeps[m] counts mutations carried by only one of them.
	Shares []int
	Indeps []int
	// Err marks a join that is applied but believed spurious.
	Err bool
}

// MinShares returns the minimum of j.Shares, or 0 if there are no chains.
func (j *PotentialJoin) MinShares() int {
	if len(j.Shares) == 0 {
		return 0
	}
	min := j.Shares[0]
	for _, s := range j.Shares[1:] {
		if s < min {
			min = s
		}
	}
	return min
}

// AltRef is a donor-specific allele of a V reference segment.
type AltRef struct {
	Donor int
	RefID int
	Seq   string
	// Support is the number of deduplicated observations carrying the allele.
	Support int
}
