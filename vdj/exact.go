// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package vdj

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/minio/highwayhash"
)

// TigShare holds the per-chain data common to all cells of an
// ExactClonotype. Coordinates are relative to Seq unless noted.
type TigShare struct {
	ChainType string
	Left      bool

	// Seq is the V..J sequence. Full is the UTR consensus, followed by Seq,
	// followed by the constant region consensus.
	Seq  string
	Full string
	// VStart and JStop locate Seq within Full.
	VStart, JStop int

	CDR3      string
	CDR3Start int

	URefID, VRefID, DRefID, JRefID, CRefID int
	// VRefAlt indexes the AltRef table, or is Absent when the universal
	// reference explains the chain best.
	VRefAlt int

	Fr1Start, Cdr1Start, Fr2Start, Cdr2Start, Fr3Start int
}

// CloneTig is the per-cell, per-chain data of a Clone. Quals covers Seq.
type CloneTig struct {
	TigName   string
	UMICount  int
	ReadCount int
	Quals     []byte
}

// Clone is one cell of an ExactClonotype.
type Clone struct {
	Barcode string
	Dataset int
	Origin  int
	Donor   int
	// Marked is set on cells that the cell oracle rejected but that were
	// kept because exact.Opts.MarkNonCells is set.
	Marked bool
	Tigs   []CloneTig
}

// Digest identifies an ExactClonotype by content. It gives a total order on
// exact subclonotypes that does not depend on processing order.
type Digest [highwayhash.Size]byte

var digestKey = [32]byte{
	'c', 'l', 'o', 'n', 'o', 't', 'y', 'p', 'e', '-', 'e', 'x', 'a', 'c', 't', '-',
	'd', 'i', 'g', 'e', 's', 't', '-', 'k', 'e', 'y', '-', '0', '0', '0', '0', '1'}

// Less compares two digests bytewise.
func (d Digest) Less(o Digest) bool { return bytes.Compare(d[:], o[:]) < 0 }

// ExactClonotype is a set of cells with identical receptor sequences.
type ExactClonotype struct {
	Share  []TigShare
	Clones []Clone
	Digest Digest
}

// NCells returns the number of cells in the exact subclonotype.
func (e *ExactClonotype) NCells() int { return len(e.Clones) }

// NChains returns the number of chains of the exact subclonotype.
func (e *ExactClonotype) NChains() int { return len(e.Share) }

// Donors returns the sorted distinct donors of the cells of e.
func (e *ExactClonotype) Donors() []int {
	return distinctInts(e.Clones, func(c *Clone) int { return c.Donor })
}

// Datasets returns the sorted distinct datasets of the cells of e.
func (e *ExactClonotype) Datasets() []int {
	return distinctInts(e.Clones, func(c *Clone) int { return c.Dataset })
}

// ComputeDigest fills e.Digest from the chain sequences, constant regions and
// donors of e.
func (e *ExactClonotype) ComputeDigest() {
	var buf bytes.Buffer
	var b [8]byte
	for i := range e.Share {
		s := &e.Share[i]
		buf.WriteString(s.ChainType)
		buf.WriteByte(0)
		buf.WriteString(s.Seq)
		buf.WriteByte(0)
		buf.WriteString(s.CDR3)
		buf.WriteByte(0)
		binary.LittleEndian.PutUint64(b[:], uint64(int64(s.CRefID)))
		buf.Write(b[:])
	}
	for _, d := range e.Donors() {
		binary.LittleEndian.PutUint64(b[:], uint64(int64(d)))
		buf.Write(b[:])
	}
	e.Digest = highwayhash.Sum(buf.Bytes(), digestKey[:])
}

func distinctInts(clones []Clone, get func(*Clone) int) []int {
	if len(clones) == 0 {
		return nil
	}
	v := make([]int, len(clones))
	for i := range clones {
		v[i] = get(&clones[i])
	}
	sort.Ints(v)
	n := 0
	for i, x := range v {
		if i == 0 || x != v[n-1] {
			v[n] = x
			n++
		}
	}
	return v[:n]
}
