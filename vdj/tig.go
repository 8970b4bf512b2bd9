// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package vdj

import (
	"fmt"

	"github.com/grailbio/base/errors"
)

// Absent is stored in reference ids and coordinates that are not known.
const Absent = -1

// TigData is one annotated contig of one cell.
type TigData struct {
	Dataset int
	Origin  int
	Donor   int
	Barcode string
	TigName string

	// ChainType is one of IGH, IGK, IGL, TRA, TRB, TRG, TRD.
	ChainType string
	// Left is true for heavy chains (IGH) and TRB/TRD.
	Left bool

	// Full is the entire contig sequence and Quals holds one phred score
	// (not ASCII-offset) per base of Full.
	Full  string
	Quals []byte

	// VStart and JStop delimit the V..J sequence within Full, half-open.
	VStart, JStop int
	// CStart is the start of the constant region, or Absent.
	CStart int
	// CDR3Start is the start of the CDR3 within Full; CDR3 holds its bases.
	CDR3Start int
	CDR3      string

	URefID, VRefID, DRefID, JRefID, CRefID int

	// Feature starts within Full, or Absent.
	Fr1Start, Cdr1Start, Fr2Start, Cdr2Start, Fr3Start int

	UMICount  int
	ReadCount int
}

// IsLeft reports whether the given chain type is a heavy (or TRB/TRD) chain.
func IsLeft(chainType string) bool {
	switch chainType {
	case "IGH", "TRB", "TRD":
		return true
	}
	return false
}

// Seq returns the V..J sequence of the contig.
func (t *TigData) Seq() string { return t.Full[t.VStart:t.JStop] }

// Validate checks that the coordinates of t are consistent with its
// sequence. Errors are of kind errors.Invalid.
func (t *TigData) Validate() error {
	name := t.TigName
	if name == "" {
		name = t.Barcode
	}
	switch {
	case len(t.Quals) != len(t.Full):
		return errors.E(errors.Invalid, fmt.Sprintf("contig %s: %d quals for %d bases", name, len(t.Quals), len(t.Full)))
	case t.VStart < 0 || t.VStart > t.JStop:
		return errors.E(errors.Invalid, fmt.Sprintf("contig %s: bad V start %d (J stop %d)", name, t.VStart, t.JStop))
	case t.JStop > len(t.Full):
		return errors.E(errors.Invalid, fmt.Sprintf("contig %s: J stop %d exceeds length %d", name, t.JStop, len(t.Full)))
	case t.CDR3Start < t.VStart || t.CDR3Start+len(t.CDR3) > t.JStop:
		return errors.E(errors.Invalid, fmt.Sprintf("contig %s: CDR3 [%d,%d) outside V..J [%d,%d)",
			name, t.CDR3Start, t.CDR3Start+len(t.CDR3), t.VStart, t.JStop))
	case t.Full[t.CDR3Start:t.CDR3Start+len(t.CDR3)] != t.CDR3:
		return errors.E(errors.Invalid, fmt.Sprintf("contig %s: CDR3 does not match sequence", name))
	case t.CStart != Absent && (t.CStart < t.JStop || t.CStart > len(t.Full)):
		return errors.E(errors.Invalid, fmt.Sprintf("contig %s: C start %d inconsistent with J stop %d", name, t.CStart, t.JStop))
	}
	return nil
}
