// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package contig reads annotated contig tables.
//
// A contig table is a tab-separated file with a header row and one row per
// contig. Coordinates are zero-based offsets into full_seq; -1 marks absent
// segments and unknown coordinates. Quality scores are phred+33 encoded, as
// in FASTQ. Files ending in .gz or .sz are decompressed.
package contig

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/clonotype/encoding/compress"
	"github.com/grailbio/clonotype/encoding/fastq"
	"github.com/grailbio/clonotype/vdj"
)

// Row is one line of a contig table.
type Row struct {
	Dataset   int    `tsv:"dataset"`
	Origin    int    `tsv:"origin"`
	Donor     int    `tsv:"donor"`
	Barcode   string `tsv:"barcode"`
	TigName   string `tsv:"contig_name"`
	Chain     string `tsv:"chain"`
	Full      string `tsv:"full_seq"`
	Quals     string `tsv:"quals"`
	VStart    int    `tsv:"v_start"`
	JStop     int    `tsv:"j_stop"`
	CStart    int    `tsv:"c_start"`
	CDR3Start int    `tsv:"cdr3_start"`
	CDR3      string `tsv:"cdr3_nt"`
	URef      int    `tsv:"u_ref"`
	VRef      int    `tsv:"v_ref"`
	DRef      int    `tsv:"d_ref"`
	JRef      int    `tsv:"j_ref"`
	CRef      int    `tsv:"c_ref"`
	Fr1Start  int    `tsv:"fr1_start"`
	Cdr1Start int    `tsv:"cdr1_start"`
	Fr2Start  int    `tsv:"fr2_start"`
	Cdr2Start int    `tsv:"cdr2_start"`
	Fr3Start  int    `tsv:"fr3_start"`
	UMIs      int    `tsv:"umis"`
	Reads     int    `tsv:"reads"`
}

// Header lists the columns of a contig table, in order.
var Header = []string{
	"dataset", "origin", "donor", "barcode", "contig_name", "chain", "full_seq", "quals",
	"v_start", "j_stop", "c_start", "cdr3_start", "cdr3_nt",
	"u_ref", "v_ref", "d_ref", "j_ref", "c_ref",
	"fr1_start", "cdr1_start", "fr2_start", "cdr2_start", "fr3_start",
	"umis", "reads",
}

func validChain(c string) bool {
	switch c {
	case "IGH", "IGK", "IGL", "TRA", "TRB", "TRG", "TRD":
		return true
	}
	return false
}

// TigData converts r. The result is validated.
func (r *Row) TigData() (vdj.TigData, error) {
	if !validChain(r.Chain) {
		return vdj.TigData{}, errors.E(errors.Invalid, fmt.Sprintf("contig %s: unknown chain %q", r.TigName, r.Chain))
	}
	quals, err := fastq.DecodeQuals(r.Quals)
	if err != nil {
		return vdj.TigData{}, errors.E(errors.Invalid, fmt.Sprintf("contig %s", r.TigName), err)
	}
	t := vdj.TigData{
		Dataset:   r.Dataset,
		Origin:    r.Origin,
		Donor:     r.Donor,
		Barcode:   r.Barcode,
		TigName:   r.TigName,
		ChainType: r.Chain,
		Left:      vdj.IsLeft(r.Chain),
		Full:      r.Full,
		Quals:     quals,
		VStart:    r.VStart,
		JStop:     r.JStop,
		CStart:    r.CStart,
		CDR3Start: r.CDR3Start,
		CDR3:      r.CDR3,
		URefID:    r.URef,
		VRefID:    r.VRef,
		DRefID:    r.DRef,
		JRefID:    r.JRef,
		CRefID:    r.CRef,
		Fr1Start:  r.Fr1Start,
		Cdr1Start: r.Cdr1Start,
		Fr2Start:  r.Fr2Start,
		Cdr2Start: r.Cdr2Start,
		Fr3Start:  r.Fr3Start,
		UMICount:  r.UMIs,
		ReadCount: r.Reads,
	}
	return t, t.Validate()
}

// Parse reads a contig table from r.
func Parse(r io.Reader) ([]vdj.TigData, error) {
	tr := tsv.NewReader(bufio.NewReaderSize(r, 1<<20))
	tr.HasHeaderRow = true
	tr.UseHeaderNames = true
	// Quality strings may contain '"'.
	tr.LazyQuotes = true
	var tigs []vdj.TigData
	for line := 2; ; line++ {
		var row Row
		if err := tr.Read(&row); err != nil {
			if err == io.EOF {
				return tigs, nil
			}
			return nil, errors.E(errors.Invalid, fmt.Sprintf("line %d", line), err)
		}
		t, err := row.TigData()
		if err != nil {
			return nil, errors.E(fmt.Sprintf("line %d", line), err)
		}
		tigs = append(tigs, t)
	}
}

// Read reads the contig table at path, which may be compressed.
func Read(ctx context.Context, path string) (tigs []vdj.TigData, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "contig", path)
	}
	defer func() {
		if e := in.Close(ctx); e != nil && err == nil {
			err = errors.E(e, "contig", path)
		}
	}()
	r, err := compress.NewReader(in.Reader(ctx), path)
	if err != nil {
		return nil, errors.E(err, "contig", path)
	}
	if tigs, err = Parse(r); err != nil {
		return nil, errors.E(err, path)
	}
	log.Printf("contig: read %d contigs from %s", len(tigs), path)
	return tigs, nil
}
