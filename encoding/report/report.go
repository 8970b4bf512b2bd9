// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package report writes the clonotypes computed by the pipeline.
//
// WriteFiles writes, for an output prefix P:
//
//	P.clonotypes.tsv  one row per chain of each exact subclonotype
//	P.fate.tsv        the reason each removed cell was removed
//	P.alleles.fa      the inferred alternate alleles
//	P.consensus.fq    the V..J sequence of each chain, with the best
//	                  quality observed at each base
//	P.errjoins.tsv    the joins believed spurious that were applied
//	P.metrics.tsv     run statistics
package report

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/clonotype/encoding/compress"
	"github.com/grailbio/clonotype/encoding/fastq"
	"github.com/grailbio/clonotype/fate"
	"github.com/grailbio/clonotype/pipeline"
	"github.com/grailbio/clonotype/refdata"
	"github.com/grailbio/clonotype/vdj"
)

// ClonotypeHeader lists the columns of the clonotype table.
var ClonotypeHeader = []string{
	"clonotype", "exact", "chain", "chain_type", "cdr3_nt", "v_ref", "v_allele", "j_ref", "cells", "marked", "barcodes",
}

func refName(ref *refdata.RefData, id int) string {
	if id == vdj.Absent {
		return ""
	}
	if name := ref.Name(id); name != "" {
		return name
	}
	return strconv.Itoa(id)
}

// WriteClonotypes writes the clonotype table of r. Clonotypes are numbered
// from 1 in the order of r.Orbits, and exact subclonotypes from 1 within
// their clonotype.
func WriteClonotypes(w io.Writer, r *pipeline.Result, ref *refdata.RefData) error {
	tw := tsv.NewWriter(w)
	for _, h := range ClonotypeHeader {
		tw.WriteString(h)
	}
	if err := tw.EndLine(); err != nil {
		return err
	}
	for i, o := range r.Orbits {
		for j, k := range o {
			e := &r.Exacts[r.Info[k].Exact]
			barcodes := make([]string, len(e.Clones))
			for c := range e.Clones {
				barcodes[c] = e.Clones[c].Barcode
			}
			sort.Strings(barcodes)
			for m := range e.Share {
				s := &e.Share[m]
				tw.WriteUint32(uint32(i + 1))
				tw.WriteUint32(uint32(j + 1))
				tw.WriteUint32(uint32(m + 1))
				tw.WriteString(s.ChainType)
				tw.WriteString(s.CDR3)
				tw.WriteString(refName(ref, s.VRefID))
				if s.VRefAlt == vdj.Absent {
					tw.WriteString("")
				} else {
					tw.WriteString(fmt.Sprintf("alt%d", s.VRefAlt+1))
				}
				tw.WriteString(refName(ref, s.JRefID))
				tw.WriteUint32(uint32(e.NCells()))
				tw.WriteUint32(uint32(marked))
				tw.WriteString(strings.Join(barcodes, ","))
				if err := tw.EndLine(); err != nil {
					return err
				}
			}
		}
	}
	return tw.Flush()
}

// WriteFates writes the fate records of m, ordered by dataset and barcode.
func WriteFates(w io.Writer, m *fate.Map) error {
	tw := tsv.NewWriter(w)
	tw.WriteString("dataset")
	tw.WriteString("barcode")
	tw.WriteString("reason")
	if err := tw.EndLine(); err != nil {
		return err
	}
	for _, e := range m.Entries() {
		tw.WriteUint32(uint32(e.Dataset))
		tw.WriteString(e.Barcode)
		tw.WriteString(e.Reason)
		if err := tw.EndLine(); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// WriteErrJoins writes the error joins of r. Members are named by clonotype
// and exact subclonotype number, as in the clonotype table. Both are empty
// for a member that refinement deleted.
func WriteErrJoins(w io.Writer, r *pipeline.Result) error {
	type pos struct{ clonotype, exact int }
	where := make([]pos, len(r.Info))
	for i, o := range r.Orbits {
		for j, k := range o {
			where[k] = pos{i + 1, j + 1}
		}
	}
	tw := tsv.NewWriter(w)
	for _, h := range []string{"clonotype1", "exact1", "clonotype2", "exact2", "cdr3_diffs"} {
		tw.WriteString(h)
	}
	if err := tw.EndLine(); err != nil {
		return err
	}
	for _, j := range r.ErrJoins {
		for _, k := range []int{j.Exact1, j.Exact2} {
			if k < 0 {
				tw.WriteString("")
				tw.WriteString("")
				continue
			}
			tw.WriteUint32(uint32(where[k].clonotype))
			tw.WriteUint32(uint32(where[k].exact))
		}
		tw.WriteUint32(uint32(j.CDR3Diffs))
		if err := tw.EndLine(); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// WriteAlleles writes alts in FASTA format. Allele i is named alt<i+1>, as
// in the v_allele column of the clonotype table.
func WriteAlleles(w io.Writer, alts []vdj.AltRef, ref *refdata.RefData) error {
	bw := bufio.NewWriter(w)
	for i, a := range alts {
		fmt.Fprintf(bw, ">alt%d|%s|donor%d|support=%d\n", i+1, refName(ref, a.RefID), a.Donor, a.Support)
		for s := a.Seq; len(s) > 0; {
			n := len(s)
			if n > 80 {
				n = 80
			}
			bw.WriteString(s[:n])
			bw.WriteByte('\n')
			s = s[n:]
		}
	}
	return bw.Flush()
}

// WriteConsensus writes the V..J sequence of every chain of the exact
// subclonotypes of r in FASTQ format. The quality of each base is the
// highest quality observed at it among the cells.
func WriteConsensus(w io.Writer, r *pipeline.Result) error {
	fw := fastq.NewWriter(w)
	for i, o := range r.Orbits {
		for j, k := range o {
			e := &r.Exacts[r.Info[k].Exact]
			for m := range e.Share {
				s := &e.Share[m]
				quals := make([]byte, len(s.Seq))
				for _, c := range e.Clones {
					for p, q := range c.Tigs[m].Quals {
						if p < len(quals) && q > quals[p] {
							quals[p] = q
						}
					}
				}
				rec := fastq.Record{
					Name:  fmt.Sprintf("clonotype%d_exact%d_%s cells=%d", i+1, j+1, s.ChainType, e.NCells()),
					Seq:   s.Seq,
					Quals: quals,
				}
				if err := fw.Write(&rec); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Metrics returns the run statistics of s as name/value pairs.
func Metrics(s pipeline.Stats) [][2]string {
	itoa := strconv.Itoa
	m := [][2]string{
		{"contigs", itoa(s.Exact.Tigs)},
		{"barcodes", itoa(s.Exact.Cells)},
		{"non_cell_barcodes", itoa(s.Exact.NotCellCells)},
		{"marked_non_cell_barcodes", itoa(s.Exact.MarkedCells)},
		{"reused_barcodes", itoa(s.Exact.BarcodeReuseCells)},
		{"exact_subclonotypes_built", itoa(s.Exact.Exacts)},
		{"alternate_alleles", itoa(s.AltRefs)},
		{"chains_corrected", itoa(s.Correct.Changed)},
		{"allele_donor_conflicts", itoa(s.Correct.Conflicts)},
		{"join_blocks", itoa(s.Join.Blocks)},
		{"join_comparisons", itoa(s.Join.Compared)},
		{"raw_joins", itoa(s.Join.Raw)},
		{"pass1_rejected_joins", itoa(s.Join.Pass1Rejected)},
		{"joins", itoa(s.Join.Joins)},
		{"error_joins", itoa(s.Join.ErrJoins)},
		{"initial_cells", itoa(s.InitialCells)},
	}
	deleted := s.Deleted()
	names := make([]string, 0, len(deleted))
	for name := range deleted {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		m = append(m, [2]string{"cells_deleted_" + strings.Replace(name, " ", "_", -1), itoa(deleted[name])})
	}
	return append(m,
		[2]string{"cells", itoa(s.Cells)},
		[2]string{"exact_subclonotypes", itoa(s.Exacts)},
		[2]string{"clonotypes", itoa(s.Clonotypes)})
}

// WriteMetrics writes the run statistics of s as a two-column table.
func WriteMetrics(w io.Writer, s pipeline.Stats) error {
	tw := tsv.NewWriter(w)
	tw.WriteString("metric")
	tw.WriteString("value")
	if err := tw.EndLine(); err != nil {
		return err
	}
	for _, kv := range Metrics(s) {
		tw.WriteString(kv[0])
		tw.WriteString(kv[1])
		if err := tw.EndLine(); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// Paths returns the paths of the files written by WriteFiles, keyed by
// kind: "clonotypes", "fate", "alleles", "consensus", "errjoins" and
// "metrics".
func Paths(prefix string, codec compress.Codec) map[string]string {
	ext := codec.Ext()
	return map[string]string{
		"clonotypes": prefix + ".clonotypes.tsv" + ext,
		"fate":       prefix + ".fate.tsv" + ext,
		"alleles":    prefix + ".alleles.fa" + ext,
		"consensus":  prefix + ".consensus.fq" + ext,
		"errjoins":   prefix + ".errjoins.tsv" + ext,
		"metrics":    prefix + ".metrics.tsv",
	}
}

func writeFile(ctx context.Context, path string, fn func(io.Writer) error) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "report", path)
	}
	var once errors.Once
	w := compress.NewWriter(out.Writer(ctx), path)
	once.Set(fn(w))
	once.Set(w.Close())
	once.Set(out.Close(ctx))
	if err := once.Err(); err != nil {
		return errors.E(err, "report", path)
	}
	return nil
}

// WriteFiles writes all the outputs of r under prefix. See the package
// documentation for the list of files.
func WriteFiles(ctx context.Context, prefix string, codec compress.Codec, r *pipeline.Result, ref *refdata.RefData) error {
	paths := Paths(prefix, codec)
	writers := []struct {
		kind string
		fn   func(io.Writer) error
	}{
		{"clonotypes", func(w io.Writer) error { return WriteClonotypes(w, r, ref) }},
		{"fate", func(w io.Writer) error { return WriteFates(w, r.Fate) }},
		{"alleles", func(w io.Writer) error { return WriteAlleles(w, r.AltRefs, ref) }},
		{"consensus", func(w io.Writer) error { return WriteConsensus(w, r) }},
		{"errjoins", func(w io.Writer) error { return WriteErrJoins(w, r) }},
		{"metrics", func(w io.Writer) error { return WriteMetrics(w, r.Stats) }},
	}
	for _, wr := range writers {
		if err := writeFile(ctx, paths[wr.kind], wr.fn); err != nil {
			return err
		}
	}
	log.Printf("report: wrote %d clonotypes to %s.*", len(r.Orbits), prefix)
	return nil
}
