package main

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/clonotype/encoding/compress"
	"github.com/grailbio/clonotype/encoding/contig"
	"github.com/grailbio/clonotype/encoding/fastq"
	"github.com/grailbio/clonotype/fate"
	"github.com/grailbio/clonotype/pipeline"
	"github.com/grailbio/clonotype/vdj"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

const (
	hv = "CAGGTGCAGCTGGTGCAGTCTGGGGCTGAGG"
	hj = "TGGGGCCAGGGAACC"
	kv = "GACATCCAGATGACCCAGTCTCCATCC"
	kj = "TTCGGCCAAGGGACC"
)

const refFasta = ">1|IGHV3-23|V-REGION|IGH\n" + hv + "\n" +
	">2|IGHJ4|J-REGION|IGH\n" + hj + "\n" +
	">3|IGKV1-39|V-REGION|IGK\n" + kv + "\n" +
	">4|IGKJ1|J-REGION|IGK\n" + kj + "\n"

func chainTig(barcode string, i int, chainType, v, cdr3, j string, vid, jid int) vdj.TigData {
	const utr, constant = "GGACTCAG", "CGAACTGTGG"
	seq := v + cdr3 + j
	full := utr + seq + constant
	quals := make([]byte, len(full))
	for k := range quals {
		quals[k] = 38
	}
	return vdj.TigData{
		Barcode:   barcode,
		TigName:   fmt.Sprintf("%s_contig_%d", barcode, i),
		ChainType: chainType,
		Left:      vdj.IsLeft(chainType),
		Full:      full,
		Quals:     quals,
		VStart:    len(utr),
		JStop:     len(utr) + len(seq),
		CStart:    len(utr) + len(seq),
		CDR3Start: len(utr) + len(v),
		CDR3:      cdr3,
		URefID:    vdj.Absent,
		VRefID:    vid,
		DRefID:    vdj.Absent,
		JRefID:    jid,
		CRefID:    vdj.Absent,
		Fr1Start:  vdj.Absent,
		Cdr1Start: vdj.Absent,
		Fr2Start:  vdj.Absent,
		Cdr2Start: vdj.Absent,
		Fr3Start:  vdj.Absent,
		UMICount:  3,
		ReadCount: 60,
	}
}

func writeContigs(w io.Writer, tigs []vdj.TigData) error {
	lines := []string{strings.Join(contig.Header, "\t")}
	for _, t := range tigs {
		f := []string{"0", "0", "0", t.Barcode, t.TigName, t.ChainType, t.Full, fastq.EncodeQuals(t.Quals)}
		for _, v := range []int{t.VStart, t.JStop, t.CStart, t.CDR3Start} {
			f = append(f, strconv.Itoa(v))
		}
		f = append(f, t.CDR3)
		for _, v := range []int{
			t.URefID, t.VRefID, t.DRefID, t.JRefID, t.CRefID,
			t.Fr1Start, t.Cdr1Start, t.Fr2Start, t.Cdr2Start, t.Fr3Start,
			t.UMICount, t.ReadCount} {
			f = append(f, strconv.Itoa(v))
		}
		lines = append(lines, strings.Join(f, "\t"))
	}
	_, err := io.WriteString(w, strings.Join(lines, "\n")+"\n")
	return err
}

// writeInputs writes a contig table, a reference and a cell table under dir.
// The last barcode of the contig table is not a cell.
func writeInputs(t *testing.T, dir string) *flags {
	var (
		tigs  []vdj.TigData
		cells = "dataset\tbarcode\n"
		n     int
	)
	add := func(ncells int, h, k string, cell bool) {
		for i := 0; i < ncells; i++ {
			n++
			bc := fmt.Sprintf("TTGCAAC%04d-1", n)
			tigs = append(tigs,
				chainTig(bc, 1, "IGH", hv, h, hj, 1, 2),
				chainTig(bc, 2, "IGK", kv, k, kj, 3, 4))
			if cell {
				cells += "0\t" + bc + "\n"
			}
		}
	}
	add(4, "TGTGCGAGAGATTACTGG", "TGCCAGCAGTATAATAGT", true)
	add(3, "TGTGCGAGGGGTATAGCA", "TGCCAACAGTTTGATACT", true)
	add(1, "TGTGCGAGGGGTATAGCA", "TGCCAACAGTTTGATACT", false)

	f := &flags{
		contigs: filepath.Join(dir, "contigs.tsv.sz"),
		ref:     filepath.Join(dir, "ref.fa"),
		cells:   filepath.Join(dir, "cells.tsv"),
		out:     filepath.Join(dir, "out"),
		opts:    pipeline.DefaultOpts,
	}
	out, err := os.Create(f.contigs)
	assert.NoError(t, err)
	w := compress.NewWriter(out, f.contigs)
	assert.NoError(t, writeContigs(w, tigs))
	assert.NoError(t, w.Close())
	assert.NoError(t, out.Close())
	assert.NoError(t, ioutil.WriteFile(f.ref, []byte(refFasta), 0644))
	assert.NoError(t, ioutil.WriteFile(f.cells, []byte(cells), 0644))
	return f
}

func readOutput(t *testing.T, path string) string {
	data, err := ioutil.ReadFile(path)
	assert.NoError(t, err, path)
	return string(data)
}

func TestRunAll(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	f := writeInputs(t, tempDir)
	f.checkpoint = filepath.Join(tempDir, "exacts.rio")
	assert.NoError(t, runAll(vcontext.Background(), f))

	clonotypes := readOutput(t, f.out+".clonotypes.tsv")
	expect.True(t, strings.HasPrefix(clonotypes, "clonotype\texact\tchain\t"))
	expect.True(t, strings.Contains(clonotypes, "TTGCAAC0001-1"))
	fates := readOutput(t, f.out+".fate.tsv")
	expect.True(t, strings.Contains(fates, "TTGCAAC0008-1\t"+fate.NotCell))
	expect.True(t, strings.Contains(readOutput(t, f.out+".metrics.tsv"), "non_cell_barcodes\t1\n"))
	expect.True(t, strings.HasPrefix(readOutput(t, f.out+".consensus.fq"), "@clonotype1_exact1_"))
	expect.True(t, strings.HasPrefix(readOutput(t, f.out+".errjoins.tsv"), "clonotype1\texact1\t"))
	_, err := os.Stat(f.out + ".alleles.fa")
	expect.NoError(t, err)
	_, err = os.Stat(f.checkpoint)
	expect.NoError(t, err)
}

func TestMarkNonCells(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	f := writeInputs(t, tempDir)
	f.opts.Exact.MarkNonCells = true
	assert.NoError(t, runAll(vcontext.Background(), f))

	expect.True(t, strings.Contains(readOutput(t, f.out+".clonotypes.tsv"), "TTGCAAC0008-1"))
	expect.False(t, strings.Contains(readOutput(t, f.out+".fate.tsv"), "TTGCAAC0008-1"))
	metrics := readOutput(t, f.out+".metrics.tsv")
	expect.True(t, strings.Contains(metrics, "non_cell_barcodes\t0\n"), metrics)
	expect.True(t, strings.Contains(metrics, "marked_non_cell_barcodes\t1\n"), metrics)
}

func TestExactThenCluster(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := vcontext.Background()
	f := writeInputs(t, tempDir)
	f.checkpoint = filepath.Join(tempDir, "exacts.rio")
	assert.NoError(t, runExact(ctx, f))

	two := *f
	two.out = filepath.Join(tempDir, "two")
	two.compress = "gz"
	assert.NoError(t, runCluster(ctx, &two))
	assert.NoError(t, runAll(ctx, f))

	// The checkpointed run reports the same clonotypes.
	in, err := os.Open(two.out + ".clonotypes.tsv.gz")
	assert.NoError(t, err)
	defer in.Close()
	r, err := compress.NewReader(in, two.out+".clonotypes.tsv.gz")
	assert.NoError(t, err)
	data, err := ioutil.ReadAll(r)
	assert.NoError(t, err)
	expect.EQ(t, string(data), readOutput(t, f.out+".clonotypes.tsv"))
}

func TestFlagErrors(t *testing.T) {
	ctx := vcontext.Background()
	f := &flags{opts: pipeline.DefaultOpts}
	expect.NotNil(t, runAll(ctx, f))
	expect.NotNil(t, runExact(ctx, f))
	f.checkpoint = "x.rio"
	expect.NotNil(t, runExact(ctx, f))
	f.compress = "bz2"
	_, err := f.codec()
	expect.NotNil(t, err)
}
