package contig

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/clonotype/encoding/compress"
	"github.com/grailbio/clonotype/encoding/fastq"
	"github.com/grailbio/clonotype/vdj"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

func testTigs() []vdj.TigData {
	const (
		utr  = "GGACTCAG"
		v    = "CAGGTGCAGCTGGTGCAG"
		cdr3 = "TGTGCGAGAGATTACTGG"
		j    = "TGGGGCCAGGGAACC"
		c    = "GCCTCCACCAAG"
	)
	full := utr + v + cdr3 + j + c
	quals := make([]byte, len(full))
	for i := range quals {
		quals[i] = byte(20 + i%20)
	}
	t := vdj.TigData{
		Dataset:   1,
		Origin:    2,
		Donor:     3,
		Barcode:   "AAACCTGAGAAGGCCT-1",
		TigName:   "AAACCTGAGAAGGCCT-1_contig_1",
		ChainType: "IGH",
		Left:      true,
		Full:      full,
		Quals:     quals,
		VStart:    len(utr),
		JStop:     len(utr + v + cdr3 + j),
		CStart:    len(utr + v + cdr3 + j),
		CDR3Start: len(utr + v),
		CDR3:      cdr3,
		URefID:    vdj.Absent,
		VRefID:    10,
		DRefID:    vdj.Absent,
		JRefID:    11,
		CRefID:    12,
		Fr1Start:  len(utr),
		Cdr1Start: vdj.Absent,
		Fr2Start:  vdj.Absent,
		Cdr2Start: vdj.Absent,
		Fr3Start:  vdj.Absent,
		UMICount:  7,
		ReadCount: 512,
	}
	k := t
	k.TigName = "AAACCTGAGAAGGCCT-1_contig_2"
	k.ChainType = "IGK"
	k.Left = false
	k.CStart = vdj.Absent
	k.CRefID = vdj.Absent
	return []vdj.TigData{t, k}
}

func TestWriteParse(t *testing.T) {
	tigs := testTigs()
	var buf bytes.Buffer
	require.NoError(t, writeTable(&buf, tigs))
	expect.True(t, strings.HasPrefix(buf.String(), "dataset\torigin\tdonor\tbarcode\t"))
	got, err := Parse(&buf)
	require.NoError(t, err)
	expect.EQ(t, got, tigs)
}

func TestParseErrors(t *testing.T) {
	header := strings.Join(Header, "\t") + "\n"
	var buf bytes.Buffer
	require.NoError(t, writeTable(&buf, testTigs()[:1]))
	row := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")[1]
	fields := strings.Split(row, "\t")
	mod := func(col int, v string) string {
		f := append([]string(nil), fields...)
		f[col] = v
		return header + strings.Join(f, "\t") + "\n"
	}
	for _, data := range []string{
		mod(5, "IGX"),                   // chain
		mod(7, strings.Repeat("I", 3)),  // quals
		mod(9, "1000"),                  // j_stop
		mod(12, "TGTGCGAGAGATTACTGA"),   // cdr3_nt
		mod(8, "x"),                     // v_start
		"dataset\tbarcode\n0\tAAAC-1\n", // header
	} {
		_, err := Parse(strings.NewReader(data))
		expect.True(t, errors.Is(errors.Invalid, err), data)
	}
}

func TestParseColumnOrder(t *testing.T) {
	var buf bytes.Buffer
	tigs := testTigs()[:2]
	require.NoError(t, writeTable(&buf, tigs))
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	// Move the first column to the end and add an unknown one.
	var reordered []string
	for _, line := range lines {
		f := strings.Split(line, "\t")
		extra := "x"
		if len(reordered) == 0 {
			extra = "sample"
		}
		reordered = append(reordered, strings.Join(append(append(f[1:], extra), f[0]), "\t"))
	}
	got, err := Parse(strings.NewReader(strings.Join(reordered, "\n") + "\n"))
	assert.NoError(t, err)
	expect.EQ(t, got, tigs)
}

func TestRead(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := vcontext.Background()
	tigs := testTigs()
	for _, name := range []string{"contigs.tsv", "contigs.tsv.gz", "contigs.tsv.sz"} {
		path := filepath.Join(tempDir, name)
		f, err := os.Create(path)
		require.NoError(t, err)
		w := compress.NewWriter(f, path)
		require.NoError(t, writeTable(w, tigs))
		require.NoError(t, w.Close())
		require.NoError(t, f.Close())

		got, err := Read(ctx, path)
		assert.NoError(t, err)
		expect.EQ(t, got, tigs, name)
	}
	_, err := Read(ctx, filepath.Join(tempDir, "missing.tsv"))
	expect.NotNil(t, err)
}

// writeTable writes tigs as a contig table to w.
func writeTable(w io.Writer, tigs []vdj.TigData) error {
	tw := tsv.NewWriter(w)
	for _, h := range Header {
		tw.WriteString(h)
	}
	if err := tw.EndLine(); err != nil {
		return err
	}
	for i := range tigs {
		t := &tigs[i]
		tw.WriteString(fmt.Sprint(t.Dataset))
		tw.WriteString(fmt.Sprint(t.Origin))
		tw.WriteString(fmt.Sprint(t.Donor))
		tw.WriteString(t.Barcode)
		tw.WriteString(t.TigName)
		tw.WriteString(t.ChainType)
		tw.WriteString(t.Full)
		tw.WriteString(fastq.EncodeQuals(t.Quals))
		for _, v := range []int{t.VStart, t.JStop, t.CStart, t.CDR3Start} {
			tw.WriteString(fmt.Sprint(v))
		}
		tw.WriteString(t.CDR3)
		for _, v := range []int{
			t.URefID, t.VRefID, t.DRefID, t.JRefID, t.CRefID,
			t.Fr1Start, t.Cdr1Start, t.Fr2Start, t.Cdr2Start, t.Fr3Start,
			t.UMICount, t.ReadCount} {
			tw.WriteString(fmt.Sprint(v))
		}
		if err := tw.EndLine(); err != nil {
			return err
		}
	}
	return tw.Flush()
}
