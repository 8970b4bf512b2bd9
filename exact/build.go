// Package exact groups annotated contigs into exact subclonotypes: sets of
// cells whose receptor chains are identical over V..J, share their CDR3s,
// constant regions and donor.
//
// For each exact subclonotype, the bases flanking V..J (the 5' UTR and the
// start of the constant region) are replaced by a consensus computed across
// its cells, since those regions are covered unevenly by individual contigs.
package exact

import (
	"sort"
	"strings"

	"github.com/grailbio/base/log"
	"github.com/grailbio/clonotype/fate"
	"github.com/grailbio/clonotype/vdj"
)

// CellOracle tells whether a barcode of a dataset was called as a cell by an
// independent assay.
type CellOracle interface {
	IsCell(dataset int, barcode string) bool
}

// Opts configures Build.
type Opts struct {
	// AllowBarcodeReuse keeps cells of different datasets that share a
	// barcode within one exact subclonotype. Such cells usually indicate
	// contamination between libraries, so they are dropped by default.
	AllowBarcodeReuse bool
	// FlankStopFraction stops the flank consensus at the first offset
	// covered by fewer than this fraction of the cells covering the
	// previous offset.
	FlankStopFraction float64
	// CellFilter, if non-nil, removes barcodes that it does not call as
	// cells before grouping.
	CellFilter CellOracle
	// MarkNonCells keeps the barcodes that CellFilter rejects and sets
	// vdj.Clone.Marked on them instead of removing them.
	MarkNonCells bool
}

// DefaultOpts is the default configuration.
var DefaultOpts = Opts{
	AllowBarcodeReuse: false,
	FlankStopFraction: 0.1,
}

// Stats summarizes a Build run.
type Stats struct {
	Tigs              int
	Cells             int
	NotCellCells      int
	MarkedCells       int
	BarcodeReuseCells int
	// EmptyRuns counts runs of identical cells that lost all their cells.
	EmptyRuns int
	Exacts    int
}

// Merge adds the counters of o to s and returns the result.
func (s Stats) Merge(o Stats) Stats {
	s.Tigs += o.Tigs
	s.Cells += o.Cells
	s.NotCellCells += o.NotCellCells
	s.MarkedCells += o.MarkedCells
	s.BarcodeReuseCells += o.BarcodeReuseCells
	s.EmptyRuns += o.EmptyRuns
	s.Exacts += o.Exacts
	return s
}

// cell is the list of contigs of one barcode, in canonical chain order.
type cell struct {
	tigs   []*vdj.TigData
	marked bool
}

func (c *cell) dataset() int    { return c.tigs[0].Dataset }
func (c *cell) barcode() string { return c.tigs[0].Barcode }
func (c *cell) donor() int      { return c.tigs[0].Donor }

// lessChain orders the chains of one cell: left chains first, then by CDR3 and
// sequence.
func lessChain(a, b *vdj.TigData) bool {
	if a.Left != b.Left {
		return a.Left
	}
	if a.CDR3 != b.CDR3 {
		return a.CDR3 < b.CDR3
	}
	return a.Seq() < b.Seq()
}

// compareCells compares the receptor configuration of two cells. Cells that
// compare equal belong to the same exact subclonotype.
func compareCells(a, b *cell) int {
	if len(a.tigs) != len(b.tigs) {
		return len(a.tigs) - len(b.tigs)
	}
	for i := range a.tigs {
		x, y := a.tigs[i], b.tigs[i]
		if x.Left != y.Left {
			if x.Left {
				return -1
			}
			return 1
		}
		if c := strings.Compare(x.ChainType, y.ChainType); c != 0 {
			return c
		}
		if c := strings.Compare(x.CDR3, y.CDR3); c != 0 {
			return c
		}
		if c := strings.Compare(x.Seq(), y.Seq()); c != 0 {
			return c
		}
		if x.CRefID != y.CRefID {
			return x.CRefID - y.CRefID
		}
	}
	return a.donor() - b.donor()
}

// Build validates tigs and groups them into exact subclonotypes. Removed cells
// are recorded in fates. Build fails only on malformed input.
func Build(tigs []vdj.TigData, opts Opts, fates *fate.Map) ([]vdj.ExactClonotype, Stats, error) {
	var stats Stats
	stats.Tigs = len(tigs)
	for i := range tigs {
		if err := tigs[i].Validate(); err != nil {
			return nil, stats, err
		}
	}
	cells := groupCells(tigs)
	stats.Cells = len(cells)
	if opts.CellFilter != nil {
		n := 0
		for _, c := range cells {
			if !opts.CellFilter.IsCell(c.dataset(), c.barcode()) {
				if opts.MarkNonCells {
					c.marked = true
					stats.MarkedCells++
					cells[n] = c
					n++
					continue
				}
				fates.Add(c.dataset(), c.barcode(), fate.NotCell)
				stats.NotCellCells++
				continue
			}
			cells[n] = c
			n++
		}
		cells = cells[:n]
	}
	sort.SliceStable(cells, func(i, j int) bool {
		if c := compareCells(cells[i], cells[j]); c != 0 {
			return c < 0
		}
		if cells[i].dataset() != cells[j].dataset() {
			return cells[i].dataset() < cells[j].dataset()
		}
		return cells[i].barcode() < cells[j].barcode()
	})

	var exacts []vdj.ExactClonotype
	for r := 0; r < len(cells); {
		s := r + 1
		for s < len(cells) && compareCells(cells[r], cells[s]) == 0 {
			s++
		}
		run := dropReusedBarcodes(cells[r:s], opts, fates, &stats)
		r = s
		if len(run) == 0 {
			stats.EmptyRuns++
			continue
		}
		exacts = append(exacts, newExact(run, opts))
	}
	stats.Exacts = len(exacts)
	log.Debug.Printf("exact: %d contigs, %d cells, %d exact subclonotypes", stats.Tigs, stats.Cells, stats.Exacts)
	return exacts, stats, nil
}

// groupCells collects the contigs of each (dataset, barcode).
func groupCells(tigs []vdj.TigData) []*cell {
	idx := make([]int, len(tigs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		a, b := &tigs[idx[i]], &tigs[idx[j]]
		if a.Dataset != b.Dataset {
			return a.Dataset < b.Dataset
		}
		if a.Barcode != b.Barcode {
			return a.Barcode < b.Barcode
		}
		return lessChain(a, b)
	})
	var cells []*cell
	for i := 0; i < len(idx); {
		j := i + 1
		first := &tigs[idx[i]]
		for j < len(idx) && tigs[idx[j]].Dataset == first.Dataset && tigs[idx[j]].Barcode == first.Barcode {
			j++
		}
		c := &cell{tigs: make([]*vdj.TigData, 0, j-i)}
		for k := i; k < j; k++ {
			c.tigs = append(c.tigs, &tigs[idx[k]])
		}
		cells = append(cells, c)
		i = j
	}
	return cells
}

// dropReusedBarcodes removes cells whose barcode occurs more than once in the
// run, unless opts allows it.
func dropReusedBarcodes(run []*cell, opts Opts, fates *fate.Map, stats *Stats) []*cell {
	if opts.AllowBarcodeReuse || len(run) < 2 {
		return run
	}
	count := make(map[string]int, len(run))
	for _, c := range run {
		count[c.barcode()]++
	}
	var kept []*cell
	for _, c := range run {
		if count[c.barcode()] > 1 {
			fates.Add(c.dataset(), c.barcode(), fate.BarcodeReuse)
			stats.BarcodeReuseCells++
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

func relative(pos, vstart int) int {
	if pos == vdj.Absent {
		return vdj.Absent
	}
	return pos - vstart
}

// newExact creates the exact subclonotype of a run of identical cells.
func newExact(run []*cell, opts Opts) vdj.ExactClonotype {
	nchains := len(run[0].tigs)
	ex := vdj.ExactClonotype{
		Share:  make([]vdj.TigShare, nchains),
		Clones: make([]vdj.Clone, len(run)),
	}
	for m := 0; m < nchains; m++ {
		utrs := make([]flank, len(run))
		consts := make([]flank, len(run))
		for i, c := range run {
			t := c.tigs[m]
			utrs[i] = flank{bases: t.Full[:t.VStart], quals: t.Quals[:t.VStart], reverse: true}
			consts[i] = flank{bases: t.Full[t.JStop:], quals: t.Quals[t.JStop:]}
		}
		utr := flankConsensus(utrs, opts.FlankStopFraction)
		constant := flankConsensus(consts, opts.FlankStopFraction)

		t := run[0].tigs[m]
		seq := t.Seq()
		ex.Share[m] = vdj.TigShare{
			ChainType: t.ChainType,
			Left:      t.Left,
			Seq:       seq,
			Full:      utr + seq + constant,
			VStart:    len(utr),
			JStop:     len(utr) + len(seq),
			CDR3:      t.CDR3,
			CDR3Start: t.CDR3Start - t.VStart,
			URefID:    t.URefID,
			VRefID:    t.VRefID,
			DRefID:    t.DRefID,
			JRefID:    t.JRefID,
			CRefID:    t.CRefID,
			VRefAlt:   vdj.Absent,
			Fr1Start:  relative(t.Fr1Start, t.VStart),
			Cdr1Start: relative(t.Cdr1Start, t.VStart),
			Fr2Start:  relative(t.Fr2Start, t.VStart),
			Cdr2Start: relative(t.Cdr2Start, t.VStart),
			Fr3Start:  relative(t.Fr3Start, t.VStart),
		}
	}
	for i, c := range run {
		t0 := c.tigs[0]
		clone := vdj.Clone{
			Barcode: t0.Barcode,
			Dataset: t0.Dataset,
			Origin:  t0.Origin,
			Donor:   t0.Donor,
			Marked:  c.marked,
			Tigs:    make([]vdj.CloneTig, nchains),
		}
		for m, t := range c.tigs {
			clone.Tigs[m] = vdj.CloneTig{
				TigName:   t.TigName,
				UMICount:  t.UMICount,
				ReadCount: t.ReadCount,
				Quals:     t.Quals[t.VStart:t.JStop],
			}
		}
		ex.Clones[i] = clone
	}
	ex.ComputeDigest()
	return ex
}
