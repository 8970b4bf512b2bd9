package cluster

import (
	"sort"

	"github.com/grailbio/clonotype/equiv"
	"github.com/grailbio/clonotype/join"
	"github.com/grailbio/clonotype/util"
	"github.com/grailbio/clonotype/vdj"
)

// RawIndex maps a CloneInfo index to the raw joins it takes part in.
type RawIndex map[int][]vdj.PotentialJoin

// IndexRaw indexes raw joins by both of their endpoints.
func IndexRaw(raw []vdj.PotentialJoin) RawIndex {
	idx := RawIndex{}
	for _, j := range raw {
		idx[j.K1] = append(idx[j.K1], j)
		idx[j.K2] = append(idx[j.K2], j)
	}
	return idx
}

// Column is one chain column of a Mat.
type Column struct {
	ChainType string
	Left      bool
	// Chains[r] is the index of the chain of row r in this column, or
	// vdj.Absent.
	Chains []int
}

// Mat aligns the chains of the members of one clonotype into columns, so
// that chains believed to descend from the same rearrangement share a column.
type Mat struct {
	// Rows holds the CloneInfo indices of the members.
	Rows []int
	Cols []Column
}

// Present reports whether row r has a chain in column c.
func (m *Mat) Present(r, c int) bool { return m.Cols[c].Chains[r] != vdj.Absent }

// Pattern returns the columns in which row r has a chain.
func (m *Mat) Pattern(r int) []int {
	var p []int
	for c := range m.Cols {
		if m.Present(r, c) {
			p = append(p, c)
		}
	}
	return p
}

// colSet is a union-find over chain nodes that refuses to put two chains of
// one member in the same class.
type colSet struct {
	rel  *equiv.Relation
	rows map[int]map[int]bool
}

func newColSet(row []int) *colSet {
	c := &colSet{rel: equiv.New(len(row)), rows: map[int]map[int]bool{}}
	for i, r := range row {
		c.rows[i] = map[int]bool{r: true}
	}
	return c
}

func (c *colSet) same(a, b int) bool { return c.rel.Same(a, b) }

func (c *colSet) union(a, b int) bool {
	ra, rb := c.rel.Rep(a), c.rel.Rep(b)
	if ra == rb {
		return false
	}
	x, y := c.rows[ra], c.rows[rb]
	if len(x) > len(y) {
		x, y = y, x
	}
	for r := range x {
		if y[r] {
			return false
		}
	}
	for r := range x {
		y[r] = true
	}
	delete(c.rows, ra)
	delete(c.rows, rb)
	c.rel.Join(a, b)
	c.rows[c.rel.Rep(a)] = y
	return true
}

// unlinkedChain returns a chain of the three-chain member whose first node is
// x that shares no column with any chain of the three-chain member whose first
// node is y, and the number of such chains.
func unlinkedChain(cs *colSet, x, y int) (m, n int) {
	m = -1
	for i := 0; i < 3; i++ {
		linked := false
		for j := 0; j < 3; j++ {
			if cs.same(x+i, y+j) {
				linked = true
				break
			}
		}
		if !linked {
			m = i
			n++
		}
	}
	return m, n
}

// singleChain returns a CloneInfo holding only chain m of c.
func singleChain(c *vdj.CloneInfo, m int) vdj.CloneInfo {
	return vdj.CloneInfo{
		Index:      c.Index,
		Exact:      c.Exact,
		Lens:       []int{c.Lens[m]},
		Tigs:       []string{c.Tigs[m]},
		CDR3s:      []string{c.CDR3s[m]},
		CDR3Starts: []int{c.CDR3Starts[m]},
		ChainTypes: []string{c.ChainTypes[m]},
		VRefIDs:    []int{c.VRefIDs[m]},
		JRefIDs:    []int{c.JRefIDs[m]},
		VRefSeqs:   []string{c.VRefSeqs[m]},
		Donors:     c.Donors,
		Origins:    c.Origins,
		NCells:     c.NCells,
	}
}

// DefineMat aligns the chains of the members of orbit into columns. Chains
// linked by a raw join between two members share a column. Members with more
// than two chains, and members without a raw join to another member, are
// repaired by scoring single chains against other members, at most
// opts.DefineMatMaxTests times per chain; chains of different lengths are
// placed together instead when their CDR3s and segments agree. The remaining
// unlinked chain of two three-chain members whose other chains are linked
// joins the same column when the chains are within opts.MaxThirdChainEdits
// edits. Columns of left chains come first; otherwise columns are in order of
// first occurrence. The result depends only on its arguments.
func DefineMat(orbit []int, info []vdj.CloneInfo, raw RawIndex, scorer join.Scorer, opts Opts) Mat {
	rows := append([]int(nil), orbit...)
	sort.Ints(rows)
	rowOf := make(map[int]int, len(rows))
	offset := make([]int, len(rows)+1)
	for r, k := range rows {
		rowOf[k] = r
		offset[r+1] = offset[r] + len(info[k].Lens)
	}
	nodeRow := make([]int, offset[len(rows)])
	for r := range rows {
		for n := offset[r]; n < offset[r+1]; n++ {
			nodeRow[n] = r
		}
	}
	node := func(r, m int) int { return offset[r] + m }
	cs := newColSet(nodeRow)

	linked := make([]bool, len(rows))
	for r, k := range rows {
		for _, j := range raw[k] {
			if j.K1 != k {
				continue
			}
			s, ok := rowOf[j.K2]
			if !ok {
				continue
			}
			linked[r], linked[s] = true, true
			for m := range info[k].Lens {
				cs.union(node(r, m), node(s, m))
			}
		}
	}

	for r, k := range rows {
		a := &info[k]
		if len(a.Lens) <= 2 && linked[r] {
			continue
		}
		for m := range a.Lens {
			tests := 0
			x := singleChain(a, m)
		search:
			for s, l := range rows {
				if s == r {
					continue
				}
				b := &info[l]
				for n := range b.Lens {
					if b.ChainTypes[n] != a.ChainTypes[m] || cs.same(node(r, m), node(s, n)) {
						continue
					}
					if b.Lens[n] != a.Lens[m] {
						// An indel outside the CDR3 cannot be scored.
						if b.CDR3s[n] == a.CDR3s[m] && b.VRefIDs[n] == a.VRefIDs[m] && b.JRefIDs[n] == a.JRefIDs[m] {
							cs.union(node(r, m), node(s, n))
						}
						continue
					}
					if tests >= opts.DefineMatMaxTests {
						break search
					}
					tests++
					y := singleChain(b, n)
					if len(scorer.Score(&x, &y)) > 0 {
						cs.union(node(r, m), node(s, n))
					}
				}
			}
		}
	}

	for r, k := range rows {
		a := &info[k]
		if len(a.Lens) != 3 {
			continue
		}
		for s := r + 1; s < len(rows); s++ {
			b := &info[rows[s]]
			if len(b.Lens) != 3 {
				continue
			}
			u, nu := unlinkedChain(cs, node(r, 0), node(s, 0))
			v, nv := unlinkedChain(cs, node(s, 0), node(r, 0))
			if nu != 1 || nv != 1 {
				continue
			}
			if a.ChainTypes[u] == b.ChainTypes[v] &&
				util.BoundedEditDistance(a.Tigs[u], b.Tigs[v], opts.MaxThirdChainEdits) <= opts.MaxThirdChainEdits {
				cs.union(node(r, u), node(s, v))
			}
		}
	}

	colOf := map[int]int{}
	var cols []Column
	for r, k := range rows {
		for m := range info[k].Lens {
			rep := cs.rel.Rep(node(r, m))
			c, ok := colOf[rep]
			if !ok {
				c = len(cols)
				colOf[rep] = c
				chains := make([]int, len(rows))
				for i := range chains {
					chains[i] = vdj.Absent
				}
				ct := info[k].ChainTypes[m]
				cols = append(cols, Column{ChainType: ct, Left: vdj.IsLeft(ct), Chains: chains})
			}
			cols[c].Chains[r] = m
		}
	}
	sort.SliceStable(cols, func(i, j int) bool { return cols[i].Left && !cols[j].Left })
	return Mat{Rows: rows, Cols: cols}
}
