// Package fate records why cells were removed from the clonotype result.
//
// Entries are keyed by (dataset, barcode) and are write-once: the first
// reason recorded for a cell is kept. The map is for diagnostics only and is
// never consulted to make filtering decisions.
package fate

import (
	"strings"

	"github.com/biogo/store/llrb"
)

// Reasons recorded by the clonotyping stages.
const (
	NotCell         = "was not identified as a cell"
	BarcodeReuse    = "shares its barcode with a cell of another dataset in the same exact subclonotype"
	Doublet         = "failed the doublet filter"
	Signature       = "failed the signature filter"
	WeakChain       = "failed the weak chains filter"
	Quality         = "failed the base quality filter"
	UnmatchedOnesie = "is a single-chain cell with no matching exact subclonotype"
)

type key struct {
	dataset int
	barcode string
}

type entry struct {
	key
	reason string
}

// Compare implements llrb.Comparable.
func (e entry) Compare(c llrb.Comparable) int {
	o := c.(entry)
	if d := e.dataset - o.dataset; d != 0 {
		return d
	}
	return strings.Compare(e.barcode, o.barcode)
}

// Map is an ordered, write-once map from cell to removal reason. It is not
// thread-safe; callers add entries after parallel phases complete.
type Map struct {
	tree llrb.Tree
}

// New creates an empty Map.
func New() *Map { return &Map{} }

// Add records reason for the cell unless the cell already has a reason. It
// returns true if the entry was added.
func (m *Map) Add(dataset int, barcode, reason string) bool {
	e := entry{key: key{dataset, barcode}, reason: reason}
	if m.tree.Get(e) != nil {
		return false
	}
	m.tree.Insert(e)
	return true
}

// Get returns the reason recorded for the cell.
func (m *Map) Get(dataset int, barcode string) (string, bool) {
	c := m.tree.Get(entry{key: key{dataset, barcode}})
	if c == nil {
		return "", false
	}
	return c.(entry).reason, true
}

// Len returns the number of recorded cells.
func (m *Map) Len() int { return m.tree.Len() }

// Entry is one cell of the map, as returned by Entries.
type Entry struct {
	Dataset int
	Barcode string
	Reason  string
}

// Entries returns all records ordered by dataset, then barcode.
func (m *Map) Entries() []Entry {
	v := make([]Entry, 0, m.tree.Len())
	m.tree.Do(func(c llrb.Comparable) bool {
		e := c.(entry)
		v = append(v, Entry{Dataset: e.dataset, Barcode: e.barcode, Reason: e.reason})
		return false
	})
	return v
}

// Counts tallies the number of cells per reason.
func (m *Map) Counts() map[string]int {
	counts := map[string]int{}
	m.tree.Do(func(c llrb.Comparable) bool {
		counts[c.(entry).reason]++
		return false
	})
	return counts
}
