// Package refdata holds the V(D)J reference segments that contigs are
// annotated against.
//
// References are read from FASTA files whose headers carry the segment id,
// gene name, region type and chain type, separated by '|'. Two layouts are
// accepted:
//
//	>12|IGHV3-23|V-REGION|IGH
//	>12|IGHV3-23*01 ENST00000390632|IGHV3-23|L-REGION+V-REGION|IG|IGH|None|00
//
// The first is the compact layout; the second is the layout of commercial
// single-cell V(D)J references, where the gene name, region and chain are the
// third, fourth and sixth fields.
package refdata

import (
	"sort"
	"strings"
)

// Region is the kind of a reference segment.
type Region int

const (
	// Other is any region not listed below.
	Other Region = iota
	UTR
	V
	D
	J
	C
)

var regionNames = [...]string{"other", "5'UTR", "V-REGION", "D-REGION", "J-REGION", "C-REGION"}

func (r Region) String() string { return regionNames[r] }

// ParseRegion maps a FASTA region field to a Region.
func ParseRegion(s string) Region {
	switch {
	case s == "5'UTR":
		return UTR
	case strings.HasSuffix(s, "V-REGION"):
		return V
	case s == "D-REGION":
		return D
	case s == "J-REGION":
		return J
	case s == "C-REGION":
		return C
	}
	return Other
}

// Segment is one reference segment.
type Segment struct {
	ID        int
	Name      string
	Region    Region
	ChainType string
	Seq       string
}

// RefData is an immutable, id-indexed set of reference segments. It is safe
// for concurrent use.
type RefData struct {
	segs map[int]*Segment
	ids  []int
}

// New creates a RefData from the given segments. Later segments with a
// duplicate id replace earlier ones.
func New(segs []Segment) *RefData {
	r := &RefData{segs: make(map[int]*Segment, len(segs))}
	for i := range segs {
		s := segs[i]
		if _, ok := r.segs[s.ID]; !ok {
			r.ids = append(r.ids, s.ID)
		}
		r.segs[s.ID] = &s
	}
	sort.Ints(r.ids)
	return r
}

// Segment returns the segment with the given id.
func (r *RefData) Segment(id int) (*Segment, bool) {
	s, ok := r.segs[id]
	return s, ok
}

// Seq returns the sequence of segment id, or "" if there is no such segment.
func (r *RefData) Seq(id int) string {
	if s, ok := r.segs[id]; ok {
		return s.Seq
	}
	return ""
}

// Name returns the gene name of segment id, or "" if there is no such
// segment.
func (r *RefData) Name(id int) string {
	if s, ok := r.segs[id]; ok {
		return s.Name
	}
	return ""
}

// IDs returns the ids of all segments in increasing order.
func (r *RefData) IDs() []int { return r.ids }

// Len returns the number of segments.
func (r *RefData) Len() int { return len(r.ids) }
