// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package equiv implements the equivalence relation used to group exact
// subclonotypes into clonotypes.
//
// The relation is a union-find over [0,n). Join is the only mutator, so the
// relation is transitive by construction. A Relation is not thread-safe;
// parallel stages collect the links they want to apply and join them from a
// single goroutine.
package equiv

// Relation is an equivalence relation over the integers [0,n).
type Relation struct {
	parent []int32
	rank   []uint8
	size   []int32
	n      int
	// norbits is the current number of equivalence classes.
	norbits int
}

// New returns the identity relation over [0,n).
func New(n int) *Relation {
	r := &Relation{
		parent:  make([]int32, n),
		rank:    make([]uint8, n),
		size:    make([]int32, n),
		n:       n,
		norbits: n,
	}
	for i := range r.parent {
		r.parent[i] = int32(i)
		r.size[i] = 1
	}
	return r
}

// Len returns the number of elements.
func (r *Relation) Len() int { return r.n }

// NumOrbits returns the number of equivalence classes.
func (r *Relation) NumOrbits() int { return r.norbits }

// Rep returns the representative of the class containing i.
func (r *Relation) Rep(i int) int {
	x := int32(i)
	for r.parent[x] != x {
		// Path halving.
		r.parent[x] = r.parent[r.parent[x]]
		x = r.parent[x]
	}
	return int(x)
}

// Same reports whether i and j are in the same class.
func (r *Relation) Same(i, j int) bool { return r.Rep(i) == r.Rep(j) }

// Join merges the classes of i and j. It returns false if they were already
// in the same class.
func (r *Relation) Join(i, j int) bool {
	ri, rj := int32(r.Rep(i)), int32(r.Rep(j))
	if ri == rj {
		return false
	}
	if r.rank[ri] < r.rank[rj] {
		ri, rj = rj, ri
	}
	r.parent[rj] = ri
	r.size[ri] += r.size[rj]
	if r.rank[ri] == r.rank[rj] {
		r.rank[ri]++
	}
	r.norbits--
	return true
}

// Orbits returns all classes. Members of each class are sorted, and classes
// are ordered by their smallest member, so the result depends only on the
// partition and not on the order of joins.
func (r *Relation) Orbits() [][]int {
	index := make(map[int]int, r.norbits)
	orbits := make([][]int, 0, r.norbits)
	for i := 0; i < r.n; i++ {
		rep := r.Rep(i)
		k, ok := index[rep]
		if !ok {
			k = len(orbits)
			index[rep] = k
			orbits = append(orbits, make([]int, 0, r.size[rep]))
		}
		orbits[k] = append(orbits[k], i)
	}
	return orbits
}
