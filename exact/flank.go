package exact

// flank is the sequence on one side of V..J for one cell. If reverse is set,
// the bases nearest to V..J are at the end of bases (the 5' UTR); otherwise
// they are at the start (the constant region).
type flank struct {
	bases   string
	quals   []byte
	reverse bool
}

// at returns the base and quality at the given distance from V..J.
func (f *flank) at(offset int) (byte, byte, bool) {
	if offset >= len(f.bases) {
		return 0, 0, false
	}
	if f.reverse {
		i := len(f.bases) - 1 - offset
		return f.bases[i], f.quals[i], true
	}
	return f.bases[offset], f.quals[offset], true
}

// flankConsensus computes the consensus of flanks by walking away from V..J.
// At each offset, the base with the largest quality sum among the cells
// covering it is chosen; ties go to the lexicographically smallest base. The
// walk stops when no cell covers the offset, or when fewer than stopFrac of the
// cells covering the previous offset cover it.
func flankConsensus(flanks []flank, stopFrac float64) string {
	if len(flanks) == 0 {
		return ""
	}
	reverse := flanks[0].reverse
	var (
		out     []byte
		sums    [256]int
		present [256]bool
		seen    []byte
	)
	prev := 0
	for offset := 0; ; offset++ {
		n := 0
		seen = seen[:0]
		for i := range flanks {
			b, q, ok := flanks[i].at(offset)
			if !ok {
				continue
			}
			if !present[b] {
				present[b] = true
				seen = append(seen, b)
			}
			sums[b] += int(q)
			n++
		}
		stop := n == 0 || (offset > 0 && float64(n) < stopFrac*float64(prev))
		if !stop {
			best := seen[0]
			for _, b := range seen[1:] {
				if sums[b] > sums[best] || (sums[b] == sums[best] && b < best) {
					best = b
				}
			}
			out = append(out, best)
		}
		for _, b := range seen {
			sums[b] = 0
			present[b] = false
		}
		if stop {
			break
		}
		prev = n
	}
	if reverse {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return string(out)
}
