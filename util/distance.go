package util

// Mismatches returns the number of positions in [start, end) at which a and b
// differ. Positions beyond the end of either string are not compared.
func Mismatches(a, b string, start, end int) int {
	if end > len(a) {
		end = len(a)
	}
	if end > len(b) {
		end = len(b)
	}
	n := 0
	for i := start; i < end; i++ {
		if a[i] != b[i] {
			n++
		}
	}
	return n
}

// EditDistance computes the Levenshtein distance between s1 and s2: the
// number of insertions, deletions, and substitutions it takes to transform s1
// into s2.
func EditDistance(s1, s2 string) int {
	return BoundedEditDistance(s1, s2, len(s1)+len(s2))
}

// BoundedEditDistance is like EditDistance, but gives up once the distance is
// known to exceed max, in which case it returns max+1. Only cells within max
// of the diagonal are computed.
func BoundedEditDistance(s1, s2 string, max int) int {
	if d := len(s1) - len(s2); d > max || -d > max {
		return max + 1
	}
	// inf is larger than any distance within the band.
	inf := len(s1) + len(s2) + 1
	prev := make([]int, len(s2)+1)
	cur := make([]int, len(s2)+1)
	for j := range prev {
		if j <= max {
			prev[j] = j
		} else {
			prev[j] = inf
		}
	}
	for i := 1; i <= len(s1); i++ {
		lo, hi := i-max, i+max
		if lo < 1 {
			lo = 1
		}
		if hi > len(s2) {
			hi = len(s2)
		}
		for j := range cur {
			cur[j] = inf
		}
		if i <= max {
			cur[0] = i
		}
		rowMin := cur[0]
		for j := lo; j <= hi; j++ {
			v := prev[j-1]
			if s1[i-1] != s2[j-1] {
				v++
			}
			if d := prev[j] + 1; d < v {
				v = d
			}
			if d := cur[j-1] + 1; d < v {
				v = d
			}
			cur[j] = v
			if v < rowMin {
				rowMin = v
			}
		}
		if rowMin > max {
			return max + 1
		}
		prev, cur = cur, prev
	}
	if prev[len(s2)] > max {
		return max + 1
	}
	return prev[len(s2)]
}
