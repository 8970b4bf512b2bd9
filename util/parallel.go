package util

import "github.com/grailbio/base/traverse"

// Each calls fn(i) for each i in [0, n), running at most parallelism calls
// concurrently. If parallelism <= 0, one call per CPU runs at a time. The
// first error returned by fn is returned.
func Each(parallelism, n int, fn func(i int) error) error {
	if parallelism <= 0 {
		return traverse.Each(n, fn)
	}
	return traverse.Limit(parallelism).Each(n, fn)
}
