// Package compress picks a stream codec from a file name: ".gz" files are
// gzip streams and ".sz" files are framed snappy streams. Other files are
// passed through.
package compress

import (
	"io"
	"strings"

	"github.com/golang/snappy"
	"github.com/grailbio/base/fileio"
	"github.com/klauspost/compress/gzip"
)

// Codec is a supported compression format.
type Codec int

const (
	// None is no compression.
	None Codec = iota
	// Gzip is the gzip format.
	Gzip
	// Snappy is the framed snappy format.
	Snappy
)

// Ext returns the file name extension of c, including the dot.
func (c Codec) Ext() string {
	switch c {
	case Gzip:
		return ".gz"
	case Snappy:
		return ".sz"
	}
	return ""
}

// Parse parses a codec name as given on the command line: "", "none", "gz"
// or "sz".
func Parse(name string) (Codec, bool) {
	switch strings.TrimPrefix(name, ".") {
	case "", "none":
		return None, true
	case "gz", "gzip":
		return Gzip, true
	case "sz", "snappy":
		return Snappy, true
	}
	return None, false
}

// FromPath returns the codec of path, based on its extension.
func FromPath(path string) Codec {
	switch {
	case fileio.DetermineType(path) == fileio.Gzip:
		return Gzip
	case strings.HasSuffix(path, ".sz"):
		return Snappy
	}
	return None
}

// NewReader returns a reader that decompresses r according to the extension
// of path.
func NewReader(r io.Reader, path string) (io.Reader, error) {
	switch FromPath(path) {
	case Gzip:
		return gzip.NewReader(r)
	case Snappy:
		return snappy.NewReader(r), nil
	}
	return r, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// NewWriter returns a writer that compresses into w according to the
// extension of path. Closing the result flushes it, but does not close w.
func NewWriter(w io.Writer, path string) io.WriteCloser {
	switch FromPath(path) {
	case Gzip:
		return gzip.NewWriter(w)
	case Snappy:
		return snappy.NewBufferedWriter(w)
	}
	return nopCloser{w}
}
