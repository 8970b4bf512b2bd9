// Package fastq writes chain sequences with their base qualities in FASTQ
// format, and converts between phred scores and their phred+33 text encoding.
package fastq

import (
	"io"

	"github.com/pkg/errors"
)

// Offset is added to phred scores to encode them as printable characters.
const Offset = 33

// MaxQual is the largest phred score that can be encoded.
const MaxQual = '~' - Offset

// EncodeQuals returns the phred+33 encoding of quals. Scores above MaxQual
// are capped.
func EncodeQuals(quals []byte) string {
	b := make([]byte, len(quals))
	for i, q := range quals {
		if q > MaxQual {
			q = MaxQual
		}
		b[i] = q + Offset
	}
	return string(b)
}

// DecodeQuals decodes a phred+33 quality string.
func DecodeQuals(s string) ([]byte, error) {
	quals := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] < Offset || s[i] > '~' {
			return nil, errors.Errorf("bad quality character %q at %d", s[i], i)
		}
		quals[i] = s[i] - Offset
	}
	return quals, nil
}

// A Record is one sequence. Quals holds phred scores, not their encoding.
type Record struct {
	Name  string
	Seq   string
	Quals []byte
}

var newline = []byte{'\n'}

// Writer writes records in FASTQ format.
type Writer struct {
	w   io.Writer
	err error
}

// NewWriter constructs a new FASTQ writer that writes records to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write writes r. An error is returned if this or an earlier write failed.
func (w *Writer) Write(r *Record) error {
	if len(r.Quals) != len(r.Seq) {
		return errors.Errorf("record %s: %d quals for %d bases", r.Name, len(r.Quals), len(r.Seq))
	}
	w.writeln("@" + r.Name)
	w.writeln(r.Seq)
	w.writeln("+")
	w.writeln(EncodeQuals(r.Quals))
	return w.err
}

func (w *Writer) writeln(line string) {
	if w.err != nil {
		return
	}
	_, w.err = io.WriteString(w.w, line)
	if w.err == nil {
		_, w.err = w.w.Write(newline)
	}
}
