package logging

import (
	"bytes"
	"io"
)

// PrefixWriter prepends a fixed prefix to every line written through it.
// Partial lines are held back until their newline arrives, so a prefix is
// never inserted in the middle of a line.
type PrefixWriter struct {
	prefix  []byte
	writer  io.Writer
	partial bytes.Buffer
}

// NewPrefixWriter wraps w so that each complete line gains the prefix.
func NewPrefixWriter(prefix string, w io.Writer) *PrefixWriter {
	return &PrefixWriter{prefix: []byte(prefix), writer: w}
}

// Write implements io.Writer.
func (pw *PrefixWriter) Write(p []byte) (int, error) {
	total := len(p)

	for {
		nl := bytes.IndexByte(p, '\n')
		if nl < 0 {
			pw.partial.Write(p)
			return total, nil
		}

		if _, err := pw.writer.Write(pw.prefix); err != nil {
			return 0, err
		}
		if pw.partial.Len() > 0 {
			if _, err := pw.partial.WriteTo(pw.writer); err != nil {
				return 0, err
			}
		}
		if _, err := pw.writer.Write(p[:nl+1]); err != nil {
			return 0, err
		}
		p = p[nl+1:]
	}
}
