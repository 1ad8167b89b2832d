package outcome

import (
	"io"
)

// trackingWriter remembers the first error of the destination so a failed copy
// can be attributed to the side that broke.
type trackingWriter struct {
	w   io.Writer
	err error
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if err != nil && t.err == nil {
		t.err = err
	}

	return n, err
}

// Copy copies src into dst. A failure writing dst is classified KindLocalIO, a failure
// reading src is classified readKind.
func Copy(dst io.Writer, src io.Reader, readKind Kind, op string) (int64, error) {
	tw := &trackingWriter{w: dst}

	n, err := io.Copy(tw, src)
	if err == nil {
		return n, nil
	}

	if tw.err != nil {
		return n, New(KindLocalIO, op, tw.err)
	}

	return n, New(readKind, op, err)
}
