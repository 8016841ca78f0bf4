package log

import (
	"bufio"
	"io"
	"os"
)

// segmentWriter wraps a generation's file opened for append, buffering
// writes, and tracks the logical byte position the next write will
// land at. It seeks once to the end
// of the file on construction so that reopening a segment that already
// has data on disk resumes appending in the right place.
type segmentWriter struct {
	file *os.File
	buf  *bufio.Writer
	pos  uint64
}

func newSegmentWriter(f *os.File) (*segmentWriter, error) {
	off, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	return &segmentWriter{
		file: f,
		buf:  bufio.NewWriter(f),
		pos:  uint64(off),
	}, nil
}

func (w *segmentWriter) Write(p []byte) (int, error) {
	n, err := w.buf.Write(p)
	w.pos += uint64(n)
	return n, err
}

func (w *segmentWriter) Flush() error {
	return w.buf.Flush()
}

func (w *segmentWriter) Close() error {
	if err := w.buf.Flush(); err != nil {
		return err
	}
	return w.file.Close()
}

// segmentReader wraps a generation's file opened read-only and tracks
// the cursor left by the last Seek/Read: after seeking to p and reading
// n bytes, pos == p+n.
// Reads funnel through an *os.File directly rather than a bufio.Reader
// so that Seek and Read observe the same file offset without a second
// layer of buffering to invalidate.
type segmentReader struct {
	file *os.File
	pos  int64
}

func newSegmentReader(f *os.File) (*segmentReader, error) {
	pos, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	return &segmentReader{file: f, pos: pos}, nil
}

func (r *segmentReader) Seek(offset int64, whence int) (int64, error) {
	pos, err := r.file.Seek(offset, whence)
	if err != nil {
		return 0, err
	}
	r.pos = pos
	return pos, nil
}

func (r *segmentReader) Read(p []byte) (int, error) {
	n, err := r.file.Read(p)
	r.pos += int64(n)
	return n, err
}

func (r *segmentReader) Close() error {
	return r.file.Close()
}

// boundedReader limits reads to exactly n bytes starting at the
// reader's current position, used when the engine copies or decodes a
// single record of known length out of a segment shared with other
// live records.
func boundedReader(r io.Reader, n uint64) io.Reader {
	return io.LimitReader(r, int64(n))
}
