package netcdf

import (
	"fmt"
	"io"
)

// seekBuffer is an in-memory io.WriteSeeker. Dataset encoding needs seeking
// because the header is rewritten after variable data lands at fixed
// offsets, and output archives want bytes rather than files on disk.
type seekBuffer struct {
	data []byte
	off  int64
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	if grow := b.off + int64(len(p)) - int64(len(b.data)); grow > 0 {
		b.data = append(b.data, make([]byte, grow)...)
	}
	copy(b.data[b.off:], p)
	b.off += int64(len(p))
	return len(p), nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = b.off + offset
	case io.SeekEnd:
		next = int64(len(b.data)) + offset
	default:
		return 0, fmt.Errorf("invalid seek whence %d", whence)
	}
	if next < 0 {
		return 0, fmt.Errorf("seek before start of buffer")
	}
	b.off = next
	return next, nil
}

// ReadAt implements io.ReaderAt over the buffer contents
func (b *seekBuffer) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative read offset %d", off)
	}
	if off >= int64(len(b.data)) {
		return 0, io.EOF
	}
	n := copy(p, b.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt, growing the buffer with zero fill when a
// write lands past the current end. It leaves the seek offset alone.
func (b *seekBuffer) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative write offset %d", off)
	}
	if grow := off + int64(len(p)) - int64(len(b.data)); grow > 0 {
		b.data = append(b.data, make([]byte, grow)...)
	}
	copy(b.data[off:], p)
	return len(p), nil
}

// Bytes returns the written file image
func (b *seekBuffer) Bytes() []byte {
	return b.data
}
