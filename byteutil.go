package docdb

import (
	"encoding/binary"
	"errors"
	"io"
)

var errShortBuffer = errors.New("unexpected end of data")

func ensureCapacity(buf []byte, minCap int) []byte {
	c := cap(buf)
	if minCap > c {
		if c < 16 {
			c = 16
		}
		for minCap > c {
			c <<= 1
		}
		old := buf
		buf = make([]byte, len(old), c)
		copy(buf, old)
	}
	return buf
}

func grow(buf []byte, n int) (int, []byte) {
	off := len(buf)
	newLen := off + n
	buf = ensureCapacity(buf, newLen)
	return off, buf[:newLen]
}

func appendRaw(buf []byte, chunk []byte) []byte {
	n := len(chunk)
	off, buf := grow(buf, n)
	copy(buf[off:], chunk)
	return buf
}

// bytesBuilder is an io.Writer appending to a reusable buffer.
type bytesBuilder struct {
	Buf []byte
}

var _ io.Writer = (*bytesBuilder)(nil)

func (bb *bytesBuilder) Write(b []byte) (int, error) {
	bb.Buf = appendRaw(bb.Buf, b)
	return len(b), nil
}

func (bb *bytesBuilder) WriteByte(v byte) error {
	var off int
	off, bb.Buf = grow(bb.Buf, 1)
	bb.Buf[off] = v
	return nil
}

func (bb *bytesBuilder) AppendUvarint(v uint64) {
	bb.Buf = binary.AppendUvarint(bb.Buf, v)
}

type byteDecoder struct {
	buf []byte
	off int
}

func makeByteDecoder(buf []byte) byteDecoder {
	return byteDecoder{buf: buf}
}

func (d *byteDecoder) Off() int {
	return d.off
}

func (d *byteDecoder) Rest() []byte {
	return d.buf[d.off:]
}

func (d *byteDecoder) Uvarint() (uint64, error) {
	v, n := binary.Uvarint(d.buf[d.off:])
	if n <= 0 {
		return 0, errShortBuffer
	}
	d.off += n
	return v, nil
}
