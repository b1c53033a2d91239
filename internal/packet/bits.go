package packet

import "fmt"

// BitWriter appends big-endian bit fields to a byte slice.
type BitWriter struct {
	buf []byte
	n   int // bits written
}

// Len returns the number of bits written.
func (w *BitWriter) Len() int { return w.n }

// WriteUint appends the low `bits` bits of v, most significant first.
func (w *BitWriter) WriteUint(v uint64, bits int) error {
	if bits < 1 || bits > 64 {
		return fmt.Errorf("packet: invalid bit count %d", bits)
	}
	if bits < 64 && v>>bits != 0 {
		return fmt.Errorf("packet: value %d does not fit in %d bits", v, bits)
	}
	for i := bits - 1; i >= 0; i-- {
		w.writeBit(v>>i&1 == 1)
	}
	return nil
}

// WriteBool appends a single bit.
func (w *BitWriter) WriteBool(b bool) {
	w.writeBit(b)
}

// WriteBits appends every bit of another writer.
func (w *BitWriter) WriteBits(other *BitWriter) {
	for i := 0; i < other.n; i++ {
		w.writeBit(other.buf[i/8]&(0x80>>(i%8)) != 0)
	}
}

func (w *BitWriter) writeBit(b bool) {
	if w.n%8 == 0 {
		w.buf = append(w.buf, 0)
	}
	if b {
		w.buf[w.n/8] |= 0x80 >> (w.n % 8)
	}
	w.n++
}

// Bytes returns the written bits zero-padded to a whole byte.
func (w *BitWriter) Bytes() []byte {
	out := make([]byte, len(w.buf))
	copy(out, w.buf)
	return out
}

// String returns the bits as '0' and '1' runes.
func (w *BitWriter) String() string {
	s := make([]byte, w.n)
	for i := range s {
		if w.buf[i/8]&(0x80>>(i%8)) != 0 {
			s[i] = '1'
		} else {
			s[i] = '0'
		}
	}
	return string(s)
}

// BitReader reads big-endian bit fields from a byte slice.
type BitReader struct {
	buf []byte
	pos int
	end int
}

// NewBitReader reads all bits of buf.
func NewBitReader(buf []byte) *BitReader {
	return &BitReader{buf: buf, end: len(buf) * 8}
}

// Remaining returns the number of unread bits.
func (r *BitReader) Remaining() int { return r.end - r.pos }

// ReadUint reads a `bits`-wide unsigned field.
func (r *BitReader) ReadUint(bits int) (uint64, error) {
	if bits < 1 || bits > 64 {
		return 0, fmt.Errorf("packet: invalid bit count %d", bits)
	}
	if r.Remaining() < bits {
		return 0, fmt.Errorf("%w: need %d bits, have %d", ErrShortPacket, bits, r.Remaining())
	}
	var v uint64
	for i := 0; i < bits; i++ {
		v <<= 1
		if r.buf[r.pos/8]&(0x80>>(r.pos%8)) != 0 {
			v |= 1
		}
		r.pos++
	}
	return v, nil
}

// PeekUint reads a field without consuming it.
func (r *BitReader) PeekUint(bits int) (uint64, error) {
	pos := r.pos
	v, err := r.ReadUint(bits)
	r.pos = pos
	return v, err
}

// Sub returns a reader limited to the next `bits` bits and advances past them.
func (r *BitReader) Sub(bits int) (*BitReader, error) {
	if r.Remaining() < bits {
		return nil, fmt.Errorf("%w: need %d bits, have %d", ErrShortPacket, bits, r.Remaining())
	}
	sub := &BitReader{buf: r.buf, pos: r.pos, end: r.pos + bits}
	r.pos += bits
	return sub, nil
}
