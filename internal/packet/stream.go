package packet

import "fmt"

// PlayerIndexBits is the width of the optional player index prefix.
const PlayerIndexBits = 8

// Assembler concatenates encoded packets into one stream. Packets are bit
// aligned, not byte aligned; the stream ends with an OpLast header so that
// the zero padding of the final byte is never read as a packet.
type Assembler struct {
	w     BitWriter
	count int
}

// Add appends p to the stream.
func (a *Assembler) Add(p Packet) error {
	enc, err := Encode(p)
	if err != nil {
		return err
	}
	a.AddEncoded(enc)
	return nil
}

// AddEncoded appends an already encoded packet.
func (a *Assembler) AddEncoded(enc *BitWriter) {
	a.w.WriteBits(enc)
	a.count++
}

// Len returns the number of packets added.
func (a *Assembler) Len() int { return a.count }

// Bytes returns the terminated stream. A non-negative playerIndex is written
// as a prefix.
func (a *Assembler) Bytes(playerIndex int) ([]byte, error) {
	out := &BitWriter{}
	if playerIndex >= 0 {
		if err := writeInt(out, playerIndex, PlayerIndexBits); err != nil {
			return nil, fmt.Errorf("packet: player index: %w", err)
		}
	}
	out.WriteBits(&a.w)
	if err := out.WriteUint(uint64(OpLast), OpcodeBits); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Reset empties the assembler.
func (a *Assembler) Reset() {
	a.w = BitWriter{}
	a.count = 0
}

// Disassemble decodes a stream built by Assembler.Bytes. When withPlayer is
// true the player index prefix is read and returned, otherwise it is -1.
func Disassemble(stream []byte, withPlayer bool) (int, []Packet, error) {
	r := NewBitReader(stream)
	player := -1
	if withPlayer {
		v, err := r.ReadUint(PlayerIndexBits)
		if err != nil {
			return -1, nil, err
		}
		player = int(v)
	}

	var packets []Packet
	for r.Remaining() >= OpcodeBits {
		p, err := Decode(r)
		if err != nil {
			return player, packets, err
		}
		if p == nil {
			return player, packets, nil
		}
		packets = append(packets, p)
	}
	return player, packets, fmt.Errorf("%w: missing %s terminator", ErrShortPacket, OpLast)
}
