package tetris

// ToBCD converts 0..99 into a packed BCD byte.
func ToBCD(v int) byte {
	v %= 100
	return byte(v/10)<<4 | byte(v%10)
}

// FromBCD converts a packed BCD byte back to an integer. Nibbles above 9 are
// kept as-is, matching how the NES prints a corrupted digit.
func FromBCD(b byte) int {
	return int(b>>4)*10 + int(b&0x0F)
}

// PushdownScore returns the score after the NES awards pushdown points for
// holdDown rows of soft drop.
//
// The hardware subtracts one, adds the row count in binary to the low BCD
// byte, then fixes each nibble that overflowed with +6 / +0x60 and carries
// into the hundreds. Digit carries that the fix-up misses are lost, so the
// result can be lower than plain decimal addition.
func PushdownScore(score, holdDown int) int {
	if holdDown < 2 {
		return score
	}
	low := score % 100
	b := ToBCD(low)
	b = b - 1 + byte(holdDown)
	if b&0x0F >= 0x0A {
		b += 0x06
	}
	carry := 0
	if b&0xF0 >= 0xA0 {
		b += 0x60
		carry = 100
	}
	return score - low + FromBCD(b) + carry
}

// PushdownPoints returns how many points PushdownScore awards.
func PushdownPoints(score, holdDown int) int {
	return PushdownScore(score, holdDown) - score
}
