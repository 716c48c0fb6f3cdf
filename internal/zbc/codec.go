package zbc

// putUintN writes v big-endian into b, whose length fixes the field
// width. ZBC uses some non-power-of-two widths (7-byte zone sizes), so
// a fixed-width variant of binary.BigEndian.PutUint64 is needed.
func putUintN(b []byte, v uint64) {
	for i := len(b) - 1; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

// uintN reads a big-endian integer spanning all of b (at most 8 bytes).
func uintN(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}
