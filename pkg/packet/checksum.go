package packet

// Checksum computes the Internet checksum (RFC 1071) of b: the one's
// complement of the one's complement sum of its big-endian 16-bit words.
// An odd trailing byte is padded with zero.
func Checksum(b []byte) uint16 {
	var sum uint32
	n := len(b) &^ 1
	for i := 0; i < n; i += 2 {
		sum += uint32(b[i])<<8 | uint32(b[i+1])
	}
	if len(b)&1 != 0 {
		sum += uint32(b[len(b)-1]) << 8
	}
	for sum>>16 != 0 {
		sum = sum&0xffff + sum>>16
	}
	return ^uint16(sum)
}
