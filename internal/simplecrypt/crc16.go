package simplecrypt

// crc16X25 is CRC-16/X.25 (reflected 0x1021, init and xorout 0xffff), the
// checksum the original file writer stores ahead of the payload.
func crc16X25(data []byte) uint16 {
	crc := uint16(0xffff)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0x8408
			} else {
				crc >>= 1
			}
		}
	}
	return ^crc
}
