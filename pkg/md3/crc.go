package md3

// MD3 blocks carry a 6-bit CRC, polynomial x^6+x^5+x^2+x+1 (0x27), computed
// MSB first over data bytes 0-3 and the FOM/EOM bits of byte 4.

var crcTable [256]uint8

func init() {
	// Register is kept left-aligned in the top six bits of a byte.
	const poly uint8 = 0x27 << 2

	for i := 0; i < 256; i++ {
		crc := uint8(i)
		for j := 0; j < 8; j++ {
			if crc&0x80 != 0 {
				crc = (crc << 1) ^ poly
			} else {
				crc <<= 1
			}
		}
		crcTable[i] = crc
	}
}

// CalculateCRC returns the 6-bit CRC of data
func CalculateCRC(data []byte) uint8 {
	crc := uint8(0)
	for _, b := range data {
		crc = crcTable[crc^b]
	}
	return crc >> 2
}

// blockCRC is the CRC carried in byte 4 for the given first five bytes.
func blockCRC(b []byte) uint8 {
	return CalculateCRC([]byte{b[0], b[1], b[2], b[3], b[4] &^ CtrlCRCMask})
}

// VerifyCRC checks the CRC of a single 6-byte block
func VerifyCRC(block []byte) bool {
	if len(block) < BlockSize {
		return false
	}
	return block[4]&CtrlCRCMask == blockCRC(block)
}
