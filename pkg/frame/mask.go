package frame

// Mask XORs p in place with key, cycling over the key by byte index. The
// operation is its own inverse, so it both masks and unmasks.
func Mask(p []byte, key [4]byte) {
	for i := range p {
		p[i] ^= key[i&3]
	}
}
