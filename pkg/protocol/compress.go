package protocol

import "github.com/golang/snappy"

// Compress applies Snappy's raw block format to a single IPv4 packet.
// Every call is independent; there is no cross-packet dictionary, so a
// dropped or reordered datagram never desynchronizes the stream.
func Compress(packet []byte) []byte {
	return snappy.Encode(nil, packet)
}

// Decompress reverses Compress. It fails closed on malformed input rather
// than attempting to recover a partial packet.
func Decompress(block []byte) ([]byte, error) {
	return snappy.Decode(nil, block)
}
