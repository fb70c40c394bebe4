package sqlitevec

import (
	"encoding/binary"
	"math"
)

// floatsToBytes converts a float32 slice to the little-endian byte layout
// sqlite-vec expects for float[] columns.
func floatsToBytes(floats []float32) []byte {
	bytes := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(bytes[i*4:], math.Float32bits(f))
	}
	return bytes
}

// bytesToFloats is the inverse of floatsToBytes.
func bytesToFloats(bytes []byte) []float32 {
	floats := make([]float32, len(bytes)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(bytes[i*4:]))
	}
	return floats
}
