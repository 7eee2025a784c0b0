package params

import (
	"encoding/binary"
	"fmt"
	"math"
)

// WireSize is the encoded length of a Parameters value.
const WireSize = 8 + 8 + 8

// Marshal encodes p as k:u64 LE || m:u64 LE || phi:f64 LE (spec.md §6).
func (p Parameters) Marshal() []byte {
	out := make([]byte, WireSize)
	binary.LittleEndian.PutUint64(out[0:8], p.K)
	binary.LittleEndian.PutUint64(out[8:16], p.M)
	binary.LittleEndian.PutUint64(out[16:24], math.Float64bits(p.Phi))
	return out
}

// Unmarshal decodes a Parameters value, rejecting anything that isn't
// exactly WireSize bytes long.
func Unmarshal(data []byte) (Parameters, error) {
	if len(data) != WireSize {
		return Parameters{}, fmt.Errorf("params: expected %d bytes, got %d", WireSize, len(data))
	}
	return Parameters{
		K:   binary.LittleEndian.Uint64(data[0:8]),
		M:   binary.LittleEndian.Uint64(data[8:16]),
		Phi: math.Float64frombits(binary.LittleEndian.Uint64(data[16:24])),
	}, nil
}
