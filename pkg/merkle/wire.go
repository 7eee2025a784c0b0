package merkle

import (
	"encoding/binary"
	"fmt"
)

// Marshal encodes a Path as len:u32 LE followed by that many 32-byte
// sibling hashes (spec.md §6, the "path" field of a single signature).
func (p Path) Marshal() []byte {
	out := make([]byte, 4, 4+len(p)*HashSize)
	binary.LittleEndian.PutUint32(out, uint32(len(p)))
	for _, h := range p {
		out = append(out, h[:]...)
	}
	return out
}

// UnmarshalPath decodes a Path and reports how many bytes were consumed.
func UnmarshalPath(data []byte) (Path, int, error) {
	if len(data) < 4 {
		return nil, 0, fmt.Errorf("merkle: path: truncated length prefix")
	}
	n := binary.LittleEndian.Uint32(data)
	need := 4 + int(n)*HashSize
	if len(data) < need {
		return nil, 0, fmt.Errorf("merkle: path: truncated, need %d bytes, have %d", need, len(data))
	}
	path := make(Path, n)
	off := 4
	for i := range path {
		copy(path[i][:], data[off:off+HashSize])
		off += HashSize
	}
	return path, need, nil
}

// Marshal encodes a BatchPath as hashes_len:u32 LE followed by that many
// 32-byte hashes (spec.md §6).
func (b BatchPath) Marshal() []byte {
	out := make([]byte, 4, 4+len(b.Hashes)*HashSize)
	binary.LittleEndian.PutUint32(out, uint32(len(b.Hashes)))
	for _, h := range b.Hashes {
		out = append(out, h[:]...)
	}
	return out
}

// UnmarshalBatchPath decodes a BatchPath and reports how many bytes were
// consumed.
func UnmarshalBatchPath(data []byte) (BatchPath, int, error) {
	if len(data) < 4 {
		return BatchPath{}, 0, fmt.Errorf("merkle: batch path: truncated length prefix")
	}
	n := binary.LittleEndian.Uint32(data)
	need := 4 + int(n)*HashSize
	if len(data) < need {
		return BatchPath{}, 0, fmt.Errorf("merkle: batch path: truncated, need %d bytes, have %d", need, len(data))
	}
	hashes := make([][HashSize]byte, n)
	off := 4
	for i := range hashes {
		copy(hashes[i][:], data[off:off+HashSize])
		off += HashSize
	}
	return BatchPath{Hashes: hashes}, need, nil
}
