package signer

import (
	"encoding/binary"
	"fmt"

	"github.com/stm-network/stm-go/pkg/bls"
	"github.com/stm-network/stm-go/pkg/merkle"
	"github.com/stm-network/stm-go/pkg/params"
)

// candidateWireSize is the encoded length of a Signature's fixed-size
// fields, without its Merkle path: sig || i:u64 LE || j:u64 LE || ev.
const candidateWireSize = bls.SizeG1 + 8 + 8 + params.EligibilityValueSize

// MarshalCandidate encodes the fixed-size portion of s — everything but
// its Merkle path, which an aggregate signature carries once, batched,
// rather than once per signature (spec.md §6, "Aggregate signature").
func (s Signature) MarshalCandidate() []byte {
	out := make([]byte, candidateWireSize)
	off := copy(out, s.Sig.Marshal())
	binary.LittleEndian.PutUint64(out[off:], s.Index)
	off += 8
	binary.LittleEndian.PutUint64(out[off:], s.LotteryIndex)
	off += 8
	copy(out[off:], s.Eligibility[:])
	return out
}

// UnmarshalCandidate decodes the fixed-size portion of a Signature,
// leaving Path empty.
func UnmarshalCandidate(data []byte) (Signature, error) {
	if len(data) != candidateWireSize {
		return Signature{}, fmt.Errorf("signer: candidate: expected %d bytes, got %d", candidateWireSize, len(data))
	}
	sig, err := bls.UnmarshalSignature(data[:bls.SizeG1])
	if err != nil {
		return Signature{}, fmt.Errorf("signer: candidate: %w", err)
	}
	off := bls.SizeG1
	index := binary.LittleEndian.Uint64(data[off:])
	off += 8
	lotteryIndex := binary.LittleEndian.Uint64(data[off:])
	off += 8
	var ev params.EligibilityValue
	copy(ev[:], data[off:])
	return Signature{Sig: sig, Index: index, LotteryIndex: lotteryIndex, Eligibility: ev}, nil
}

// Marshal encodes a single signature as sig || i:u64 LE || j:u64 LE ||
// ev || path, where path is length-prefixed (spec.md §6, "Single
// signature").
func (s Signature) Marshal() []byte {
	candidate := s.MarshalCandidate()
	pathBytes := s.Path.Marshal()
	out := make([]byte, 0, len(candidate)+len(pathBytes))
	out = append(out, candidate...)
	out = append(out, pathBytes...)
	return out
}

// Unmarshal decodes a single signature and reports how many bytes were
// consumed.
func Unmarshal(data []byte) (Signature, int, error) {
	if len(data) < candidateWireSize {
		return Signature{}, 0, fmt.Errorf("signer: signature: truncated fixed-size fields")
	}
	s, err := UnmarshalCandidate(data[:candidateWireSize])
	if err != nil {
		return Signature{}, 0, err
	}
	path, consumed, err := merkle.UnmarshalPath(data[candidateWireSize:])
	if err != nil {
		return Signature{}, 0, fmt.Errorf("signer: signature: %w", err)
	}
	s.Path = path
	return s, candidateWireSize + consumed, nil
}
