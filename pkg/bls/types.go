// Package bls implements the MultiSig primitive: BLS12-381 key generation,
// proofs of possession, signing, verification, and signature/key
// aggregation. Signatures live in G1 (48-byte compressed), verification
// keys in G2 (96-byte compressed) — the "minimal-signature-size" variant.
//
// All group arithmetic goes through gnark-crypto's bls12-381 implementation.
// Deserialization of any compressed point rejects non-canonical encodings
// and points outside the prime-order subgroup: gnark-crypto's SetBytes
// performs both checks.
//
// Proofs of possession bind only the verification key's own compressed
// encoding; they do not bind any additional context such as an epoch
// nonce. An embedder that needs PoPs scoped to a particular epoch must
// layer that binding on top (spec.md §9, Open Question (a)).
package bls

import (
	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
)

// SizeG1 is the compressed encoding length of a G1 point (signatures, one
// PoP element).
const SizeG1 = 48

// SizeG2 is the compressed encoding length of a G2 point (verification keys).
const SizeG2 = 96

// SizePoP is the compressed encoding length of a ProofOfPossession.
const SizePoP = 2 * SizeG1

// SecretKey is a BLS scalar in the scalar field of bls12-381. It never
// implements Marshal/Unmarshal on purpose: secret material does not cross
// the wire.
type SecretKey struct {
	scalar fr.Element
}

// VerificationKey is a BLS12-381 G2 point.
type VerificationKey struct {
	point bls12381.G2Affine
}

// Signature is a BLS12-381 G1 point.
type Signature struct {
	point bls12381.G1Affine
}

// ProofOfPossession binds a VerificationKey to the secret key behind it.
// K1 is a signature (under the PoP domain tag) over the VK's compressed
// encoding; K2 is sk·G1Generator. Verification checks K1 the ordinary way
// and checks K2 against the VK via a pairing equation, which defeats
// rogue-key attacks during aggregation (spec.md §4.1).
type ProofOfPossession struct {
	K1 Signature
	K2 Signature
}

var (
	g1Gen bls12381.G1Affine
	g2Gen bls12381.G2Affine
)

func init() {
	_, _, g1, g2 := bls12381.Generators()
	g1Gen = g1
	g2Gen = g2
}

// Marshal returns the 48-byte compressed encoding of the signature.
func (s Signature) Marshal() []byte {
	b := s.point.Bytes()
	return b[:]
}

// UnmarshalSignature decodes a compressed G1 point. It rejects malformed or
// subgroup-invalid input.
func UnmarshalSignature(data []byte) (Signature, error) {
	if len(data) != SizeG1 {
		return Signature{}, errInvalidEncoding("signature", SizeG1, len(data))
	}
	var p bls12381.G1Affine
	if _, err := p.SetBytes(data); err != nil {
		return Signature{}, errInvalidEncoding("signature", SizeG1, len(data))
	}
	return Signature{point: p}, nil
}

// Marshal returns the 96-byte compressed encoding of the verification key.
func (vk VerificationKey) Marshal() []byte {
	b := vk.point.Bytes()
	return b[:]
}

// UnmarshalVerificationKey decodes a compressed G2 point.
func UnmarshalVerificationKey(data []byte) (VerificationKey, error) {
	if len(data) != SizeG2 {
		return VerificationKey{}, errInvalidEncoding("verification key", SizeG2, len(data))
	}
	var p bls12381.G2Affine
	if _, err := p.SetBytes(data); err != nil {
		return VerificationKey{}, errInvalidEncoding("verification key", SizeG2, len(data))
	}
	return VerificationKey{point: p}, nil
}

// Equal reports whether two verification keys encode the same point.
func (vk VerificationKey) Equal(other VerificationKey) bool {
	return vk.point.Equal(&other.point)
}

// Bytes32 returns a fixed-size array suitable for use as a map key.
func (vk VerificationKey) Bytes32() [SizeG2]byte {
	return vk.point.Bytes()
}

// Marshal returns the 96-byte encoding of a proof of possession (two
// concatenated compressed G1 points).
func (p ProofOfPossession) Marshal() []byte {
	out := make([]byte, 0, SizePoP)
	out = append(out, p.K1.Marshal()...)
	out = append(out, p.K2.Marshal()...)
	return out
}

// UnmarshalProofOfPossession decodes a proof of possession.
func UnmarshalProofOfPossession(data []byte) (ProofOfPossession, error) {
	if len(data) != SizePoP {
		return ProofOfPossession{}, errInvalidEncoding("proof of possession", SizePoP, len(data))
	}
	k1, err := UnmarshalSignature(data[:SizeG1])
	if err != nil {
		return ProofOfPossession{}, err
	}
	k2, err := UnmarshalSignature(data[SizeG1:])
	if err != nil {
		return ProofOfPossession{}, err
	}
	return ProofOfPossession{K1: k1, K2: k2}, nil
}
