// Package stmerrors defines the structured error kinds shared across the
// registration, signing, aggregation, and verification stages (spec.md §7).
// None of these are retried or logged internally; callers receive a
// structured value and decide what to do with it, following the
// fmt.Errorf("...: %w", err) wrapping idiom used throughout the rest of
// this module.
package stmerrors

import (
	"errors"
	"fmt"
)

// Registration errors.
var (
	ErrKeyAlreadyRegistered     = errors.New("stm: verification key already registered")
	ErrProofOfPossessionInvalid = errors.New("stm: proof of possession does not verify")
	ErrStakeZero                = errors.New("stm: stake must be non-zero")
	ErrAlreadyClosed            = errors.New("stm: registration already closed")
	ErrNotRegistered            = errors.New("stm: verification key not found in closed registration")
)

// Verification errors.
var (
	ErrMerkleRootMismatch          = errors.New("stm: batched merkle proof does not reconstruct the registration root")
	ErrSignatureVerificationFailed = errors.New("stm: aggregate signature does not verify")
	ErrEligibilityCheckFailed      = errors.New("stm: lottery eligibility does not hold for one or more signatures")
	ErrQuorumSizeWrong             = errors.New("stm: aggregate does not carry exactly k distinct lottery indices")
	ErrSerialization               = errors.New("stm: malformed or truncated wire encoding")
	ErrInvalidEncoding             = errors.New("stm: invalid group element encoding")
	ErrDuplicateLotteryIndex       = errors.New("stm: conflicting signatures submitted for the same lottery index")
)

// NotEnoughSignaturesError reports that fewer than the required number of
// distinct lottery indices were won by valid signatures.
type NotEnoughSignaturesError struct {
	Got      int
	Required int
}

func (e *NotEnoughSignaturesError) Error() string {
	return fmt.Sprintf("stm: not enough signatures: got %d distinct lottery indices, required %d", e.Got, e.Required)
}

// InvalidIndividualSignatureReason enumerates why a single candidate
// signature was rejected during aggregation (spec.md §7).
type InvalidIndividualSignatureReason string

const (
	ReasonSignature   InvalidIndividualSignatureReason = "signature"
	ReasonEligibility InvalidIndividualSignatureReason = "eligibility"
	ReasonMerklePath  InvalidIndividualSignatureReason = "merkle-path"
	ReasonIndexRange  InvalidIndividualSignatureReason = "index-range"
)

// InvalidIndividualSignatureError reports that one candidate signature
// failed validation during aggregation. This is recoverable: the caller
// drops the candidate and it is counted against the quorum, per spec.md §7.
type InvalidIndividualSignatureError struct {
	Reason InvalidIndividualSignatureReason
	Index  int // signer index i, for diagnostics
}

func (e *InvalidIndividualSignatureError) Error() string {
	return fmt.Sprintf("stm: invalid individual signature from signer %d: %s", e.Index, e.Reason)
}
