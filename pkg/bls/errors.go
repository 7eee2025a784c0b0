package bls

import (
	"fmt"

	"github.com/stm-network/stm-go/pkg/stmerrors"
)

func errInvalidEncoding(what string, want, got int) error {
	return fmt.Errorf("bls: %s: expected %d bytes, got %d: %w", what, want, got, stmerrors.ErrInvalidEncoding)
}
