package evm

import (
	"errors"

	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// compactMagicOffset is the base of the recovery code in decred's compact format
const compactMagicOffset = 27

// DecredRecoverer recovers addresses with the pure-Go decred secp256k1 package.
// It needs no cgo and gives the same answers as EcrecoverRecoverer.
type DecredRecoverer struct{}

// RecoverAddress implements AddressRecoverer
func (DecredRecoverer) RecoverAddress(digest [32]byte, r, s [32]byte, v byte) (common.Address, error) {
	if v > 1 {
		return common.Address{}, errors.New("recovery id must be 0 or 1")
	}

	// Compact format: code || r || s, code = 27 + recid for uncompressed keys
	compact := make([]byte, 65)
	compact[0] = compactMagicOffset + v
	copy(compact[1:33], r[:])
	copy(compact[33:], s[:])

	pubKey, _, err := ecdsa.RecoverCompact(compact, digest[:])
	if err != nil {
		return common.Address{}, err
	}

	uncompressed := pubKey.SerializeUncompressed()
	return common.BytesToAddress(crypto.Keccak256(uncompressed[1:])[12:]), nil
}

// RecovererByName returns the recovery primitive selected in configuration
func RecovererByName(name string) (AddressRecoverer, error) {
	switch name {
	case "", "ecrecover":
		return EcrecoverRecoverer{}, nil
	case "decred":
		return DecredRecoverer{}, nil
	default:
		return nil, errors.New("unknown recoverer: " + name)
	}
}
