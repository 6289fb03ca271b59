package evm

import (
	"math/big"
	"time"
)

const (
	// Scheme identifier
	SchemeUniversal = "universal"

	// Transaction status
	TxStatusSuccess = 1
	TxStatusFailed  = 0

	// Plain recoverable signature layout: r (32) || s (32) || v (1)
	EOASignatureLength = 65

	// DefaultCallTimeout bounds a single verification, external calls included
	DefaultCallTimeout = 30 * time.Second

	// Wrapped signature marker (last 4 bytes of a counterfactual signature)
	WrappedSignatureMagicValue = "0x69696969"

	// EIP-1271 magic value (returned by isValidSignature on success)
	// This is bytes4(keccak256("isValidSignature(bytes32,bytes)"))
	EIP1271MagicValue = "0x1626ba7e"

	// Reason codes, used for diagnostics only
	ReasonInvalidSignature         = "invalid_signature"
	ReasonMalformedWrapper         = "invalid_wrapped_signature"
	ReasonDeploymentFailed         = "smart_wallet_deployment_failed"
	ReasonCallFailed               = "is_valid_signature_call_failed"
	ReasonSignatureRejected        = "smart_wallet_signature_rejected"
	ReasonInvalidSignatureLength   = "invalid_eoa_signature_length"
	ReasonInvalidRecoveryParameter = "invalid_eoa_recovery_parameter"
	ReasonRecoveryFailed           = "eoa_recovery_failed"
	ReasonSignerMismatch           = "eoa_signer_mismatch"
	ReasonCodeLookupFailed         = "failed_to_check_deployment"
	ReasonVerificationTimeout      = "verification_timeout"
)

// MagicMarker is the 4-byte suffix identifying a wrapped counterfactual signature.
// Its last byte (0x69) is outside the accepted recovery byte set, so a 65-byte
// plain signature can never end with it.
var MagicMarker = [4]byte{0x69, 0x69, 0x69, 0x69}

// eip1271MagicValue is the bytes4 value returned by isValidSignature on success
var eip1271MagicValue = [4]byte{0x16, 0x26, 0xba, 0x7e}

// validRecoveryBytes is the set of v values accepted in a plain signature
var validRecoveryBytes = map[byte]byte{
	0:  0,
	1:  1,
	27: 0,
	28: 1,
}

var (
	// Network chain IDs
	ChainIDMainnet     = big.NewInt(1)
	ChainIDSepolia     = big.NewInt(11155111)
	ChainIDBase        = big.NewInt(8453)
	ChainIDBaseSepolia = big.NewInt(84532)
	ChainIDAnvil       = big.NewInt(31337)

	// NetworkChainIDs maps CAIP-2 network identifiers to chain IDs
	NetworkChainIDs = map[string]*big.Int{
		"eip155:1":        ChainIDMainnet,
		"eip155:11155111": ChainIDSepolia,
		"eip155:8453":     ChainIDBase,
		"eip155:84532":    ChainIDBaseSepolia,
		"eip155:31337":    ChainIDAnvil,
	}

	// networkAliases maps human-readable names to CAIP-2 identifiers
	networkAliases = map[string]string{
		"mainnet":      "eip155:1",
		"sepolia":      "eip155:11155111",
		"base":         "eip155:8453",
		"base-mainnet": "eip155:8453",
		"base-sepolia": "eip155:84532",
		"anvil":        "eip155:31337",
	}

	// EIP1271ABI is the minimal ABI for EIP-1271's isValidSignature function
	EIP1271ABI = []byte(`[{
		"inputs": [
			{"type": "bytes32", "name": "hash"},
			{"type": "bytes", "name": "signature"}
		],
		"name": "isValidSignature",
		"outputs": [{"type": "bytes4", "name": "magicValue"}],
		"stateMutability": "view",
		"type": "function"
	}]`)
)
