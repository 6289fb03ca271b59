package evm

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Classification is the branch selected by the format detector
type Classification int

const (
	// ClassificationUnknown means classification did not complete (code lookup failed)
	ClassificationUnknown Classification = iota
	// ContractPresent means the signer already has deployed code
	ContractPresent
	// WrappedDeployment means the signer has no code and the signature carries the magic marker
	WrappedDeployment
	// PlainOrRecoverable means the signer has no code and the signature is not wrapped
	PlainOrRecoverable
)

func (c Classification) String() string {
	switch c {
	case ContractPresent:
		return "contract_present"
	case WrappedDeployment:
		return "wrapped_deployment"
	case PlainOrRecoverable:
		return "plain_or_recoverable"
	default:
		return "unknown"
	}
}

// Outcome is the only result a verification caller observes
type Outcome int

const (
	OutcomeInvalid Outcome = iota
	OutcomeValid
)

func (o Outcome) String() string {
	if o == OutcomeValid {
		return "valid"
	}
	return "invalid"
}

// Valid reports whether the outcome is OutcomeValid
func (o Outcome) Valid() bool {
	return o == OutcomeValid
}

// Path records the terminal state reached by a verification
type Path string

const (
	PathNone               Path = "none"
	PathContractValidate   Path = "contract_validate"
	PathCheckWrapper       Path = "check_wrapper" // marker present, payload did not decode
	PathDeployThenValidate Path = "deploy_then_validate"
	PathRecoverFallback    Path = "recover_fallback"
)

// DeploymentDescriptor holds what is needed to deploy a counterfactual signer.
// The target address is not part of it: the verifier already knows it.
type DeploymentDescriptor struct {
	Factory         common.Address // Deterministic deployment factory
	FactoryCalldata []byte         // Complete calldata for the factory call, selector included
}

// WrappedSignature is the decoded form of a signature ending in MagicMarker
type WrappedSignature struct {
	Deployment     DeploymentDescriptor
	InnerSignature []byte // Validated by the signer contract once it exists
}

// VerificationReport is the internal diagnostic view of a verification.
// Only Outcome is part of the public contract; Err identifies the internal
// failure kind and is meant for logging.
type VerificationReport struct {
	Outcome        Outcome
	Classification Classification
	Path           Path
	Err            error
}

// SignatureBackend is the narrow set of chain operations the verifier needs.
// Implementations must honour ctx cancellation.
type SignatureBackend interface {
	// HasCode reports whether the address currently has deployed bytecode
	HasCode(ctx context.Context, address common.Address) (bool, error)

	// Deploy executes the factory call as a state-mutating transaction.
	// It must return an error if the call reverts.
	Deploy(ctx context.Context, factory common.Address, calldata []byte) error

	// IsValidSignature calls isValidSignature(bytes32,bytes) on contract and returns
	// the raw bytes4 result. Deciding validity is the caller's job.
	IsValidSignature(ctx context.Context, contract common.Address, digest [32]byte, signature []byte) ([4]byte, error)
}

// AddressRecoverer recovers the signing address of a plain secp256k1 signature.
// v is the raw recovery id (0 or 1).
type AddressRecoverer interface {
	RecoverAddress(digest [32]byte, r, s [32]byte, v byte) (common.Address, error)
}

// CodeReader defines the interface for reading deployed bytecode
type CodeReader interface {
	// GetCode returns the bytecode at the given address
	// Returns empty slice if address is an EOA or doesn't exist
	GetCode(ctx context.Context, address string) ([]byte, error)
}

// ClientEvmSigner defines the interface for signer-side operations
type ClientEvmSigner interface {
	// Address returns the signer's Ethereum address
	Address() string

	// SignDigest signs a 32-byte digest and returns r || s || v with v in {27, 28}
	SignDigest(ctx context.Context, digest [32]byte) ([]byte, error)

	// SignTypedData signs EIP-712 typed data
	SignTypedData(ctx context.Context, domain TypedDataDomain, types map[string][]TypedDataField, primaryType string, message map[string]interface{}) ([]byte, error)
}

// FacilitatorEvmSigner defines the interface for facilitator EVM operations
// Supports multiple addresses for load balancing, key rotation, and high availability
type FacilitatorEvmSigner interface {
	// GetAddresses returns all addresses this facilitator can use for signing
	GetAddresses() []string

	// ReadContract reads data from a smart contract
	ReadContract(ctx context.Context, address string, abi []byte, functionName string, args ...interface{}) (interface{}, error)

	// SendTransaction sends a raw transaction with arbitrary calldata
	// Used for smart wallet deployment where calldata is pre-encoded
	SendTransaction(ctx context.Context, to string, data []byte) (string, error)

	// WaitForTransactionReceipt waits for a transaction to be mined
	WaitForTransactionReceipt(ctx context.Context, txHash string) (*TransactionReceipt, error)

	// GetChainID returns the chain ID of the connected network
	GetChainID(ctx context.Context) (*big.Int, error)

	// GetCode returns the bytecode at the given address
	// Returns empty slice if address is an EOA or doesn't exist
	GetCode(ctx context.Context, address string) ([]byte, error)
}

// TypedDataDomain represents the EIP-712 domain separator
type TypedDataDomain struct {
	Name              string   `json:"name"`
	Version           string   `json:"version"`
	ChainID           *big.Int `json:"chainId"`
	VerifyingContract string   `json:"verifyingContract"`
}

// TypedDataField represents a field in EIP-712 typed data
type TypedDataField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TransactionReceipt represents the receipt of a mined transaction
type TransactionReceipt struct {
	Status      uint64 `json:"status"`
	BlockNumber uint64 `json:"blockNumber"`
	TxHash      string `json:"transactionHash"`
}
