package evm

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// defaultDomainType is used when the caller does not declare EIP712Domain
var defaultDomainType = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

// ToAPITypedData converts our typed data description to go-ethereum's apitypes form
func ToAPITypedData(
	domain TypedDataDomain,
	types map[string][]TypedDataField,
	primaryType string,
	message map[string]interface{},
) apitypes.TypedData {
	typedData := apitypes.TypedData{
		Types:       make(apitypes.Types, len(types)+1),
		PrimaryType: primaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           (*math.HexOrDecimal256)(domain.ChainID),
			VerifyingContract: domain.VerifyingContract,
		},
		Message: message,
	}

	for typeName, fields := range types {
		typedFields := make([]apitypes.Type, 0, len(fields))
		for _, field := range fields {
			typedFields = append(typedFields, apitypes.Type{Name: field.Name, Type: field.Type})
		}
		typedData.Types[typeName] = typedFields
	}

	if _, exists := typedData.Types["EIP712Domain"]; !exists {
		typedData.Types["EIP712Domain"] = defaultDomainType
	}

	return typedData
}

// HashAPITypedData computes keccak256("\x19\x01" || domainSeparator || structHash)
func HashAPITypedData(typedData apitypes.TypedData) ([32]byte, error) {
	var digest [32]byte
	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return digest, fmt.Errorf("failed to hash typed data: %w", err)
	}
	copy(digest[:], hash)
	return digest, nil
}

// HashTypedData hashes EIP-712 typed data
//
// This is the digest a ClientEvmSigner signs and a verifier checks.
//
// Args:
//
//	domain: The EIP-712 domain separator parameters
//	types: The type definitions for the structured data
//	primaryType: The name of the primary type being hashed
//	message: The message data to hash
//
// Returns:
//
//	32-byte digest suitable for signing or verification
//	error if hashing fails
func HashTypedData(
	domain TypedDataDomain,
	types map[string][]TypedDataField,
	primaryType string,
	message map[string]interface{},
) ([32]byte, error) {
	return HashAPITypedData(ToAPITypedData(domain, types, primaryType, message))
}

// HashMessage hashes a personal message according to EIP-191 (version 0x45)
//
// The hash is keccak256("\x19Ethereum Signed Message:\n" + len(message) + message).
func HashMessage(message []byte) [32]byte {
	var digest [32]byte
	copy(digest[:], accounts.TextHash(message))
	return digest
}
