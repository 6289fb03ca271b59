package evm

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NormalizeNetwork resolves aliases ("base", "sepolia", ...) to CAIP-2 identifiers
func NormalizeNetwork(network string) string {
	if caip, ok := networkAliases[strings.ToLower(network)]; ok {
		return caip
	}
	return network
}

// GetEvmChainId returns the chain ID for a given network
func GetEvmChainId(network string) (*big.Int, error) {
	networkStr := NormalizeNetwork(network)

	if chainID, ok := NetworkChainIDs[networkStr]; ok {
		return new(big.Int).Set(chainID), nil
	}

	// Try to parse from CAIP-2 format (eip155:chainId)
	if strings.HasPrefix(networkStr, "eip155:") {
		chainIdStr := strings.TrimPrefix(networkStr, "eip155:")
		chainId, ok := new(big.Int).SetString(chainIdStr, 10)
		if ok && chainId.Sign() > 0 {
			return chainId, nil
		}
	}

	return nil, fmt.Errorf("unsupported network: %s", network)
}

// NormalizeAddress ensures an Ethereum address is in the correct format
func NormalizeAddress(address string) string {
	addr := strings.TrimPrefix(strings.ToLower(address), "0x")
	return "0x" + addr
}

// IsValidAddress checks if a string is a valid Ethereum address
func IsValidAddress(address string) bool {
	addr := strings.TrimPrefix(address, "0x")

	// Check length (40 hex characters)
	if len(addr) != 40 {
		return false
	}

	_, err := hex.DecodeString(addr)
	return err == nil
}

// ParseAddress parses a hex address, rejecting anything that is not 20 bytes
func ParseAddress(address string) (common.Address, error) {
	if !IsValidAddress(address) {
		return common.Address{}, fmt.Errorf("invalid address: %q", address)
	}
	return common.HexToAddress(address), nil
}

// HexToBytes converts a hex string to bytes
func HexToBytes(hexStr string) ([]byte, error) {
	cleaned := strings.TrimPrefix(hexStr, "0x")
	return hex.DecodeString(cleaned)
}

// ParseDigest parses a 0x-prefixed 32-byte hash
func ParseDigest(hexStr string) ([32]byte, error) {
	var digest [32]byte
	raw, err := HexToBytes(hexStr)
	if err != nil {
		return digest, fmt.Errorf("invalid digest: %w", err)
	}
	if len(raw) != len(digest) {
		return digest, fmt.Errorf("invalid digest length: expected 32 bytes, got %d", len(raw))
	}
	copy(digest[:], raw)
	return digest, nil
}
