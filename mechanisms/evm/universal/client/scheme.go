package client

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/blip-x402/univsig/mechanisms/evm"
)

// UniversalEvmSchemeConfig holds configuration for the UniversalEvmScheme client
type UniversalEvmSchemeConfig struct {
	// Deployment deploys Account while it is still counterfactual.
	// Nil means the account is an EOA or already deployed and signatures are never wrapped.
	Deployment *evm.DeploymentDescriptor

	// Account is the address verifiers check the signature against.
	// Defaults to the owner signer's address.
	Account string

	// Codec encodes wrapped signatures (nil uses evm.DefaultWrapperCodec)
	Codec evm.WrapperCodec
}

// UniversalEvmScheme produces signatures that verify through the universal
// verifier: plain for EOAs and deployed wallets, wrapped for counterfactual ones.
type UniversalEvmScheme struct {
	signer     evm.ClientEvmSigner
	account    string
	deployment *evm.DeploymentDescriptor
	codec      evm.WrapperCodec

	// set once the account is known to have code
	deployed atomic.Bool
}

// NewUniversalEvmScheme creates a new UniversalEvmScheme
// Args:
//
//	signer: The owner key that signs digests
//	config: Optional configuration (nil signs plainly for the signer's own address)
//
// Returns:
//
//	Configured UniversalEvmScheme instance
func NewUniversalEvmScheme(signer evm.ClientEvmSigner, config *UniversalEvmSchemeConfig) *UniversalEvmScheme {
	cfg := UniversalEvmSchemeConfig{}
	if config != nil {
		cfg = *config
	}
	if cfg.Account == "" {
		cfg.Account = signer.Address()
	}
	if cfg.Codec == nil {
		cfg.Codec = evm.DefaultWrapperCodec
	}

	var deployment *evm.DeploymentDescriptor
	if cfg.Deployment != nil {
		d := *cfg.Deployment
		d.FactoryCalldata = append([]byte(nil), d.FactoryCalldata...)
		deployment = &d
	}

	return &UniversalEvmScheme{
		signer:     signer,
		account:    evm.NormalizeAddress(cfg.Account),
		deployment: deployment,
		codec:      cfg.Codec,
	}
}

// Scheme returns the scheme identifier
func (c *UniversalEvmScheme) Scheme() string {
	return evm.SchemeUniversal
}

// Account returns the address signatures are produced for
func (c *UniversalEvmScheme) Account() string {
	return c.account
}

// Counterfactual reports whether signatures are currently wrapped with
// deployment data. With a reader it first checks the account's code and stops
// wrapping for good once code is found.
func (c *UniversalEvmScheme) Counterfactual(ctx context.Context, reader evm.CodeReader) (bool, error) {
	if c.deployment == nil || c.deployed.Load() {
		return false, nil
	}
	if reader == nil {
		return true, nil
	}

	code, err := reader.GetCode(ctx, c.account)
	if err != nil {
		return false, fmt.Errorf("failed to check account code: %w", err)
	}
	if len(code) > 0 {
		c.deployed.Store(true)
		return false, nil
	}
	return true, nil
}

// MarkDeployed stops wrapping signatures without a chain lookup
func (c *UniversalEvmScheme) MarkDeployed() {
	c.deployed.Store(true)
}

// SignDigest signs a 32-byte digest for the account
//
// Returns:
//
//	Plain owner signature, or the wrapped form while the account is counterfactual
//	Error if signing or encoding fails
func (c *UniversalEvmScheme) SignDigest(ctx context.Context, digest [32]byte) ([]byte, error) {
	signature, err := c.signer.SignDigest(ctx, digest)
	if err != nil {
		return nil, fmt.Errorf("failed to sign digest: %w", err)
	}
	return c.wrap(signature)
}

// SignMessage signs an EIP-191 personal message for the account
func (c *UniversalEvmScheme) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	return c.SignDigest(ctx, evm.HashMessage(message))
}

// SignTypedData signs EIP-712 typed data for the account
func (c *UniversalEvmScheme) SignTypedData(
	ctx context.Context,
	domain evm.TypedDataDomain,
	types map[string][]evm.TypedDataField,
	primaryType string,
	message map[string]interface{},
) ([]byte, error) {
	signature, err := c.signer.SignTypedData(ctx, domain, types, primaryType, message)
	if err != nil {
		return nil, fmt.Errorf("failed to sign typed data: %w", err)
	}
	return c.wrap(signature)
}

func (c *UniversalEvmScheme) wrap(signature []byte) ([]byte, error) {
	if c.deployment == nil || c.deployed.Load() {
		return signature, nil
	}

	wrapped, err := c.codec.Encode(evm.WrappedSignature{
		Deployment:     *c.deployment,
		InnerSignature: signature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to wrap signature: %w", err)
	}
	return wrapped, nil
}
