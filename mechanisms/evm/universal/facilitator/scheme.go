package facilitator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"go.uber.org/zap"

	univsig "github.com/blip-x402/univsig"
	"github.com/blip-x402/univsig/mechanisms/evm"
	"github.com/blip-x402/univsig/types"
)

// Request-level reason codes
const (
	ReasonInvalidSigner          = "invalid_signer"
	ReasonInvalidSignatureFormat = "invalid_signature_format"
	ReasonInvalidDigest          = "invalid_digest"
	ReasonInvalidTypedData       = "invalid_typed_data"
	ReasonInvalidFactory         = "invalid_factory"
	ReasonInvalidFactoryCalldata = "invalid_factory_calldata"
	ReasonWrapFailed             = "failed_to_wrap_signature"
)

// DefaultNetwork is served when the config leaves Network empty
const DefaultNetwork = "eip155:84532"

// UniversalEvmSchemeConfig holds configuration for the UniversalEvmScheme facilitator
type UniversalEvmSchemeConfig struct {
	// Network is the CAIP-2 network (or alias) the signer is connected to
	Network string

	// CallTimeout bounds each verification (zero uses evm.DefaultCallTimeout)
	CallTimeout time.Duration

	// Recoverer is the plain signature recovery primitive (nil uses go-ethereum's ecrecover)
	Recoverer evm.AddressRecoverer

	// Codec encodes and decodes wrapped signatures (nil uses evm.DefaultWrapperCodec)
	Codec evm.WrapperCodec

	Logger *zap.Logger
}

// AfterVerifyHook observes every completed verification. The report carries the
// internal failure kind and must not be exposed to the requester.
type AfterVerifyHook func(ctx context.Context, request types.VerifyRequest, report *evm.VerificationReport)

// UniversalEvmScheme is the facilitator side of universal signature verification.
// It turns wire requests into verifier calls and wraps/unwraps counterfactual signatures.
type UniversalEvmScheme struct {
	signer   evm.FacilitatorEvmSigner
	verifier *evm.Verifier
	codec    evm.WrapperCodec
	network  string
	logger   *zap.Logger

	hooksMu     sync.RWMutex
	afterVerify []AfterVerifyHook
}

// NewUniversalEvmScheme creates a new UniversalEvmScheme
// Args:
//
//	signer: The EVM signer for code lookups, deployments and contract calls
//	config: Optional configuration (nil uses defaults)
//
// Returns:
//
//	Configured UniversalEvmScheme instance
func NewUniversalEvmScheme(signer evm.FacilitatorEvmSigner, config *UniversalEvmSchemeConfig) *UniversalEvmScheme {
	cfg := UniversalEvmSchemeConfig{}
	if config != nil {
		cfg = *config
	}
	if cfg.Network == "" {
		cfg.Network = DefaultNetwork
	}
	if cfg.Codec == nil {
		cfg.Codec = evm.DefaultWrapperCodec
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	verifier := evm.NewVerifier(evm.NewSignerBackend(signer), &evm.VerifierConfig{
		CallTimeout: cfg.CallTimeout,
		Recoverer:   cfg.Recoverer,
		Codec:       cfg.Codec,
		Logger:      cfg.Logger.Named("verifier"),
	})

	return &UniversalEvmScheme{
		signer:   signer,
		verifier: verifier,
		codec:    cfg.Codec,
		network:  evm.NormalizeNetwork(cfg.Network),
		logger:   cfg.Logger,
	}
}

// Scheme returns the scheme identifier
func (f *UniversalEvmScheme) Scheme() string {
	return evm.SchemeUniversal
}

// Network returns the CAIP-2 network this facilitator serves
func (f *UniversalEvmScheme) Network() string {
	return f.network
}

// GetSigners returns the addresses this facilitator deploys from
func (f *UniversalEvmScheme) GetSigners() []string {
	return f.signer.GetAddresses()
}

// Supported lists the scheme/network pairs and signer addresses
func (f *UniversalEvmScheme) Supported() types.SupportedResponse {
	return types.SupportedResponse{
		Kinds: []types.SupportedKind{
			{Scheme: f.Scheme(), Network: f.network},
		},
		Signers: f.GetSigners(),
	}
}

// OnAfterVerify registers a hook that runs after every verification
func (f *UniversalEvmScheme) OnAfterVerify(hook AfterVerifyHook) *UniversalEvmScheme {
	f.hooksMu.Lock()
	defer f.hooksMu.Unlock()
	f.afterVerify = append(f.afterVerify, hook)
	return f
}

// CheckNetwork confirms the connected chain matches the configured network
func (f *UniversalEvmScheme) CheckNetwork(ctx context.Context) error {
	expected, err := evm.GetEvmChainId(f.network)
	if err != nil {
		return err
	}

	actual, err := f.signer.GetChainID(ctx)
	if err != nil {
		return err
	}

	if expected.Cmp(actual) != 0 {
		return fmt.Errorf("chain id mismatch: %s expects %s, RPC reports %s", f.network, expected, actual)
	}
	return nil
}

// Verify checks whether request.Signature authorizes the requested digest for request.Signer
//
// A signature that fails verification is not an error: the response reports
// IsValid=false and the failure kind only reaches the logs and hooks. An error
// (*univsig.VerifyError) means the request itself could not be parsed.
func (f *UniversalEvmScheme) Verify(
	ctx context.Context,
	request types.VerifyRequest,
) (*types.VerifyResponse, error) {
	signer, err := evm.ParseAddress(request.Signer)
	if err != nil {
		return nil, univsig.NewVerifyError(ReasonInvalidSigner, request.Signer, err)
	}

	signature, err := evm.HexToBytes(request.Signature)
	if err != nil {
		return nil, univsig.NewVerifyError(ReasonInvalidSignatureFormat, request.Signer, err)
	}

	digest, err := resolveDigest(request)
	if err != nil {
		return nil, err
	}

	report := f.verifier.VerifyDetailed(ctx, signer, digest, signature)

	f.hooksMu.RLock()
	hooks := f.afterVerify
	f.hooksMu.RUnlock()
	for _, hook := range hooks {
		hook(ctx, request, report)
	}

	f.logger.Sugar().Infow("Signature verification completed",
		"signer", signer.Hex(),
		"valid", report.Outcome.Valid(),
		"classification", report.Classification.String(),
		"path", string(report.Path),
	)

	return &types.VerifyResponse{
		IsValid: report.Outcome.Valid(),
		Signer:  signer.Hex(),
	}, nil
}

// Wrap encodes a counterfactual signature from its parts
func (f *UniversalEvmScheme) Wrap(request types.WrapRequest) (*types.WrapResponse, error) {
	factory, err := evm.ParseAddress(request.Factory)
	if err != nil {
		return nil, univsig.NewVerifyError(ReasonInvalidFactory, "", err)
	}

	calldata, err := evm.HexToBytes(request.FactoryCalldata)
	if err != nil {
		return nil, univsig.NewVerifyError(ReasonInvalidFactoryCalldata, "", err)
	}

	inner, err := evm.HexToBytes(request.Signature)
	if err != nil {
		return nil, univsig.NewVerifyError(ReasonInvalidSignatureFormat, "", err)
	}

	wrapped, err := f.codec.Encode(evm.WrappedSignature{
		Deployment: evm.DeploymentDescriptor{
			Factory:         factory,
			FactoryCalldata: calldata,
		},
		InnerSignature: inner,
	})
	if err != nil {
		return nil, univsig.NewVerifyError(ReasonWrapFailed, "", err)
	}

	return &types.WrapResponse{Signature: hexutil.Encode(wrapped)}, nil
}

// Unwrap decodes a signature. Signatures without the marker come back with
// Wrapped=false; a marker with an undecodable payload is an error.
func (f *UniversalEvmScheme) Unwrap(request types.UnwrapRequest) (*types.UnwrapResponse, error) {
	signature, err := evm.HexToBytes(request.Signature)
	if err != nil {
		return nil, univsig.NewVerifyError(ReasonInvalidSignatureFormat, "", err)
	}

	if !evm.IsWrappedSignature(signature) {
		return &types.UnwrapResponse{Wrapped: false}, nil
	}

	wrapped, err := f.codec.Decode(signature)
	if err != nil {
		return nil, univsig.NewVerifyError(evm.ReasonMalformedWrapper, "", err)
	}

	return &types.UnwrapResponse{
		Wrapped:         true,
		Factory:         wrapped.Deployment.Factory.Hex(),
		FactoryCalldata: hexutil.Encode(wrapped.Deployment.FactoryCalldata),
		Signature:       hexutil.Encode(wrapped.InnerSignature),
	}, nil
}

// resolveDigest computes the digest from the single digest source in request
func resolveDigest(request types.VerifyRequest) ([32]byte, error) {
	sources := 0
	if request.Hash != "" {
		sources++
	}
	if request.Message != nil {
		sources++
	}
	if len(request.TypedData) > 0 {
		sources++
	}
	if sources != 1 {
		return [32]byte{}, univsig.NewVerifyError(ReasonInvalidDigest, request.Signer,
			errors.New("exactly one of hash, message or typedData is required"))
	}

	switch {
	case request.Hash != "":
		digest, err := evm.ParseDigest(request.Hash)
		if err != nil {
			return digest, univsig.NewVerifyError(ReasonInvalidDigest, request.Signer, err)
		}
		return digest, nil

	case request.Message != nil:
		return evm.HashMessage([]byte(*request.Message)), nil

	default:
		var typedData apitypes.TypedData
		if err := json.Unmarshal(request.TypedData, &typedData); err != nil {
			return [32]byte{}, univsig.NewVerifyError(ReasonInvalidTypedData, request.Signer, err)
		}
		digest, err := evm.HashAPITypedData(typedData)
		if err != nil {
			return digest, univsig.NewVerifyError(ReasonInvalidTypedData, request.Signer, err)
		}
		return digest, nil
	}
}
