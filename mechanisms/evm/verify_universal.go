package evm

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// VerifierConfig holds optional Verifier settings
type VerifierConfig struct {
	// CallTimeout bounds a whole verification. Zero uses DefaultCallTimeout,
	// a negative value disables the bound.
	CallTimeout time.Duration

	// Recoverer is the plain signature recovery primitive (nil uses EcrecoverRecoverer)
	Recoverer AddressRecoverer

	// Codec decodes wrapped signatures (nil uses DefaultWrapperCodec)
	Codec WrapperCodec

	// Logger receives internal failure diagnostics (nil disables logging)
	Logger *zap.Logger
}

// branchHandler runs one verification branch to completion. A nil error means
// the signature is valid. Handlers never hand control to another branch.
type branchHandler func(ctx context.Context, signer common.Address, digest [32]byte, signature []byte) (Path, error)

// Verifier verifies signatures from EOA, EIP-1271 and counterfactual signers
//
// A Verifier holds no per-call state and is safe for concurrent use.
type Verifier struct {
	backend   SignatureBackend
	recoverer AddressRecoverer
	codec     WrapperCodec
	timeout   time.Duration
	logger    *zap.Logger
	branches  map[Classification]branchHandler
}

// NewVerifier creates a Verifier on top of backend
//
// Args:
//
//	backend: Chain backend for code lookup, deployment and isValidSignature calls
//	config: Optional configuration (nil uses defaults)
//
// Returns:
//
//	Configured Verifier instance
func NewVerifier(backend SignatureBackend, config *VerifierConfig) *Verifier {
	cfg := VerifierConfig{}
	if config != nil {
		cfg = *config
	}
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.Recoverer == nil {
		cfg.Recoverer = EcrecoverRecoverer{}
	}
	if cfg.Codec == nil {
		cfg.Codec = DefaultWrapperCodec
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	v := &Verifier{
		backend:   backend,
		recoverer: cfg.Recoverer,
		codec:     cfg.Codec,
		timeout:   cfg.CallTimeout,
		logger:    cfg.Logger,
	}
	v.branches = map[Classification]branchHandler{
		ContractPresent:    v.contractValidate,
		WrappedDeployment:  v.deployThenValidate,
		PlainOrRecoverable: v.recoverFallback,
	}
	return v
}

// Verify reports whether signature is a valid authorization by signer over digest
//
// The verification flow, in mandatory order:
// 1. If signer has code: EIP-1271 isValidSignature with the raw signature (terminal)
// 2. Else if the signature ends in MagicMarker: decode, deploy through the factory,
// then EIP-1271 with the inner signature (terminal)
// 3. Else: ECDSA recovery of a 65-byte signature against signer
//
// Once a branch is selected its answer is final; no failure falls through to a
// weaker check. Every internal failure, timeouts included, yields OutcomeInvalid.
func (v *Verifier) Verify(
	ctx context.Context,
	signer common.Address,
	digest [32]byte,
	signature []byte,
) Outcome {
	return v.VerifyDetailed(ctx, signer, digest, signature).Outcome
}

// VerifyDetailed runs the same verification as Verify and also returns the
// branch taken and the internal failure, for diagnostics.
func (v *Verifier) VerifyDetailed(
	ctx context.Context,
	signer common.Address,
	digest [32]byte,
	signature []byte,
) *VerificationReport {
	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	// Buffered so a late branch never blocks after a timeout
	done := make(chan *VerificationReport, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- &VerificationReport{
					Outcome: OutcomeInvalid,
					Path:    PathNone,
					Err:     fmt.Errorf("%w: panic: %v", ErrCallFailed, r),
				}
			}
		}()
		done <- v.run(ctx, signer, digest, signature)
	}()

	var report *VerificationReport
	select {
	case report = <-done:
	case <-ctx.Done():
		report = &VerificationReport{
			Outcome: OutcomeInvalid,
			Path:    PathNone,
			Err:     fmt.Errorf("%w: %v", ErrVerificationTimeout, ctx.Err()),
		}
	}

	v.logReport(signer, report)
	return report
}

func (v *Verifier) run(
	ctx context.Context,
	signer common.Address,
	digest [32]byte,
	signature []byte,
) *VerificationReport {
	classification, err := Classify(ctx, v.backend, signer, signature)
	if err != nil {
		return &VerificationReport{
			Outcome:        OutcomeInvalid,
			Classification: ClassificationUnknown,
			Path:           PathNone,
			Err:            err,
		}
	}

	path, err := v.branches[classification](ctx, signer, digest, signature)

	report := &VerificationReport{
		Outcome:        OutcomeInvalid,
		Classification: classification,
		Path:           path,
		Err:            err,
	}
	if err == nil {
		report.Outcome = OutcomeValid
	}
	return report
}

// contractValidate: the signer is deployed, its answer is authoritative
func (v *Verifier) contractValidate(
	ctx context.Context,
	signer common.Address,
	digest [32]byte,
	signature []byte,
) (Path, error) {
	_, err := VerifyEIP1271Signature(ctx, v.backend, signer, digest, signature)
	return PathContractValidate, err
}

// deployThenValidate: unwrap, deploy, then ask the fresh contract
func (v *Verifier) deployThenValidate(
	ctx context.Context,
	signer common.Address,
	digest [32]byte,
	signature []byte,
) (Path, error) {
	wrapped, err := v.codec.Decode(signature)
	if err != nil {
		return PathCheckWrapper, err
	}

	deployment := wrapped.Deployment
	if err := v.backend.Deploy(ctx, deployment.Factory, deployment.FactoryCalldata); err != nil {
		return PathDeployThenValidate, fmt.Errorf("%w: factory %s: %v", ErrDeploymentFailed, deployment.Factory.Hex(), err)
	}

	_, err = VerifyEIP1271Signature(ctx, v.backend, signer, digest, wrapped.InnerSignature)
	return PathDeployThenValidate, err
}

// recoverFallback: no code and no marker, treat as a plain ECDSA signature
func (v *Verifier) recoverFallback(
	_ context.Context,
	signer common.Address,
	digest [32]byte,
	signature []byte,
) (Path, error) {
	_, err := VerifyEOASignature(v.recoverer, digest, signature, signer)
	return PathRecoverFallback, err
}

func (v *Verifier) logReport(signer common.Address, report *VerificationReport) {
	fields := []zap.Field{
		zap.String("signer", signer.Hex()),
		zap.Stringer("classification", report.Classification),
		zap.String("path", string(report.Path)),
	}
	if report.Err != nil {
		fields = append(fields,
			zap.String("reason", ReasonFor(report.Err)),
			zap.Error(report.Err),
		)
		v.logger.Debug("signature rejected", fields...)
		return
	}
	v.logger.Debug("signature verified", fields...)
}

// VerifyUniversalSignature verifies a signature from an EOA, EIP-1271 or
// counterfactual signer using a Verifier with default settings
//
// Args:
//
//	ctx: Context for cancellation and timeout control
//	backend: Chain backend for code lookup, deployment and contract calls
//	signer: The address that should have signed
//	digest: The 32-byte message hash that was signed
//	signature: The signature bytes (may be wrapped with deployment data)
//
// Returns:
//
//	OutcomeValid or OutcomeInvalid
func VerifyUniversalSignature(
	ctx context.Context,
	backend SignatureBackend,
	signer common.Address,
	digest [32]byte,
	signature []byte,
) Outcome {
	return NewVerifier(backend, nil).Verify(ctx, signer, digest, signature)
}
