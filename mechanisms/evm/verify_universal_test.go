package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// countingRecoverer wraps EcrecoverRecoverer and counts calls
type countingRecoverer struct {
	calls atomic.Int32
}

func (c *countingRecoverer) RecoverAddress(digest [32]byte, r, s [32]byte, v byte) (common.Address, error) {
	c.calls.Add(1)
	return EcrecoverRecoverer{}.RecoverAddress(digest, r, s, v)
}

func newTestKey(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	return privateKey, crypto.PubkeyToAddress(privateKey.PublicKey)
}

func signDigest(t *testing.T, key *ecdsa.PrivateKey, digest [32]byte) []byte {
	t.Helper()
	sig, err := crypto.Sign(digest[:], key)
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}
	sig[64] += 27
	return sig
}

func TestVerifier_DeployedSigner(t *testing.T) {
	ctx := context.Background()
	key, signer := newTestKey(t)
	digest := toDigest(crypto.Keccak256([]byte("deployed")))
	sig := signDigest(t, key, digest)

	t.Run("contract accepts", func(t *testing.T) {
		backend := &mockBackend{hasCode: true, magic: eip1271MagicValue}
		recoverer := &countingRecoverer{}
		verifier := NewVerifier(backend, &VerifierConfig{Recoverer: recoverer})

		report := verifier.VerifyDetailed(ctx, signer, digest, sig)
		if report.Outcome != OutcomeValid {
			t.Fatalf("expected valid, got %s (%v)", report.Outcome, report.Err)
		}
		if report.Path != PathContractValidate {
			t.Errorf("Path = %s, want %s", report.Path, PathContractValidate)
		}
		if !bytesEqual(backend.isValidCalls[0].signature, sig) {
			t.Error("contract should receive the raw signature unchanged")
		}
		if recoverer.calls.Load() != 0 {
			t.Error("recovery must not run for a deployed signer")
		}
	})

	t.Run("contract rejects a signature that would recover to signer", func(t *testing.T) {
		backend := &mockBackend{hasCode: true, magic: [4]byte{0xff, 0xff, 0xff, 0xff}}
		recoverer := &countingRecoverer{}
		verifier := NewVerifier(backend, &VerifierConfig{Recoverer: recoverer})

		report := verifier.VerifyDetailed(ctx, signer, digest, sig)
		if report.Outcome != OutcomeInvalid {
			t.Fatal("expected invalid when contract rejects")
		}
		if !errors.Is(report.Err, ErrSignatureRejected) {
			t.Errorf("expected ErrSignatureRejected, got %v", report.Err)
		}
		if recoverer.calls.Load() != 0 {
			t.Error("recovery must not run for a deployed signer")
		}
	})

	t.Run("contract call fails", func(t *testing.T) {
		backend := &mockBackend{hasCode: true, isValidError: errors.New("execution reverted")}
		recoverer := &countingRecoverer{}
		verifier := NewVerifier(backend, &VerifierConfig{Recoverer: recoverer})

		report := verifier.VerifyDetailed(ctx, signer, digest, sig)
		if report.Outcome != OutcomeInvalid {
			t.Fatal("expected invalid when the call fails")
		}
		if !errors.Is(report.Err, ErrCallFailed) {
			t.Errorf("expected ErrCallFailed, got %v", report.Err)
		}
		if recoverer.calls.Load() != 0 {
			t.Error("recovery must not run for a deployed signer")
		}
	})

	t.Run("wrapped signature for deployed signer is passed through", func(t *testing.T) {
		wrapped, err := EncodeWrappedSignature(DeploymentDescriptor{Factory: testFactory, FactoryCalldata: testCalldata}, sig)
		if err != nil {
			t.Fatalf("EncodeWrappedSignature() error = %v", err)
		}
		backend := &mockBackend{hasCode: true, magic: eip1271MagicValue, validFor: wrapped}

		report := NewVerifier(backend, nil).VerifyDetailed(ctx, signer, digest, wrapped)
		if report.Outcome != OutcomeValid {
			t.Fatalf("expected valid, got %v", report.Err)
		}
		if len(backend.deployCalls) != 0 {
			t.Error("deployment must not run for a deployed signer")
		}
	})
}

func TestVerifier_CounterfactualSigner(t *testing.T) {
	ctx := context.Background()
	key, signer := newTestKey(t)
	digest := toDigest(crypto.Keccak256([]byte("counterfactual")))
	inner := signDigest(t, key, digest)

	deployment := DeploymentDescriptor{Factory: testFactory, FactoryCalldata: testCalldata}
	wrapped, err := EncodeWrappedSignature(deployment, inner)
	if err != nil {
		t.Fatalf("EncodeWrappedSignature() error = %v", err)
	}

	t.Run("deploys then validates inner signature", func(t *testing.T) {
		backend := &mockBackend{deploySetsCode: true, magic: eip1271MagicValue, validFor: inner}

		report := NewVerifier(backend, nil).VerifyDetailed(ctx, signer, digest, wrapped)
		if report.Outcome != OutcomeValid {
			t.Fatalf("expected valid, got %v", report.Err)
		}
		if report.Classification != WrappedDeployment {
			t.Errorf("Classification = %s, want %s", report.Classification, WrappedDeployment)
		}
		if report.Path != PathDeployThenValidate {
			t.Errorf("Path = %s, want %s", report.Path, PathDeployThenValidate)
		}

		if len(backend.deployCalls) != 1 {
			t.Fatalf("expected 1 deployment, got %d", len(backend.deployCalls))
		}
		if backend.deployCalls[0].factory != testFactory || !bytesEqual(backend.deployCalls[0].calldata, testCalldata) {
			t.Errorf("unexpected deployment call: %+v", backend.deployCalls[0])
		}
		if backend.isValidCalls[0].contract != signer {
			t.Errorf("isValidSignature called on %s, want signer", backend.isValidCalls[0].contract.Hex())
		}

		wantOrder := []string{"HasCode", "Deploy", "IsValidSignature"}
		if len(backend.lastCallOrder) != len(wantOrder) {
			t.Fatalf("call order = %v, want %v", backend.lastCallOrder, wantOrder)
		}
		for i := range wantOrder {
			if backend.lastCallOrder[i] != wantOrder[i] {
				t.Fatalf("call order = %v, want %v", backend.lastCallOrder, wantOrder)
			}
		}
	})

	t.Run("deployment reverts", func(t *testing.T) {
		backend := &mockBackend{deployErr: errors.New("execution reverted"), magic: eip1271MagicValue}
		recoverer := &countingRecoverer{}

		report := NewVerifier(backend, &VerifierConfig{Recoverer: recoverer}).VerifyDetailed(ctx, signer, digest, wrapped)
		if report.Outcome != OutcomeInvalid {
			t.Fatal("expected invalid when deployment fails")
		}
		if !errors.Is(report.Err, ErrDeploymentFailed) {
			t.Errorf("expected ErrDeploymentFailed, got %v", report.Err)
		}
		if len(backend.isValidCalls) != 0 {
			t.Error("isValidSignature must not run after a failed deployment")
		}
		if recoverer.calls.Load() != 0 {
			t.Error("recovery must not run for a wrapped signature")
		}
	})

	t.Run("post-deployment call fails", func(t *testing.T) {
		backend := &mockBackend{deploySetsCode: true, isValidError: errors.New("no code")}

		report := NewVerifier(backend, nil).VerifyDetailed(ctx, signer, digest, wrapped)
		if report.Outcome != OutcomeInvalid {
			t.Fatal("expected invalid when the post-deployment call fails")
		}
		if !errors.Is(report.Err, ErrCallFailed) {
			t.Errorf("expected ErrCallFailed, got %v", report.Err)
		}
	})

	t.Run("post-deployment contract rejects", func(t *testing.T) {
		backend := &mockBackend{deploySetsCode: true, magic: [4]byte{}}

		report := NewVerifier(backend, nil).VerifyDetailed(ctx, signer, digest, wrapped)
		if report.Outcome != OutcomeInvalid {
			t.Fatal("expected invalid when contract rejects")
		}
		if !errors.Is(report.Err, ErrSignatureRejected) {
			t.Errorf("expected ErrSignatureRejected, got %v", report.Err)
		}
	})

	t.Run("undecodable wrapper", func(t *testing.T) {
		backend := &mockBackend{magic: eip1271MagicValue}
		recoverer := &countingRecoverer{}
		garbage := append([]byte{0x01, 0x02, 0x03}, MagicMarker[:]...)

		report := NewVerifier(backend, &VerifierConfig{Recoverer: recoverer}).VerifyDetailed(ctx, signer, digest, garbage)
		if report.Outcome != OutcomeInvalid {
			t.Fatal("expected invalid for malformed wrapper")
		}
		if report.Path != PathCheckWrapper {
			t.Errorf("Path = %s, want %s", report.Path, PathCheckWrapper)
		}
		if !errors.Is(report.Err, ErrMalformedWrapper) {
			t.Errorf("expected ErrMalformedWrapper, got %v", report.Err)
		}
		if len(backend.deployCalls) != 0 {
			t.Error("deployment must not run for a malformed wrapper")
		}
		if recoverer.calls.Load() != 0 {
			t.Error("recovery must not run for a marker-terminated signature")
		}
	})
}

func TestVerifier_EOASigner(t *testing.T) {
	ctx := context.Background()
	key, signer := newTestKey(t)
	digest := toDigest(crypto.Keccak256([]byte("eoa")))
	sig := signDigest(t, key, digest)

	t.Run("valid recovery with v=27/28", func(t *testing.T) {
		backend := &mockBackend{}

		report := NewVerifier(backend, nil).VerifyDetailed(ctx, signer, digest, sig)
		if report.Outcome != OutcomeValid {
			t.Fatalf("expected valid, got %v", report.Err)
		}
		if report.Path != PathRecoverFallback {
			t.Errorf("Path = %s, want %s", report.Path, PathRecoverFallback)
		}
		if len(backend.isValidCalls) != 0 || len(backend.deployCalls) != 0 {
			t.Error("EOA verification must not touch contracts")
		}
	})

	t.Run("decred recoverer gives the same answer", func(t *testing.T) {
		verifier := NewVerifier(&mockBackend{}, &VerifierConfig{Recoverer: DecredRecoverer{}})
		if !verifier.Verify(ctx, signer, digest, sig).Valid() {
			t.Fatal("expected valid with decred recoverer")
		}
	})

	t.Run("64-byte signature", func(t *testing.T) {
		report := NewVerifier(&mockBackend{}, nil).VerifyDetailed(ctx, signer, digest, sig[:64])
		if report.Outcome != OutcomeInvalid {
			t.Fatal("expected invalid for 64-byte signature")
		}
		if !errors.Is(report.Err, ErrInvalidSignatureLength) {
			t.Errorf("expected ErrInvalidSignatureLength, got %v", report.Err)
		}
		if ReasonFor(report.Err) != ReasonInvalidSignatureLength {
			t.Errorf("ReasonFor() = %s, want %s", ReasonFor(report.Err), ReasonInvalidSignatureLength)
		}
	})

	t.Run("recovers to a different address", func(t *testing.T) {
		_, other := newTestKey(t)

		report := NewVerifier(&mockBackend{}, nil).VerifyDetailed(ctx, other, digest, sig)
		if report.Outcome != OutcomeInvalid {
			t.Fatal("expected invalid for signer mismatch")
		}
		if !errors.Is(report.Err, ErrSignerMismatch) {
			t.Errorf("expected ErrSignerMismatch, got %v", report.Err)
		}
	})
}

func TestVerifier_FailClosed(t *testing.T) {
	ctx := context.Background()
	key, signer := newTestKey(t)
	digest := toDigest(crypto.Keccak256([]byte("fail closed")))
	sig := signDigest(t, key, digest)

	t.Run("code lookup error", func(t *testing.T) {
		recoverer := &countingRecoverer{}
		backend := &mockBackend{hasCodeError: errors.New("rpc down")}

		report := NewVerifier(backend, &VerifierConfig{Recoverer: recoverer}).VerifyDetailed(ctx, signer, digest, sig)
		if report.Outcome != OutcomeInvalid {
			t.Fatal("expected invalid when code lookup fails")
		}
		if !errors.Is(report.Err, ErrCodeLookupFailed) {
			t.Errorf("expected ErrCodeLookupFailed, got %v", report.Err)
		}
		if recoverer.calls.Load() != 0 {
			t.Error("recovery must not run when classification fails")
		}
	})

	t.Run("timeout", func(t *testing.T) {
		backend := &mockBackend{hasCode: true, block: true}
		verifier := NewVerifier(backend, &VerifierConfig{CallTimeout: 20 * time.Millisecond})

		start := time.Now()
		report := verifier.VerifyDetailed(ctx, signer, digest, sig)
		if report.Outcome != OutcomeInvalid {
			t.Fatal("expected invalid on timeout")
		}
		// The blocked lookup and the deadline race; either way the result is a failure
		if !errors.Is(report.Err, ErrVerificationTimeout) && !errors.Is(report.Err, ErrCodeLookupFailed) {
			t.Errorf("expected timeout or lookup failure, got %v", report.Err)
		}
		if time.Since(start) > 5*time.Second {
			t.Error("verification did not respect the timeout")
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		backend := &mockBackend{block: true}
		if NewVerifier(backend, nil).Verify(cancelled, signer, digest, sig).Valid() {
			t.Fatal("expected invalid for cancelled context")
		}
	})

	t.Run("backend panic", func(t *testing.T) {
		backend := &mockBackend{hasCode: true, panicOn: "IsValidSignature"}

		report := NewVerifier(backend, nil).VerifyDetailed(ctx, signer, digest, sig)
		if report.Outcome != OutcomeInvalid {
			t.Fatal("expected invalid when the backend panics")
		}
		if !errors.Is(report.Err, ErrCallFailed) {
			t.Errorf("expected ErrCallFailed, got %v", report.Err)
		}
	})
}

// No deployed signer and no marker-terminated signature ever reaches recovery
func TestVerifier_RecoveryOnlyForPlainSignatures(t *testing.T) {
	ctx := context.Background()
	key, signer := newTestKey(t)

	wrappedFail, _ := EncodeWrappedSignature(DeploymentDescriptor{Factory: testFactory}, nil)

	for i := 0; i < 16; i++ {
		digest := toDigest(crypto.Keccak256([]byte{byte(i)}))
		sig := signDigest(t, key, digest)

		cases := []struct {
			name    string
			backend *mockBackend
			sig     []byte
		}{
			{name: "deployed, rejecting", backend: &mockBackend{hasCode: true}, sig: sig},
			{name: "deployed, failing", backend: &mockBackend{hasCode: true, isValidError: errors.New("x")}, sig: sig},
			{name: "wrapped, deploy fails", backend: &mockBackend{deployErr: errors.New("x")}, sig: wrappedFail},
			{name: "wrapped, malformed", backend: &mockBackend{}, sig: append(append([]byte{}, sig...), MagicMarker[:]...)},
		}

		for _, c := range cases {
			recoverer := &countingRecoverer{}
			report := NewVerifier(c.backend, &VerifierConfig{Recoverer: recoverer}).VerifyDetailed(ctx, signer, digest, c.sig)
			if report.Outcome != OutcomeInvalid {
				t.Errorf("%s: expected invalid", c.name)
			}
			if report.Path == PathRecoverFallback || recoverer.calls.Load() != 0 {
				t.Errorf("%s: reached recovery fallback", c.name)
			}
		}
	}
}

func TestVerifier_LogsRejections(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	_, signer := newTestKey(t)

	verifier := NewVerifier(&mockBackend{}, &VerifierConfig{Logger: zap.New(core)})
	verifier.Verify(context.Background(), signer, [32]byte{}, make([]byte, 10))

	entries := logs.FilterMessage("signature rejected").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 rejection log entry, got %d", len(entries))
	}
	if reason := entries[0].ContextMap()["reason"]; reason != ReasonInvalidSignatureLength {
		t.Errorf("logged reason = %v, want %s", reason, ReasonInvalidSignatureLength)
	}
}

func TestVerifyUniversalSignature(t *testing.T) {
	ctx := context.Background()
	key, signer := newTestKey(t)
	digest := toDigest(crypto.Keccak256([]byte("package helper")))
	sig := signDigest(t, key, digest)

	if got := VerifyUniversalSignature(ctx, &mockBackend{}, signer, digest, sig); got != OutcomeValid {
		t.Errorf("VerifyUniversalSignature() = %s, want valid", got)
	}
	if got := VerifyUniversalSignature(ctx, &mockBackend{hasCode: true}, signer, digest, sig); got != OutcomeInvalid {
		t.Errorf("VerifyUniversalSignature() = %s, want invalid", got)
	}
}
