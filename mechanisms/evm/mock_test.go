package evm

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// mockBackend implements SignatureBackend for testing and records every call
type mockBackend struct {
	mu sync.Mutex

	hasCode      bool
	hasCodeError error

	// deployErr fails Deploy; on success the signer gets code when deploySetsCode is set
	deployErr      error
	deploySetsCode bool

	// isValidSignature returns magic unless isValidError is set
	magic        [4]byte
	isValidError error
	// validFor restricts the magic answer to one exact signature when non-nil
	validFor []byte

	// block makes every call wait for ctx cancellation
	block bool
	// panicOn names a method that panics when called
	panicOn string

	hasCodeCalls  int
	deployCalls   []deployCall
	isValidCalls  []isValidCall
	lastCallOrder []string
}

type deployCall struct {
	factory  common.Address
	calldata []byte
}

type isValidCall struct {
	contract  common.Address
	digest    [32]byte
	signature []byte
}

func (m *mockBackend) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastCallOrder = append(m.lastCallOrder, name)
}

func (m *mockBackend) wait(ctx context.Context) error {
	if !m.block {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockBackend) HasCode(ctx context.Context, _ common.Address) (bool, error) {
	m.record("HasCode")
	m.mu.Lock()
	m.hasCodeCalls++
	m.mu.Unlock()

	if m.panicOn == "HasCode" {
		panic("boom")
	}
	if err := m.wait(ctx); err != nil {
		return false, err
	}
	if m.hasCodeError != nil {
		return false, m.hasCodeError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasCode, nil
}

func (m *mockBackend) Deploy(ctx context.Context, factory common.Address, calldata []byte) error {
	m.record("Deploy")
	m.mu.Lock()
	m.deployCalls = append(m.deployCalls, deployCall{factory: factory, calldata: calldata})
	m.mu.Unlock()

	if m.panicOn == "Deploy" {
		panic("boom")
	}
	if err := m.wait(ctx); err != nil {
		return err
	}
	if m.deployErr != nil {
		return m.deployErr
	}
	if m.deploySetsCode {
		m.mu.Lock()
		m.hasCode = true
		m.mu.Unlock()
	}
	return nil
}

func (m *mockBackend) IsValidSignature(
	ctx context.Context,
	contract common.Address,
	digest [32]byte,
	signature []byte,
) ([4]byte, error) {
	m.record("IsValidSignature")
	m.mu.Lock()
	m.isValidCalls = append(m.isValidCalls, isValidCall{contract: contract, digest: digest, signature: signature})
	m.mu.Unlock()

	if m.panicOn == "IsValidSignature" {
		panic("boom")
	}
	if err := m.wait(ctx); err != nil {
		return [4]byte{}, err
	}
	if m.isValidError != nil {
		return [4]byte{}, m.isValidError
	}
	if m.validFor != nil && string(m.validFor) != string(signature) {
		return [4]byte{0xff, 0xff, 0xff, 0xff}, nil
	}
	return m.magic, nil
}

// mockFacilitatorSigner implements FacilitatorEvmSigner for testing
type mockFacilitatorSigner struct {
	readContractResult interface{}
	readContractError  error
	getCodeResult      []byte
	getCodeError       error
	sendTxHash         string
	sendTxError        error
	receipt            *TransactionReceipt
	receiptError       error

	sentTo   string
	sentData []byte
}

func (m *mockFacilitatorSigner) GetAddresses() []string {
	return []string{"0x0000000000000000000000000000000000000000"}
}

func (m *mockFacilitatorSigner) ReadContract(
	ctx context.Context,
	address string,
	abi []byte,
	functionName string,
	args ...interface{},
) (interface{}, error) {
	if m.readContractError != nil {
		return nil, m.readContractError
	}
	return m.readContractResult, nil
}

func (m *mockFacilitatorSigner) SendTransaction(
	ctx context.Context,
	to string,
	data []byte,
) (string, error) {
	m.sentTo = to
	m.sentData = data
	if m.sendTxError != nil {
		return "", m.sendTxError
	}
	return m.sendTxHash, nil
}

func (m *mockFacilitatorSigner) WaitForTransactionReceipt(
	ctx context.Context,
	txHash string,
) (*TransactionReceipt, error) {
	if m.receiptError != nil {
		return nil, m.receiptError
	}
	if m.receipt == nil {
		return nil, errors.New("no receipt")
	}
	return m.receipt, nil
}

func (m *mockFacilitatorSigner) GetChainID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (m *mockFacilitatorSigner) GetCode(
	ctx context.Context,
	address string,
) ([]byte, error) {
	if m.getCodeError != nil {
		return nil, m.getCodeError
	}
	return m.getCodeResult, nil
}

func bytesEqual(a, b []byte) bool {
	return string(a) == string(b)
}
