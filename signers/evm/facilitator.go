package evm

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	univevm "github.com/blip-x402/univsig/mechanisms/evm"
)

const (
	defaultReceiptPollInterval = 2 * time.Second

	// fallbackGasLimit is used when estimation fails, e.g. on nodes that
	// refuse to estimate factory calls
	fallbackGasLimit = 1_000_000
)

// ErrNoTransactionKey is returned by SendTransaction on a read-only signer
var ErrNoTransactionKey = errors.New("facilitator signer has no private key")

// ChainClient is the subset of ethclient.Client used by FacilitatorSigner
type ChainClient interface {
	ethereum.ContractCaller
	ethereum.ChainStateReader
	ethereum.GasEstimator
	ethereum.GasPricer
	ethereum.TransactionSender
	ethereum.TransactionReader
	ethereum.PendingStateReader
	ChainID(ctx context.Context) (*big.Int, error)
}

// FacilitatorSignerConfig holds optional FacilitatorSigner settings
type FacilitatorSignerConfig struct {
	// PrivateKey signs deployment transactions (nil makes the signer read-only)
	PrivateKey *ecdsa.PrivateKey

	// ReceiptPollInterval is how often receipts are polled (zero uses 2s)
	ReceiptPollInterval time.Duration

	Logger *zap.Logger
}

// FacilitatorSigner implements univevm.FacilitatorEvmSigner over a JSON-RPC client
type FacilitatorSigner struct {
	client       ChainClient
	privateKey   *ecdsa.PrivateKey
	address      common.Address
	pollInterval time.Duration
	logger       *zap.Logger

	// nonce assignment and submission are serialised per signer
	sendMu sync.Mutex

	// only a successful lookup is cached
	chainIDMu sync.Mutex
	chainID   *big.Int
}

// NewFacilitatorSigner creates a facilitator signer on top of client
func NewFacilitatorSigner(client ChainClient, config *FacilitatorSignerConfig) *FacilitatorSigner {
	cfg := FacilitatorSignerConfig{}
	if config != nil {
		cfg = *config
	}
	if cfg.ReceiptPollInterval <= 0 {
		cfg.ReceiptPollInterval = defaultReceiptPollInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	s := &FacilitatorSigner{
		client:       client,
		privateKey:   cfg.PrivateKey,
		pollInterval: cfg.ReceiptPollInterval,
		logger:       cfg.Logger,
	}
	if cfg.PrivateKey != nil {
		s.address = crypto.PubkeyToAddress(cfg.PrivateKey.PublicKey)
	}
	return s
}

// DialFacilitatorSigner connects to rpcURL and creates a facilitator signer.
// privateKeyHex may be empty for a read-only signer.
func DialFacilitatorSigner(ctx context.Context, rpcURL, privateKeyHex string, logger *zap.Logger) (*FacilitatorSigner, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to RPC %s", rpcURL)
	}

	cfg := &FacilitatorSignerConfig{Logger: logger}
	if privateKeyHex != "" {
		privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
		if err != nil {
			client.Close()
			return nil, errors.Wrap(err, "invalid private key")
		}
		cfg.PrivateKey = privateKey
	}

	return NewFacilitatorSigner(client, cfg), nil
}

// GetAddresses returns the transaction sender address, if any
func (s *FacilitatorSigner) GetAddresses() []string {
	if s.privateKey == nil {
		return []string{}
	}
	return []string{s.address.Hex()}
}

// ReadContract reads data from a smart contract
func (s *FacilitatorSigner) ReadContract(
	ctx context.Context,
	contractAddress string,
	abiJSON []byte,
	functionName string,
	args ...interface{},
) (interface{}, error) {
	parsedABI, err := abi.JSON(strings.NewReader(string(abiJSON)))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse ABI")
	}

	data, err := parsedABI.Pack(functionName, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to pack %s call", functionName)
	}

	to := common.HexToAddress(contractAddress)
	resultBytes, err := s.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, err
	}

	unpacked, err := parsedABI.Unpack(functionName, resultBytes)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to unpack %s result", functionName)
	}

	if len(unpacked) == 0 {
		return nil, nil
	}
	if len(unpacked) == 1 {
		return unpacked[0], nil
	}
	return unpacked, nil
}

// SendTransaction sends a transaction with pre-encoded calldata and zero value
func (s *FacilitatorSigner) SendTransaction(ctx context.Context, to string, data []byte) (string, error) {
	if s.privateKey == nil {
		return "", ErrNoTransactionKey
	}

	chainID, err := s.GetChainID(ctx)
	if err != nil {
		return "", err
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	nonce, err := s.client.PendingNonceAt(ctx, s.address)
	if err != nil {
		return "", errors.Wrap(err, "failed to get nonce")
	}

	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", errors.Wrap(err, "failed to get gas price")
	}

	toAddr := common.HexToAddress(to)
	gasLimit, err := s.client.EstimateGas(ctx, ethereum.CallMsg{
		From: s.address,
		To:   &toAddr,
		Data: data,
	})
	if err != nil {
		s.logger.Sugar().Warnw("Gas estimation failed, using fallback", "to", to, "error", err)
		gasLimit = fallbackGasLimit
	} else {
		gasLimit = gasLimit * 12 / 10 // 20% buffer
	}

	tx := types.NewTransaction(nonce, toAddr, big.NewInt(0), gasLimit, gasPrice, data)

	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(chainID), s.privateKey)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign transaction")
	}

	if err := s.client.SendTransaction(ctx, signedTx); err != nil {
		return "", errors.Wrap(err, "failed to send transaction")
	}

	s.logger.Sugar().Infow("Transaction sent", "to", to, "tx_hash", signedTx.Hash().Hex(), "nonce", nonce)
	return signedTx.Hash().Hex(), nil
}

// WaitForTransactionReceipt polls until the transaction is mined or ctx ends
func (s *FacilitatorSigner) WaitForTransactionReceipt(ctx context.Context, txHash string) (*univevm.TransactionReceipt, error) {
	hash := common.HexToHash(txHash)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := s.client.TransactionReceipt(ctx, hash)
		if err == nil {
			return &univevm.TransactionReceipt{
				Status:      receipt.Status,
				BlockNumber: receipt.BlockNumber.Uint64(),
				TxHash:      receipt.TxHash.Hex(),
			}, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, errors.Wrapf(err, "failed to fetch receipt for %s", txHash)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// GetChainID returns the chain id of the connected network.
// The first successful answer is cached; failures are retried on the next call.
func (s *FacilitatorSigner) GetChainID(ctx context.Context) (*big.Int, error) {
	s.chainIDMu.Lock()
	defer s.chainIDMu.Unlock()

	if s.chainID == nil {
		chainID, err := s.client.ChainID(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "failed to get chain ID")
		}
		s.chainID = chainID
	}
	return new(big.Int).Set(s.chainID), nil
}

// GetCode returns the bytecode at address (empty for EOAs and undeployed accounts)
func (s *FacilitatorSigner) GetCode(ctx context.Context, address string) ([]byte, error) {
	code, err := s.client.CodeAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get code at %s", address)
	}
	return code, nil
}
