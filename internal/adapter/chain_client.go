package adapter

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/tax-ledger/internal/circuitbreaker"
	"github.com/tax-ledger/internal/logging"
)

const erc1155BalanceOfABI = `[{"constant":true,"inputs":[{"name":"account","type":"address"},{"name":"id","type":"uint256"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`

// ChainClient is an explicitly owned RPC handle. Callers Dial it at startup,
// pass it to whatever needs it and Close it on shutdown.
type ChainClient struct {
	backend          ethBackend
	breaker          *circuitbreaker.CircuitBreaker
	erc1155          abi.ABI
	minConfirmations uint64
	logger           *logging.Logger
}

// Dial connects to rpcURL
func Dial(ctx context.Context, rpcURL string, minConfirmations uint64, logger *logging.Logger) (*ChainClient, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("chain RPC URL is empty")
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to chain RPC: %w", err)
	}

	return newChainClient(client, minConfirmations, logger)
}

func newChainClient(backend ethBackend, minConfirmations uint64, logger *logging.Logger) (*ChainClient, error) {
	parsed, err := abi.JSON(strings.NewReader(erc1155BalanceOfABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC-1155 ABI: %w", err)
	}

	logger = logger.WithComponent("chain")
	breakerCfg := circuitbreaker.DefaultConfig("chain-rpc")
	// only transport failures count against the endpoint
	breakerCfg.IsFailure = func(err error) bool {
		return !errors.Is(err, ErrTxPending) &&
			!errors.Is(err, ErrTxReverted) &&
			!errors.Is(err, ErrInsufficientConfirmations)
	}

	return &ChainClient{
		backend:          backend,
		breaker:          circuitbreaker.NewCircuitBreaker(breakerCfg, logger),
		erc1155:          parsed,
		minConfirmations: max(minConfirmations, 1),
		logger:           logger,
	}, nil
}

// Close releases the RPC connection
func (c *ChainClient) Close() {
	if c.backend != nil {
		c.backend.Close()
	}
}

// BreakerState reports the RPC circuit breaker state
func (c *ChainClient) BreakerState() circuitbreaker.State {
	return c.breaker.GetState()
}

// ConfirmReceipt checks that txHash is mined, succeeded and is at least
// minConfirmations deep.
func (c *ChainClient) ConfirmReceipt(ctx context.Context, txHash string) (*Confirmation, error) {
	if !ValidateTxHash(txHash) {
		return nil, ErrInvalidTxHash
	}

	var conf *Confirmation
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		receipt, err := c.backend.TransactionReceipt(ctx, common.HexToHash(txHash))
		if errors.Is(err, ethereum.NotFound) {
			return ErrTxPending
		}
		if err != nil {
			return fmt.Errorf("failed to fetch receipt: %w", err)
		}
		if receipt.Status != ethtypes.ReceiptStatusSuccessful {
			return ErrTxReverted
		}

		head, err := c.backend.BlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch block number: %w", err)
		}

		mined := receipt.BlockNumber.Uint64()
		depth := uint64(0)
		if head >= mined {
			depth = head - mined + 1
		}
		if depth < c.minConfirmations {
			return fmt.Errorf("%w: %d of %d", ErrInsufficientConfirmations, depth, c.minConfirmations)
		}

		conf = &Confirmation{
			TxHash:        strings.ToLower(txHash),
			BlockNumber:   mined,
			Confirmations: depth,
		}
		return nil
	})
	if err != nil {
		c.logger.WithError(err).WithField("txHash", txHash).Debug("receipt not confirmed")
		return nil, err
	}

	return conf, nil
}

// BalanceOf calls ERC-1155 balanceOf(owner, tokenID) on contract
func (c *ChainClient) BalanceOf(ctx context.Context, contract, owner string, tokenID *big.Int) (*big.Int, error) {
	if !ValidateAddress(contract) || !ValidateAddress(owner) {
		return nil, ErrInvalidAddress
	}
	if tokenID == nil {
		tokenID = new(big.Int)
	}

	data, err := c.erc1155.Pack("balanceOf", common.HexToAddress(owner), tokenID)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf: %w", err)
	}

	contractAddr := common.HexToAddress(contract)
	var balance *big.Int
	err = c.breaker.Execute(ctx, func(ctx context.Context) error {
		result, err := c.backend.CallContract(ctx, ethereum.CallMsg{
			To:   &contractAddr,
			Data: data,
		}, nil)
		if err != nil {
			return fmt.Errorf("balanceOf call failed: %w", err)
		}
		if len(result) == 0 {
			balance = new(big.Int)
			return nil
		}

		out, err := c.erc1155.Unpack("balanceOf", result)
		if err != nil {
			return fmt.Errorf("failed to unpack balanceOf: %w", err)
		}
		v, ok := out[0].(*big.Int)
		if !ok {
			return fmt.Errorf("unexpected balanceOf result type %T", out[0])
		}
		balance = v
		return nil
	})
	if err != nil {
		return nil, err
	}

	return balance, nil
}
