// Package adapter talks to the settlement chain. It is only used to confirm
// that marketplace settlements actually landed before they are recorded in
// the ledger.
package adapter

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// ChainReader is what the settlement pipeline needs from the chain
type ChainReader interface {
	// ConfirmReceipt checks the receipt once; it does not poll
	ConfirmReceipt(ctx context.Context, txHash string) (*Confirmation, error)
	// BalanceOf returns an ERC-1155 balance
	BalanceOf(ctx context.Context, contract, owner string, tokenID *big.Int) (*big.Int, error)
}

// Confirmation describes a mined, successful transaction
type Confirmation struct {
	TxHash        string `json:"txHash"`
	BlockNumber   uint64 `json:"blockNumber"`
	Confirmations uint64 `json:"confirmations"`
}

var (
	// ErrInvalidAddress indicates a malformed hex address
	ErrInvalidAddress = errors.New("invalid address format")
	// ErrInvalidTxHash indicates a malformed transaction hash
	ErrInvalidTxHash = errors.New("invalid transaction hash")
	// ErrTxPending means no receipt exists yet
	ErrTxPending = errors.New("transaction not yet mined")
	// ErrTxReverted means the transaction was mined with a failed status
	ErrTxReverted = errors.New("transaction reverted")
	// ErrInsufficientConfirmations means the receipt is too shallow to trust
	ErrInsufficientConfirmations = errors.New("insufficient confirmations")
)

// ethBackend is the subset of *ethclient.Client the chain client uses
type ethBackend interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	Close()
}

// ValidateAddress checks if address is a 20-byte hex address
func ValidateAddress(address string) bool {
	return common.IsHexAddress(address)
}

// ValidateTxHash checks that hash is a 0x-prefixed 32-byte hex string
func ValidateTxHash(hash string) bool {
	if len(hash) != 66 || hash[:2] != "0x" {
		return false
	}
	for _, c := range hash[2:] {
		isHex := (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
		if !isHex {
			return false
		}
	}
	return true
}
