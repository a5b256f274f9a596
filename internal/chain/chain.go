// internal/chain/chain.go
// Package chain bridges a wallet session and the deployed wish log contract.
// It owns the connection state machine, transaction submission, read-only
// contract queries, and the bounded legacy event-log scan.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Sentinel errors surfaced at the gateway boundary. Callers map these to
// service error codes; the underlying cause message is preserved for display.
var (
	ErrNoWallet      = errors.New("no wallet available")
	ErrUserRejected  = errors.New("wallet request rejected")
	ErrUnknownChain  = errors.New("chain unknown to wallet")
	ErrNetworkSwitch = errors.New("network switch failed")
	ErrNotConnected  = errors.New("no active wallet session")
	ErrTxFailed      = errors.New("transaction failed")
	ErrNotFound      = errors.New("record not found")
	ErrBadAmount     = errors.New("invalid amount")
)

// State is the gateway connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Backend is the subset of an RPC client the gateway needs. *ethclient.Client
// satisfies it; tests substitute a mock.
type Backend interface {
	bind.ContractBackend
	BlockNumber(ctx context.Context) (uint64, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// WalletEventKind discriminates wallet-originated notifications.
type WalletEventKind int

const (
	// EventAccountsChanged reports a new account list. An empty list means
	// the wallet revoked access and forces a disconnect.
	EventAccountsChanged WalletEventKind = iota
	// EventChainChanged reports the wallet moved to another network. The
	// session is torn down rather than migrated.
	EventChainChanged
)

// WalletEvent is a notification pushed by the wallet.
type WalletEvent struct {
	Kind     WalletEventKind
	Accounts []common.Address // EventAccountsChanged only
	ChainID  uint64           // EventChainChanged only
}

// Wallet abstracts the signer side of a session: account access, network
// management, and transaction authorization.
type Wallet interface {
	// RequestAccounts asks the wallet for account access. Fails with
	// ErrNoWallet when no accounts exist and ErrUserRejected when access
	// is declined.
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	// ChainID reports the chain the wallet is currently on.
	ChainID(ctx context.Context) (uint64, error)
	// SwitchChain moves the wallet to the given chain. Fails with
	// ErrUnknownChain when the wallet has no descriptor for it.
	SwitchChain(ctx context.Context, chainID uint64) error
	// AddChain registers a network descriptor with the wallet.
	AddChain(ctx context.Context, desc ChainDescriptor) error
	// TransactOpts returns signing options bound to the given account.
	TransactOpts(ctx context.Context, account common.Address) (*bind.TransactOpts, error)
	// Events returns the wallet's notification stream, or nil if the
	// wallet does not push events.
	Events() <-chan WalletEvent
}

// ChainDescriptor is the full network descriptor handed to a wallet during
// the add-network flow.
type ChainDescriptor struct {
	ChainID        uint64
	Name           string
	RPCURL         string
	CurrencySymbol string
	CurrencyName   string
	Decimals       int
	ExplorerURL    string
}

// weiPerToken is the base-unit scale of the native currency.
var weiPerToken = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// WeiFromDecimal converts a whole-token decimal string (e.g. "0.25") into
// base units. Fails on negative amounts and on more than 18 fractional
// digits.
func WeiFromDecimal(amount string) (*big.Int, error) {
	rat, ok := new(big.Rat).SetString(amount)
	if !ok {
		return nil, fmt.Errorf("%w: not a decimal number: %q", ErrBadAmount, amount)
	}
	if rat.Sign() < 0 {
		return nil, fmt.Errorf("%w: must not be negative", ErrBadAmount)
	}
	rat.Mul(rat, new(big.Rat).SetInt(weiPerToken))
	if !rat.IsInt() {
		return nil, fmt.Errorf("%w: more than 18 decimal places", ErrBadAmount)
	}
	return new(big.Int).Set(rat.Num()), nil
}
