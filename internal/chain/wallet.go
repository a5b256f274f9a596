// internal/chain/wallet.go
package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
)

// KeystoreWallet is a Wallet backed by an on-disk go-ethereum keystore. It
// stands in for a browser-injected wallet in server deployments: account
// access is granted by unlocking the keystore with its passphrase, and the
// switch/add network flow operates on an in-memory set of known chains.
type KeystoreWallet struct {
	ks         *keystore.KeyStore
	passphrase string

	mu      sync.Mutex
	chainID uint64
	known   map[uint64]ChainDescriptor
	events  chan WalletEvent
}

// NewKeystoreWallet opens the keystore at dir. The wallet starts on the first
// known chain, or chain 0 when none are registered yet.
func NewKeystoreWallet(dir, passphrase string, known ...ChainDescriptor) *KeystoreWallet {
	w := &KeystoreWallet{
		ks:         keystore.NewKeyStore(dir, keystore.StandardScryptN, keystore.StandardScryptP),
		passphrase: passphrase,
		known:      make(map[uint64]ChainDescriptor),
		events:     make(chan WalletEvent, 8),
	}
	for _, desc := range known {
		w.known[desc.ChainID] = desc
		if w.chainID == 0 {
			w.chainID = desc.ChainID
		}
	}
	return w
}

// RequestAccounts unlocks and returns the keystore accounts.
func (w *KeystoreWallet) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	accounts := w.ks.Accounts()
	if len(accounts) == 0 {
		return nil, fmt.Errorf("keystore holds no accounts: %w", ErrNoWallet)
	}
	addrs := make([]common.Address, 0, len(accounts))
	for _, acct := range accounts {
		if err := w.ks.Unlock(acct, w.passphrase); err != nil {
			return nil, fmt.Errorf("unlock %s: %w", acct.Address.Hex(), ErrUserRejected)
		}
		addrs = append(addrs, acct.Address)
	}
	return addrs, nil
}

// ChainID reports the chain the wallet is currently on.
func (w *KeystoreWallet) ChainID(ctx context.Context) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.chainID, nil
}

// SwitchChain moves the wallet to a known chain, or fails with
// ErrUnknownChain so the caller can run the add-network flow.
func (w *KeystoreWallet) SwitchChain(ctx context.Context, chainID uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.known[chainID]; !ok {
		return fmt.Errorf("chain %d: %w", chainID, ErrUnknownChain)
	}
	prev := w.chainID
	w.chainID = chainID
	if prev != chainID {
		select {
		case w.events <- WalletEvent{Kind: EventChainChanged, ChainID: chainID}:
		default:
		}
	}
	return nil
}

// AddChain registers a network descriptor with the wallet.
func (w *KeystoreWallet) AddChain(ctx context.Context, desc ChainDescriptor) error {
	if desc.ChainID == 0 || desc.RPCURL == "" {
		return fmt.Errorf("incomplete chain descriptor for chain %d", desc.ChainID)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.known[desc.ChainID] = desc
	return nil
}

// TransactOpts returns signing options bound to the given keystore account
// and the wallet's current chain.
func (w *KeystoreWallet) TransactOpts(ctx context.Context, account common.Address) (*bind.TransactOpts, error) {
	w.mu.Lock()
	chainID := w.chainID
	w.mu.Unlock()

	opts, err := bind.NewKeyStoreTransactorWithChainID(w.ks, w.findAccount(account), new(big.Int).SetUint64(chainID))
	if err != nil {
		return nil, fmt.Errorf("build transactor for %s: %w", account.Hex(), err)
	}
	opts.Context = ctx
	return opts, nil
}

// Events returns the wallet's notification stream.
func (w *KeystoreWallet) Events() <-chan WalletEvent {
	return w.events
}

func (w *KeystoreWallet) findAccount(addr common.Address) accounts.Account {
	for _, acct := range w.ks.Accounts() {
		if acct.Address == addr {
			return acct
		}
	}
	return accounts.Account{Address: addr}
}
