// internal/chain/gateway.go
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/wishplanet/wishplanet-go/contracts/wishlog"
	"github.com/wishplanet/wishplanet-go/internal/model"
)

// Session is the product of a successful Connect. It pins the account,
// contract handle and signer for a connection's lifetime; Disconnect
// invalidates it. Components hold a Session rather than reaching into
// gateway internals, so nobody observes a half-updated connection.
type Session struct {
	Account  common.Address
	contract *wishlog.WishLog
	wallet   Wallet
}

// Gateway wraps a wallet and an RPC backend around the wish log contract.
type Gateway struct {
	wallet       Wallet
	backend      Backend
	desc         ChainDescriptor
	contractAddr common.Address
	scanBatch    uint64
	scanMax      uint64
	log          *slog.Logger

	mu      sync.Mutex
	state   State
	session *Session

	watchOnce sync.Once
}

// NewGateway builds a gateway for the given wallet, backend and target chain.
// Scan bounds control the legacy event-log fallback.
func NewGateway(wallet Wallet, backend Backend, desc ChainDescriptor, contractAddr common.Address, scanBatch, scanMax uint64, log *slog.Logger) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{
		wallet:       wallet,
		backend:      backend,
		desc:         desc,
		contractAddr: contractAddr,
		scanBatch:    scanBatch,
		scanMax:      scanMax,
		log:          log,
	}
}

// State reports the current connection state.
func (g *Gateway) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Session returns the active session, or nil when disconnected.
func (g *Gateway) Session() *Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.session
}

// Account returns the connected account, or ErrNotConnected.
func (g *Gateway) Account() (common.Address, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session == nil {
		return common.Address{}, ErrNotConnected
	}
	return g.session.Account, nil
}

// Connect requests account access, ensures the wallet is on the target chain,
// and binds the contract handle. The returned session stays valid until
// Disconnect or a wallet-side reset.
func (g *Gateway) Connect(ctx context.Context) (*Session, error) {
	if g.wallet == nil {
		return nil, ErrNoWallet
	}

	g.mu.Lock()
	if g.session != nil {
		s := g.session
		g.mu.Unlock()
		return s, nil
	}
	g.state = StateConnecting
	g.mu.Unlock()

	accounts, err := g.wallet.RequestAccounts(ctx)
	if err != nil {
		g.setDisconnected()
		return nil, err
	}
	if len(accounts) == 0 {
		g.setDisconnected()
		return nil, fmt.Errorf("wallet returned no accounts: %w", ErrNoWallet)
	}

	if err := g.ensureNetwork(ctx); err != nil {
		g.setDisconnected()
		return nil, err
	}

	contract, err := wishlog.New(g.contractAddr, g.backend)
	if err != nil {
		g.setDisconnected()
		return nil, fmt.Errorf("bind contract: %w", err)
	}

	session := &Session{
		Account:  accounts[0],
		contract: contract,
		wallet:   g.wallet,
	}

	g.mu.Lock()
	g.state = StateConnected
	g.session = session
	g.mu.Unlock()

	g.watchOnce.Do(func() {
		if events := g.wallet.Events(); events != nil {
			go g.watchWallet(events)
		}
	})

	g.log.Info("wallet connected",
		slog.String("account", session.Account.Hex()),
		slog.Uint64("chainId", g.desc.ChainID))
	return session, nil
}

// ensureNetwork switches the wallet to the target chain, running the
// add-network flow when the wallet does not know it yet.
func (g *Gateway) ensureNetwork(ctx context.Context) error {
	current, err := g.wallet.ChainID(ctx)
	if err == nil && current == g.desc.ChainID {
		return nil
	}

	switchErr := g.wallet.SwitchChain(ctx, g.desc.ChainID)
	if switchErr == nil {
		return nil
	}
	if !errors.Is(switchErr, ErrUnknownChain) {
		return fmt.Errorf("switch to chain %d: %v: %w", g.desc.ChainID, switchErr, ErrNetworkSwitch)
	}

	if err := g.wallet.AddChain(ctx, g.desc); err != nil {
		return fmt.Errorf("add chain %d: %v: %w", g.desc.ChainID, err, ErrNetworkSwitch)
	}
	if err := g.wallet.SwitchChain(ctx, g.desc.ChainID); err != nil {
		return fmt.Errorf("switch after add chain %d: %v: %w", g.desc.ChainID, err, ErrNetworkSwitch)
	}
	return nil
}

// Disconnect clears the session. Wallet-side permissions are untouched.
func (g *Gateway) Disconnect() {
	g.setDisconnected()
	g.log.Info("wallet disconnected")
}

func (g *Gateway) setDisconnected() {
	g.mu.Lock()
	g.state = StateDisconnected
	g.session = nil
	g.mu.Unlock()
}

// watchWallet consumes wallet notifications. An empty account list and a
// chain change both tear the session down; a chain change is a hard reset,
// never a soft reconnect.
func (g *Gateway) watchWallet(events <-chan WalletEvent) {
	for ev := range events {
		switch ev.Kind {
		case EventAccountsChanged:
			if len(ev.Accounts) == 0 {
				g.log.Warn("wallet revoked account access")
				g.setDisconnected()
			}
		case EventChainChanged:
			if ev.ChainID != g.desc.ChainID {
				g.log.Warn("wallet changed chain, session reset", slog.Uint64("chainId", ev.ChainID))
				g.setDisconnected()
			}
		}
	}
}

// contractSession returns the live session or ErrNotConnected.
func (g *Gateway) contractSession() (*Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session == nil {
		return nil, ErrNotConnected
	}
	return g.session, nil
}

// readContract returns a contract handle usable without a session. Read-only
// queries do not require a connected wallet.
func (g *Gateway) readContract() (*wishlog.WishLog, error) {
	g.mu.Lock()
	if g.session != nil {
		c := g.session.contract
		g.mu.Unlock()
		return c, nil
	}
	g.mu.Unlock()
	return wishlog.New(g.contractAddr, g.backend)
}

// submitTx runs a state-changing contract call and waits for one
// confirmation.
func (g *Gateway) submitTx(ctx context.Context, value *big.Int, call func(*bind.TransactOpts) (*types.Transaction, error)) (string, error) {
	session, err := g.contractSession()
	if err != nil {
		return "", err
	}

	opts, err := session.wallet.TransactOpts(ctx, session.Account)
	if err != nil {
		return "", fmt.Errorf("prepare transaction: %v: %w", err, ErrTxFailed)
	}
	if value != nil {
		opts.Value = value
	}

	tx, err := call(opts)
	if err != nil {
		return "", fmt.Errorf("send transaction: %v: %w", err, ErrTxFailed)
	}

	receipt, err := bind.WaitMined(ctx, g.backend, tx)
	if err != nil {
		return "", fmt.Errorf("await confirmation for %s: %v: %w", tx.Hash().Hex(), err, ErrTxFailed)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("transaction %s reverted: %w", tx.Hash().Hex(), ErrTxFailed)
	}

	g.log.Info("transaction confirmed",
		slog.String("tx", tx.Hash().Hex()),
		slog.Uint64("block", receipt.BlockNumber.Uint64()))
	return tx.Hash().Hex(), nil
}

// Submit stores an opaque payload on-chain and returns the transaction hash
// after one confirmation.
func (g *Gateway) Submit(ctx context.Context, payload []byte) (string, error) {
	session, err := g.contractSession()
	if err != nil {
		return "", err
	}
	return g.submitTx(ctx, nil, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return session.contract.StoreData(opts, payload)
	})
}

// Like submits a paid like for the given wisher, attaching the
// contract-computed fee for the multiplier.
func (g *Gateway) Like(ctx context.Context, wisher common.Address, multiplier int64) (string, error) {
	if multiplier <= 0 {
		return "", fmt.Errorf("multiplier must be positive, got %d", multiplier)
	}
	session, err := g.contractSession()
	if err != nil {
		return "", err
	}

	fee, err := g.LikeFee(ctx, multiplier)
	if err != nil {
		return "", err
	}
	return g.submitTx(ctx, fee, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return session.contract.LikeWish(opts, wisher, big.NewInt(multiplier))
	})
}

// Reward submits a paid reward for the given wisher; amountWei becomes the
// transaction value.
func (g *Gateway) Reward(ctx context.Context, wisher common.Address, amountWei *big.Int) (string, error) {
	if amountWei == nil || amountWei.Sign() <= 0 {
		return "", fmt.Errorf("reward amount must be positive")
	}
	session, err := g.contractSession()
	if err != nil {
		return "", err
	}
	return g.submitTx(ctx, amountWei, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return session.contract.RewardWish(opts, wisher)
	})
}

// RecordCount returns the number of stored records.
func (g *Gateway) RecordCount(ctx context.Context) (uint64, error) {
	contract, err := g.readContract()
	if err != nil {
		return 0, err
	}
	n, err := contract.CallCount(&bind.CallOpts{Context: ctx})
	if err != nil {
		return 0, fmt.Errorf("read call count: %w", err)
	}
	return n.Uint64(), nil
}

// ReadAllRecords returns every stored record in insertion order. O(n) over
// the full log; acceptable while the contract-side dataset stays small.
func (g *Gateway) ReadAllRecords(ctx context.Context) ([]model.MethodCallRecord, error) {
	contract, err := g.readContract()
	if err != nil {
		return nil, err
	}
	calls, err := contract.GetAllMethodCalls(&bind.CallOpts{Context: ctx})
	if err != nil {
		return nil, fmt.Errorf("read all records: %w", err)
	}
	records := make([]model.MethodCallRecord, len(calls))
	for i, c := range calls {
		records[i] = recordFromCall(c)
	}
	return records, nil
}

// ReadRecordByIndex returns a single record by position, or ErrNotFound when
// the index is out of range.
func (g *Gateway) ReadRecordByIndex(ctx context.Context, index uint64) (model.MethodCallRecord, error) {
	contract, err := g.readContract()
	if err != nil {
		return model.MethodCallRecord{}, err
	}

	count, err := contract.CallCount(&bind.CallOpts{Context: ctx})
	if err != nil {
		return model.MethodCallRecord{}, fmt.Errorf("read call count: %w", err)
	}
	if index >= count.Uint64() {
		return model.MethodCallRecord{}, fmt.Errorf("index %d out of range [0,%d): %w", index, count.Uint64(), ErrNotFound)
	}

	call, err := contract.GetMethodCall(&bind.CallOpts{Context: ctx}, new(big.Int).SetUint64(index))
	if err != nil {
		return model.MethodCallRecord{}, fmt.Errorf("read record %d: %w", index, err)
	}
	return recordFromCall(call), nil
}

// ReadRecordByTx resolves a stored record from the receipt of the storing
// transaction, or ErrNotFound when the transaction carries no append event
// from the contract.
func (g *Gateway) ReadRecordByTx(ctx context.Context, txHash common.Hash) (model.MethodCallRecord, error) {
	contract, err := g.readContract()
	if err != nil {
		return model.MethodCallRecord{}, err
	}

	receipt, err := g.backend.TransactionReceipt(ctx, txHash)
	if err != nil {
		return model.MethodCallRecord{}, fmt.Errorf("receipt for %s: %w", txHash.Hex(), ErrNotFound)
	}
	for _, lg := range receipt.Logs {
		if lg.Address != g.contractAddr {
			continue
		}
		ev, err := contract.UnpackDataStored(*lg)
		if err != nil {
			continue
		}
		return model.MethodCallRecord{
			Caller:     ev.Caller.Hex(),
			MethodName: "storeData",
			Data:       ev.Data,
			Timestamp:  time.Unix(ev.Timestamp.Int64(), 0).UTC(),
		}, nil
	}
	return model.MethodCallRecord{}, fmt.Errorf("no stored record in %s: %w", txHash.Hex(), ErrNotFound)
}

// ReadEventLogsLegacy scans the contract's append events for one account in
// fixed-size block batches going backward from the head, capped at scanMax
// blocks total. A batch whose query fails is logged and skipped; older
// history beyond the cap is unreachable. Records are returned oldest first.
func (g *Gateway) ReadEventLogsLegacy(ctx context.Context, account common.Address) ([]model.MethodCallRecord, error) {
	contract, err := g.readContract()
	if err != nil {
		return nil, err
	}

	head, err := g.backend.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("read block head: %w", err)
	}

	floor := uint64(0)
	if head > g.scanMax {
		floor = head - g.scanMax
	}

	eventID := contract.ABI().Events["DataStored"].ID
	callerTopic := common.BytesToHash(common.LeftPadBytes(account.Bytes(), 32))

	var batches [][]model.MethodCallRecord
	to := head
	for {
		from := floor
		if to >= g.scanBatch && to-g.scanBatch+1 > floor {
			from = to - g.scanBatch + 1
		}

		query := ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(from),
			ToBlock:   new(big.Int).SetUint64(to),
			Addresses: []common.Address{g.contractAddr},
			Topics:    [][]common.Hash{{eventID}, {callerTopic}},
		}

		logs, err := g.backend.FilterLogs(ctx, query)
		if err != nil {
			g.log.Warn("event scan batch failed, skipping",
				slog.Uint64("fromBlock", from),
				slog.Uint64("toBlock", to),
				slog.String("error", err.Error()))
		} else {
			var batch []model.MethodCallRecord
			for _, lg := range logs {
				ev, err := contract.UnpackDataStored(lg)
				if err != nil {
					g.log.Warn("undecodable event log skipped",
						slog.String("tx", lg.TxHash.Hex()))
					continue
				}
				batch = append(batch, model.MethodCallRecord{
					Caller:     ev.Caller.Hex(),
					MethodName: "storeData",
					Data:       ev.Data,
					Timestamp:  time.Unix(ev.Timestamp.Int64(), 0).UTC(),
					TxHash:     lg.TxHash.Hex(),
				})
			}
			batches = append(batches, batch)
		}

		if from <= floor {
			break
		}
		to = from - 1
	}

	// Batches were collected newest-range first; flatten back to
	// insertion order.
	var records []model.MethodCallRecord
	for i := len(batches) - 1; i >= 0; i-- {
		records = append(records, batches[i]...)
	}
	return records, nil
}

// Likes returns the like counter for a wisher address.
func (g *Gateway) Likes(ctx context.Context, wisher common.Address) (int64, error) {
	contract, err := g.readContract()
	if err != nil {
		return 0, err
	}
	n, err := contract.GetLikes(&bind.CallOpts{Context: ctx}, wisher)
	if err != nil {
		return 0, fmt.Errorf("read likes for %s: %w", wisher.Hex(), err)
	}
	return n.Int64(), nil
}

// TotalRewards returns the accumulated reward total in wei for a wisher.
func (g *Gateway) TotalRewards(ctx context.Context, wisher common.Address) (*big.Int, error) {
	contract, err := g.readContract()
	if err != nil {
		return nil, err
	}
	n, err := contract.GetTotalRewards(&bind.CallOpts{Context: ctx}, wisher)
	if err != nil {
		return nil, fmt.Errorf("read rewards for %s: %w", wisher.Hex(), err)
	}
	return n, nil
}

// LikeFee returns the contract-computed fee in wei for a like with the given
// multiplier.
func (g *Gateway) LikeFee(ctx context.Context, multiplier int64) (*big.Int, error) {
	if multiplier <= 0 {
		return nil, fmt.Errorf("multiplier must be positive, got %d", multiplier)
	}
	contract, err := g.readContract()
	if err != nil {
		return nil, err
	}
	fee, err := contract.CalculateLikeFee(&bind.CallOpts{Context: ctx}, big.NewInt(multiplier))
	if err != nil {
		return nil, fmt.Errorf("read like fee: %w", err)
	}
	return fee, nil
}

func recordFromCall(c wishlog.MethodCall) model.MethodCallRecord {
	return model.MethodCallRecord{
		Caller:     c.Caller.Hex(),
		MethodName: c.MethodName,
		Data:       c.Data,
		Timestamp:  time.Unix(c.Timestamp.Int64(), 0).UTC(),
	}
}
