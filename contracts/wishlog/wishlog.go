// contracts/wishlog/wishlog.go
// Package wishlog provides high-level Go bindings for the deployed wish log
// contract: an append-only log of opaque method-call records with wish-specific
// like and reward accessors layered on top.
package wishlog

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ABI is the contract interface consumed by this service. The contract itself
// is generic: storeData appends arbitrary bytes, and the read accessors return
// (caller, methodName, data, timestamp) tuples in insertion order.
const ABI = `[
  {"type":"function","name":"storeData","stateMutability":"nonpayable","inputs":[{"name":"data","type":"bytes"}],"outputs":[]},
  {"type":"function","name":"callCount","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getMethodCall","stateMutability":"view","inputs":[{"name":"index","type":"uint256"}],"outputs":[{"name":"caller","type":"address"},{"name":"methodName","type":"string"},{"name":"data","type":"bytes"},{"name":"timestamp","type":"uint256"}]},
  {"type":"function","name":"getAllMethodCalls","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"tuple[]","components":[{"name":"caller","type":"address"},{"name":"methodName","type":"string"},{"name":"data","type":"bytes"},{"name":"timestamp","type":"uint256"}]}]},
  {"type":"function","name":"getLikes","stateMutability":"view","inputs":[{"name":"wisher","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getTotalRewards","stateMutability":"view","inputs":[{"name":"wisher","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"calculateLikeFee","stateMutability":"view","inputs":[{"name":"multiplier","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"likeWish","stateMutability":"payable","inputs":[{"name":"wisher","type":"address"},{"name":"multiplier","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"rewardWish","stateMutability":"payable","inputs":[{"name":"wisher","type":"address"}],"outputs":[]},
  {"type":"event","name":"DataStored","inputs":[{"name":"caller","type":"address","indexed":true},{"name":"data","type":"bytes","indexed":false},{"name":"timestamp","type":"uint256","indexed":false}],"anonymous":false}
]`

// MethodCall mirrors the contract's stored tuple.
type MethodCall struct {
	Caller     common.Address
	MethodName string
	Data       []byte
	Timestamp  *big.Int
}

// WishLog is a high-level wrapper around the on-chain wish log contract.
type WishLog struct {
	abi      abi.ABI
	address  common.Address
	contract *bind.BoundContract
	backend  bind.ContractBackend
}

// New connects to an already-deployed wish log contract.
func New(addr common.Address, backend bind.ContractBackend) (*WishLog, error) {
	parsed, err := abi.JSON(strings.NewReader(ABI))
	if err != nil {
		return nil, err
	}
	bound := bind.NewBoundContract(addr, parsed, backend, backend, backend)
	return &WishLog{
		abi:      parsed,
		address:  addr,
		contract: bound,
		backend:  backend,
	}, nil
}

// Address returns the contract's deployed address.
func (w *WishLog) Address() common.Address {
	return w.address
}

// ABI returns the parsed contract interface, used for decoding event logs.
func (w *WishLog) ABI() abi.ABI {
	return w.abi
}

// StoreData appends an opaque byte payload to the log.
func (w *WishLog) StoreData(opts *bind.TransactOpts, data []byte) (*types.Transaction, error) {
	return w.contract.Transact(opts, "storeData", data)
}

// LikeWish submits a paid like for the given wisher. The attached value must
// cover the contract-computed fee for the multiplier.
func (w *WishLog) LikeWish(opts *bind.TransactOpts, wisher common.Address, multiplier *big.Int) (*types.Transaction, error) {
	return w.contract.Transact(opts, "likeWish", wisher, multiplier)
}

// RewardWish submits a paid reward for the given wisher. The reward amount is
// the transaction value.
func (w *WishLog) RewardWish(opts *bind.TransactOpts, wisher common.Address) (*types.Transaction, error) {
	return w.contract.Transact(opts, "rewardWish", wisher)
}

// CallCount returns the number of stored records.
func (w *WishLog) CallCount(opts *bind.CallOpts) (*big.Int, error) {
	var out []interface{}
	err := w.contract.Call(opts, &out, "callCount")
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// GetMethodCall reads a single record by position.
func (w *WishLog) GetMethodCall(opts *bind.CallOpts, index *big.Int) (MethodCall, error) {
	var out []interface{}
	err := w.contract.Call(opts, &out, "getMethodCall", index)
	if err != nil {
		return MethodCall{}, err
	}
	return MethodCall{
		Caller:     out[0].(common.Address),
		MethodName: out[1].(string),
		Data:       out[2].([]byte),
		Timestamp:  out[3].(*big.Int),
	}, nil
}

// GetAllMethodCalls reads every stored record in insertion order.
func (w *WishLog) GetAllMethodCalls(opts *bind.CallOpts) ([]MethodCall, error) {
	var out []interface{}
	err := w.contract.Call(opts, &out, "getAllMethodCalls")
	if err != nil {
		return nil, err
	}
	calls := *abi.ConvertType(out[0], new([]MethodCall)).(*[]MethodCall)
	return calls, nil
}

// GetLikes returns the like counter for a wisher address.
func (w *WishLog) GetLikes(opts *bind.CallOpts, wisher common.Address) (*big.Int, error) {
	var out []interface{}
	err := w.contract.Call(opts, &out, "getLikes", wisher)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// GetTotalRewards returns the accumulated reward total for a wisher address.
func (w *WishLog) GetTotalRewards(opts *bind.CallOpts, wisher common.Address) (*big.Int, error) {
	var out []interface{}
	err := w.contract.Call(opts, &out, "getTotalRewards", wisher)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// DataStored mirrors the contract's append event.
type DataStored struct {
	Caller    common.Address
	Data      []byte
	Timestamp *big.Int
	Raw       types.Log
}

// UnpackDataStored decodes a raw log into a DataStored event.
func (w *WishLog) UnpackDataStored(lg types.Log) (DataStored, error) {
	var ev DataStored
	if err := w.contract.UnpackLog(&ev, "DataStored", lg); err != nil {
		return DataStored{}, err
	}
	ev.Raw = lg
	return ev, nil
}

// CalculateLikeFee returns the fee in wei the contract charges for a like with
// the given multiplier.
func (w *WishLog) CalculateLikeFee(opts *bind.CallOpts, multiplier *big.Int) (*big.Int, error) {
	var out []interface{}
	err := w.contract.Call(opts, &out, "calculateLikeFee", multiplier)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}
