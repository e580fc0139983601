// Package amm implements reference exchange pools the router swaps against:
// pair-based constant-product pools ("V2") and fee-tier pools with a
// pay-on-callback swap flow ("V3"). Pool reserves live in ledger storage of
// the pool address, and pool addresses are derived with CREATE2 from a
// factory address and an init code hash so callers can compute them offline.
package amm

import (
	"bytes"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrIdenticalAddresses indicates a pool was requested for a token with itself.
	ErrIdenticalAddresses = errors.New("amm: identical addresses")

	// ErrZeroAddress indicates the zero address was used as a pool token.
	ErrZeroAddress = errors.New("amm: zero address")

	// ErrInvalidPath indicates a malformed swap path.
	ErrInvalidPath = errors.New("amm: invalid path")

	// ErrInsufficientInputAmount indicates a zero or missing swap input.
	ErrInsufficientInputAmount = errors.New("amm: insufficient input amount")

	// ErrInsufficientOutputAmount indicates a swap that would produce nothing.
	ErrInsufficientOutputAmount = errors.New("amm: insufficient output amount")

	// ErrInsufficientLiquidity indicates the pool cannot cover the output.
	ErrInsufficientLiquidity = errors.New("amm: insufficient liquidity")

	// ErrInvariant indicates the constant-product check failed after a swap.
	ErrInvariant = errors.New("amm: k")

	// ErrUnderpaid indicates a swap callback did not deliver the owed input.
	ErrUnderpaid = errors.New("amm: callback underpaid")
)

// SortTokens returns the two tokens in canonical (ascending) order.
func SortTokens(a, b common.Address) (common.Address, common.Address, error) {
	if a == b {
		return common.Address{}, common.Address{}, ErrIdenticalAddresses
	}
	token0, token1 := a, b
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		token0, token1 = b, a
	}
	if token0 == (common.Address{}) {
		return common.Address{}, common.Address{}, ErrZeroAddress
	}
	return token0, token1, nil
}

// PairFor derives the V2 pair for two tokens.
func PairFor(factory common.Address, initCodeHash common.Hash, a, b common.Address) (V2Pair, error) {
	token0, token1, err := SortTokens(a, b)
	if err != nil {
		return V2Pair{}, err
	}
	salt := crypto.Keccak256Hash(token0.Bytes(), token1.Bytes())
	return V2Pair{
		Address: crypto.CreateAddress2(factory, salt, initCodeHash.Bytes()),
		Token0:  token0,
		Token1:  token1,
	}, nil
}

// PoolFor derives the V3 pool for two tokens and a fee tier.
func PoolFor(factory common.Address, initCodeHash common.Hash, a, b common.Address, fee uint32) (V3Pool, error) {
	token0, token1, err := SortTokens(a, b)
	if err != nil {
		return V3Pool{}, err
	}
	var feeWord [32]byte
	feeWord[29] = byte(fee >> 16)
	feeWord[30] = byte(fee >> 8)
	feeWord[31] = byte(fee)
	salt := crypto.Keccak256Hash(
		common.LeftPadBytes(token0.Bytes(), 32),
		common.LeftPadBytes(token1.Bytes(), 32),
		feeWord[:],
	)
	return V3Pool{
		Address: crypto.CreateAddress2(factory, salt, initCodeHash.Bytes()),
		Token0:  token0,
		Token1:  token1,
		Fee:     fee,
	}, nil
}
