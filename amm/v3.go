package amm

import (
	"math/big"

	"github.com/branched-services/go-router/ledger"
	"github.com/ethereum/go-ethereum/common"
)

// FeeDenominator is the fee tier scale: a fee of 3000 is 0.3%.
const FeeDenominator = 1_000_000

// SwapCallback is invoked by a V3 pool after the output has been sent.
// It must deliver at least amountOwed of the input token to the pool.
type SwapCallback func(amountOwed *big.Int) error

// V3Pool is a fee-tier pool. Output is sent before the input is collected
// through the swap callback, and the pool checks it was paid.
type V3Pool struct {
	Address common.Address
	Token0  common.Address
	Token1  common.Address
	Fee     uint32
}

// Reserves returns the reserves recorded after the last swap.
func (p V3Pool) Reserves(st *ledger.State) (reserve0, reserve1 *big.Int) {
	return loadReserves(st, p.Address)
}

// AddLiquidity deposits amountA of tokenA and amountB of the other token.
func (p V3Pool) AddLiquidity(st *ledger.State, tokenA common.Address, amountA, amountB *big.Int) error {
	amount0, amount1 := amountA, amountB
	if tokenA != p.Token0 {
		amount0, amount1 = amountB, amountA
	}
	if err := st.Mint(p.Token0, p.Address, amount0); err != nil {
		return err
	}
	if err := st.Mint(p.Token1, p.Address, amount1); err != nil {
		return err
	}
	storeReserves(st, p.Address, st.TokenBalance(p.Token0, p.Address), st.TokenBalance(p.Token1, p.Address))
	return nil
}

// ZeroForOne reports whether swapping tokenIn means selling token0.
func (p V3Pool) ZeroForOne(tokenIn common.Address) bool {
	return tokenIn == p.Token0
}

// QuoteExactIn returns the output for amountIn.
func (p V3Pool) QuoteExactIn(st *ledger.State, zeroForOne bool, amountIn *big.Int) (*big.Int, error) {
	reserveIn, reserveOut := p.ordered(st, zeroForOne)
	if amountIn.Sign() <= 0 {
		return nil, ErrInsufficientInputAmount
	}
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}
	withFee := new(big.Int).Mul(amountIn, big.NewInt(int64(FeeDenominator-p.Fee)))
	num := new(big.Int).Mul(withFee, reserveOut)
	den := new(big.Int).Add(new(big.Int).Mul(reserveIn, big.NewInt(FeeDenominator)), withFee)
	out := num.Div(num, den)
	if out.Sign() == 0 {
		return nil, ErrInsufficientOutputAmount
	}
	return out, nil
}

// QuoteExactOut returns the input needed to receive amountOut.
func (p V3Pool) QuoteExactOut(st *ledger.State, zeroForOne bool, amountOut *big.Int) (*big.Int, error) {
	reserveIn, reserveOut := p.ordered(st, zeroForOne)
	if amountOut.Sign() <= 0 {
		return nil, ErrInsufficientOutputAmount
	}
	if reserveIn.Sign() <= 0 || amountOut.Cmp(reserveOut) >= 0 {
		return nil, ErrInsufficientLiquidity
	}
	num := new(big.Int).Mul(new(big.Int).Mul(reserveIn, amountOut), big.NewInt(FeeDenominator))
	den := new(big.Int).Mul(new(big.Int).Sub(reserveOut, amountOut), big.NewInt(int64(FeeDenominator-p.Fee)))
	in := num.Div(num, den)
	return in.Add(in, big.NewInt(1)), nil
}

// SwapExactIn sells amountIn and sends the output to recipient.
func (p V3Pool) SwapExactIn(st *ledger.State, zeroForOne bool, amountIn *big.Int, recipient common.Address, cb SwapCallback) (*big.Int, error) {
	amountOut, err := p.QuoteExactIn(st, zeroForOne, amountIn)
	if err != nil {
		return nil, err
	}
	if err := p.settle(st, zeroForOne, amountIn, amountOut, recipient, cb); err != nil {
		return nil, err
	}
	return amountOut, nil
}

// SwapExactOut buys amountOut for recipient and returns the input collected.
func (p V3Pool) SwapExactOut(st *ledger.State, zeroForOne bool, amountOut *big.Int, recipient common.Address, cb SwapCallback) (*big.Int, error) {
	amountIn, err := p.QuoteExactOut(st, zeroForOne, amountOut)
	if err != nil {
		return nil, err
	}
	if err := p.settle(st, zeroForOne, amountIn, amountOut, recipient, cb); err != nil {
		return nil, err
	}
	return amountIn, nil
}

func (p V3Pool) settle(st *ledger.State, zeroForOne bool, amountIn, amountOut *big.Int, recipient common.Address, cb SwapCallback) error {
	tokenIn, tokenOut := p.Token0, p.Token1
	if !zeroForOne {
		tokenIn, tokenOut = p.Token1, p.Token0
	}
	if err := st.TransferToken(tokenOut, p.Address, recipient, amountOut); err != nil {
		return err
	}

	before := st.TokenBalance(tokenIn, p.Address)
	if err := cb(new(big.Int).Set(amountIn)); err != nil {
		return err
	}
	if st.TokenBalance(tokenIn, p.Address).Cmp(before.Add(before, amountIn)) < 0 {
		return ErrUnderpaid
	}

	storeReserves(st, p.Address, st.TokenBalance(p.Token0, p.Address), st.TokenBalance(p.Token1, p.Address))
	return nil
}

func (p V3Pool) ordered(st *ledger.State, zeroForOne bool) (reserveIn, reserveOut *big.Int) {
	if p.Fee >= FeeDenominator {
		return new(big.Int), new(big.Int)
	}
	r0, r1 := p.Reserves(st)
	if zeroForOne {
		return r0, r1
	}
	return r1, r0
}

// V3Router locates pools created by one factory.
type V3Router struct {
	Factory      common.Address
	InitCodeHash common.Hash
}

// Pool returns the pool for two tokens and a fee tier.
func (r V3Router) Pool(a, b common.Address, fee uint32) (V3Pool, error) {
	return PoolFor(r.Factory, r.InitCodeHash, a, b, fee)
}
