package amm

import (
	"fmt"
	"math/big"

	"github.com/branched-services/go-router/ledger"
	"github.com/ethereum/go-ethereum/common"
)

var (
	reserve0Slot = common.BigToHash(big.NewInt(8))
	reserve1Slot = common.BigToHash(big.NewInt(9))

	big997  = big.NewInt(997)
	big1000 = big.NewInt(1000)
)

// V2Pair is a constant-product pair with a fixed 0.3% fee.
type V2Pair struct {
	Address common.Address
	Token0  common.Address
	Token1  common.Address
}

// Reserves returns the reserves recorded at the last sync.
func (p V2Pair) Reserves(st *ledger.State) (reserve0, reserve1 *big.Int) {
	return loadReserves(st, p.Address)
}

// ReservesFor returns the reserves ordered as (input, output) for tokenIn.
func (p V2Pair) ReservesFor(st *ledger.State, tokenIn common.Address) (reserveIn, reserveOut *big.Int) {
	r0, r1 := p.Reserves(st)
	if tokenIn == p.Token0 {
		return r0, r1
	}
	return r1, r0
}

// Sync records the pair's current token balances as its reserves.
func (p V2Pair) Sync(st *ledger.State) {
	storeReserves(st, p.Address, st.TokenBalance(p.Token0, p.Address), st.TokenBalance(p.Token1, p.Address))
}

// AddLiquidity deposits amountA of tokenA and amountB of the other token
// from the pair's own mint and syncs reserves.
func (p V2Pair) AddLiquidity(st *ledger.State, tokenA common.Address, amountA, amountB *big.Int) error {
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
	p.Sync(st)
	return nil
}

// Swap sends the requested outputs to to. The input must already have been
// transferred to the pair; the fee-adjusted constant product is checked
// against the previous reserves.
func (p V2Pair) Swap(st *ledger.State, amount0Out, amount1Out *big.Int, to common.Address) error {
	if amount0Out.Sign() == 0 && amount1Out.Sign() == 0 {
		return ErrInsufficientOutputAmount
	}
	r0, r1 := p.Reserves(st)
	if amount0Out.Cmp(r0) >= 0 || amount1Out.Cmp(r1) >= 0 {
		return ErrInsufficientLiquidity
	}
	if to == p.Token0 || to == p.Token1 {
		return fmt.Errorf("amm: invalid to %s", to.Hex())
	}
	if amount0Out.Sign() > 0 {
		if err := st.TransferToken(p.Token0, p.Address, to, amount0Out); err != nil {
			return err
		}
	}
	if amount1Out.Sign() > 0 {
		if err := st.TransferToken(p.Token1, p.Address, to, amount1Out); err != nil {
			return err
		}
	}

	bal0 := st.TokenBalance(p.Token0, p.Address)
	bal1 := st.TokenBalance(p.Token1, p.Address)
	amount0In := inflow(bal0, r0, amount0Out)
	amount1In := inflow(bal1, r1, amount1Out)
	if amount0In.Sign() == 0 && amount1In.Sign() == 0 {
		return ErrInsufficientInputAmount
	}

	adj0 := new(big.Int).Sub(new(big.Int).Mul(bal0, big1000), new(big.Int).Mul(amount0In, big.NewInt(3)))
	adj1 := new(big.Int).Sub(new(big.Int).Mul(bal1, big1000), new(big.Int).Mul(amount1In, big.NewInt(3)))
	k := new(big.Int).Mul(new(big.Int).Mul(r0, r1), big.NewInt(1_000_000))
	if new(big.Int).Mul(adj0, adj1).Cmp(k) < 0 {
		return ErrInvariant
	}

	storeReserves(st, p.Address, bal0, bal1)
	return nil
}

// inflow returns balance - (reserve - out), floored at zero.
func inflow(balance, reserve, out *big.Int) *big.Int {
	remaining := new(big.Int).Sub(reserve, out)
	if balance.Cmp(remaining) > 0 {
		return remaining.Sub(balance, remaining)
	}
	return new(big.Int)
}

// GetAmountOut returns the maximum output for amountIn given the reserves.
func GetAmountOut(amountIn, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if amountIn.Sign() <= 0 {
		return nil, ErrInsufficientInputAmount
	}
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}
	withFee := new(big.Int).Mul(amountIn, big997)
	num := new(big.Int).Mul(withFee, reserveOut)
	den := new(big.Int).Add(new(big.Int).Mul(reserveIn, big1000), withFee)
	return num.Div(num, den), nil
}

// GetAmountIn returns the input required to receive amountOut.
func GetAmountIn(amountOut, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if amountOut.Sign() <= 0 {
		return nil, ErrInsufficientOutputAmount
	}
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 || amountOut.Cmp(reserveOut) >= 0 {
		return nil, ErrInsufficientLiquidity
	}
	num := new(big.Int).Mul(new(big.Int).Mul(reserveIn, amountOut), big1000)
	den := new(big.Int).Mul(new(big.Int).Sub(reserveOut, amountOut), big997)
	in := num.Div(num, den)
	return in.Add(in, big.NewInt(1)), nil
}

// V2Router computes and executes multi-hop swaps over pairs created by one
// factory.
type V2Router struct {
	Factory      common.Address
	InitCodeHash common.Hash
}

// Pair returns the pair for two tokens.
func (r V2Router) Pair(a, b common.Address) (V2Pair, error) {
	return PairFor(r.Factory, r.InitCodeHash, a, b)
}

// GetAmountsIn returns the input amounts along path needed to receive
// amountOut of the last token. amounts[0] is the amount to pay into the first
// pair.
func (r V2Router) GetAmountsIn(st *ledger.State, amountOut *big.Int, path []common.Address) ([]*big.Int, error) {
	if len(path) < 2 {
		return nil, fmt.Errorf("%w: %d tokens", ErrInvalidPath, len(path))
	}
	amounts := make([]*big.Int, len(path))
	amounts[len(path)-1] = new(big.Int).Set(amountOut)
	for i := len(path) - 1; i > 0; i-- {
		pair, err := r.Pair(path[i-1], path[i])
		if err != nil {
			return nil, err
		}
		reserveIn, reserveOut := pair.ReservesFor(st, path[i-1])
		in, err := GetAmountIn(amounts[i], reserveIn, reserveOut)
		if err != nil {
			return nil, err
		}
		amounts[i-1] = in
	}
	return amounts, nil
}

// Swap executes the hops of path for input already deposited in the first
// pair, sending the final output to recipient. Each hop's input is the
// pair's balance above its reserve, so tokens sent to a pair ahead of time
// are swapped too.
func (r V2Router) Swap(st *ledger.State, path []common.Address, recipient common.Address) error {
	if len(path) < 2 {
		return fmt.Errorf("%w: %d tokens", ErrInvalidPath, len(path))
	}
	for i := 0; i < len(path)-1; i++ {
		input, output := path[i], path[i+1]
		pair, err := r.Pair(input, output)
		if err != nil {
			return err
		}
		reserveIn, reserveOut := pair.ReservesFor(st, input)
		amountInput := new(big.Int).Sub(st.TokenBalance(input, pair.Address), reserveIn)
		amountOutput, err := GetAmountOut(amountInput, reserveIn, reserveOut)
		if err != nil {
			return err
		}

		amount0Out, amount1Out := new(big.Int), amountOutput
		if input != pair.Token0 {
			amount0Out, amount1Out = amountOutput, new(big.Int)
		}

		to := recipient
		if i < len(path)-2 {
			next, err := r.Pair(output, path[i+2])
			if err != nil {
				return err
			}
			to = next.Address
		}
		if err := pair.Swap(st, amount0Out, amount1Out, to); err != nil {
			return err
		}
	}
	return nil
}

func loadReserves(st *ledger.State, pool common.Address) (*big.Int, *big.Int) {
	r0 := st.GetState(pool, reserve0Slot).Big()
	r1 := st.GetState(pool, reserve1Slot).Big()
	return r0, r1
}

func storeReserves(st *ledger.State, pool common.Address, r0, r1 *big.Int) {
	st.SetState(pool, reserve0Slot, common.BigToHash(r0))
	st.SetState(pool, reserve1Slot, common.BigToHash(r1))
}
