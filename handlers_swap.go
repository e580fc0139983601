package router

import (
	"context"
	"fmt"
	"math/big"

	"github.com/branched-services/go-router/amm"
	"github.com/ethereum/go-ethereum/common"
)

type v2ExactInArgs struct {
	Recipient    common.Address   `abi:"recipient"`
	AmountIn     *big.Int         `abi:"amountIn"`
	AmountOutMin *big.Int         `abi:"amountOutMin"`
	Path         []common.Address `abi:"path"`
	PayerIsUser  bool             `abi:"payerIsUser"`
}

type v2ExactOutArgs struct {
	Recipient   common.Address   `abi:"recipient"`
	AmountOut   *big.Int         `abi:"amountOut"`
	AmountInMax *big.Int         `abi:"amountInMax"`
	Path        []common.Address `abi:"path"`
	PayerIsUser bool             `abi:"payerIsUser"`
}

type v3ExactInArgs struct {
	Recipient    common.Address `abi:"recipient"`
	AmountIn     *big.Int       `abi:"amountIn"`
	AmountOutMin *big.Int       `abi:"amountOutMin"`
	Path         []byte         `abi:"path"`
	PayerIsUser  bool           `abi:"payerIsUser"`
}

type v3ExactOutArgs struct {
	Recipient   common.Address `abi:"recipient"`
	AmountOut   *big.Int       `abi:"amountOut"`
	AmountInMax *big.Int       `abi:"amountInMax"`
	Path        []byte         `abi:"path"`
	PayerIsUser bool           `abi:"payerIsUser"`
}

// pay moves amount of token to to. The user pays through the allowance
// verifier with the router as spender; otherwise the router pays from its
// own holding.
func (r *Router) pay(ctx context.Context, f *frame, token common.Address, payerIsUser bool, to common.Address, amount *big.Int) error {
	if !payerIsUser {
		return f.st.Transfer(token, r.address, to, amount)
	}
	if r.permit2 == nil {
		return fmt.Errorf("%w: permit2", ErrNotConfigured)
	}
	return r.permit2.TransferFrom(ctx, f.st, r.address, f.sender, to, token, amount)
}

// v2SwapExactIn pays amountIn into the first pair and swaps along the path.
// A zero amountIn swaps whatever the first pair already holds above its
// reserve. The output is the recipient's balance increase.
func (r *Router) v2SwapExactIn(ctx context.Context, f *frame, input []byte) (*big.Int, error) {
	if r.v2 == nil {
		return nil, fmt.Errorf("%w: v2", ErrNotConfigured)
	}
	var args v2ExactInArgs
	if err := decodeArgs(V2SwapExactIn, input, &args); err != nil {
		return nil, err
	}
	if len(args.Path) < 2 {
		return nil, fmt.Errorf("%w: %d tokens", amm.ErrInvalidPath, len(args.Path))
	}
	recipient := r.recipient(f, args.Recipient)
	pair, err := r.v2.Pair(args.Path[0], args.Path[1])
	if err != nil {
		return nil, err
	}

	amountIn := args.AmountIn
	if amountIn.Cmp(ContractBalance) == 0 {
		amountIn = f.st.TokenBalance(args.Path[0], r.address)
	}
	if amountIn.Sign() > 0 {
		if err := r.pay(ctx, f, args.Path[0], args.PayerIsUser, pair.Address, amountIn); err != nil {
			return nil, err
		}
	}

	tokenOut := args.Path[len(args.Path)-1]
	before := f.st.TokenBalance(tokenOut, recipient)
	if err := r.v2.Swap(f.st, args.Path, recipient); err != nil {
		return nil, err
	}
	amountOut := f.st.TokenBalance(tokenOut, recipient)
	amountOut.Sub(amountOut, before)
	if amountOut.Cmp(args.AmountOutMin) < 0 {
		return nil, fmt.Errorf("%w: got %s, min %s", ErrTooLittleReceived, amountOut, args.AmountOutMin)
	}
	return amountOut, nil
}

// v2SwapExactOut pays the quoted input for amountOut and swaps.
func (r *Router) v2SwapExactOut(ctx context.Context, f *frame, input []byte) (*big.Int, error) {
	if r.v2 == nil {
		return nil, fmt.Errorf("%w: v2", ErrNotConfigured)
	}
	var args v2ExactOutArgs
	if err := decodeArgs(V2SwapExactOut, input, &args); err != nil {
		return nil, err
	}
	amounts, err := r.v2.GetAmountsIn(f.st, args.AmountOut, args.Path)
	if err != nil {
		return nil, err
	}
	amountIn := amounts[0]
	if amountIn.Cmp(args.AmountInMax) > 0 {
		return nil, fmt.Errorf("%w: need %s, max %s", ErrTooMuchRequested, amountIn, args.AmountInMax)
	}
	pair, err := r.v2.Pair(args.Path[0], args.Path[1])
	if err != nil {
		return nil, err
	}
	if err := r.pay(ctx, f, args.Path[0], args.PayerIsUser, pair.Address, amountIn); err != nil {
		return nil, err
	}
	if err := r.v2.Swap(f.st, args.Path, r.recipient(f, args.Recipient)); err != nil {
		return nil, err
	}
	return amountIn, nil
}

// v3SwapExactIn swaps pool by pool. Intermediate output stays with the
// router, which then pays the next pool.
func (r *Router) v3SwapExactIn(ctx context.Context, f *frame, input []byte) (*big.Int, error) {
	if r.v3 == nil {
		return nil, fmt.Errorf("%w: v3", ErrNotConfigured)
	}
	var args v3ExactInArgs
	if err := decodeArgs(V3SwapExactIn, input, &args); err != nil {
		return nil, err
	}
	path := amm.Path(args.Path)
	if !path.Valid() {
		return nil, amm.ErrInvalidPath
	}

	amount := args.AmountIn
	if amount.Cmp(ContractBalance) == 0 {
		first, err := path.FirstToken()
		if err != nil {
			return nil, err
		}
		amount = f.st.TokenBalance(first, r.address)
	}

	payerIsUser := args.PayerIsUser
	for {
		multiple := path.HasMultiplePools()
		tokenIn, fee, tokenOut, err := path.DecodeFirstPool()
		if err != nil {
			return nil, err
		}
		pool, err := r.v3.Pool(tokenIn, tokenOut, fee)
		if err != nil {
			return nil, err
		}
		to := r.recipient(f, args.Recipient)
		if multiple {
			to = r.address
		}
		payer := payerIsUser
		amount, err = pool.SwapExactIn(f.st, pool.ZeroForOne(tokenIn), amount, to, func(owed *big.Int) error {
			return r.pay(ctx, f, tokenIn, payer, pool.Address, owed)
		})
		if err != nil {
			return nil, err
		}
		if !multiple {
			break
		}
		payerIsUser = false
		path = path.SkipToken()
	}

	if amount.Cmp(args.AmountOutMin) < 0 {
		return nil, fmt.Errorf("%w: got %s, min %s", ErrTooLittleReceived, amount, args.AmountOutMin)
	}
	return amount, nil
}

// v3SwapExactOut walks the path from the output token back to the input
// token: each pool's callback obtains its input from the next pool, and the
// last callback pays with the input token.
func (r *Router) v3SwapExactOut(ctx context.Context, f *frame, input []byte) (*big.Int, error) {
	if r.v3 == nil {
		return nil, fmt.Errorf("%w: v3", ErrNotConfigured)
	}
	var args v3ExactOutArgs
	if err := decodeArgs(V3SwapExactOut, input, &args); err != nil {
		return nil, err
	}
	path := amm.Path(args.Path)
	if !path.Valid() {
		return nil, amm.ErrInvalidPath
	}

	var amountIn *big.Int
	if err := r.v3ExactOutHop(ctx, f, path, args.AmountOut, r.recipient(f, args.Recipient), args.PayerIsUser, &amountIn); err != nil {
		return nil, err
	}
	if amountIn.Cmp(args.AmountInMax) > 0 {
		return nil, fmt.Errorf("%w: need %s, max %s", ErrTooMuchRequested, amountIn, args.AmountInMax)
	}
	return amountIn, nil
}

func (r *Router) v3ExactOutHop(ctx context.Context, f *frame, path amm.Path, amountOut *big.Int, recipient common.Address, payerIsUser bool, amountIn **big.Int) error {
	tokenOut, fee, tokenIn, err := path.DecodeFirstPool()
	if err != nil {
		return err
	}
	pool, err := r.v3.Pool(tokenIn, tokenOut, fee)
	if err != nil {
		return err
	}
	_, err = pool.SwapExactOut(f.st, pool.ZeroForOne(tokenIn), amountOut, recipient, func(owed *big.Int) error {
		if path.HasMultiplePools() {
			return r.v3ExactOutHop(ctx, f, path.SkipToken(), owed, pool.Address, payerIsUser, amountIn)
		}
		*amountIn = owed
		return r.pay(ctx, f, tokenIn, payerIsUser, pool.Address, owed)
	})
	return err
}
