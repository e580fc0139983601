package router

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type sweepArgs struct {
	Token     common.Address `abi:"token"`
	Recipient common.Address `abi:"recipient"`
	AmountMin *big.Int       `abi:"amountMin"`
}

// sweep sends the router's holding of token, less the amount to retain, to
// the recipient. Nothing moves when the holding does not exceed it.
func (r *Router) sweep(f *frame, input []byte) error {
	var args sweepArgs
	if err := decodeArgs(Sweep, input, &args); err != nil {
		return err
	}
	balance := f.st.Balance(args.Token, r.address)
	if balance.Cmp(args.AmountMin) <= 0 {
		return nil
	}
	amount := balance.Sub(balance, args.AmountMin)
	return f.st.Transfer(args.Token, r.address, r.recipient(f, args.Recipient), amount)
}

type transferArgs struct {
	Token     common.Address `abi:"token"`
	Recipient common.Address `abi:"recipient"`
	Value     *big.Int       `abi:"value"`
}

func (r *Router) transfer(f *frame, input []byte) error {
	var args transferArgs
	if err := decodeArgs(Transfer, input, &args); err != nil {
		return err
	}
	amount := args.Value
	if amount.Cmp(ContractBalance) == 0 {
		amount = f.st.Balance(args.Token, r.address)
	}
	return f.st.Transfer(args.Token, r.address, r.recipient(f, args.Recipient), amount)
}

type payPortionArgs struct {
	Token     common.Address `abi:"token"`
	Recipient common.Address `abi:"recipient"`
	Bips      *big.Int       `abi:"bips"`
}

// payPortion pays bips/10000 of the router's holding of token.
func (r *Router) payPortion(f *frame, input []byte) error {
	var args payPortionArgs
	if err := decodeArgs(PayPortion, input, &args); err != nil {
		return err
	}
	if args.Bips.Sign() < 0 || args.Bips.Cmp(big.NewInt(MaxBips)) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidBips, args.Bips)
	}
	balance := f.st.Balance(args.Token, r.address)
	amount := balance.Mul(balance, args.Bips)
	amount.Div(amount, big.NewInt(MaxBips))
	if amount.Sign() == 0 {
		return nil
	}
	return f.st.Transfer(args.Token, r.address, r.recipient(f, args.Recipient), amount)
}

type wrapArgs struct {
	Recipient common.Address `abi:"recipient"`
	Amount    *big.Int       `abi:"amount"`
}

// wrapETH moves native currency into the WETH contract and credits the
// recipient with the same amount of WETH.
func (r *Router) wrapETH(f *frame, input []byte) error {
	if r.weth == (common.Address{}) {
		return fmt.Errorf("%w: weth", ErrNotConfigured)
	}
	var args wrapArgs
	if err := decodeArgs(WrapETH, input, &args); err != nil {
		return err
	}
	amount := args.Amount
	balance := f.st.NativeBalance(r.address)
	if amount.Cmp(ContractBalance) == 0 {
		amount = balance
	} else if amount.Cmp(balance) > 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientETH, balance, amount)
	}
	if amount.Sign() == 0 {
		return nil
	}
	if err := f.st.TransferNative(r.address, r.weth, amount); err != nil {
		return err
	}
	return f.st.Mint(r.weth, r.recipient(f, args.Recipient), amount)
}

type unwrapArgs struct {
	Recipient common.Address `abi:"recipient"`
	AmountMin *big.Int       `abi:"amountMin"`
}

// unwrapWETH burns all WETH held by the router and sends the native currency
// to the recipient.
func (r *Router) unwrapWETH(f *frame, input []byte) error {
	if r.weth == (common.Address{}) {
		return fmt.Errorf("%w: weth", ErrNotConfigured)
	}
	var args unwrapArgs
	if err := decodeArgs(UnwrapWETH, input, &args); err != nil {
		return err
	}
	balance := f.st.TokenBalance(r.weth, r.address)
	if balance.Cmp(args.AmountMin) < 0 {
		return fmt.Errorf("%w: weth %s, min %s", ErrInsufficientETH, balance, args.AmountMin)
	}
	if balance.Sign() == 0 {
		return nil
	}
	if err := f.st.Burn(r.weth, r.address, balance); err != nil {
		return err
	}
	return f.st.TransferNative(r.weth, r.recipient(f, args.Recipient), balance)
}

type balanceCheckArgs struct {
	Owner      common.Address `abi:"owner"`
	Token      common.Address `abi:"token"`
	MinBalance *big.Int       `abi:"minBalance"`
}

func (r *Router) balanceCheckERC20(f *frame, input []byte) error {
	var args balanceCheckArgs
	if err := decodeArgs(BalanceCheckERC20, input, &args); err != nil {
		return err
	}
	if balance := f.st.Balance(args.Token, args.Owner); balance.Cmp(args.MinBalance) < 0 {
		return fmt.Errorf("%w: %s holds %s of %s, want %s", ErrBalanceTooLow, args.Owner.Hex(), balance, args.Token.Hex(), args.MinBalance)
	}
	return nil
}
