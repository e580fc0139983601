package router

import (
	"context"
	"fmt"
	"math/big"

	"github.com/branched-services/go-router/permit2"
	"github.com/ethereum/go-ethereum/common"
)

type permitArgs struct {
	Token       common.Address `abi:"token"`
	Amount      *big.Int       `abi:"amount"`
	Expiration  *big.Int       `abi:"expiration"`
	Nonce       *big.Int       `abi:"nonce"`
	Spender     common.Address `abi:"spender"`
	SigDeadline *big.Int       `abi:"sigDeadline"`
	Signature   []byte         `abi:"signature"`
}

// permit2Permit submits the sender's signed allowance to the verifier. A
// permit whose nonce was already consumed fails here, so plans usually mark
// it allow-revert.
func (r *Router) permit2Permit(ctx context.Context, f *frame, input []byte) error {
	if r.permit2 == nil {
		return fmt.Errorf("%w: permit2", ErrNotConfigured)
	}
	var args permitArgs
	if err := decodeArgs(Permit2Permit, input, &args); err != nil {
		return err
	}
	permit := permit2.PermitSingle{
		Details: permit2.PermitDetails{
			Token:      args.Token,
			Amount:     args.Amount,
			Expiration: args.Expiration.Uint64(),
			Nonce:      args.Nonce.Uint64(),
		},
		Spender:     args.Spender,
		SigDeadline: args.SigDeadline,
	}
	return r.permit2.Permit(ctx, f.st, f.sender, permit, args.Signature)
}

type permitTransferArgs struct {
	Token     common.Address `abi:"token"`
	Recipient common.Address `abi:"recipient"`
	Amount    *big.Int       `abi:"amount"`
}

// permit2TransferFrom pulls tokens from the sender using the router's
// allowance.
func (r *Router) permit2TransferFrom(ctx context.Context, f *frame, input []byte) error {
	var args permitTransferArgs
	if err := decodeArgs(Permit2TransferFrom, input, &args); err != nil {
		return err
	}
	return r.pay(ctx, f, args.Token, true, r.recipient(f, args.Recipient), args.Amount)
}

type permitBatchArgs struct {
	Tokens    []common.Address `abi:"tokens"`
	Recipient common.Address   `abi:"recipient"`
	Amounts   []*big.Int       `abi:"amounts"`
}

func (r *Router) permit2TransferFromBatch(ctx context.Context, f *frame, input []byte) error {
	var args permitBatchArgs
	if err := decodeArgs(Permit2TransferFromBatch, input, &args); err != nil {
		return err
	}
	if len(args.Tokens) != len(args.Amounts) {
		return fmt.Errorf("%w: %d tokens, %d amounts", ErrLengthMismatch, len(args.Tokens), len(args.Amounts))
	}
	to := r.recipient(f, args.Recipient)
	for i, token := range args.Tokens {
		if err := r.pay(ctx, f, token, true, to, args.Amounts[i]); err != nil {
			return err
		}
	}
	return nil
}
