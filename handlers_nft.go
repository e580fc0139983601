package router

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type marketArgs struct {
	Value *big.Int `abi:"value"`
	Data  []byte   `abi:"data"`
}

// callMarket pays value to the marketplace for t and calls it with data.
func (r *Router) callMarket(ctx context.Context, f *frame, t CommandType, value *big.Int, data []byte) error {
	m, ok := r.markets[t]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotConfigured, t)
	}
	if value.Sign() > 0 {
		if err := f.st.TransferNative(r.address, m.Address(), value); err != nil {
			return err
		}
	}
	_, err := m.Call(ctx, f.st, r.address, value, data)
	return err
}

// marketCall handles marketplaces whose order data names the buyer.
func (r *Router) marketCall(ctx context.Context, f *frame, t CommandType, input []byte) error {
	var args marketArgs
	if err := decodeArgs(t, input, &args); err != nil {
		return err
	}
	return r.callMarket(ctx, f, t, args.Value, args.Data)
}

type market721Args struct {
	Value     *big.Int       `abi:"value"`
	Data      []byte         `abi:"data"`
	Recipient common.Address `abi:"recipient"`
	Token     common.Address `abi:"token"`
	TokenID   *big.Int       `abi:"tokenId"`
}

// marketCall721 buys to the router and forwards the token to the recipient.
func (r *Router) marketCall721(ctx context.Context, f *frame, t CommandType, input []byte) error {
	var args market721Args
	if err := decodeArgs(t, input, &args); err != nil {
		return err
	}
	if err := r.callMarket(ctx, f, t, args.Value, args.Data); err != nil {
		return err
	}
	return f.st.TransferNFT(args.Token, r.address, r.recipient(f, args.Recipient), args.TokenID)
}

type market1155Args struct {
	Value     *big.Int       `abi:"value"`
	Data      []byte         `abi:"data"`
	Recipient common.Address `abi:"recipient"`
	Token     common.Address `abi:"token"`
	TokenID   *big.Int       `abi:"tokenId"`
	Amount    *big.Int       `abi:"amount"`
}

func (r *Router) marketCall1155(ctx context.Context, f *frame, input []byte) error {
	var args market1155Args
	if err := decodeArgs(X2Y2_1155, input, &args); err != nil {
		return err
	}
	if err := r.callMarket(ctx, f, X2Y2_1155, args.Value, args.Data); err != nil {
		return err
	}
	return f.st.TransferEditions(args.Token, r.address, r.recipient(f, args.Recipient), args.TokenID, args.Amount)
}

type punkArgs struct {
	PunkID    *big.Int       `abi:"punkId"`
	Recipient common.Address `abi:"recipient"`
	Value     *big.Int       `abi:"value"`
}

var punkBuyArgs = mustArgs("uint256 punkIndex")

// cryptoPunks buys a punk to the router, then hands it to the recipient.
// Punks are tracked as tokens of the market's own address.
func (r *Router) cryptoPunks(ctx context.Context, f *frame, input []byte) error {
	var args punkArgs
	if err := decodeArgs(CryptoPunks, input, &args); err != nil {
		return err
	}
	m, ok := r.markets[CryptoPunks]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotConfigured, CryptoPunks)
	}
	data, err := punkBuyArgs.Pack(args.PunkID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := r.callMarket(ctx, f, CryptoPunks, args.Value, data); err != nil {
		return err
	}
	return f.st.TransferNFT(m.Address(), r.address, r.recipient(f, args.Recipient), args.PunkID)
}

type ownerCheck721Args struct {
	Owner   common.Address `abi:"owner"`
	Token   common.Address `abi:"token"`
	TokenID *big.Int       `abi:"tokenId"`
}

func (r *Router) ownerCheck721(f *frame, input []byte) error {
	var args ownerCheck721Args
	if err := decodeArgs(OwnerCheck721, input, &args); err != nil {
		return err
	}
	if owner, ok := f.st.OwnerOf(args.Token, args.TokenID); !ok || owner != args.Owner {
		return fmt.Errorf("%w: %s #%s", ErrInvalidOwnerERC721, args.Token.Hex(), args.TokenID)
	}
	return nil
}

type ownerCheck1155Args struct {
	Owner      common.Address `abi:"owner"`
	Token      common.Address `abi:"token"`
	TokenID    *big.Int       `abi:"tokenId"`
	MinBalance *big.Int       `abi:"minBalance"`
}

func (r *Router) ownerCheck1155(f *frame, input []byte) error {
	var args ownerCheck1155Args
	if err := decodeArgs(OwnerCheck1155, input, &args); err != nil {
		return err
	}
	if bal := f.st.EditionBalance(args.Token, args.TokenID, args.Owner); bal.Cmp(args.MinBalance) < 0 {
		return fmt.Errorf("%w: %s #%s holds %s, want %s", ErrInvalidOwnerERC1155, args.Token.Hex(), args.TokenID, bal, args.MinBalance)
	}
	return nil
}

type sweep721Args struct {
	Token     common.Address `abi:"token"`
	Recipient common.Address `abi:"recipient"`
	TokenID   *big.Int       `abi:"tokenId"`
}

func (r *Router) sweepERC721(f *frame, input []byte) error {
	var args sweep721Args
	if err := decodeArgs(SweepERC721, input, &args); err != nil {
		return err
	}
	return f.st.TransferNFT(args.Token, r.address, r.recipient(f, args.Recipient), args.TokenID)
}

type sweep1155Args struct {
	Token     common.Address `abi:"token"`
	Recipient common.Address `abi:"recipient"`
	TokenID   *big.Int       `abi:"tokenId"`
	Amount    *big.Int       `abi:"amount"`
}

// sweepERC1155 sends every edition the router holds, provided it holds at
// least amount.
func (r *Router) sweepERC1155(f *frame, input []byte) error {
	var args sweep1155Args
	if err := decodeArgs(SweepERC1155, input, &args); err != nil {
		return err
	}
	bal := f.st.EditionBalance(args.Token, args.TokenID, r.address)
	if bal.Cmp(args.Amount) < 0 {
		return fmt.Errorf("%w: %s #%s holds %s, want %s", ErrInsufficientToken, args.Token.Hex(), args.TokenID, bal, args.Amount)
	}
	if bal.Sign() == 0 {
		return nil
	}
	return f.st.TransferEditions(args.Token, r.address, r.recipient(f, args.Recipient), args.TokenID, bal)
}
