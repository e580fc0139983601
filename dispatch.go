package router

import (
	"context"
	"fmt"
	"math/big"
)

// dispatch runs the handler for t. Only sub-plans return nested outcomes.
func (r *Router) dispatch(ctx context.Context, f *frame, t CommandType, input []byte, depth int) (*big.Int, []Outcome, error) {
	var (
		value *big.Int
		err   error
	)
	switch t {
	case V3SwapExactIn:
		value, err = r.v3SwapExactIn(ctx, f, input)
	case V3SwapExactOut:
		value, err = r.v3SwapExactOut(ctx, f, input)
	case Permit2TransferFrom:
		err = r.permit2TransferFrom(ctx, f, input)
	case Permit2TransferFromBatch:
		err = r.permit2TransferFromBatch(ctx, f, input)
	case Sweep:
		err = r.sweep(f, input)
	case Transfer:
		err = r.transfer(f, input)
	case PayPortion:
		err = r.payPortion(f, input)
	case V2SwapExactIn:
		value, err = r.v2SwapExactIn(ctx, f, input)
	case V2SwapExactOut:
		value, err = r.v2SwapExactOut(ctx, f, input)
	case Permit2Permit:
		err = r.permit2Permit(ctx, f, input)
	case WrapETH:
		err = r.wrapETH(f, input)
	case UnwrapWETH:
		err = r.unwrapWETH(f, input)
	case BalanceCheckERC20:
		err = r.balanceCheckERC20(f, input)
	case SeaportV1_5, SeaportV1_4, LooksRareV2, NFTX, Sudoswap, NFT20, ElementMarket:
		err = r.marketCall(ctx, f, t, input)
	case CryptoPunks:
		err = r.cryptoPunks(ctx, f, input)
	case OwnerCheck721:
		err = r.ownerCheck721(f, input)
	case OwnerCheck1155:
		err = r.ownerCheck1155(f, input)
	case SweepERC721:
		err = r.sweepERC721(f, input)
	case SweepERC1155:
		err = r.sweepERC1155(f, input)
	case X2Y2_721, Foundation:
		err = r.marketCall721(ctx, f, t, input)
	case X2Y2_1155:
		err = r.marketCall1155(ctx, f, input)
	case ExecuteSubPlan, ExecuteSubPlanReturning:
		return r.executeSubPlan(ctx, f, t, input, depth)
	default:
		return nil, nil, fmt.Errorf("%w: 0x%02x", ErrInvalidCommandType, uint8(t))
	}
	return value, nil, err
}

type subPlanArgs struct {
	Commands []byte   `abi:"commands"`
	Inputs   [][]byte `abi:"inputs"`
}

// executeSubPlan runs a nested stream. Tolerated failures stay inside it; an
// abort of the nested stream is the failure of this instruction.
func (r *Router) executeSubPlan(ctx context.Context, f *frame, t CommandType, input []byte, depth int) (*big.Int, []Outcome, error) {
	if depth > 0 {
		return nil, nil, ErrNestedSubPlan
	}
	var args subPlanArgs
	if err := decodeArgs(t, input, &args); err != nil {
		return nil, nil, err
	}
	instructions, err := DecodeCommands(args.Commands, args.Inputs)
	if err != nil {
		return nil, nil, err
	}

	nested, table, err := r.run(ctx, f, instructions, depth+1)
	if err != nil {
		return nil, nested, err
	}
	if t != ExecuteSubPlanReturning {
		return nil, nested, nil
	}
	value, _ := table.lastValue()
	return value, nested, nil
}
