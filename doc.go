// Package router implements the command dispatch engine of a universal swap
// and NFT router.
//
// A caller bundles value-moving operations (token swaps over V2 pairs and V3
// pools, marketplace purchases, signed allowances, wrapping, fee payouts and
// sweeps) into one command stream: a byte per instruction plus an
// ABI-encoded input per instruction. The router executes the stream against a
// ledger.State as a single atomic unit.
//
// # Basic Usage
//
// Build a stream with the planner and execute it:
//
//	p := router.NewPlanner()
//	p.Add(router.MustCall(router.WrapETH, router.AddressThis, amount))
//	p.Add(router.MustCall(router.V2SwapExactIn,
//	    router.MsgSender,
//	    router.BalanceOf(weth), // resolved when the swap runs
//	    big.NewInt(0),
//	    []common.Address{weth, usdc},
//	    false,
//	))
//
//	plan, err := p.Plan()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	r := router.New(routerAddr, router.WithWETH(weth), router.WithV2(factory, initCodeHash))
//	res, err := r.Execute(ctx, st, router.Invocation{
//	    Sender:   user,
//	    Value:    amount,
//	    Commands: plan.Commands,
//	    Inputs:   plan.Inputs,
//	})
//
// # Command Bytes
//
// The low six bits of a command byte select the command type and bit 7
// (FlagAllowRevert) lets the instruction fail without aborting the stream.
// A tolerated failure rolls back only that instruction's effects. Any other
// failure rolls back the whole invocation and is reported as an
// *ExecutionFailedError carrying the failing index and revert bytes. Invalid
// command types, re-entry, bips above 10000 and nested sub-plans abort
// regardless of the flag.
//
// # Placeholders
//
// Inputs may contain 32-byte placeholder words that are rewritten just
// before the instruction runs. A pass-through word is replaced by the value an
// earlier instruction produced (see ReturnValue); a balance word by the
// router's current holding of a token (see BalanceOf). Marketplace and
// sub-plan inputs are never rewritten.
//
// # Sub-plans
//
// EXECUTE_SUB_PLAN runs a nested stream with its own allow-revert semantics;
// the nested stream aborting is the failure of the sub-plan instruction.
// EXECUTE_SUB_PLAN_RETURNING additionally outputs the last value produced
// inside. A sub-plan may not contain another sub-plan.
//
// # Custody
//
// Each top-level invocation holds a lock carried in its context, checks its
// deadline on entry and, on success, returns to the sender whatever part of
// the attached native currency the router still holds.
package router
