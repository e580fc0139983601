package router

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	testWETH = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	testUSDC = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
)

func swapCall(amountIn any) *Call {
	return MustCall(V2SwapExactIn, AddressThis, amountIn, big.NewInt(0), []common.Address{testWETH, testUSDC}, false)
}

func TestPlannerAdd(t *testing.T) {
	p := NewPlanner()

	if rv := p.Add(MustCall(WrapETH, AddressThis, big.NewInt(1))); rv != nil {
		t.Error("WRAP_ETH should not return a value")
	}
	rv := p.Add(swapCall(big.NewInt(1)))
	if rv == nil {
		t.Fatal("Expected a return value for V2_SWAP_EXACT_IN")
	}
	if rv.Command() != p.CommandAt(1) {
		t.Error("Return value should reference the added command")
	}
	if p.Len() != 2 {
		t.Errorf("Expected 2 commands, got %d", p.Len())
	}
	if p.CommandAt(2) != nil || p.CommandAt(-1) != nil {
		t.Error("Expected nil outside range")
	}

	var seen []CommandType
	p.ForEachCommand(func(_ int, c *Command) bool {
		seen = append(seen, c.Type())
		return false
	})
	if len(seen) != 1 || seen[0] != WrapETH {
		t.Errorf("Expected iteration to stop after WRAP_ETH, got %v", seen)
	}
}

func TestPlanEncodesPlaceholders(t *testing.T) {
	p := NewPlanner()
	p.Add(MustCall(WrapETH, AddressThis, big.NewInt(10)))
	out := p.Add(swapCall(BalanceOf(testWETH)))
	p.Add(MustCall(Transfer, testUSDC, MsgSender, out).AllowRevert())

	plan, err := p.Plan()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if plan.Len() != 3 {
		t.Fatalf("Expected 3 instructions, got %d", plan.Len())
	}
	if !bytes.Equal(plan.Commands, []byte{0x0b, 0x08, 0x85}) {
		t.Errorf("Unexpected command bytes %x", plan.Commands)
	}

	balance := BalanceWord(testWETH)
	if !bytes.Equal(plan.Inputs[1][32:64], balance.Bytes()) {
		t.Errorf("Expected balance placeholder as amountIn, got %x", plan.Inputs[1][32:64])
	}
	pass := PassThroughWord(1)
	if !bytes.Equal(plan.Inputs[2][64:96], pass.Bytes()) {
		t.Errorf("Expected pass-through placeholder as value, got %x", plan.Inputs[2][64:96])
	}

	ins, err := plan.Instructions()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !ins[2].AllowRevert || ins[2].Type != Transfer {
		t.Errorf("Unexpected instruction %+v", ins[2])
	}
}

func TestPlanReturnValueVisibility(t *testing.T) {
	t.Run("value from another planner", func(t *testing.T) {
		other := NewPlanner()
		rv := other.Add(swapCall(big.NewInt(1)))

		p := NewPlanner()
		p.Add(MustCall(Sweep, testUSDC, MsgSender, rv))
		_, err := p.Plan()
		if !errors.Is(err, ErrReturnValueNotVisible) {
			t.Fatalf("Expected ErrReturnValueNotVisible, got %v", err)
		}
		var planErr *PlanError
		if !errors.As(err, &planErr) || planErr.CommandIndex != 0 {
			t.Errorf("Expected PlanError at command 0, got %v", err)
		}
	})

	t.Run("value from a sub-plan", func(t *testing.T) {
		sub := NewPlanner()
		rv := sub.Add(swapCall(big.NewInt(1)))

		p := NewPlanner()
		if err := p.AddSubPlan(sub, false); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		p.Add(MustCall(Sweep, testUSDC, MsgSender, rv))
		if _, err := p.Plan(); !errors.Is(err, ErrReturnValueNotVisible) {
			t.Errorf("Expected ErrReturnValueNotVisible, got %v", err)
		}
	})
}

func TestPlanTooManyCommands(t *testing.T) {
	p := NewPlanner()
	for i := 0; i < 3; i++ {
		p.Add(MustCall(WrapETH, AddressThis, big.NewInt(1)))
	}
	if _, err := p.Plan(WithMaxCommands(2)); !errors.Is(err, ErrTooManyCommands) {
		t.Errorf("Expected ErrTooManyCommands, got %v", err)
	}
	if _, err := p.Plan(WithMaxCommands(3)); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestAddSubPlan(t *testing.T) {
	t.Run("encodes nested stream", func(t *testing.T) {
		sub := NewPlanner()
		sub.Add(MustCall(WrapETH, AddressThis, big.NewInt(1)))
		sub.Add(MustCall(Sweep, testWETH, MsgSender, big.NewInt(0)).AllowRevert())

		p := NewPlanner()
		if err := p.AddSubPlan(sub, true); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if !p.CommandAt(0).AllowsRevert() || p.CommandAt(0).SubPlan() != sub {
			t.Error("Sub-plan command mismatch")
		}

		plan, err := p.Plan()
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if plan.Commands[0] != 0xa1 {
			t.Errorf("Expected 0xa1, got 0x%02x", plan.Commands[0])
		}

		var args subPlanArgs
		if err := decodeArgs(ExecuteSubPlan, plan.Inputs[0], &args); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if !bytes.Equal(args.Commands, []byte{0x0b, 0x84}) || len(args.Inputs) != 2 {
			t.Errorf("Unexpected nested stream %x (%d inputs)", args.Commands, len(args.Inputs))
		}
	})

	t.Run("returning", func(t *testing.T) {
		sub := NewPlanner()
		sub.Add(swapCall(big.NewInt(1)))

		p := NewPlanner()
		rv, err := p.AddSubPlanReturning(sub, false)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if rv == nil || p.CommandAt(0).Type() != ExecuteSubPlanReturning {
			t.Fatal("Expected a returning sub-plan")
		}
		p.Add(MustCall(Sweep, testUSDC, MsgSender, rv))
		plan, err := p.Plan()
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if plan.Commands[0] != byte(ExecuteSubPlanReturning) {
			t.Errorf("Expected 0x22, got 0x%02x", plan.Commands[0])
		}
	})

	t.Run("returning needs a producer", func(t *testing.T) {
		sub := NewPlanner()
		sub.Add(MustCall(WrapETH, AddressThis, big.NewInt(1)))
		_, err := NewPlanner().AddSubPlanReturning(sub, false)
		if !errors.Is(err, ErrNoReturnValue) {
			t.Errorf("Expected ErrNoReturnValue, got %v", err)
		}
	})

	t.Run("nil", func(t *testing.T) {
		if err := NewPlanner().AddSubPlan(nil, false); !errors.Is(err, ErrInvalidSubplan) {
			t.Errorf("Expected ErrInvalidSubplan, got %v", err)
		}
	})

	t.Run("self", func(t *testing.T) {
		p := NewPlanner()
		if err := p.AddSubPlan(p, false); !errors.Is(err, ErrCyclicPlanner) {
			t.Errorf("Expected ErrCyclicPlanner, got %v", err)
		}
	})

	t.Run("sub-plan inside sub-plan", func(t *testing.T) {
		inner := NewPlanner()
		inner.Add(MustCall(WrapETH, AddressThis, big.NewInt(1)))
		middle := NewPlanner()
		if err := middle.AddSubPlan(inner, false); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if err := NewPlanner().AddSubPlan(middle, false); !errors.Is(err, ErrNestedSubPlan) {
			t.Errorf("Expected ErrNestedSubPlan, got %v", err)
		}
	})

	t.Run("adding to a sub-plan", func(t *testing.T) {
		sub := NewPlanner()
		if err := NewPlanner().AddSubPlan(sub, false); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if err := sub.AddSubPlan(NewPlanner(), false); !errors.Is(err, ErrNestedSubPlan) {
			t.Errorf("Expected ErrNestedSubPlan, got %v", err)
		}
	})
}
