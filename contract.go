package router

import (
	"context"
	"math/big"

	"github.com/branched-services/go-router/ledger"
	"github.com/branched-services/go-router/permit2"
	"github.com/ethereum/go-ethereum/common"
)

// Marketplace is an external contract the router pays and calls. Before Call
// the router has already moved value native currency to Address(); the
// marketplace settles the purchase and refunds any excess to from. An error
// fails the instruction and rolls back the payment.
type Marketplace interface {
	Address() common.Address
	Call(ctx context.Context, st *ledger.State, from common.Address, value *big.Int, data []byte) ([]byte, error)
}

// AllowanceTransfer is the delegated-allowance verifier behind the PERMIT2
// commands. permit2.Permit2 implements it.
type AllowanceTransfer interface {
	Address() common.Address
	Permit(ctx context.Context, st *ledger.State, owner common.Address, permit permit2.PermitSingle, signature []byte) error
	TransferFrom(ctx context.Context, st *ledger.State, spender, from, to, token common.Address, amount *big.Int) error
}

var _ AllowanceTransfer = (*permit2.Permit2)(nil)
