package router

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/branched-services/go-router/ledger"
	"github.com/branched-services/go-router/market"
	"github.com/ethereum/go-ethereum/common"
)

var (
	_ Marketplace = (*market.Listing)(nil)
	_ Marketplace = (*market.Punks)(nil)
	_ Marketplace = marketFunc{}
)

func TestMarketplaceReceivesPayment(t *testing.T) {
	nftx := common.HexToAddress("0x941A6d105802CCCaa06DE58a13a6F49ebDCD481C")
	var (
		gotFrom  common.Address
		gotValue *big.Int
		gotData  []byte
		held     *big.Int
	)
	m := marketFunc{addr: nftx, fn: func(ctx context.Context, st *ledger.State, from common.Address, value *big.Int, data []byte) ([]byte, error) {
		gotFrom, gotValue, gotData = from, value, data
		held = st.NativeBalance(nftx)
		return nil, nil
	}}
	e := newEnv(t, WithMarketplace(NFTX, m))

	p := NewPlanner()
	p.Add(MustCall(NFTX, big.NewInt(25), []byte{0xca, 0xfe}))
	if _, err := e.run(t, p, 25); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if gotFrom != routerAddr {
		t.Errorf("Expected the router as caller, got %s", gotFrom.Hex())
	}
	if gotValue.Int64() != 25 || held.Int64() != 25 {
		t.Errorf("Expected 25 paid before the call, got value %s held %s", gotValue, held)
	}
	if len(gotData) != 2 || gotData[0] != 0xca {
		t.Errorf("Unexpected data %x", gotData)
	}
}

func TestMarketplaceFailureRefundsPayment(t *testing.T) {
	sudoswap := common.HexToAddress("0x2B2e8cDA09bBA9660dCA5cB6233787738Ad68329")
	boom := errors.New("sold out")
	m := marketFunc{addr: sudoswap, fn: func(ctx context.Context, st *ledger.State, from common.Address, value *big.Int, data []byte) ([]byte, error) {
		return nil, boom
	}}
	e := newEnv(t, WithMarketplace(Sudoswap, m))

	p := NewPlanner()
	p.Add(MustCall(Sudoswap, big.NewInt(25), []byte{}).AllowRevert())
	res, err := e.run(t, p, 25)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if res.Outcomes[0].Success {
		t.Error("Expected the purchase to fail")
	}
	if got := DecodeRevertReason(res.Outcomes[0].Reason); got != "sold out" {
		t.Errorf("Expected reason %q, got %q", "sold out", got)
	}
	if e.st.NativeBalance(sudoswap).Sign() != 0 {
		t.Error("Payment to the failed marketplace must be rolled back")
	}
	if res.Refund.Int64() != 25 || e.st.NativeBalance(user).Int64() != 1_000 {
		t.Errorf("Expected full refund, got %s", res.Refund)
	}
}
