package router

import (
	"context"
	"math/big"
	"testing"

	"github.com/branched-services/go-router/amm"
	"github.com/branched-services/go-router/ledger"
	"github.com/branched-services/go-router/permit2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var (
	routerAddr  = common.HexToAddress("0x3fC91A3afd70395Cd496C647d5a6CC9D4B2b7FAD")
	permit2Addr = common.HexToAddress("0x000000000022D473030F116dDEE9F6B43aC78BA3")
	user        = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	other       = common.HexToAddress("0x00000000000000000000000000000000000000bb")

	weth = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdc = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	dai  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")

	v2Factory  = common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f")
	v2InitHash = common.HexToHash("0x96e8ac4277198ff8b6f785478aa9a39f403cb768dd02cbee326c3e7da348845f")
	v3Factory  = common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984")
	v3InitHash = common.HexToHash("0xe34f199b19b2b4f47f68442619d555527d244f78a3297ea89325f843f87b8b54")
)

// env is a router wired to a ledger holding two V2 pairs, one V3 pool and a
// funded user.
type env struct {
	st      *ledger.State
	r       *Router
	permit2 *permit2.Permit2
	logs    *observer.ObservedLogs
	v2      amm.V2Router
	v3      amm.V3Router
}

func newEnv(t *testing.T, opts ...Option) *env {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	p2 := permit2.New(permit2Addr, big.NewInt(1))

	base := []Option{
		WithLogger(zap.New(core)),
		WithWETH(weth),
		WithPermit2(p2),
		WithV2(v2Factory, v2InitHash),
		WithV3(v3Factory, v3InitHash),
	}
	e := &env{
		st:      ledger.New(1_000),
		r:       New(routerAddr, append(base, opts...)...),
		permit2: p2,
		logs:    logs,
		v2:      amm.V2Router{Factory: v2Factory, InitCodeHash: v2InitHash},
		v3:      amm.V3Router{Factory: v3Factory, InitCodeHash: v3InitHash},
	}

	wethUSDC, err := e.v2.Pair(weth, usdc)
	require.NoError(t, err)
	require.NoError(t, wethUSDC.AddLiquidity(e.st, weth, big.NewInt(1_000_000), big.NewInt(2_000_000)))
	usdcDAI, err := e.v2.Pair(usdc, dai)
	require.NoError(t, err)
	require.NoError(t, usdcDAI.AddLiquidity(e.st, usdc, big.NewInt(5_000_000), big.NewInt(5_000_000)))

	for _, fee := range []uint32{500, 3000} {
		pool, err := e.v3.Pool(weth, usdc, fee)
		require.NoError(t, err)
		require.NoError(t, pool.AddLiquidity(e.st, weth, big.NewInt(1_000_000), big.NewInt(1_000_000)))
	}
	daiPool, err := e.v3.Pool(usdc, dai, 500)
	require.NoError(t, err)
	require.NoError(t, daiPool.AddLiquidity(e.st, usdc, big.NewInt(1_000_000), big.NewInt(1_000_000)))

	require.NoError(t, e.st.AddNative(user, big.NewInt(1_000)))
	require.NoError(t, e.st.Mint(usdc, user, big.NewInt(10_000)))
	return e
}

func (e *env) pair(t *testing.T, a, b common.Address) amm.V2Pair {
	t.Helper()
	p, err := e.v2.Pair(a, b)
	require.NoError(t, err)
	return p
}

func (e *env) pool(t *testing.T, a, b common.Address, fee uint32) amm.V3Pool {
	t.Helper()
	p, err := e.v3.Pool(a, b, fee)
	require.NoError(t, err)
	return p
}

// run plans p and executes it from user with value attached.
func (e *env) run(t *testing.T, p *Planner, value int64) (*Result, error) {
	t.Helper()
	plan, err := p.Plan()
	require.NoError(t, err)
	return e.exec(context.Background(), plan.Commands, plan.Inputs, value)
}

func (e *env) exec(ctx context.Context, commands []byte, inputs [][]byte, value int64) (*Result, error) {
	return e.r.Execute(ctx, e.st, Invocation{
		Sender:   user,
		Value:    big.NewInt(value),
		Commands: commands,
		Inputs:   inputs,
	})
}

func mustInput(t *testing.T, code CommandType, values ...any) []byte {
	t.Helper()
	in, err := EncodeInput(code, values...)
	require.NoError(t, err)
	return in
}

func amountOut(t *testing.T, in, reserveIn, reserveOut int64) *big.Int {
	t.Helper()
	out, err := amm.GetAmountOut(big.NewInt(in), big.NewInt(reserveIn), big.NewInt(reserveOut))
	require.NoError(t, err)
	return out
}

// marketFunc adapts a function to Marketplace.
type marketFunc struct {
	addr common.Address
	fn   func(ctx context.Context, st *ledger.State, from common.Address, value *big.Int, data []byte) ([]byte, error)
}

func (m marketFunc) Address() common.Address { return m.addr }

func (m marketFunc) Call(ctx context.Context, st *ledger.State, from common.Address, value *big.Int, data []byte) ([]byte, error) {
	return m.fn(ctx, st, from, value, data)
}
