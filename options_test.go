package router

import (
	"testing"

	"github.com/branched-services/go-router/market"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

func TestDefaultPlanConfig(t *testing.T) {
	config := defaultPlanConfig()
	if config.maxCommands != 256 {
		t.Errorf("Expected maxCommands to be 256, got %d", config.maxCommands)
	}
}

func TestWithMaxCommands(t *testing.T) {
	t.Run("sets limit", func(t *testing.T) {
		config := defaultPlanConfig()
		WithMaxCommands(10)(config)
		if config.maxCommands != 10 {
			t.Errorf("Expected 10, got %d", config.maxCommands)
		}
	})

	t.Run("clamps to pass-through range", func(t *testing.T) {
		config := defaultPlanConfig()
		WithMaxCommands(1 << 20)(config)
		if config.maxCommands != MaxPassThroughIndex+1 {
			t.Errorf("Expected %d, got %d", MaxPassThroughIndex+1, config.maxCommands)
		}
	})
}

func TestRouterOptions(t *testing.T) {
	addr := common.HexToAddress("0x3fC91A3afd70395Cd496C647d5a6CC9D4B2b7FAD")

	t.Run("defaults", func(t *testing.T) {
		r := New(addr)
		if r.Address() != addr {
			t.Errorf("Expected %s, got %s", addr.Hex(), r.Address().Hex())
		}
		if r.logger == nil {
			t.Error("Expected a no-op logger")
		}
		if r.v2 != nil || r.v3 != nil || r.permit2 != nil {
			t.Error("Expected no collaborators")
		}
		for _, code := range []CommandType{V2SwapExactIn, V2SwapExactOut, V3SwapExactIn, V3SwapExactOut, ExecuteSubPlanReturning} {
			if !r.producers[code] {
				t.Errorf("Expected %s to produce a value", code)
			}
		}
		if r.producers[WrapETH] {
			t.Error("WRAP_ETH should not produce a value")
		}
	})

	t.Run("nil logger ignored", func(t *testing.T) {
		r := New(addr, WithLogger(nil))
		if r.logger == nil {
			t.Error("Expected the default logger to remain")
		}
	})

	t.Run("collaborators", func(t *testing.T) {
		weth := common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
		factory := common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f")
		punks := market.NewPunks(common.HexToAddress("0xb47e3cd837dDF8e4c57F05d70Ab865de6e193BBB"))

		r := New(addr,
			WithLogger(zap.NewExample()),
			WithWETH(weth),
			WithV2(factory, common.Hash{1}),
			WithV3(factory, common.Hash{2}),
			WithMarketplace(CryptoPunks, punks),
		)
		if r.weth != weth {
			t.Error("WETH not set")
		}
		if r.v2 == nil || r.v2.Factory != factory || r.v2.InitCodeHash != (common.Hash{1}) {
			t.Error("V2 not set")
		}
		if r.v3 == nil || r.v3.InitCodeHash != (common.Hash{2}) {
			t.Error("V3 not set")
		}
		if r.markets[CryptoPunks] != punks {
			t.Error("Marketplace not set")
		}
	})

	t.Run("value producers replaced", func(t *testing.T) {
		r := New(addr, WithValueProducers(Sweep))
		if !r.producers[Sweep] || r.producers[V2SwapExactIn] {
			t.Errorf("Unexpected producers %v", r.producers)
		}
	})
}
