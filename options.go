package router

import (
	"github.com/branched-services/go-router/amm"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithWETH sets the wrapped native token used by WRAP_ETH and UNWRAP_WETH.
func WithWETH(weth common.Address) Option {
	return func(r *Router) {
		r.weth = weth
	}
}

// WithPermit2 sets the delegated-allowance verifier.
func WithPermit2(p AllowanceTransfer) Option {
	return func(r *Router) {
		r.permit2 = p
	}
}

// WithV2 sets the factory and init code hash of V2 pairs.
func WithV2(factory common.Address, initCodeHash common.Hash) Option {
	return func(r *Router) {
		r.v2 = &amm.V2Router{Factory: factory, InitCodeHash: initCodeHash}
	}
}

// WithV3 sets the factory and init code hash of V3 pools.
func WithV3(factory common.Address, initCodeHash common.Hash) Option {
	return func(r *Router) {
		r.v3 = &amm.V3Router{Factory: factory, InitCodeHash: initCodeHash}
	}
}

// WithMarketplace routes a marketplace command type to m.
func WithMarketplace(t CommandType, m Marketplace) Option {
	return func(r *Router) {
		r.markets[t] = m
	}
}

// WithValueProducers replaces the set of command types whose output is
// recorded for pass-through placeholders. By default the swaps and
// EXECUTE_SUB_PLAN_RETURNING produce values.
func WithValueProducers(types ...CommandType) Option {
	return func(r *Router) {
		r.producers = make(map[CommandType]bool, len(types))
		for _, t := range types {
			r.producers[t] = true
		}
	}
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// PlanOption configures the Plan() operation.
type PlanOption func(*planConfig)

// planConfig holds configuration for the Plan() method.
type planConfig struct {
	maxCommands int
}

// defaultPlanConfig returns the default plan configuration.
func defaultPlanConfig() *planConfig {
	return &planConfig{
		maxCommands: 256,
	}
}

// WithMaxCommands sets a maximum command limit for the plan.
// Default is 256 commands; the limit cannot exceed the pass-through index
// range.
func WithMaxCommands(max int) PlanOption {
	return func(c *planConfig) {
		if max > MaxPassThroughIndex+1 {
			max = MaxPassThroughIndex + 1
		}
		c.maxCommands = max
	}
}
