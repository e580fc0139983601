package cli

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/branched-services/go-router"
	"github.com/branched-services/go-router/amm"
	"github.com/branched-services/go-router/ledger"
	"github.com/branched-services/go-router/permit2"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"gopkg.in/yaml.v3"
)

// ErrInvalidScenario indicates a scenario file that cannot be simulated.
var ErrInvalidScenario = errors.New("invalid scenario")

// Scenario is a simulated ledger plus one router invocation against it.
//
// Addresses anywhere in a scenario may be written as hex, as a name from
// tokens or accounts, or as ETH for native currency.
type Scenario struct {
	Params    router.Parameters `yaml:"params"`
	Timestamp uint64            `yaml:"timestamp"`
	Sender    string            `yaml:"sender"`
	Value     string            `yaml:"value"`
	Deadline  string            `yaml:"deadline"`
	Tokens    map[string]string `yaml:"tokens"`
	Accounts  []AccountSpec     `yaml:"accounts"`
	V2Pairs   []PoolSpec        `yaml:"v2_pairs"`
	V3Pools   []PoolSpec        `yaml:"v3_pools"`
	Approvals []ApprovalSpec    `yaml:"approvals"`
	NFTs      []NFTSpec         `yaml:"nfts"`
	Steps     []StepSpec        `yaml:"steps"`
}

// AccountSpec funds one account.
type AccountSpec struct {
	Name    string            `yaml:"name"`
	Address string            `yaml:"address"`
	Native  string            `yaml:"native"`
	Tokens  map[string]string `yaml:"tokens"`
}

// PoolSpec seeds a V2 pair or V3 pool. Fee is ignored for V2.
type PoolSpec struct {
	Tokens   []string `yaml:"tokens"`
	Reserves []string `yaml:"reserves"`
	Fee      uint32   `yaml:"fee"`
}

// ApprovalSpec sets a Permit2 allowance directly.
type ApprovalSpec struct {
	Owner      string `yaml:"owner"`
	Token      string `yaml:"token"`
	Spender    string `yaml:"spender"`
	Amount     string `yaml:"amount"`
	Expiration uint64 `yaml:"expiration"`
}

// NFTSpec assigns a token id to an owner. A non-empty Amount mints
// ERC1155 editions instead of setting an ERC721 owner.
type NFTSpec struct {
	Collection string `yaml:"collection"`
	ID         string `yaml:"id"`
	Owner      string `yaml:"owner"`
	Amount     string `yaml:"amount"`
}

// StepSpec is one instruction. Sub-plan commands take their instructions
// from SubPlan instead of Args.
//
// Argument syntax: decimal or 0x hex numbers, $contract_balance, $out(N)
// for the value of step N at the same level, $balance(TOKEN) for the
// router's balance when the step runs, $sender and $this for the recipient
// aliases, 0x hex for bytes, $v3path(TOKEN,FEE,TOKEN,...) for a packed V3
// path, and YAML lists for array arguments.
type StepSpec struct {
	Command     string     `yaml:"command"`
	AllowRevert bool       `yaml:"allow_revert"`
	Args        []any      `yaml:"args"`
	SubPlan     []StepSpec `yaml:"sub_plan"`
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	if err := sc.Params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	if sc.Sender == "" {
		return nil, fmt.Errorf("%w: sender is required", ErrInvalidScenario)
	}
	return &sc, nil
}

// names maps token and account names to addresses.
func (sc *Scenario) names() (map[string]common.Address, error) {
	names := map[string]common.Address{"ETH": router.ETH}
	add := func(kind, name, addr string) error {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("%w: %s %q: %q is not an address", ErrInvalidScenario, kind, name, addr)
		}
		if _, dup := names[name]; dup {
			return fmt.Errorf("%w: name %q defined twice", ErrInvalidScenario, name)
		}
		names[name] = common.HexToAddress(addr)
		return nil
	}
	for name, addr := range sc.Tokens {
		if err := add("token", name, addr); err != nil {
			return nil, err
		}
	}
	for _, acct := range sc.Accounts {
		if acct.Name == "" {
			continue
		}
		if err := add("account", acct.Name, acct.Address); err != nil {
			return nil, err
		}
	}
	return names, nil
}

// builder turns scenario text into addresses, amounts and planner calls.
type builder struct {
	names map[string]common.Address
}

func newBuilder(sc *Scenario) (*builder, error) {
	names, err := sc.names()
	if err != nil {
		return nil, err
	}
	return &builder{names: names}, nil
}

func (b *builder) address(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "$sender":
		return router.MsgSender, nil
	case "$this":
		return router.AddressThis, nil
	}
	if a, ok := b.names[s]; ok {
		return a, nil
	}
	if common.IsHexAddress(s) {
		return common.HexToAddress(s), nil
	}
	return common.Address{}, fmt.Errorf("%q is not an address or a known name", s)
}

// amount parses a plain number. Large numbers must be quoted in YAML.
func amount(s string) (*big.Int, error) {
	n, ok := math.ParseBig256(strings.TrimSpace(s))
	if !ok {
		return nil, fmt.Errorf("%q is not a 256-bit number", s)
	}
	return n, nil
}

// optionalAmount parses s, treating the empty string as zero.
func optionalAmount(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	return amount(s)
}

var (
	outRef     = regexp.MustCompile(`^\$out\((\d+)\)$`)
	balanceRef = regexp.MustCompile(`^\$balance\(([^)]+)\)$`)
	v3PathRef  = regexp.MustCompile(`^\$v3path\(([^)]+)\)$`)
)

// arg converts one YAML argument to a planner argument of type t. outs holds
// the return values of the earlier steps at the same level.
func (b *builder) arg(raw any, t abi.Type, outs []*router.ReturnValue) (any, error) {
	if t.T == abi.SliceTy {
		list, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("want a list for %s", t)
		}
		switch t.Elem.T {
		case abi.AddressTy:
			out := make([]common.Address, len(list))
			for i, item := range list {
				a, err := b.address(scalar(item))
				if err != nil {
					return nil, err
				}
				out[i] = a
			}
			return out, nil
		case abi.UintTy:
			out := make([]*big.Int, len(list))
			for i, item := range list {
				n, err := amount(scalar(item))
				if err != nil {
					return nil, err
				}
				out[i] = n
			}
			return out, nil
		default:
			return nil, fmt.Errorf("unsupported argument type %s", t)
		}
	}

	s := strings.TrimSpace(scalar(raw))
	switch t.T {
	case abi.AddressTy:
		return b.address(s)
	case abi.BoolTy:
		return strconv.ParseBool(s)
	case abi.BytesTy:
		if m := v3PathRef.FindStringSubmatch(s); m != nil {
			return b.v3Path(m[1])
		}
		if s == "" {
			return []byte{}, nil
		}
		return hexutil.Decode(s)
	case abi.UintTy:
		if s == "$contract_balance" {
			return router.ContractBalance, nil
		}
		if m := outRef.FindStringSubmatch(s); m != nil {
			n, _ := strconv.Atoi(m[1])
			if n >= len(outs) || outs[n] == nil {
				return nil, fmt.Errorf("%s: step %d has no value before this step", s, n)
			}
			return outs[n], nil
		}
		if m := balanceRef.FindStringSubmatch(s); m != nil {
			token, err := b.address(m[1])
			if err != nil {
				return nil, err
			}
			return router.BalanceOf(token), nil
		}
		return amount(s)
	default:
		return nil, fmt.Errorf("unsupported argument type %s", t)
	}
}

// v3Path packs "TOKEN,FEE,TOKEN[,FEE,TOKEN...]".
func (b *builder) v3Path(spec string) ([]byte, error) {
	parts := strings.Split(spec, ",")
	if len(parts)%2 == 0 {
		return nil, fmt.Errorf("$v3path(%s): want TOKEN,FEE,TOKEN...", spec)
	}
	var (
		tokens []common.Address
		fees   []uint32
	)
	for i, p := range parts {
		if i%2 == 1 {
			fee, err := strconv.ParseUint(strings.TrimSpace(p), 10, 24)
			if err != nil {
				return nil, fmt.Errorf("$v3path(%s): fee %q: %w", spec, p, err)
			}
			fees = append(fees, uint32(fee))
			continue
		}
		a, err := b.address(p)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, a)
	}
	path, err := amm.EncodePath(tokens, fees)
	if err != nil {
		return nil, err
	}
	return []byte(path), nil
}

func scalar(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// plan builds the scenario's steps into a planner.
func (b *builder) plan(steps []StepSpec) (*router.Planner, error) {
	p := router.NewPlanner()
	outs := make([]*router.ReturnValue, len(steps))
	for i, step := range steps {
		ret, err := b.step(p, step, outs[:i])
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		outs[i] = ret
	}
	return p, nil
}

func (b *builder) step(p *router.Planner, step StepSpec, outs []*router.ReturnValue) (*router.ReturnValue, error) {
	code, err := router.ParseCommandType(step.Command)
	if err != nil {
		return nil, err
	}

	if code.IsSubPlan() {
		sub, err := b.plan(step.SubPlan)
		if err != nil {
			return nil, err
		}
		if code == router.ExecuteSubPlanReturning {
			return p.AddSubPlanReturning(sub, step.AllowRevert)
		}
		return nil, p.AddSubPlan(sub, step.AllowRevert)
	}
	if len(step.SubPlan) > 0 {
		return nil, fmt.Errorf("%s does not take a sub_plan", code)
	}

	schema, _ := code.Arguments()
	if len(step.Args) != len(schema) {
		return nil, fmt.Errorf("%s: want %d arguments, got %d", code, len(schema), len(step.Args))
	}
	args := make([]any, len(schema))
	for i, raw := range step.Args {
		v, err := b.arg(raw, schema[i].Type, outs)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", code, schema[i].Name, err)
		}
		args[i] = v
	}
	call, err := router.NewCall(code, args...)
	if err != nil {
		return nil, err
	}
	if step.AllowRevert {
		call = call.AllowRevert()
	}
	return p.Add(call), nil
}

// seed builds the scenario's starting ledger.
func (b *builder) seed(sc *Scenario) (*ledger.State, error) {
	st := ledger.New(sc.Timestamp)

	for _, acct := range sc.Accounts {
		owner, err := b.address(acct.Address)
		if err != nil {
			return nil, fmt.Errorf("account: %w", err)
		}
		native, err := optionalAmount(acct.Native)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", acct.Address, err)
		}
		if err := st.AddNative(owner, native); err != nil {
			return nil, err
		}
		for name, value := range acct.Tokens {
			token, err := b.address(name)
			if err != nil {
				return nil, fmt.Errorf("account %s: %w", acct.Address, err)
			}
			n, err := amount(value)
			if err != nil {
				return nil, fmt.Errorf("account %s %s: %w", acct.Address, name, err)
			}
			if err := st.Mint(token, owner, n); err != nil {
				return nil, err
			}
		}
	}

	if err := b.seedPools(st, sc); err != nil {
		return nil, err
	}
	if err := b.seedApprovals(st, sc); err != nil {
		return nil, err
	}

	for _, nft := range sc.NFTs {
		collection, err := b.address(nft.Collection)
		if err != nil {
			return nil, fmt.Errorf("nft: %w", err)
		}
		owner, err := b.address(nft.Owner)
		if err != nil {
			return nil, fmt.Errorf("nft: %w", err)
		}
		id, err := amount(nft.ID)
		if err != nil {
			return nil, fmt.Errorf("nft: %w", err)
		}
		if nft.Amount == "" {
			st.SetOwner(collection, id, owner)
			continue
		}
		n, err := amount(nft.Amount)
		if err != nil {
			return nil, fmt.Errorf("nft: %w", err)
		}
		if err := st.MintEditions(collection, id, owner, n); err != nil {
			return nil, err
		}
	}
	return st, nil
}

func (b *builder) seedPools(st *ledger.State, sc *Scenario) error {
	if len(sc.V2Pairs) > 0 && sc.Params.V2Factory == "" {
		return fmt.Errorf("%w: v2_pairs need params.v2_factory", ErrInvalidScenario)
	}
	if len(sc.V3Pools) > 0 && sc.Params.V3Factory == "" {
		return fmt.Errorf("%w: v3_pools need params.v3_factory", ErrInvalidScenario)
	}
	v2 := amm.V2Router{Factory: common.HexToAddress(sc.Params.V2Factory), InitCodeHash: common.HexToHash(sc.Params.V2InitCodeHash)}
	v3 := amm.V3Router{Factory: common.HexToAddress(sc.Params.V3Factory), InitCodeHash: common.HexToHash(sc.Params.V3InitCodeHash)}

	for i, spec := range sc.V2Pairs {
		a, bb, ra, rb, err := b.reserves(spec)
		if err != nil {
			return fmt.Errorf("v2_pairs[%d]: %w", i, err)
		}
		pair, err := v2.Pair(a, bb)
		if err != nil {
			return fmt.Errorf("v2_pairs[%d]: %w", i, err)
		}
		if err := pair.AddLiquidity(st, a, ra, rb); err != nil {
			return fmt.Errorf("v2_pairs[%d]: %w", i, err)
		}
	}
	for i, spec := range sc.V3Pools {
		a, bb, ra, rb, err := b.reserves(spec)
		if err != nil {
			return fmt.Errorf("v3_pools[%d]: %w", i, err)
		}
		pool, err := v3.Pool(a, bb, spec.Fee)
		if err != nil {
			return fmt.Errorf("v3_pools[%d]: %w", i, err)
		}
		if err := pool.AddLiquidity(st, a, ra, rb); err != nil {
			return fmt.Errorf("v3_pools[%d]: %w", i, err)
		}
	}
	return nil
}

func (b *builder) reserves(spec PoolSpec) (tokenA, tokenB common.Address, reserveA, reserveB *big.Int, err error) {
	if len(spec.Tokens) != 2 || len(spec.Reserves) != 2 {
		return tokenA, tokenB, nil, nil, fmt.Errorf("want two tokens and two reserves")
	}
	if tokenA, err = b.address(spec.Tokens[0]); err != nil {
		return
	}
	if tokenB, err = b.address(spec.Tokens[1]); err != nil {
		return
	}
	if reserveA, err = amount(spec.Reserves[0]); err != nil {
		return
	}
	reserveB, err = amount(spec.Reserves[1])
	return
}

func (b *builder) seedApprovals(st *ledger.State, sc *Scenario) error {
	if len(sc.Approvals) == 0 {
		return nil
	}
	if sc.Params.Permit2 == "" {
		return fmt.Errorf("%w: approvals need params.permit2", ErrInvalidScenario)
	}
	p2 := permit2.New(common.HexToAddress(sc.Params.Permit2), new(big.Int).SetUint64(sc.Params.ChainID))
	for i, a := range sc.Approvals {
		owner, err := b.address(a.Owner)
		if err != nil {
			return fmt.Errorf("approvals[%d]: %w", i, err)
		}
		token, err := b.address(a.Token)
		if err != nil {
			return fmt.Errorf("approvals[%d]: %w", i, err)
		}
		spender := sc.Params.RouterAddress()
		if a.Spender != "" {
			if spender, err = b.address(a.Spender); err != nil {
				return fmt.Errorf("approvals[%d]: %w", i, err)
			}
		}
		n, err := amount(a.Amount)
		if err != nil {
			return fmt.Errorf("approvals[%d]: %w", i, err)
		}
		if err := p2.Approve(st, owner, token, spender, n, a.Expiration); err != nil {
			return fmt.Errorf("approvals[%d]: %w", i, err)
		}
	}
	return nil
}
