package router

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// CommandType identifies the operation an instruction performs. It is the low
// six bits of a command byte.
type CommandType uint8

// Command types.
const (
	V3SwapExactIn            CommandType = 0x00
	V3SwapExactOut           CommandType = 0x01
	Permit2TransferFrom      CommandType = 0x02
	Permit2TransferFromBatch CommandType = 0x03
	Sweep                    CommandType = 0x04
	Transfer                 CommandType = 0x05
	PayPortion               CommandType = 0x06
	V2SwapExactIn            CommandType = 0x08
	V2SwapExactOut           CommandType = 0x09
	Permit2Permit            CommandType = 0x0a
	WrapETH                  CommandType = 0x0b
	UnwrapWETH               CommandType = 0x0c
	BalanceCheckERC20        CommandType = 0x0e
	SeaportV1_5              CommandType = 0x10
	LooksRareV2              CommandType = 0x11
	NFTX                     CommandType = 0x12
	CryptoPunks              CommandType = 0x13
	OwnerCheck721            CommandType = 0x15
	OwnerCheck1155           CommandType = 0x16
	SweepERC721              CommandType = 0x17
	X2Y2_721                 CommandType = 0x18
	Sudoswap                 CommandType = 0x19
	NFT20                    CommandType = 0x1a
	X2Y2_1155                CommandType = 0x1b
	Foundation               CommandType = 0x1c
	SweepERC1155             CommandType = 0x1d
	ElementMarket            CommandType = 0x1e
	SeaportV1_4              CommandType = 0x20
	ExecuteSubPlan           CommandType = 0x21
	ExecuteSubPlanReturning  CommandType = 0x22
)

// Command byte layout.
const (
	// FlagAllowRevert marks an instruction whose failure is tolerated.
	FlagAllowRevert byte = 0x80

	// CommandTypeMask extracts the command type from a command byte.
	CommandTypeMask byte = 0x3f
)

// Address and amount aliases understood by handlers.
var (
	// MsgSender as a recipient means the invoking account.
	MsgSender = common.BytesToAddress([]byte{1})

	// AddressThis as a recipient means the router itself.
	AddressThis = common.BytesToAddress([]byte{2})

	// ETH is the token address used for native currency.
	ETH = common.Address{}

	// ContractBalance as an amount means the router's whole balance of the
	// input token.
	ContractBalance = new(big.Int).Lsh(big.NewInt(1), 255)
)

// MaxBips is the basis-point denominator for PayPortion.
const MaxBips = 10_000

type commandSpec struct {
	name string
	args abi.Arguments
	// scan reports whether the input may carry placeholders.
	scan bool
	// produces reports whether the command yields a value by default.
	produces bool
}

var commandSpecs = map[CommandType]commandSpec{
	V3SwapExactIn: {
		name:     "V3_SWAP_EXACT_IN",
		args:     mustArgs("address recipient", "uint256 amountIn", "uint256 amountOutMin", "bytes path", "bool payerIsUser"),
		scan:     true,
		produces: true,
	},
	V3SwapExactOut: {
		name:     "V3_SWAP_EXACT_OUT",
		args:     mustArgs("address recipient", "uint256 amountOut", "uint256 amountInMax", "bytes path", "bool payerIsUser"),
		scan:     true,
		produces: true,
	},
	Permit2TransferFrom: {
		name: "PERMIT2_TRANSFER_FROM",
		args: mustArgs("address token", "address recipient", "uint160 amount"),
		scan: true,
	},
	Permit2TransferFromBatch: {
		name: "PERMIT2_TRANSFER_FROM_BATCH",
		args: mustArgs("address[] tokens", "address recipient", "uint160[] amounts"),
		scan: true,
	},
	Sweep: {
		name: "SWEEP",
		args: mustArgs("address token", "address recipient", "uint256 amountMin"),
		scan: true,
	},
	Transfer: {
		name: "TRANSFER",
		args: mustArgs("address token", "address recipient", "uint256 value"),
		scan: true,
	},
	PayPortion: {
		name: "PAY_PORTION",
		args: mustArgs("address token", "address recipient", "uint256 bips"),
		scan: true,
	},
	V2SwapExactIn: {
		name:     "V2_SWAP_EXACT_IN",
		args:     mustArgs("address recipient", "uint256 amountIn", "uint256 amountOutMin", "address[] path", "bool payerIsUser"),
		scan:     true,
		produces: true,
	},
	V2SwapExactOut: {
		name:     "V2_SWAP_EXACT_OUT",
		args:     mustArgs("address recipient", "uint256 amountOut", "uint256 amountInMax", "address[] path", "bool payerIsUser"),
		scan:     true,
		produces: true,
	},
	Permit2Permit: {
		name: "PERMIT2_PERMIT",
		args: mustArgs("address token", "uint160 amount", "uint48 expiration", "uint48 nonce", "address spender", "uint256 sigDeadline", "bytes signature"),
	},
	WrapETH: {
		name: "WRAP_ETH",
		args: mustArgs("address recipient", "uint256 amount"),
		scan: true,
	},
	UnwrapWETH: {
		name: "UNWRAP_WETH",
		args: mustArgs("address recipient", "uint256 amountMin"),
		scan: true,
	},
	BalanceCheckERC20: {
		name: "BALANCE_CHECK_ERC20",
		args: mustArgs("address owner", "address token", "uint256 minBalance"),
		scan: true,
	},
	SeaportV1_5:   marketSpec("SEAPORT_V1_5"),
	LooksRareV2:   marketSpec("LOOKS_RARE_V2"),
	NFTX:          marketSpec("NFTX"),
	Sudoswap:      marketSpec("SUDOSWAP"),
	NFT20:         marketSpec("NFT20"),
	ElementMarket: marketSpec("ELEMENT_MARKET"),
	SeaportV1_4:   marketSpec("SEAPORT_V1_4"),
	CryptoPunks: {
		name: "CRYPTOPUNKS",
		args: mustArgs("uint256 punkId", "address recipient", "uint256 value"),
	},
	OwnerCheck721: {
		name: "OWNER_CHECK_721",
		args: mustArgs("address owner", "address token", "uint256 tokenId"),
		scan: true,
	},
	OwnerCheck1155: {
		name: "OWNER_CHECK_1155",
		args: mustArgs("address owner", "address token", "uint256 tokenId", "uint256 minBalance"),
		scan: true,
	},
	SweepERC721: {
		name: "SWEEP_ERC721",
		args: mustArgs("address token", "address recipient", "uint256 tokenId"),
		scan: true,
	},
	SweepERC1155: {
		name: "SWEEP_ERC1155",
		args: mustArgs("address token", "address recipient", "uint256 tokenId", "uint256 amount"),
		scan: true,
	},
	X2Y2_721: {
		name: "X2Y2_721",
		args: mustArgs("uint256 value", "bytes data", "address recipient", "address token", "uint256 tokenId"),
	},
	X2Y2_1155: {
		name: "X2Y2_1155",
		args: mustArgs("uint256 value", "bytes data", "address recipient", "address token", "uint256 tokenId", "uint256 amount"),
	},
	Foundation: {
		name: "FOUNDATION",
		args: mustArgs("uint256 value", "bytes data", "address recipient", "address token", "uint256 tokenId"),
	},
	ExecuteSubPlan: {
		name: "EXECUTE_SUB_PLAN",
		args: mustArgs("bytes commands", "bytes[] inputs"),
	},
	ExecuteSubPlanReturning: {
		name:     "EXECUTE_SUB_PLAN_RETURNING",
		args:     mustArgs("bytes commands", "bytes[] inputs"),
		produces: true,
	},
}

func marketSpec(name string) commandSpec {
	return commandSpec{name: name, args: mustArgs("uint256 value", "bytes data")}
}

// String returns the command name, or a hex form for unknown types.
func (t CommandType) String() string {
	if spec, ok := commandSpecs[t]; ok {
		return spec.name
	}
	return fmt.Sprintf("UNKNOWN(0x%02x)", uint8(t))
}

// Valid reports whether t is a known command type.
func (t CommandType) Valid() bool {
	_, ok := commandSpecs[t]
	return ok
}

// Arguments returns the ABI schema of the command's input.
func (t CommandType) Arguments() (abi.Arguments, bool) {
	spec, ok := commandSpecs[t]
	return spec.args, ok
}

// Scanned reports whether placeholders in the command's input are resolved.
func (t CommandType) Scanned() bool {
	return commandSpecs[t].scan
}

// ProducesValue reports whether the command yields a value under the
// default router configuration.
func (t CommandType) ProducesValue() bool {
	return commandSpecs[t].produces
}

// IsSubPlan reports whether t executes a nested command stream.
func (t CommandType) IsSubPlan() bool {
	return t == ExecuteSubPlan || t == ExecuteSubPlanReturning
}

// ParseCommandType returns the command type with the given name. Names are
// matched case-insensitively.
func ParseCommandType(name string) (CommandType, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for t, spec := range commandSpecs {
		if spec.name == upper {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidCommandType, name)
}

// CommandTypes returns every known command type in code order.
func CommandTypes() []CommandType {
	types := make([]CommandType, 0, len(commandSpecs))
	for t := CommandType(0); t <= CommandType(CommandTypeMask); t++ {
		if t.Valid() {
			types = append(types, t)
		}
	}
	return types
}

func defaultProducers() map[CommandType]bool {
	producers := make(map[CommandType]bool)
	for t, spec := range commandSpecs {
		if spec.produces {
			producers[t] = true
		}
	}
	return producers
}

// mustArgs builds an argument list from "type name" pairs.
func mustArgs(fields ...string) abi.Arguments {
	args := make(abi.Arguments, len(fields))
	for i, f := range fields {
		typ, name, ok := strings.Cut(f, " ")
		if !ok {
			panic("router: malformed argument " + f)
		}
		t, err := abi.NewType(typ, "", nil)
		if err != nil {
			panic(err)
		}
		args[i] = abi.Argument{Name: name, Type: t}
	}
	return args
}
