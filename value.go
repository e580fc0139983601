package router

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Placeholder word layout: ten 0xff bytes, a kind byte, a zero byte, then the
// payload in the remaining twenty bytes.
const (
	placeholderPrefixLen = 10

	// PlaceholderPassThrough marks a word replaced by an earlier output.
	PlaceholderPassThrough byte = 0x01

	// PlaceholderBalance marks a word replaced by the router's balance.
	PlaceholderBalance byte = 0x02

	// MaxPassThroughIndex is the largest instruction index a pass-through
	// placeholder can name.
	MaxPassThroughIndex = 1<<16 - 1
)

var uint256Type = mustType("uint256")

// PassThroughWord returns the placeholder for the output of instruction
// index.
func PassThroughWord(index uint16) common.Hash {
	w := placeholderHeader(PlaceholderPassThrough)
	w[30] = byte(index >> 8)
	w[31] = byte(index)
	return w
}

// BalanceWord returns the placeholder for the router's balance of token.
// The zero address means native currency.
func BalanceWord(token common.Address) common.Hash {
	w := placeholderHeader(PlaceholderBalance)
	copy(w[12:], token.Bytes())
	return w
}

func placeholderHeader(kind byte) common.Hash {
	var w common.Hash
	for i := 0; i < placeholderPrefixLen; i++ {
		w[i] = 0xff
	}
	w[placeholderPrefixLen] = kind
	return w
}

// parsePlaceholder classifies a 32-byte word. For pass-through words index is
// set; for balance words token is set.
func parsePlaceholder(word []byte) (kind byte, index int, token common.Address, ok bool) {
	if len(word) != 32 {
		return 0, 0, common.Address{}, false
	}
	for i := 0; i < placeholderPrefixLen; i++ {
		if word[i] != 0xff {
			return 0, 0, common.Address{}, false
		}
	}
	if word[11] != 0 {
		return 0, 0, common.Address{}, false
	}
	switch word[placeholderPrefixLen] {
	case PlaceholderPassThrough:
		for _, b := range word[12:30] {
			if b != 0 {
				return 0, 0, common.Address{}, false
			}
		}
		return PlaceholderPassThrough, int(word[30])<<8 | int(word[31]), common.Address{}, true
	case PlaceholderBalance:
		return PlaceholderBalance, 0, common.BytesToAddress(word[12:]), true
	default:
		return 0, 0, common.Address{}, false
	}
}

// Value represents any value that can be used as a command argument.
// This is a sealed interface - only types within this package can implement it.
type Value interface {
	isValue()

	// Type returns the ABI type of this value.
	Type() abi.Type
}

// LiteralValue represents a constant value known at planning time.
type LiteralValue struct {
	abiType abi.Type
	value   any
}

func (v *LiteralValue) isValue() {}

// Type returns the ABI type of this literal.
func (v *LiteralValue) Type() abi.Type {
	return v.abiType
}

// Value returns the Go value that is packed for this literal.
func (v *LiteralValue) Value() any {
	return v.value
}

// ReturnValue represents the output of a previously added command. It is
// encoded as a pass-through placeholder.
type ReturnValue struct {
	command *Command
}

func (v *ReturnValue) isValue() {}

// Type returns uint256; every produced value is a single amount.
func (v *ReturnValue) Type() abi.Type {
	return uint256Type
}

// Command returns the command that produces this return value.
func (v *ReturnValue) Command() *Command {
	return v.command
}

// BalanceValue is the router's balance of a token at the moment the owning
// command runs.
type BalanceValue struct {
	token common.Address
}

func (v *BalanceValue) isValue() {}

// Type returns uint256.
func (v *BalanceValue) Type() abi.Type {
	return uint256Type
}

// Token returns the token whose balance is read.
func (v *BalanceValue) Token() common.Address {
	return v.token
}

// Word returns the encoded placeholder.
func (v *BalanceValue) Word() common.Hash {
	return BalanceWord(v.token)
}

// BalanceOf returns a placeholder for the router's balance of token. Use ETH
// for native currency.
func BalanceOf(token common.Address) *BalanceValue {
	return &BalanceValue{token: token}
}

// NewLiteral creates a literal value from a Go value.
// Supported types:
//   - *big.Int, int, int64, uint64, uint32 (for uintN/intN)
//   - common.Address, []common.Address (for address, address[])
//   - []byte, [][]byte (for bytes, bytes[])
//   - []*big.Int (for uintN[])
//   - bool (for bool)
func NewLiteral(abiType abi.Type, value any) (*LiteralValue, error) {
	converted := convertToABIType(value, abiType)
	if err := checkRange(abiType, converted); err != nil {
		return nil, &EncodingError{Value: value, Err: err}
	}
	if _, err := (abi.Arguments{{Type: abiType}}).Pack(converted); err != nil {
		return nil, &EncodingError{Value: value, Err: err}
	}
	return &LiteralValue{abiType: abiType, value: converted}, nil
}

// MustLiteral is like NewLiteral but panics on error.
// Use only with compile-time constant values.
func MustLiteral(abiType abi.Type, value any) *LiteralValue {
	v, err := NewLiteral(abiType, value)
	if err != nil {
		panic(err)
	}
	return v
}

// NewLiteralFromType creates a literal using an ABI type string.
// Example types: "uint256", "address", "address[]", "bytes", "bool"
func NewLiteralFromType(typeStr string, value any) (*LiteralValue, error) {
	abiType, err := abi.NewType(typeStr, "", nil)
	if err != nil {
		return nil, &EncodingError{Value: value, Err: err}
	}
	return NewLiteral(abiType, value)
}

// MustLiteralFromType is like NewLiteralFromType but panics on error.
func MustLiteralFromType(typeStr string, value any) *LiteralValue {
	v, err := NewLiteralFromType(typeStr, value)
	if err != nil {
		panic(err)
	}
	return v
}

// convertToABIType widens Go integers to *big.Int for integer types that the
// ABI packer represents as big integers.
func convertToABIType(value any, abiType abi.Type) any {
	if abiType.T != abi.UintTy && abiType.T != abi.IntTy {
		return value
	}
	switch v := value.(type) {
	case int:
		return big.NewInt(int64(v))
	case int64:
		return big.NewInt(v)
	case uint64:
		return new(big.Int).SetUint64(v)
	case int32:
		return big.NewInt(int64(v))
	case uint32:
		return new(big.Int).SetUint64(uint64(v))
	default:
		return v
	}
}

// Uint256 creates a uint256 literal from a *big.Int.
func Uint256(v *big.Int) *LiteralValue {
	return MustLiteralFromType("uint256", v)
}

// Address creates an address literal from a common.Address.
func Address(v common.Address) *LiteralValue {
	return MustLiteralFromType("address", v)
}

// Bool creates a bool literal.
func Bool(v bool) *LiteralValue {
	return MustLiteralFromType("bool", v)
}

// Bytes creates a bytes literal.
func Bytes(v []byte) *LiteralValue {
	return MustLiteralFromType("bytes", v)
}

// toValue converts any value to a Value, creating a LiteralValue if needed.
func toValue(v any, expectedType abi.Type) (Value, error) {
	if val, ok := v.(Value); ok {
		if val.Type().String() != expectedType.String() {
			return nil, &TypeMismatchError{
				Expected: expectedType.String(),
				Got:      val.Type().String(),
			}
		}
		return val, nil
	}
	return NewLiteral(expectedType, v)
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}
