package router

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Instruction is one decoded entry of a command stream.
type Instruction struct {
	Type        CommandType
	AllowRevert bool
	Input       []byte
}

// Byte returns the command byte for the instruction.
func (i Instruction) Byte() byte {
	return CommandByte(i.Type, i.AllowRevert)
}

// CommandByte packs a command type and revert policy into one byte.
func CommandByte(t CommandType, allowRevert bool) byte {
	b := byte(t) & CommandTypeMask
	if allowRevert {
		b |= FlagAllowRevert
	}
	return b
}

// ParseCommandByte splits a command byte into its type and revert policy.
// Bits outside the type mask and the allow-revert flag are ignored.
func ParseCommandByte(b byte) (CommandType, bool) {
	return CommandType(b & CommandTypeMask), b&FlagAllowRevert != 0
}

// DecodeCommands pairs each command byte with its input. Command types are
// not validated here; an unknown type fails when it is dispatched.
func DecodeCommands(commands []byte, inputs [][]byte) ([]Instruction, error) {
	if len(commands) != len(inputs) {
		return nil, ErrLengthMismatch
	}
	out := make([]Instruction, len(commands))
	for i, b := range commands {
		t, allowRevert := ParseCommandByte(b)
		out[i] = Instruction{Type: t, AllowRevert: allowRevert, Input: inputs[i]}
	}
	return out, nil
}

// EncodeCommands is the inverse of DecodeCommands.
func EncodeCommands(instructions []Instruction) (commands []byte, inputs [][]byte) {
	commands = make([]byte, len(instructions))
	inputs = make([][]byte, len(instructions))
	for i, ins := range instructions {
		commands[i] = ins.Byte()
		inputs[i] = ins.Input
	}
	return commands, inputs
}

// DecodeInput unpacks an instruction input against the command's schema.
// The values are returned in schema order.
func DecodeInput(t CommandType, input []byte) ([]any, error) {
	args, ok := t.Arguments()
	if !ok {
		return nil, fmt.Errorf("%w: 0x%02x", ErrInvalidCommandType, uint8(t))
	}
	values, err := args.Unpack(input)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidInput, t, err)
	}
	return values, nil
}

// decodeArgs unpacks input into v, a pointer to a struct whose fields carry
// abi tags matching the command's argument names.
func decodeArgs(t CommandType, input []byte, v any) error {
	values, err := DecodeInput(t, input)
	if err != nil {
		return err
	}
	args, _ := t.Arguments()
	for i, arg := range args {
		if err := checkRange(arg.Type, values[i]); err != nil {
			return fmt.Errorf("%w: %s: %s: %v", ErrInvalidInput, t, arg.Name, err)
		}
	}
	if err := args.Copy(v, values); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidInput, t, err)
	}
	return nil
}

// checkRange rejects integers that do not fit their ABI width. The abi
// package reads uintN/intN words wider than 64 bits into *big.Int without
// bounding them.
func checkRange(typ abi.Type, v any) error {
	switch v := v.(type) {
	case *big.Int:
		if !fitsInt(typ, v) {
			return fmt.Errorf("%s out of range for %s", v, typ)
		}
	case []*big.Int:
		if typ.Elem == nil {
			return nil
		}
		for _, e := range v {
			if !fitsInt(*typ.Elem, e) {
				return fmt.Errorf("%s out of range for %s", e, typ.Elem)
			}
		}
	}
	return nil
}

func fitsInt(typ abi.Type, v *big.Int) bool {
	switch typ.T {
	case abi.UintTy:
		return v.Sign() >= 0 && v.BitLen() <= typ.Size
	case abi.IntTy:
		if v.Sign() >= 0 {
			return v.BitLen() < typ.Size
		}
		// smallest value is -2^(size-1)
		mag := new(big.Int).Neg(v)
		return mag.Sub(mag, big.NewInt(1)).BitLen() < typ.Size
	}
	return true
}

// EncodeInput packs values against the command's schema.
func EncodeInput(t CommandType, values ...any) ([]byte, error) {
	args, ok := t.Arguments()
	if !ok {
		return nil, fmt.Errorf("%w: 0x%02x", ErrInvalidCommandType, uint8(t))
	}
	data, err := args.Pack(values...)
	if err != nil {
		return nil, &EncodingError{Value: values, Err: err}
	}
	return data, nil
}
