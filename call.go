package router

import (
	"fmt"
)

// Call is a pending command that can be added to a Planner.
// Call is immutable - modifier methods return new instances.
type Call struct {
	code        CommandType
	args        []Value
	allowRevert bool
}

// NewCall creates a Call for code. Arguments can be Go values (converted
// to LiteralValue) or Value types, and are checked against the command's
// argument schema. Sub-plan commands are built with Planner.AddSubPlan.
func NewCall(code CommandType, rawArgs ...any) (*Call, error) {
	schema, ok := code.Arguments()
	if !ok {
		return nil, fmt.Errorf("%w: 0x%02x", ErrInvalidCommandType, uint8(code))
	}
	if code.IsSubPlan() {
		return nil, ErrInvalidSubplan
	}
	if len(rawArgs) != len(schema) {
		return nil, &ArgumentError{
			Command: code,
			Index:   len(rawArgs),
			Err:     fmt.Errorf("want %d arguments, got %d", len(schema), len(rawArgs)),
		}
	}

	args := make([]Value, len(rawArgs))
	for i, arg := range rawArgs {
		val, err := toValue(arg, schema[i].Type)
		if err != nil {
			return nil, &ArgumentError{Command: code, Index: i, Err: err}
		}
		if _, literal := val.(*LiteralValue); !literal && !code.Scanned() {
			return nil, &ArgumentError{Command: code, Index: i, Err: ErrUnscannedPlaceholder}
		}
		args[i] = val
	}

	return &Call{code: code, args: args}, nil
}

// MustCall is like NewCall but panics on error.
func MustCall(code CommandType, args ...any) *Call {
	c, err := NewCall(code, args...)
	if err != nil {
		panic(err)
	}
	return c
}

// Code returns the command type.
func (c *Call) Code() CommandType {
	return c.code
}

// Args returns the arguments for this call.
func (c *Call) Args() []Value {
	return c.args
}

// AllowsRevert reports whether the command may fail without aborting.
func (c *Call) AllowsRevert() bool {
	return c.allowRevert
}

// Byte returns the encoded command byte.
func (c *Call) Byte() byte {
	return CommandByte(c.code, c.allowRevert)
}

// HasReturnValue returns true if the command yields a value by default.
func (c *Call) HasReturnValue() bool {
	return c.code.ProducesValue()
}

// AllowRevert marks the call as one whose failure is recorded instead of
// aborting the stream.
//
// Returns a new Call with the flag set.
func (c *Call) AllowRevert() *Call {
	clone := c.clone()
	clone.allowRevert = true
	return clone
}

// clone creates a shallow copy of the Call.
func (c *Call) clone() *Call {
	clone := *c
	clone.args = make([]Value, len(c.args))
	copy(clone.args, c.args)
	return &clone
}
